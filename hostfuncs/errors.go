package hostfuncs

import (
	"encoding/json"
	"fmt"

	"github.com/hayride-dev/hayride-go/domain/entities"
	domainerrors "github.com/hayride-dev/hayride-go/domain/errors"
)

// Guest-visible error classes with their numeric codes.
const (
	ErrClassValidation = "VALIDATION_ERROR"
	ErrClassNotFound   = "NOT_FOUND"
	ErrClassTimeout    = "TIMEOUT"
	ErrClassExhausted  = "RESOURCE_EXHAUSTED"
	ErrClassInternal   = "INTERNAL_ERROR"
)

var classCodes = map[string]int{
	ErrClassValidation: 400,
	ErrClassNotFound:   404,
	ErrClassTimeout:    408,
	ErrClassExhausted:  429,
	ErrClassInternal:   500,
}

// ErrorResponse is the in-band error a host function hands back to the
// guest instead of trapping.
type ErrorResponse struct {
	Detail  *entities.ErrorDetail `json:"detail,omitempty"`
	Error   string                `json:"error"`
	Message string                `json:"message"`
	Code    int                   `json:"code"`
}

func newErrorResponse(class, message string) ErrorResponse {
	return ErrorResponse{Error: class, Message: message, Code: classCodes[class]}
}

// ToJSON encodes the response. It returns nil only if encoding fails.
func (e ErrorResponse) ToJSON() []byte {
	data, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	return data
}

// NewValidationError reports a malformed or oversized request.
func NewValidationError(message string) ErrorResponse {
	return newErrorResponse(ErrClassValidation, message)
}

// NewNotFoundError reports a call to a function the registry does not hold.
func NewNotFoundError(name string) ErrorResponse {
	return newErrorResponse(ErrClassNotFound, "unknown host function: "+name)
}

// NewInternalError reports a host-side failure.
func NewInternalError(message string) ErrorResponse {
	return newErrorResponse(ErrClassInternal, message)
}

// NewDomainError maps a runtime error onto a guest error class and attaches
// its structured detail.
func NewDomainError(err error) ErrorResponse {
	detail := domainerrors.ToErrorDetail(err)
	resp := newErrorResponse(classify(detail), err.Error())
	resp.Detail = detail
	return resp
}

func classify(d *entities.ErrorDetail) string {
	switch {
	case d.IsNotFound:
		return ErrClassNotFound
	case d.IsTimeout:
		return ErrClassTimeout
	case d.Code == "resource_exhausted":
		return ErrClassExhausted
	}
	switch d.Type {
	case entities.ErrorTypeConfig, entities.ErrorTypeLoad, entities.ErrorTypeValidation:
		return ErrClassValidation
	}
	return ErrClassInternal
}

// NewPanicError reports a handler panic recovered by middleware.
func NewPanicError(v any) ErrorResponse {
	var msg string
	switch p := v.(type) {
	case error:
		msg = p.Error()
	case string:
		msg = p
	default:
		msg = fmt.Sprintf("panic recovered (%T)", v)
	}
	return newErrorResponse(ErrClassInternal, "panic: "+msg)
}
