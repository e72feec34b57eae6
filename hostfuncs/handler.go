package hostfuncs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// ByteHandler is the raw form every host function takes in the registry:
// JSON request in, JSON response out.
type ByteHandler func(context.Context, []byte) ([]byte, error)

// HostFunc is a typed host function that cannot fail.
type HostFunc[Req any, Resp any] func(context.Context, Req) Resp

// HostFuncE is a typed host function whose error reaches the guest as an
// ErrorResponse.
type HostFuncE[Req any, Resp any] func(context.Context, Req) (Resp, error)

// Empty stands in for a missing request or response.
type Empty struct{}

// NewJSONHandler adapts fn to a ByteHandler.
//
//	latest := hostfuncs.NewJSONHandler(func(ctx context.Context, _ hostfuncs.Empty) hostfuncs.VersionResponse {
//	    return hostfuncs.VersionResponse{Version: "0.0.65"}
//	})
func NewJSONHandler[Req any, Resp any](fn HostFunc[Req, Resp]) ByteHandler {
	return NewJSONHandlerE(func(ctx context.Context, req Req) (Resp, error) {
		return fn(ctx, req), nil
	})
}

// NewJSONHandlerE adapts fn to a ByteHandler. A request that does not decode
// yields a VALIDATION_ERROR response and fn is not called. The only Go error
// returned is a response that cannot be encoded.
func NewJSONHandlerE[Req any, Resp any](fn HostFuncE[Req, Resp]) ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		req, err := decodeRequest[Req](payload)
		if err != nil {
			return NewValidationError(err.Error()).ToJSON(), nil
		}
		resp, err := fn(ctx, req)
		if err != nil {
			return NewDomainError(err).ToJSON(), nil
		}
		out, err := json.Marshal(resp)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response: %w", err)
		}
		return out, nil
	}
}

// decodeRequest treats an empty or blank payload as the zero request.
func decodeRequest[Req any](payload []byte) (Req, error) {
	var req Req
	if len(bytes.TrimSpace(payload)) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return req, fmt.Errorf("failed to unmarshal request: %w", err)
	}
	return req, nil
}
