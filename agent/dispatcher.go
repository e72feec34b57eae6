package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hayride-dev/hayride-go/domain/entities"
	"github.com/hayride-dev/hayride-go/domain/ports"
	"github.com/hayride-dev/hayride-go/hostfuncs"
)

// Function names a tool component exports under hayride:ai/tools.
const (
	ToolsCallFunction = "call"
	ToolsListFunction = "list"
)

// SiloCaller sends a request to the component running in a silo.
// *silo.Manager implements it.
type SiloCaller interface {
	Call(ctx context.Context, id, fn string, payload []byte) ([]byte, error)
}

// SiloDispatcher forwards tool calls to a component running in one silo.
type SiloDispatcher struct {
	silos  SiloCaller
	siloID string
}

var _ ports.ToolProvider = (*SiloDispatcher)(nil)

// NewSiloDispatcher creates a dispatcher for the tools served by siloID.
func NewSiloDispatcher(silos SiloCaller, siloID string) *SiloDispatcher {
	return &SiloDispatcher{silos: silos, siloID: siloID}
}

// SiloID returns the silo the dispatcher calls into.
func (d *SiloDispatcher) SiloID() string {
	return d.siloID
}

// Call sends input to the silo's call export and decodes the tool output.
func (d *SiloDispatcher) Call(ctx context.Context, input *entities.ToolInput) (entities.ToolOutput, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return entities.ToolOutput{}, fmt.Errorf("encode tool input: %w", err)
	}
	raw, err := d.silos.Call(ctx, d.siloID, ToolsCallFunction, payload)
	if err != nil {
		return entities.ToolOutput{}, err
	}
	if err := guestError(raw); err != nil {
		return entities.ToolOutput{}, err
	}
	var out entities.ToolOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return entities.ToolOutput{}, fmt.Errorf("decode tool output: %w", err)
	}
	return out, nil
}

// Tools asks the silo which tools it serves.
func (d *SiloDispatcher) Tools(ctx context.Context) ([]entities.ToolSchema, error) {
	raw, err := d.silos.Call(ctx, d.siloID, ToolsListFunction, nil)
	if err != nil {
		return nil, err
	}
	if err := guestError(raw); err != nil {
		return nil, err
	}
	var schemas []entities.ToolSchema
	if err := json.Unmarshal(raw, &schemas); err != nil {
		return nil, fmt.Errorf("decode tool list: %w", err)
	}
	return schemas, nil
}

// guestError reports an in-band error response written by the guest.
func guestError(raw []byte) error {
	var resp hostfuncs.ErrorResponse
	if json.Unmarshal(raw, &resp) != nil || resp.Error == "" {
		return nil
	}
	if resp.Detail != nil {
		return fmt.Errorf("%s: %s", resp.Error, resp.Detail.Message)
	}
	return fmt.Errorf("%s: %s", resp.Error, resp.Message)
}
