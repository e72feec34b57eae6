package hostfuncs

import (
	"context"

	"github.com/hayride-dev/hayride-go/compose"
	"github.com/hayride-dev/hayride-go/contract"
)

// CompositionLink is one resolved import in a composition plan. An empty
// Provider means the host satisfies the import.
type CompositionLink struct {
	Importer string `json:"importer"`
	Provider string `json:"provider,omitempty"`
	Import   string `json:"import"`
	Export   string `json:"export"`
}

// CompositionPlan is the outcome of composing installed components.
type CompositionPlan struct {
	Order []string          `json:"order"`
	Links []CompositionLink `json:"links"`
}

// ComposeRequest lists installed component references to compose, either
// directly or as a YAML composition document.
type ComposeRequest struct {
	Document   string   `json:"document,omitempty"`
	Components []string `json:"components,omitempty"`
}

// PlugRequest wires plugs into the imports of socket.
type PlugRequest struct {
	Socket string   `json:"socket"`
	Plugs  []string `json:"plugs"`
}

// Composer plans compositions of installed components.
type Composer interface {
	Compose(ctx context.Context, components []string) (CompositionPlan, error)
	Plug(ctx context.Context, socket string, plugs []string) (CompositionPlan, error)
}

// WacBundle returns the hayride:wac functions compose and plug.
func WacBundle(c Composer) HostFuncBundle {
	return HandlerSet{
		qualify(contract.WacCompose, "compose"): NewJSONHandlerE(func(ctx context.Context, req ComposeRequest) (CompositionPlan, error) {
			components := req.Components
			if req.Document != "" {
				refs, err := compose.ParseDocument([]byte(req.Document))
				if err != nil {
					return CompositionPlan{}, err
				}
				components = append(refs, components...)
			}
			return c.Compose(ctx, components)
		}),
		qualify(contract.WacCompose, "plug"): NewJSONHandlerE(func(ctx context.Context, req PlugRequest) (CompositionPlan, error) {
			return c.Plug(ctx, req.Socket, req.Plugs)
		}),
	}
}
