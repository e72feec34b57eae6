package hostfuncs

import (
	"context"

	"github.com/hayride-dev/hayride-go/contract"
	"github.com/hayride-dev/hayride-go/domain/entities"
	"github.com/hayride-dev/hayride-go/pipeline"
)

// InferenceService submits requests to a model backend.
type InferenceService interface {
	Infer(ctx context.Context, req entities.InferenceRequest) (*pipeline.InferenceStream, error)
}

// ModelRepository manages locally stored model files.
type ModelRepository interface {
	List(ctx context.Context) ([]string, error)
	Path(ctx context.Context, name string) (string, error)
	Delete(ctx context.Context, name string) error
}

// RagService manages retrieval tables.
type RagService interface {
	Register(ctx context.Context, table string) error
	Embed(ctx context.Context, table, id, text string, metadata map[string]string) error
	Retrieve(ctx context.Context, table, query string, limit int) (*pipeline.GraphStream, error)
}

// AgentService runs the tool-calling loop on behalf of a silo.
type AgentService interface {
	Invoke(ctx context.Context, caller string, req AgentRequest) (AgentResponse, error)
}

// AgentRequest continues a conversation with a new user prompt.
type AgentRequest struct {
	History []entities.Message `json:"history"`
	Prompt  string             `json:"prompt"`
}

// AgentResponse is the outcome of one agent run.
type AgentResponse struct {
	History    []entities.Message `json:"history"`
	Reason     string             `json:"reason"`
	Iterations int                `json:"iterations"`
	Final      bool               `json:"final"`
}

// ModelName names a model in the repository.
type ModelName struct {
	Name string `json:"name"`
}

// ModelList lists repository models.
type ModelList struct {
	Models []string `json:"models"`
}

// ModelPath is the local path of a model file.
type ModelPath struct {
	Path string `json:"path"`
}

// RagTable names a retrieval table.
type RagTable struct {
	Table string `json:"table"`
}

// RagDocument is text to embed into a table.
type RagDocument struct {
	Metadata map[string]string `json:"metadata,omitempty"`
	Table    string            `json:"table"`
	ID       string            `json:"id"`
	Text     string            `json:"text"`
}

// RagQuery retrieves the closest documents to Query.
type RagQuery struct {
	Table string `json:"table"`
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// TensorRequest streams a tensor in chunks of Rows leading-dimension rows.
type TensorRequest struct {
	Tensor entities.Tensor `json:"tensor"`
	Rows   int             `json:"rows"`
}

// AIServices are the backends behind the hayride:ai interfaces. Interfaces
// whose service is nil are not registered.
type AIServices struct {
	Resources ResourceTable
	Inference InferenceService
	Models    ModelRepository
	Rag       RagService
	Agents    AgentService
}

// AIBundle returns the hayride:ai functions. Streams are handed to guests as
// resource handles owned by the calling silo.
func AIBundle(s AIServices) HostFuncBundle {
	h := make(HandlerSet)

	if s.Resources != nil {
		table := s.Resources
		h[qualify(contract.AITensorStream, "open")] = NewJSONHandlerE(func(ctx context.Context, req TensorRequest) (StreamRef, error) {
			stream, err := pipeline.StreamTensor(context.WithoutCancel(ctx), req.Tensor, req.Rows, pipeline.DefaultCapacity)
			if err != nil {
				return StreamRef{}, err
			}
			return attachStream(ctx, table, stream)
		})
		h[qualify(contract.AITensorStream, "next")] = NewJSONHandlerE(streamNext[entities.Tensor](table))
		h[qualify(contract.AITensorStream, "close")] = NewJSONHandlerE(streamClose(table))

		if s.Inference != nil {
			infer := s.Inference
			h[qualify(contract.AIInferenceStream, "compute")] = NewJSONHandlerE(func(ctx context.Context, req entities.InferenceRequest) (StreamRef, error) {
				stream, err := infer.Infer(context.WithoutCancel(ctx), req)
				if err != nil {
					return StreamRef{}, err
				}
				return attachStream(ctx, table, stream)
			})
			h[qualify(contract.AIInferenceStream, "next")] = NewJSONHandlerE(streamNext[entities.Fragment](table))
			h[qualify(contract.AIInferenceStream, "close")] = NewJSONHandlerE(streamClose(table))
		}

		if s.Rag != nil {
			rag := s.Rag
			h[qualify(contract.AIRag, "retrieve")] = NewJSONHandlerE(func(ctx context.Context, req RagQuery) (StreamRef, error) {
				stream, err := rag.Retrieve(context.WithoutCancel(ctx), req.Table, req.Query, req.Limit)
				if err != nil {
					return StreamRef{}, err
				}
				return attachStream(ctx, table, stream)
			})
			h[qualify(contract.AIGraphStream, "next")] = NewJSONHandlerE(streamNext[entities.GraphOutput](table))
			h[qualify(contract.AIGraphStream, "close")] = NewJSONHandlerE(streamClose(table))
		}
	}

	if s.Rag != nil {
		rag := s.Rag
		h[qualify(contract.AIRag, "register")] = NewJSONHandlerE(func(ctx context.Context, req RagTable) (Empty, error) {
			return Empty{}, rag.Register(ctx, req.Table)
		})
		h[qualify(contract.AIRag, "embed")] = NewJSONHandlerE(func(ctx context.Context, req RagDocument) (Empty, error) {
			return Empty{}, rag.Embed(ctx, req.Table, req.ID, req.Text, req.Metadata)
		})
	}

	if s.Models != nil {
		models := s.Models
		h[qualify(contract.AIModelRepository, "list")] = NewJSONHandlerE(func(ctx context.Context, _ Empty) (ModelList, error) {
			names, err := models.List(ctx)
			if names == nil {
				names = []string{}
			}
			return ModelList{Models: names}, err
		})
		h[qualify(contract.AIModelRepository, "path")] = NewJSONHandlerE(func(ctx context.Context, req ModelName) (ModelPath, error) {
			p, err := models.Path(ctx, req.Name)
			return ModelPath{Path: p}, err
		})
		h[qualify(contract.AIModelRepository, "delete")] = NewJSONHandlerE(func(ctx context.Context, req ModelName) (Empty, error) {
			return Empty{}, models.Delete(ctx, req.Name)
		})
	}

	if s.Agents != nil {
		agents := s.Agents
		h[qualify(contract.AIAgents, "invoke")] = NewJSONHandlerE(func(ctx context.Context, req AgentRequest) (AgentResponse, error) {
			caller, _ := CallerFrom(ctx)
			return agents.Invoke(ctx, caller, req)
		})
	}

	return HandlerSet(h)
}
