package entities

// StreamKind identifies the payload family carried by a stream.
type StreamKind string

const (
	StreamTensor    StreamKind = "tensor"
	StreamInference StreamKind = "inference"
	StreamGraph     StreamKind = "graph"
)

// StreamState is the lifecycle state of a stream.
type StreamState string

const (
	StreamOpen StreamState = "open"
	// StreamDraining means the producer has finished but items remain buffered.
	StreamDraining StreamState = "draining"
	StreamClosed   StreamState = "closed"
	StreamError    StreamState = "error"
)

// TensorType is the element type of a tensor buffer.
type TensorType string

const (
	TensorFP16 TensorType = "fp16"
	TensorFP32 TensorType = "fp32"
	TensorFP64 TensorType = "fp64"
	TensorBF16 TensorType = "bf16"
	TensorU8   TensorType = "u8"
	TensorI32  TensorType = "i32"
	TensorI64  TensorType = "i64"
)

// ElementSize returns the width in bytes of one element, or 0 if unknown.
func (t TensorType) ElementSize() int {
	switch t {
	case TensorU8:
		return 1
	case TensorFP16, TensorBF16:
		return 2
	case TensorFP32, TensorI32:
		return 4
	case TensorFP64, TensorI64:
		return 8
	default:
		return 0
	}
}

// Tensor is a raw numeric buffer with shape metadata.
type Tensor struct {
	Type  TensorType `json:"type"`
	Shape []uint32   `json:"shape"`
	Data  []byte     `json:"data"`
}

// Elements returns the product of the shape dimensions.
func (t Tensor) Elements() int {
	if len(t.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range t.Shape {
		n *= int(d)
	}
	return n
}

// Fragment is an incremental piece of model output. A backend that produces
// structured tool calls sets ToolInput; otherwise Text carries raw tokens.
type Fragment struct {
	ToolInput *ToolInput `json:"tool_input,omitempty"`
	Text      string     `json:"text,omitempty"`
}

// RetrievalHit is one match returned by a vector-store query.
type RetrievalHit struct {
	Metadata map[string]string `json:"metadata,omitempty"`
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Score    float64           `json:"score"`
}

// GraphOutput is a structured partial result carried on a graph stream.
type GraphOutput struct {
	Table string         `json:"table,omitempty"`
	Hits  []RetrievalHit `json:"hits"`
}
