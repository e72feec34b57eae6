package entities

// PromptOptions tunes a single inference request. Zero values mean backend defaults.
type PromptOptions struct {
	Temperature float32 `json:"temperature,omitempty" toml:"temperature"`
	TopP        float32 `json:"top_p,omitempty" toml:"top_p"`
	NumContext  int     `json:"num_context,omitempty" toml:"num_context"`
	NumBatch    int     `json:"num_batch,omitempty" toml:"num_batch"`
	MaxPredict  int     `json:"max_predict,omitempty" toml:"max_predict"`
	TopK        int     `json:"top_k,omitempty" toml:"top_k"`
	Seed        int64   `json:"seed,omitempty" toml:"seed"`
}

// InferenceRequest is the full input submitted to a model backend.
type InferenceRequest struct {
	Model    string        `json:"model,omitempty"`
	Messages []Message     `json:"messages"`
	Tools    []ToolSchema  `json:"tools,omitempty"`
	Options  PromptOptions `json:"options"`
}
