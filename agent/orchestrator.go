package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hayride-dev/hayride-go/domain/entities"
	domainerrors "github.com/hayride-dev/hayride-go/domain/errors"
	"github.com/hayride-dev/hayride-go/hostfuncs"
	"github.com/hayride-dev/hayride-go/pipeline"
)

// StopReason says why a run ended.
type StopReason string

const (
	// StopFinal means the model answered without calling a tool.
	StopFinal StopReason = "final"
	// StopMaxIterations means the iteration cap cut the run short.
	StopMaxIterations StopReason = "max_iterations"
)

// Result is the outcome of one run.
type Result struct {
	History    []entities.Message
	Reason     StopReason
	Iterations int
}

// Final reports whether the model produced a final answer.
func (r Result) Final() bool {
	return r.Reason == StopFinal
}

// Err returns ErrMaxIterations for a partial result and nil otherwise.
func (r Result) Err() error {
	if r.Reason == StopMaxIterations {
		return domainerrors.ErrMaxIterations
	}
	return nil
}

// Answer returns the text of the last assistant message.
func (r Result) Answer() string {
	for i := len(r.History) - 1; i >= 0; i-- {
		if r.History[i].Role == entities.RoleAssistant {
			return r.History[i].Text()
		}
	}
	return ""
}

// Orchestrator runs conversations against one inference service and one
// tool registry. It is safe for concurrent use.
type Orchestrator struct {
	config    orchestratorConfig
	inference hostfuncs.InferenceService
	tools     *ToolRegistry
}

var _ hostfuncs.AgentService = (*Orchestrator)(nil)

// NewOrchestrator creates an Orchestrator. A nil registry offers no tools.
func NewOrchestrator(inference hostfuncs.InferenceService, tools *ToolRegistry, opts ...Option) *Orchestrator {
	cfg := defaultOrchestratorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if tools == nil {
		tools = &ToolRegistry{tools: map[string]*registeredTool{}}
	}
	return &Orchestrator{config: cfg, inference: inference, tools: tools}
}

// Tools returns the registry the orchestrator dispatches to.
func (o *Orchestrator) Tools() *ToolRegistry {
	return o.tools
}

// Invoke runs the loop on behalf of a guest. The caller silo is suspended
// for the duration and resumed before Invoke returns.
func (o *Orchestrator) Invoke(ctx context.Context, caller string, req hostfuncs.AgentRequest) (hostfuncs.AgentResponse, error) {
	if caller != "" && o.config.suspender != nil {
		if err := o.config.suspender.Suspend(caller); err != nil {
			o.config.logger.DebugContext(ctx, "agent: caller not suspended", "silo", caller, "error", err)
		} else {
			defer func() {
				if err := o.config.suspender.Resume(caller); err != nil {
					o.config.logger.WarnContext(ctx, "agent: resume caller failed", "silo", caller, "error", err)
				}
			}()
		}
	}

	res, err := o.Run(ctx, req.History, req.Prompt)
	return hostfuncs.AgentResponse{
		History:    res.History,
		Reason:     string(res.Reason),
		Iterations: res.Iterations,
		Final:      res.Final(),
	}, err
}

// Run continues history with prompt and loops until the model stops calling
// tools or the iteration cap is reached. Reaching the cap is not an error:
// the partial result is returned with Reason StopMaxIterations. Errors from
// the model backend end the run and are returned with the history so far.
func (o *Orchestrator) Run(ctx context.Context, history []entities.Message, prompt string) (Result, error) {
	msgs := make([]entities.Message, 0, len(history)+2)
	if len(history) == 0 && o.config.systemPrompt != "" {
		msgs = append(msgs, entities.Message{Role: entities.RoleSystem, Content: []entities.Content{entities.NewTextContent(o.config.systemPrompt)}})
	}
	msgs = append(msgs, history...)
	if prompt != "" {
		msgs = append(msgs, o.userMessage(ctx, prompt))
	}
	if len(msgs) == 0 {
		return Result{}, &domainerrors.ConfigError{Kind: domainerrors.KindInvalid, Field: "prompt", Err: errors.New("empty conversation")}
	}
	if err := entities.CheckToolPairing(msgs); err != nil {
		return Result{History: msgs}, &domainerrors.ConfigError{Kind: domainerrors.KindInvalid, Field: "history", Err: err}
	}

	res := Result{History: msgs}
	for res.Iterations < o.config.maxIterations {
		res.Iterations++
		reply, err := o.turn(ctx, res.History)
		if err != nil {
			return res, err
		}
		res.History = append(res.History, reply)

		inputs := reply.ToolInputs()
		if len(inputs) == 0 {
			res.Reason = StopFinal
			o.config.metrics.finished(res.Reason, res.Iterations)
			return res, nil
		}

		outputs := make([]entities.Content, 0, len(inputs))
		for _, in := range inputs {
			outputs = append(outputs, entities.NewToolOutputContent(o.dispatch(ctx, in)))
		}
		res.History = append(res.History, entities.Message{Role: entities.RoleTool, Content: outputs})
		if err := ctx.Err(); err != nil {
			return res, err
		}
	}

	res.Reason = StopMaxIterations
	o.config.metrics.finished(res.Reason, res.Iterations)
	o.config.logger.WarnContext(ctx, "agent: iteration cap reached", "iterations", res.Iterations)
	return res, nil
}

// userMessage builds the user turn, adding retrieved context when a
// retriever is configured. A retrieval that cannot start is skipped; one
// that fails mid-stream keeps the hits read before the failure.
func (o *Orchestrator) userMessage(ctx context.Context, prompt string) entities.Message {
	msg := entities.NewUserMessage(prompt)
	if o.config.retriever == nil || o.config.ragTable == "" {
		return msg
	}
	hits := o.retrieve(ctx, prompt)
	if len(hits) == 0 {
		return msg
	}
	var b strings.Builder
	b.WriteString("Relevant context:")
	for _, h := range hits {
		b.WriteString("\n- ")
		b.WriteString(h.Text)
	}
	msg.Content = append(msg.Content, entities.NewTextContent(b.String()))
	return msg
}

func (o *Orchestrator) retrieve(ctx context.Context, prompt string) []entities.RetrievalHit {
	log := o.config.logger.With("table", o.config.ragTable)
	stream, err := o.config.retriever.Retrieve(ctx, o.config.ragTable, prompt, o.config.ragLimit)
	if err != nil {
		log.WarnContext(ctx, "agent: retrieval failed", "error", err)
		return nil
	}
	defer func() { _ = stream.Close() }()

	outputs, err := pipeline.Drain(ctx, stream)
	if err != nil {
		log.WarnContext(ctx, "agent: retrieval stream failed", "stream", stream.ID(), "error", err)
	}
	var hits []entities.RetrievalHit
	for _, out := range outputs {
		hits = append(hits, out.Hits...)
	}
	return hits
}

// turn submits history and assembles the assistant reply from the stream.
func (o *Orchestrator) turn(ctx context.Context, history []entities.Message) (entities.Message, error) {
	stream, err := o.inference.Infer(ctx, entities.InferenceRequest{
		Model:    o.config.model,
		Messages: history,
		Tools:    o.tools.Schemas(),
		Options:  o.config.options,
	})
	if err != nil {
		return entities.Message{}, err
	}
	defer func() { _ = stream.Close() }()

	var (
		text       strings.Builder
		structured []*entities.ToolInput
	)
	for {
		frag, err := stream.Receive(ctx)
		if pipeline.IsEndOfStream(err) {
			break
		}
		if err != nil {
			return entities.Message{}, err
		}
		if frag.ToolInput != nil {
			structured = append(structured, frag.ToolInput)
		}
		text.WriteString(frag.Text)
	}

	rest, parsed, err := ParseToolCalls(text.String())
	if err != nil {
		o.config.logger.WarnContext(ctx, "agent: malformed tool call in model output", "error", err)
	}

	reply := entities.Message{Role: entities.RoleAssistant}
	if rest != "" {
		reply.Content = append(reply.Content, entities.NewTextContent(rest))
	}
	seen := make(map[string]bool)
	for _, in := range append(structured, parsed...) {
		if in.ID == "" || seen[in.ID] {
			in.ID = uuid.NewString()
		}
		seen[in.ID] = true
		if in.ContentType == "" {
			in.ContentType = "application/json"
		}
		reply.Content = append(reply.Content, entities.NewToolInputContent(in))
	}
	return reply, nil
}

type callResult struct {
	out entities.ToolOutput
	err error
}

// dispatch runs one tool call under the tool timeout. Any failure is turned
// into an output carrying the error detail.
func (o *Orchestrator) dispatch(ctx context.Context, in *entities.ToolInput) entities.ToolOutput {
	cctx, cancel := context.WithTimeout(ctx, o.config.toolTimeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		out, err := o.tools.Call(cctx, in)
		done <- callResult{out: out, err: err}
	}()

	var res callResult
	select {
	case res = <-done:
	case <-cctx.Done():
		res.err = cctx.Err()
	}
	if res.err != nil && errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		res.err = &domainerrors.ToolError{Tool: in.Name, CallID: in.ID, Err: &domainerrors.TimeoutError{
			Operation: "tool_call",
			Target:    in.Name,
			Duration:  o.config.toolTimeout,
		}}
	}

	if res.err == nil {
		o.config.metrics.toolCall(in.Name, "ok")
		return res.out
	}

	o.config.metrics.toolCall(in.Name, "error")
	o.config.logger.WarnContext(ctx, "agent: tool call failed", "tool", in.Name, "call_id", in.ID, "error", res.err)
	return errorOutput(in, res.err)
}

// errorOutput encodes err as {"error": ErrorDetail}.
func errorOutput(in *entities.ToolInput, err error) entities.ToolOutput {
	var te *domainerrors.ToolError
	if !errors.As(err, &te) {
		err = &domainerrors.ToolError{Tool: in.Name, CallID: in.ID, Err: err}
	}
	payload, mErr := json.Marshal(map[string]*entities.ErrorDetail{"error": domainerrors.ToErrorDetail(err)})
	if mErr != nil {
		payload = []byte(fmt.Sprintf(`{"error":{"message":%q,"type":"tool"}}`, err.Error()))
	}
	return entities.ToolOutput{
		ContentType: "application/json",
		ID:          in.ID,
		Name:        in.Name,
		Output:      string(payload),
	}
}
