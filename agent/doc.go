// Package agent runs the conversational tool-calling loop.
//
// An Orchestrator submits the conversation to a model backend, reads the
// reply from an inference stream, and dispatches every tool call in it to
// the provider registered for that tool. Tool outputs are appended to the
// history and the model is asked again, until it answers without tool calls
// or the iteration cap is reached.
//
// Tools are described by a ToolRegistry. Providers are either host Go
// functions (WithFunc) or components running in silos (SiloDispatcher).
// A failed or timed-out dispatch becomes a tool output carrying an error
// detail; the conversation continues.
package agent
