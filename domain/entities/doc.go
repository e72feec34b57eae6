// Package entities provides the core domain types of the runtime:
// conversation messages, silo and stream descriptors, tensors and
// retrieval results, and the structured error detail shared across layers.
package entities
