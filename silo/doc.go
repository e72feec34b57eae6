// Package silo hosts component instances and host processes in isolated
// execution contexts.
//
// A silo moves through created, running and optionally suspended states
// before ending terminated (shutdown or normal completion) or failed (guest
// fault or host cancellation). Everything a silo owns is released before
// its terminal state becomes visible: resource handles in reverse
// acquisition order, then sub-silos, then the boundary itself.
//
// Thread silos run a wazero instance on a goroutine and share the host
// address space; they are isolated by the capabilities their imports were
// linked against. Process silos run a host command in its own OS process.
package silo
