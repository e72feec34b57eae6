// Package wazero bridges registry host functions and guest modules.
//
// Each guest import module, such as "hayride:silo/threads@0.0.65", is
// instantiated as one wazero host module whose exports take and return a
// Packed region of guest memory. Requests are copied out before dispatch and
// responses are written back through the guest's "allocate" export. Errors
// never trap: they reach the guest as hostfuncs.ErrorResponse JSON.
//
//	err := wazeroadapter.RegisterInterface(ctx, runtime, registry,
//	    "hayride:core/version@0.0.65", contract.CoreVersion)
package wazero
