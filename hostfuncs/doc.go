// Package hostfuncs provides pure Go implementations of the host functions
// offered to components. These implementations have NO WASM runtime
// dependencies; the wazero adapter binds them to guest imports.
//
// Handlers are registered under qualified names of the form
// "namespace:package/interface@version#function" and exchange JSON payloads.
// Failures are returned in-band as an ErrorResponse so a guest never traps
// on a host error.
package hostfuncs
