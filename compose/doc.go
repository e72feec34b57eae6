// Package compose links independently built components into one runnable
// graph from their declared imports and exports.
//
// The graph is an arena: nodes are copied in once, sorted by component id,
// and referenced by index from edges. A graph never changes after Compose
// returns; any change to the component set means composing again.
package compose
