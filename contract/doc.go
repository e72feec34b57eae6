// Package contract holds the versioned capability-interface contracts
// ("worlds") that components declare conformance to.
//
// Interfaces are compared by name and semantic version: a provider satisfies
// a consumer when the majors are equal and the consumer's minor is not newer
// than the provider's. When several providers qualify, the highest minor
// (then patch) wins.
package contract
