// Package backend shares pre-instantiated model backends between silos.
//
// A Pool admits a bounded number of concurrent requests per backend.
// Requests beyond the bound wait for a slot rather than being rejected.
// Output reaches the caller on an inference stream; a backend failure
// moves that stream into its error state and is never retried.
package backend
