// Package rag is an in-memory retrieval store for agents.
//
// Documents are embedded on insert and ranked by cosine similarity on
// query. The default embedder hashes terms into a fixed number of
// dimensions, so retrieval is lexical; any ports.Embedder can replace it.
// Retrieve hands results out as a graph stream so guests consume them the
// same way as every other partial result.
package rag
