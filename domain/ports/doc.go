// Package ports holds the seams between the runtime and the outside world:
// model backends, retrieval stores, databases, the component store and tool
// callers.
package ports
