// Package event defines the vectors that flow through the system.
//
// A Vector is an identifier plus positional arguments. Events and
// subscription queries are both vectors; the first element names what
// to do or what to derive, the rest parameterize it. Effects reuse
// the same shape with a single payload value.
//
// Vectors have a canonical string key derived from their canonical
// JSON encoding. The graph uses the key to deduplicate subscription
// nodes, and the journal uses it to record dispatches.
package event
