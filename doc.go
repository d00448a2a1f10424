// Package vecbase is an embedded vector database: fixed-dimension float32
// vectors with string identifiers and optional metadata, approximate
// nearest-neighbor search over a layered proximity graph, and exact
// brute-force search for small collections.
//
// All scores are similarities: higher is better regardless of metric. Ties
// are broken by insertion order. A single database handle is safe for
// concurrent use.
package vecbase
