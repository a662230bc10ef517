// Package mock provides test doubles for the engine's external
// dependencies: chat models, the graph store, the vector index and the
// embedder. Each double takes an optional function field for custom
// behaviour and counts its calls.
package mock
