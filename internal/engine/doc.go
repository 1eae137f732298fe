// Package engine is the execution adapter between the compilers and a
// document store.
//
// Reads compile to one aggregation pipeline and run as a single store
// call; the engine turns the returned documents into rows of the visible
// columns. Writes compile to a mutation whose ops are journaled, applied
// in order, and followed by the fan-out ops that refresh denormalized
// copies.
//
// Concurrency: compilation is pure and the schema model is shared
// read-only. Fan-out ops are independent and run on a bounded worker
// pool; primary ops never run concurrently with each other.
//
// Batches are stamped with a logical seq from Clock, never a wall-clock
// timestamp, so the journal replays in statement order.
package engine
