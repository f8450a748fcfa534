// Package engine is the jagtrack event loop.
//
// The engine receives inbound events from any number of observers, keeps
// one model per observer, and publishes what the models report.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// All events are processed in one goroutine. This ensures:
//   - Every observer's ledgers see events in arrival order
//   - Replaying the observation log reproduces the same publications
//   - Merges read a forest nobody is mutating
//
// Event Processing Flow:
//  1. Events are enqueued to a FIFO queue (Enqueue is goroutine-safe)
//  2. Run dequeues one event at a time and calls Process
//  3. Process stamps a seq from the Clock and records the observation
//  4. DISCOVERED events grow the observer's forest, then retry its orphans
//  5. Activity and completion events are dispatched to the observer's
//     model, or buffered as orphans when no instance they target exists
//  6. SUMMARY events merge every observer's view of each activity and
//     publish team metrics
//
// Every publication is stamped with its own seq and recorded with the seq
// of the observation that caused it.
//
// Logical Clock:
// Seq orders the log. ElapsedMS is mission time carried by the events and
// is never used for ordering.
package engine
