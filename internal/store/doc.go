// Package store provides the SQLite event log.
//
// The log is append-only and holds two streams:
//   - observations: inbound events exactly as the engine accepted them
//   - publications: outbound payloads, each linked to the observation
//     whose processing produced it
//
// Every row carries the engine's logical seq. Reads order by seq so that
// replaying observations reproduces the original processing order.
// Payloads are stored as JSON with HTML escaping disabled. Discovery and
// summary publications also store the identity key of the activity they
// describe (see ir.IdentityKey).
//
// Open pins the pool to one connection and turns on WAL with a 5 s busy
// timeout, so trace and replay can read a log while run is writing it.
package store
