// Package ir provides the shared data types of the joint-activity engine.
//
// This package contains type definitions and their canonical encoding only.
// All other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Elapsed times are int64 milliseconds, never wall-clock timestamps
//   - An activity's identity is (URN, Inputs, Outputs); instance ids are
//     process-unique handles and never take part in identity
//   - Events crossing the engine boundary are tagged unions: exactly one
//     body pointer is set, matching the Category
//   - All JSON tags use snake_case
package ir
