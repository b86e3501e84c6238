// Package ir provides the value and event types shared by the datastore
// write path.
//
// This package contains type definitions and pure functions only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Request and db events are sealed sum types; switches over them are
//     exhaustive and treat anything else as a BadCodingError
//   - Stored models and events are encoded as canonical JSON
//   - Models carry the reserved meta_deleted and meta_position fields
package ir
