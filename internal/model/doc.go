// Package model provides the foundational types shared by every cadstore
// package: identifiers, feature geometry, references, the entity capability
// contract, update messages and coded errors.
//
// This package contains types and small pure helpers only. All other internal
// packages import model; model imports nothing internal.
//
// Key design constraints:
//   - Identifiers are 128-bit UUIDs exchanged as canonical 36-character text
//   - A feature is addressed by (ObjectID, index); indices are entity-private
//   - Entities own their references; any index built over them is secondary
//   - Capabilities are discovered at runtime with type assertions
package model
