// Package codec serializes entities and project documents.
//
// A document is a JSON array of entity envelopes sorted by id. Each
// envelope carries the kind discriminator next to the entity state:
//
//	[{"entity":{...},"kind":"wall"}, ...]
//
// Documents are written in canonical form (RFC 8785 key ordering, NFC
// strings, no HTML escaping) so two saves of the same store are
// byte-identical and can be content-hashed.
package codec
