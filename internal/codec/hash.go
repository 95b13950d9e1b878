package codec

import (
	"crypto/sha256"
	"encoding/hex"
)

// DomainDocument separates document hashes from any other hash space.
const DomainDocument = "cadstore/document/v1"

// Hash returns the domain-separated SHA-256 of a canonical document:
// SHA256(domain + 0x00 + data).
func Hash(data []byte) string {
	h := sha256.New()
	h.Write([]byte(DomainDocument))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
