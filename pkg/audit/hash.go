package audit

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// genesisPrefix salts the genesis hash so empty chains in different
// scopes never share a starting point.
const genesisPrefix = "saturn-audit-genesis:"

// GenesisHash returns the hex-encoded genesis hash for a scope. It seeds
// PrevEntryHash for sequence 0.
func GenesisHash(scopeID string) string {
	sum := sha256.Sum256([]byte(genesisPrefix + scopeID))
	return hex.EncodeToString(sum[:])
}

// HashPayload returns the hex-encoded SHA-256 hash of an entry payload.
// An empty payload hashes to the hash of the empty string, keeping the
// chain computation total.
func HashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// ComputeEntryHash computes the hex-encoded entry hash covering the
// previous entry hash, the payload hash, the sequence number, and the
// scope ID. Inputs are length-framed so no two input tuples can collide
// by concatenation.
func ComputeEntryHash(prevEntryHash, payloadHash string, sequenceNo uint64, scopeID string) string {
	h := sha256.New()

	writeFramed := func(s string) {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(s)))
		h.Write(n[:])
		h.Write([]byte(s))
	}

	writeFramed(prevEntryHash)
	writeFramed(payloadHash)

	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], sequenceNo)
	h.Write(seq[:])

	writeFramed(scopeID)

	return hex.EncodeToString(h.Sum(nil))
}
