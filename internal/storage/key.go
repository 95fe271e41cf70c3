package storage

import (
	"crypto/sha256"
	"encoding/hex"
)

// stateKey hashes a state before it is stored, so the ledger never holds a
// value that could be replayed if read back.
func stateKey(state string) string {
	sum := sha256.Sum256([]byte(state))
	return hex.EncodeToString(sum[:])
}
