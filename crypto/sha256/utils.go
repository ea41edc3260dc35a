package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

func Hash(data []byte) []byte {
	hash := sha256.New()
	hash.Write(data)
	return hash.Sum(nil)
}

// HexHash returns the lowercase hex digest of data.
func HexHash(data []byte) string {
	return hex.EncodeToString(Hash(data))
}
