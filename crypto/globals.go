package crypto

import "crypto/sha256"

var (
	DefaultHashFunc = sha256.New
)

const (
	HMACSHA256Size = 32
	// KeySize is the length of every symmetric key this module derives.
	KeySize = 32
)
