package webapi

import (
	"crypto/rand"
)

// MaxRandomBytes is the largest request getRandomValues accepts.
const MaxRandomBytes = 65536

// Crypto is the window.crypto object.
type Crypto struct{}

// GetRandomValues fills arr with random bytes.
func (c *Crypto) GetRandomValues(arr *Uint8Array) error {
	if arr.Len() > MaxRandomBytes {
		return Errorf(QuotaExceededErrorName,
			"The ArrayBufferView's byte length (%d) exceeds the number of bytes of entropy available via this API (%d).",
			arr.Len(), MaxRandomBytes)
	}
	if _, err := rand.Read(arr.Bytes()); err != nil {
		return Errorf(ErrorName, "random source failed: %v", err)
	}
	return nil
}

// RandomFillSync fills arr without the size limit, like the server-side API.
func (c *Crypto) RandomFillSync(arr *Uint8Array) error {
	if _, err := rand.Read(arr.Bytes()); err != nil {
		return Errorf(ErrorName, "random source failed: %v", err)
	}
	return nil
}

// ConstructorName names the object for diagnostics.
func (c *Crypto) ConstructorName() string {
	return "Crypto"
}
