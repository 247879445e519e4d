package testutil

import (
	"fitrec/internal/encryption"
)

// NewTestEncryptor creates a reversible encryptor for testing.
func NewTestEncryptor() *encryption.TestEncryptor {
	return encryption.NewTestEncryptor()
}
