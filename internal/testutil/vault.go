package testutil

import (
	"fitrec/internal/vault"
)

// NewTestVault creates an in-memory archive vault for testing.
func NewTestVault() *vault.MemoryVault {
	return vault.NewMemoryVault()
}
