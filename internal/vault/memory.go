package vault

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"fitrec/internal/recon"
)

// ErrNotFound is returned by GetArchive when no archive exists under a key.
var ErrNotFound = errors.New("archive not found")

// MemoryVault is an in-memory implementation of the Vault interface.
// It is useful for tests and ephemeral setups. Safe for concurrent use.
type MemoryVault struct {
	mu       sync.RWMutex
	archives map[string][]byte
}

// NewMemoryVault creates an empty in-memory vault.
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{archives: make(map[string][]byte)}
}

// PutArchive stores content under key.
func (m *MemoryVault) PutArchive(key string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read archive: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.archives[key] = data
	return nil
}

// GetArchive writes the content stored under key to w.
func (m *MemoryVault) GetArchive(key string, w io.Writer) error {
	m.mu.RLock()
	data, ok := m.archives[key]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}
	return nil
}

// HasArchive reports whether key exists.
func (m *MemoryVault) HasArchive(key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.archives[key]
	return ok, nil
}

// ValidateSetup always succeeds for a memory vault.
func (m *MemoryVault) ValidateSetup() error {
	return nil
}

// Len returns the number of stored archives.
func (m *MemoryVault) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.archives)
}

var _ recon.Vault = (*MemoryVault)(nil)
