package recon

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Vault stores raw import files so past batches can be re-run.
type Vault interface {
	// PutArchive stores the content under key. Storing an existing key again
	// is safe. size is the number of bytes that will be read from r.
	PutArchive(key string, r io.Reader, size int64) error

	// GetArchive retrieves the content under key and writes it to w.
	GetArchive(key string, w io.Writer) error

	// HasArchive reports whether key exists.
	HasArchive(key string) (bool, error)

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup() error
}

// Encryptor encrypts archived imports with a public key. Decryption requires
// a passphrase to unlock the private key, producing a DecryptionContext.
type Encryptor interface {
	// Setup generates a key pair and protects the private key with passphrase.
	Setup(passphrase string) error

	// Encrypt encrypts data read from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key and returns a DecryptionContext.
	// Returns an error if the passphrase is incorrect.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured returns true if both key files exist.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory for one session.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}

// Checksum returns the hex SHA-256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// archiveRaw stores the raw file of batch in the vault, encrypted when an
// encryptor is configured. Failures are logged and leave the batch without
// an archive; they never fail the import.
func (e *Engine) archiveRaw(batch *ImportBatch, raw []byte) {
	if e.vault == nil {
		return
	}

	key := batch.Checksum
	encrypted := e.encryptor != nil
	if encrypted {
		key += ".age"
	}

	exists, err := e.vault.HasArchive(key)
	if err != nil {
		e.logger.Warn("archive lookup failed", "batch", batch.ID, "error", err)
		return
	}
	if !exists {
		body := raw
		if encrypted {
			var buf bytes.Buffer
			if err := e.encryptor.Encrypt(bytes.NewReader(raw), &buf); err != nil {
				e.logger.Warn("archive encryption failed", "batch", batch.ID, "error", err)
				return
			}
			body = buf.Bytes()
		}
		if err := e.vault.PutArchive(key, bytes.NewReader(body), int64(len(body))); err != nil {
			e.logger.Warn("archiving raw file failed", "batch", batch.ID, "error", err)
			return
		}
		e.logger.Debug("raw file archived", "batch", batch.ID, "key", key)
	}

	batch.ArchiveKey = key
	batch.ArchiveEncrypted = encrypted
}

// loadArchive fetches the raw file of a past batch and verifies its checksum.
func (e *Engine) loadArchive(batch *ImportBatch, decryptCtx DecryptionContext) ([]byte, error) {
	if e.vault == nil {
		return nil, fmt.Errorf("no archive vault configured")
	}
	if batch.ArchiveKey == "" {
		return nil, fmt.Errorf("batch %s has no archived file", batch.ID)
	}

	var stored bytes.Buffer
	if err := e.vault.GetArchive(batch.ArchiveKey, &stored); err != nil {
		return nil, fmt.Errorf("retrieving archive: %w", err)
	}

	raw := stored.Bytes()
	if batch.ArchiveEncrypted {
		if decryptCtx == nil {
			return nil, fmt.Errorf("archive is encrypted but no passphrase was provided")
		}
		var plain bytes.Buffer
		if err := decryptCtx.Decrypt(bytes.NewReader(raw), &plain); err != nil {
			return nil, fmt.Errorf("decrypting archive: %w", err)
		}
		raw = plain.Bytes()
	}

	if sum := Checksum(raw); sum != batch.Checksum {
		return nil, fmt.Errorf("archive checksum mismatch: got %s, want %s", sum, batch.Checksum)
	}
	return raw, nil
}
