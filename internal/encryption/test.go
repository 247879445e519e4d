package encryption

import (
	"bytes"
	"fmt"
	"io"

	"fitrec/internal/recon"
)

var testMagic = []byte("FITREC-TEST\n")

// TestEncryptor is a reversible stand-in for tests. It frames data with a
// fixed marker and flips every byte so ciphertext never equals plaintext.
// Unlock accepts only the passphrase given to Setup, when Setup was called.
type TestEncryptor struct {
	passphrase string
	configured bool
}

var _ recon.Encryptor = (*TestEncryptor)(nil)

// NewTestEncryptor returns a TestEncryptor that is already configured and
// accepts any passphrase.
func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{configured: true}
}

func (e *TestEncryptor) Setup(passphrase string) error {
	e.passphrase = passphrase
	e.configured = true
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading plaintext: %w", err)
	}
	flip(data)
	if _, err := w.Write(append(append([]byte{}, testMagic...), data...)); err != nil {
		return fmt.Errorf("writing ciphertext: %w", err)
	}
	return nil
}

func (e *TestEncryptor) Unlock(passphrase string) (recon.DecryptionContext, error) {
	if e.passphrase != "" && passphrase != e.passphrase {
		return nil, ErrBadPassphrase
	}
	return &TestDecryptionContext{}, nil
}

func (e *TestEncryptor) IsConfigured() bool {
	return e.configured
}

// TestDecryptionContext reverses TestEncryptor.
type TestDecryptionContext struct{}

var _ recon.DecryptionContext = (*TestDecryptionContext)(nil)

func (c *TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading ciphertext: %w", err)
	}
	if !bytes.HasPrefix(data, testMagic) {
		return fmt.Errorf("invalid test encryption header")
	}
	data = data[len(testMagic):]
	flip(data)
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing plaintext: %w", err)
	}
	return nil
}

func flip(b []byte) {
	for i := range b {
		b[i] ^= 0xff
	}
}
