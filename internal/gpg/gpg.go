// Package gpg verifies detached PGP signatures shipped alongside wheel
// archives. A keyring of armored public keys is loaded once at startup and
// reused for every verification.
package gpg

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
)

// Sentinel errors
var (
	ErrEmptyKeyRing = errors.New("no keys in keyring")
	ErrNoKeysFound  = errors.New("no .asc keys found in directory")
)

// maxSignedFileSize bounds reads of data and signature files.
const maxSignedFileSize = 1024 * 1024 * 1024 // 1GB

// KeyRing represents a collection of PGP public keys for signature
// verification.
type KeyRing interface {
	VerifyDetached(message []byte, signature []byte) error
	AddKey(armored string) error
}

// RealKeyRing implements KeyRing using gopenpgp v2.
type RealKeyRing struct {
	keyRing *crypto.KeyRing
}

// NewRealKeyRing creates an empty keyring. Keys are added lazily via AddKey.
func NewRealKeyRing() *RealKeyRing {
	return &RealKeyRing{}
}

// AddKey parses an armored public key and adds it to the keyring.
func (rk *RealKeyRing) AddKey(armored string) error {
	if armored == "" {
		return fmt.Errorf("armored key data cannot be empty")
	}

	key, err := crypto.NewKeyFromArmored(armored)
	if err != nil {
		return fmt.Errorf("failed to parse PGP key: %w", err)
	}

	if rk.keyRing == nil {
		rk.keyRing, err = crypto.NewKeyRing(key)
		if err != nil {
			return fmt.Errorf("failed to create keyring: %w", err)
		}
		return nil
	}

	if err := rk.keyRing.AddKey(key); err != nil {
		return fmt.Errorf("failed to add key to keyring: %w", err)
	}
	return nil
}

// VerifyDetached verifies a detached signature over message.
func (rk *RealKeyRing) VerifyDetached(message []byte, signature []byte) error {
	if rk.keyRing == nil {
		return ErrEmptyKeyRing
	}

	plainMessage := crypto.NewPlainMessage(message)

	pgpSignature, err := crypto.NewPGPSignatureFromArmored(string(signature))
	if err != nil {
		// Fall back to binary format
		pgpSignature = crypto.NewPGPSignature(signature)
	}

	if err := rk.keyRing.VerifyDetached(plainMessage, pgpSignature, crypto.GetUnixTime()); err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	return nil
}

// LoadKeyRingFromPath loads all ASCII-armored PGP public keys (.asc files)
// from the given directory and returns a KeyRing containing them.
func LoadKeyRingFromPath(keysPath string) (KeyRing, error) {
	files, err := os.ReadDir(keysPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read keys directory: %w", err)
	}

	keyRing := NewRealKeyRing()
	keyCount := 0

	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".asc" {
			continue
		}

		keyData, err := os.ReadFile(filepath.Join(keysPath, file.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read key file: %w", err)
		}

		if err := keyRing.AddKey(string(keyData)); err != nil {
			return nil, fmt.Errorf("invalid key file '%s': %w", file.Name(), err)
		}
		keyCount++
	}

	if keyCount == 0 {
		return nil, ErrNoKeysFound
	}
	return keyRing, nil
}

// VerifyDetachedSignature verifies a detached signature file against the
// given data file using the provided KeyRing.
func VerifyDetachedSignature(keyRing KeyRing, dataFilePath, sigFilePath string) error {
	if keyRing == nil {
		return fmt.Errorf("keyring cannot be nil")
	}

	for _, path := range []string{dataFilePath, sigFilePath} {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if info.Size() > maxSignedFileSize {
			return fmt.Errorf("file %s exceeds maximum allowed size of %d bytes", path, maxSignedFileSize)
		}
	}

	data, err := os.ReadFile(dataFilePath)
	if err != nil {
		return fmt.Errorf("failed to read data file: %w", err)
	}

	sig, err := os.ReadFile(sigFilePath)
	if err != nil {
		return fmt.Errorf("failed to read signature file: %w", err)
	}

	return keyRing.VerifyDetached(data, sig)
}
