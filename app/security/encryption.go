package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// KeyFileName is the name of the key file inside the application data directory
const KeyFileName = "key.bin"

const keySize = 32

// ErrCiphertextTooShort is returned when a value is shorter than the GCM nonce
var ErrCiphertextTooShort = errors.New("ciphertext too short")

// Vault encrypts configuration secrets with an AES-256 key kept on disk
type Vault struct {
	keyPath string

	mu  sync.Mutex
	key []byte
}

// NewVault creates a vault whose key lives at keyPath. The key is created on first use.
func NewVault(keyPath string) *Vault {
	return &Vault{keyPath: keyPath}
}

// loadKey reads the key file, generating it if it does not exist yet
func (v *Vault) loadKey() ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.key != nil {
		return v.key, nil
	}

	if err := os.MkdirAll(filepath.Dir(v.keyPath), 0755); err != nil {
		return nil, fmt.Errorf("could not create security directory: %w", err)
	}

	key, err := os.ReadFile(v.keyPath)
	switch {
	case err == nil:
		if len(key) != keySize {
			return nil, fmt.Errorf("invalid key size: expected %d bytes, got %d", keySize, len(key))
		}
	case os.IsNotExist(err):
		key = make([]byte, keySize)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("could not generate random key: %w", err)
		}
		// Only readable by owner
		if err := os.WriteFile(v.keyPath, key, 0600); err != nil {
			return nil, fmt.Errorf("could not write key file: %w", err)
		}
	default:
		return nil, fmt.Errorf("could not read key file: %w", err)
	}

	v.key = key
	return key, nil
}

func (v *Vault) gcm() (cipher.AEAD, error) {
	key, err := v.loadKey()
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("could not create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("could not create GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt seals plaintext and returns it base64 encoded for JSON storage
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	gcm, err := v.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("could not generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("could not decode ciphertext: %w", err)
	}

	gcm, err := v.gcm()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", ErrCiphertextTooShort
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("could not decrypt: %w", err)
	}

	return string(plaintext), nil
}

// DecryptOrPlain decrypts value, returning it unchanged when it was never encrypted.
// Hand-edited config files keep working this way.
func (v *Vault) DecryptOrPlain(value string) string {
	plain, err := v.Decrypt(value)
	if err != nil {
		return value
	}
	return plain
}
