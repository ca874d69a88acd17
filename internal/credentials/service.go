package credentials

import (
	"fmt"
	"strings"
)

// encryptedPrefix marks a secret field stored sealed. The remainder of the
// value is the base64 ciphertext produced by the auth service.
const encryptedPrefix = "!encrypted:"

// Decrypter unseals secrets that were encrypted at rest.
type Decrypter interface {
	Decrypt(ciphertextBase64 string) ([]byte, error)
}

// Encrypter seals secrets for storage at rest.
type Encrypter interface {
	Encrypt(plaintext []byte) (string, error)
}

// Service loads credential files and unseals encrypted secret fields before
// handing the store to the engine. A nil decrypter is valid as long as every
// secret in the file is plaintext.
type Service struct {
	decrypter Decrypter
}

// NewService creates a credential service.
func NewService(decrypter Decrypter) *Service {
	return &Service{decrypter: decrypter}
}

// LoadFile reads a YAML credential list and decrypts any sealed fields.
func (s *Service) LoadFile(path string) (*Store, error) {
	store, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return s.DecryptStore(store)
}

// DecryptStore returns a store whose secret fields are all plaintext. The
// input store is left untouched; when nothing is sealed it is returned as is.
func (s *Service) DecryptStore(store *Store) (*Store, error) {
	creds := store.All()
	changed := false

	for i := range creds {
		c := &creds[i]

		password, err := s.unseal(c.Name, "password", c.Password)
		if err != nil {
			return nil, err
		}
		privateKey, err := s.unseal(c.Name, "private_key", c.PrivateKey)
		if err != nil {
			return nil, err
		}
		passphrase, err := s.unseal(c.Name, "passphrase", c.Passphrase)
		if err != nil {
			return nil, err
		}

		if password != c.Password || privateKey != c.PrivateKey || passphrase != c.Passphrase {
			c.Password, c.PrivateKey, c.Passphrase = password, privateKey, passphrase
			changed = true
		}
	}

	if !changed {
		return store, nil
	}
	return NewStore(creds)
}

// unseal decrypts value when it carries the encrypted prefix.
func (s *Service) unseal(credName, field, value string) (string, error) {
	sealed, ok := strings.CutPrefix(value, encryptedPrefix)
	if !ok {
		return value, nil
	}
	if s.decrypter == nil {
		return "", fmt.Errorf("credential %s: %s is encrypted but no encryption key is configured", credName, field)
	}

	plain, err := s.decrypter.Decrypt(sealed)
	if err != nil {
		return "", fmt.Errorf("credential %s: failed to decrypt %s: %w", credName, field, err)
	}
	return string(plain), nil
}

// Seal encrypts a plaintext secret into the form LoadFile understands.
func Seal(enc Encrypter, secret string) (string, error) {
	sealed, err := enc.Encrypt([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to encrypt secret: %w", err)
	}
	return encryptedPrefix + sealed, nil
}
