// Package credentials holds the ordered list of device credentials a
// discovery run tries against each device.
package credentials

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Credential is one login candidate. Password and PrivateKey are mutually
// optional but at least one must be set. PrivateKey holds PEM data, not a
// file path.
type Credential struct {
	ID         uuid.UUID `yaml:"id,omitempty" json:"id"`
	Name       string    `yaml:"name" json:"name" validate:"required,min=1,max=100"`
	Username   string    `yaml:"username" json:"username" validate:"required,min=1,max=100"`
	Password   string    `yaml:"password,omitempty" json:"password,omitempty"`
	PrivateKey string    `yaml:"private_key,omitempty" json:"private_key,omitempty"`
	Passphrase string    `yaml:"passphrase,omitempty" json:"passphrase,omitempty"`
}

// Validate checks that the credential is usable for a login attempt.
func (c Credential) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("credential name is required")
	}
	if c.Username == "" {
		return fmt.Errorf("credential %s: username is required", c.Name)
	}
	if c.Password == "" && c.PrivateKey == "" {
		return fmt.Errorf("credential %s: either password or private_key is required", c.Name)
	}
	return nil
}

// Store is the ordered, read-only credential list. The engine tries entries
// strictly in store order, so two runs over the same store attempt the same
// credentials in the same sequence.
type Store struct {
	creds []Credential
}

// NewStore validates the credentials and freezes them in the given order.
// Entries without an ID are assigned one.
func NewStore(creds []Credential) (*Store, error) {
	out := make([]Credential, len(creds))
	for i, c := range creds {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("credential %d: %w", i, err)
		}
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		out[i] = c
	}
	return &Store{creds: out}, nil
}

// All returns the credentials in store order. The slice is a copy; the store
// itself never changes after construction.
func (s *Store) All() []Credential {
	out := make([]Credential, len(s.creds))
	copy(out, s.creds)
	return out
}

// Len returns the number of stored credentials.
func (s *Store) Len() int {
	return len(s.creds)
}

// Get returns the credential with the given id.
func (s *Store) Get(id uuid.UUID) (Credential, bool) {
	for _, c := range s.creds {
		if c.ID == id {
			return c, true
		}
	}
	return Credential{}, false
}

type credentialsFile struct {
	Credentials []Credential `yaml:"credentials"`
}

// LoadFile reads a YAML credential list. File order is store order.
func LoadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var f credentialsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	if len(f.Credentials) == 0 {
		return nil, fmt.Errorf("credentials file %s lists no credentials", path)
	}

	store, err := NewStore(f.Credentials)
	if err != nil {
		return nil, fmt.Errorf("credentials file %s: %w", path, err)
	}
	return store, nil
}
