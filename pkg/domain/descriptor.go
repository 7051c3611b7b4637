package domain

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// DefaultType is the backend type used when a wallet names none.
const DefaultType = "default"

// DescriptorIDPrefix prefixes wallet descriptor IDs.
// Format: wmwl-{ulid_lowercase}, 31 characters total.
const DescriptorIDPrefix = "wmwl-"

// Descriptor is the persisted identity and configuration of a wallet.
//
// Name is unique among existing wallets regardless of Pool.
type Descriptor struct {
	ID        string `json:"id"`
	Pool      string `json:"pool"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Config    string `json:"config,omitempty"`
	CreatedAt int64  `json:"created_at"` // Unix milliseconds
}

// NewDescriptor creates a descriptor with a fresh ID.
// An empty walletType resolves to DefaultType.
func NewDescriptor(pool, name, walletType, config string, now time.Time) (*Descriptor, error) {
	if walletType == "" {
		walletType = DefaultType
	}
	id, err := GenerateDescriptorID(now)
	if err != nil {
		return nil, err
	}
	return &Descriptor{
		ID:        id,
		Pool:      pool,
		Name:      name,
		Type:      walletType,
		Config:    compactJSON(config),
		CreatedAt: now.UnixMilli(),
	}, nil
}

// GenerateDescriptorID generates a new descriptor ID using ULID.
func GenerateDescriptorID(now time.Time) (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(now), entropy)
	if err != nil {
		return "", ErrInternal.WithCause(err)
	}
	return DescriptorIDPrefix + strings.ToLower(id.String()), nil
}

// IsValidDescriptorID checks if a string is a valid descriptor ID.
func IsValidDescriptorID(id string) bool {
	id = strings.ToLower(id)
	if !strings.HasPrefix(id, DescriptorIDPrefix) || len(id) != 31 {
		return false
	}
	_, err := ulid.Parse(strings.ToUpper(id[len(DescriptorIDPrefix):]))
	return err == nil
}

// ParsedConfig parses the stored creation-time configuration.
func (d *Descriptor) ParsedConfig() (Config, error) {
	return ParseConfig(d.Config)
}

// Created returns the creation time.
func (d *Descriptor) Created() time.Time {
	return time.UnixMilli(d.CreatedAt)
}
