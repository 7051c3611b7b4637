package native

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// SaltLength is the length of the per-wallet key derivation salt.
const SaltLength = 16

// checkPlaintext is sealed into the wallet metadata so a passphrase can be
// verified on open without touching any record.
var checkPlaintext = []byte("walletmesh-native-v1")

var errDecrypt = errors.New("decryption failed")

// KDFParams are the Argon2id parameters used to derive a wallet key.
type KDFParams struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

// DefaultKDFParams returns the production key derivation parameters.
func DefaultKDFParams() KDFParams {
	return KDFParams{
		Time:    3,
		Memory:  64 * 1024,
		Threads: 4,
	}
}

func newSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// sealer performs authenticated encryption of record values.
// The record key is bound as additional data, so a sealed value cannot be
// moved to another key.
type sealer struct {
	aead cipher.AEAD
}

func newSealer(passphrase string, salt []byte, p KDFParams) (*sealer, error) {
	key := argon2.IDKey([]byte(passphrase), salt, p.Time, p.Memory, p.Threads, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(key)
	for i := range key {
		key[i] = 0
	}
	if err != nil {
		return nil, err
	}
	return &sealer{aead: aead}, nil
}

func (s *sealer) seal(plaintext, ad []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, plaintext, ad), nil
}

func (s *sealer) open(ciphertext, ad []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(ciphertext) < n+s.aead.Overhead() {
		return nil, errDecrypt
	}
	plaintext, err := s.aead.Open(nil, ciphertext[:n], ciphertext[n:], ad)
	if err != nil {
		return nil, errDecrypt
	}
	return plaintext, nil
}
