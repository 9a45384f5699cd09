// Package secure encrypts sensitive config values into a JSON envelope.
//
// A serialized value has the shape
//
//	{"encrypted":true,"value":"...","metadata":{"algorithm":"...","iv":"...","authTag":"..."}}
//
// where value, iv and authTag are base64 encoded.
package secure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/soyeahso/trellis/internal/fault"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	AlgorithmAESGCM   = "aes-256-gcm"
	AlgorithmChaCha20 = "chacha20-poly1305"
)

// KeySize is the key length required by every supported algorithm.
const KeySize = 32

const kdfInfo = "trellis secure config fields"

var kdfSalt = []byte("trellis/secure/v1")

// Provider encrypts and decrypts single string values.
type Provider interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(serialized string) (string, error)
}

// Envelope is the serialized form of an encrypted value.
type Envelope struct {
	Encrypted bool     `json:"encrypted"`
	Value     string   `json:"value"`
	Metadata  Metadata `json:"metadata"`
}

// Metadata carries the parameters needed to decrypt an Envelope.
type Metadata struct {
	Algorithm string `json:"algorithm"`
	IV        string `json:"iv"`
	AuthTag   string `json:"authTag"`
}

// Algorithms returns the supported algorithm names.
func Algorithms() []string {
	return []string{AlgorithmAESGCM, AlgorithmChaCha20}
}

// SupportedAlgorithm reports whether name is a supported algorithm.
func SupportedAlgorithm(name string) bool {
	for _, a := range Algorithms() {
		if a == name {
			return true
		}
	}
	return false
}

// AEAD is a Provider backed by an authenticated cipher.
type AEAD struct {
	algorithm string
	aead      cipher.AEAD
}

// NewAEAD creates a provider for algorithm using a 32-byte key.
func NewAEAD(algorithm string, key []byte) (*AEAD, error) {
	if len(key) != KeySize {
		return nil, fault.Newf(fault.KindInvalidArgument, "encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	var (
		a   cipher.AEAD
		err error
	)
	switch algorithm {
	case AlgorithmAESGCM:
		var block cipher.Block
		block, err = aes.NewCipher(key)
		if err == nil {
			a, err = cipher.NewGCM(block)
		}
	case AlgorithmChaCha20:
		a, err = chacha20poly1305.New(key)
	default:
		return nil, fault.New(fault.KindUnsupported, "unsupported encryption algorithm: "+algorithm,
			fault.WithSubject(algorithm))
	}
	if err != nil {
		return nil, fault.Wrap(fault.KindEncryptionFailure, err, "initialise "+algorithm)
	}
	return &AEAD{algorithm: algorithm, aead: a}, nil
}

// NewFromPassphrase derives a key from passphrase with HKDF-SHA256.
func NewFromPassphrase(algorithm, passphrase string) (*AEAD, error) {
	if passphrase == "" {
		return nil, fault.New(fault.KindInvalidArgument, "encryption passphrase is required")
	}
	key, err := DeriveKey(passphrase)
	if err != nil {
		return nil, err
	}
	return NewAEAD(algorithm, key)
}

// DeriveKey expands passphrase into a KeySize key.
func DeriveKey(passphrase string) ([]byte, error) {
	key := make([]byte, KeySize)
	r := hkdf.New(sha256.New, []byte(passphrase), kdfSalt, []byte(kdfInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fault.Wrap(fault.KindEncryptionFailure, err, "derive key")
	}
	return key, nil
}

// Algorithm returns the provider's algorithm name.
func (p *AEAD) Algorithm() string {
	return p.algorithm
}

// Encrypt seals plaintext and returns the serialized envelope.
func (p *AEAD) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, p.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fault.Wrap(fault.KindEncryptionFailure, err, "generate nonce")
	}
	sealed := p.aead.Seal(nil, nonce, []byte(plaintext), nil)
	split := len(sealed) - p.aead.Overhead()

	env := Envelope{
		Encrypted: true,
		Value:     base64.StdEncoding.EncodeToString(sealed[:split]),
		Metadata: Metadata{
			Algorithm: p.algorithm,
			IV:        base64.StdEncoding.EncodeToString(nonce),
			AuthTag:   base64.StdEncoding.EncodeToString(sealed[split:]),
		},
	}
	data, err := json.Marshal(env)
	if err != nil {
		return "", fault.Wrap(fault.KindEncryptionFailure, err, "encode envelope")
	}
	return string(data), nil
}

// Decrypt opens a serialized envelope produced by Encrypt.
func (p *AEAD) Decrypt(serialized string) (string, error) {
	env, err := ParseEnvelope(serialized)
	if err != nil {
		return "", err
	}
	if env.Metadata.Algorithm != p.algorithm {
		return "", fault.New(fault.KindDecryptionFailure,
			fmt.Sprintf("envelope algorithm %q does not match provider %q", env.Metadata.Algorithm, p.algorithm))
	}

	ct, err := base64.StdEncoding.DecodeString(env.Value)
	if err != nil {
		return "", fault.Wrap(fault.KindDecryptionFailure, err, "decode value")
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Metadata.IV)
	if err != nil {
		return "", fault.Wrap(fault.KindDecryptionFailure, err, "decode iv")
	}
	tag, err := base64.StdEncoding.DecodeString(env.Metadata.AuthTag)
	if err != nil {
		return "", fault.Wrap(fault.KindDecryptionFailure, err, "decode auth tag")
	}
	if len(nonce) != p.aead.NonceSize() {
		return "", fault.New(fault.KindDecryptionFailure, "invalid iv length")
	}

	plain, err := p.aead.Open(nil, nonce, append(ct, tag...), nil)
	if err != nil {
		return "", fault.Wrap(fault.KindDecryptionFailure, err, "open envelope")
	}
	return string(plain), nil
}

// ParseEnvelope decodes a serialized envelope.
func ParseEnvelope(serialized string) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(serialized), &env); err != nil {
		return Envelope{}, fault.Wrap(fault.KindDecryptionFailure, err, "parse envelope")
	}
	if !env.Encrypted {
		return Envelope{}, fault.New(fault.KindDecryptionFailure, "value is not an encrypted envelope")
	}
	return env, nil
}

// IsEnvelope reports whether s looks like a serialized envelope.
func IsEnvelope(s string) bool {
	if !strings.HasPrefix(strings.TrimSpace(s), "{") {
		return false
	}
	env, err := ParseEnvelope(s)
	return err == nil && env.Metadata.Algorithm != ""
}
