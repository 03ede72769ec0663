// Package cryptox implements the cryptographic core of the vault:
// Argon2id derivation of master-password verifiers and symmetric key
// material, and AES-256-GCM field envelopes.
//
// Two independent derivation paths are used on purpose. The verifier is a
// memory-hard salted hash of the password alone, safe to store server-side.
// Key material additionally mixes in the process-wide deployment secret
// (the "pepper"), so a stolen database of salts and verifiers is not enough
// to decrypt anything, and the verifier reveals nothing about the key.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	// KeyLength is the symmetric key size in bytes (AES-256).
	KeyLength = 32

	// SaltLength is the per-user salt size in bytes.
	SaltLength = 16

	// PepperLength is the required deployment-secret size in bytes.
	PepperLength = 32

	// NonceLength is the GCM nonce size in bytes.
	NonceLength = 12

	// TagLength is the GCM authentication tag size in bytes.
	TagLength = 16

	// EnvelopeVersion is the current envelope format version.
	EnvelopeVersion = 1

	// Argon2id parameters for the key-material path.
	keyTime    = 1
	keyMemory  = 64 * 1024
	keyThreads = 4

	// Argon2id parameters for the verifier path. Deliberately different
	// from the key path so the two derivations never coincide.
	verifierTime    = 2
	verifierMemory  = 64 * 1024
	verifierThreads = 4
)

var (
	// ErrIntegrity indicates the authentication tag did not verify:
	// the ciphertext was tampered with or the key is wrong.
	ErrIntegrity = errors.New("cryptox: ciphertext failed authentication")

	// ErrMalformedEnvelope indicates a structurally invalid envelope
	// (missing fields, bad sizes, or unknown version).
	ErrMalformedEnvelope = errors.New("cryptox: malformed envelope")

	// ErrInvalidKeyLength indicates the key is not KeyLength bytes.
	ErrInvalidKeyLength = errors.New("cryptox: invalid key length")
)

// DeriveKey derives the symmetric key material for a user from the master
// password, the per-user salt, and the deployment pepper. Deterministic for
// identical inputs.
func DeriveKey(password, salt, pepper []byte) []byte {
	seasoned := make([]byte, 0, len(salt)+len(pepper))
	seasoned = append(seasoned, salt...)
	seasoned = append(seasoned, pepper...)
	return argon2.IDKey(password, seasoned, keyTime, keyMemory, keyThreads, KeyLength)
}

// MakeVerifier computes the stored authentication verifier for a master
// password: a memory-hard salted hash that does not involve the pepper.
func MakeVerifier(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, verifierTime, verifierMemory, verifierThreads, KeyLength)
}

// VerifyMaster recomputes the verifier for the candidate password and
// compares it against the stored one in constant time.
func VerifyMaster(password, salt, verifier []byte) bool {
	candidate := MakeVerifier(password, salt)
	return subtle.ConstantTimeCompare(candidate, verifier) == 1
}

// Envelope is the wire form of one encrypted field. All four fields are
// required for Open to succeed; Version allows algorithm migration without
// breaking stored records.
type Envelope struct {
	Version    int    `json:"v"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ct"`
	Tag        []byte `json:"tag"`
}

// Seal encrypts plaintext under key with AES-256-GCM and a fresh random
// nonce, so sealing the same plaintext twice never yields the same envelope.
func Seal(plaintext, key []byte) (*Envelope, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce generation: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)

	// GCM appends the tag to the ciphertext; the envelope keeps them apart.
	split := len(sealed) - TagLength
	return &Envelope{
		Version:    EnvelopeVersion,
		Nonce:      nonce,
		Ciphertext: sealed[:split],
		Tag:        sealed[split:],
	}, nil
}

// Open authenticates and decrypts an envelope. Returns ErrMalformedEnvelope
// for structural problems and ErrIntegrity when the tag does not verify.
func Open(env *Envelope, key []byte) ([]byte, error) {
	if env == nil || env.Version != EnvelopeVersion ||
		len(env.Nonce) != NonceLength || len(env.Tag) != TagLength {
		return nil, ErrMalformedEnvelope
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(env.Ciphertext)+len(env.Tag))
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.Tag...)

	plaintext, err := gcm.Open(nil, env.Nonce, sealed, nil)
	if err != nil {
		return nil, ErrIntegrity
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher init: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm init: %w", err)
	}
	return gcm, nil
}
