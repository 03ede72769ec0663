package cryptox

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	testSalt   = []byte("0123456789abcdef")
	testPepper = bytes.Repeat([]byte{0x42}, PepperLength)
)

func testKey(t *testing.T) []byte {
	t.Helper()
	return DeriveKey([]byte("Tr0ub4dor&3"), testSalt, testPepper)
}

func TestDeriveKey_Deterministic(t *testing.T) {
	password := []byte("secret-password")

	key1 := DeriveKey(password, testSalt, testPepper)
	key2 := DeriveKey(password, testSalt, testPepper)

	require.Equal(t, key1, key2, "same inputs must derive the same key")
	require.Len(t, key1, KeyLength)
}

func TestDeriveKey_DifferentInputs(t *testing.T) {
	password := []byte("secret-password")

	base := DeriveKey(password, testSalt, testPepper)
	otherSalt := DeriveKey(password, []byte("fedcba9876543210"), testPepper)
	otherPepper := DeriveKey(password, testSalt, bytes.Repeat([]byte{0x43}, PepperLength))
	otherPassword := DeriveKey([]byte("Secret-password"), testSalt, testPepper)

	require.NotEqual(t, base, otherSalt)
	require.NotEqual(t, base, otherPepper)
	require.NotEqual(t, base, otherPassword)
}

func TestVerifier_IndependentOfKeyPath(t *testing.T) {
	password := []byte("secret-password")

	verifier := MakeVerifier(password, testSalt)
	key := DeriveKey(password, testSalt, testPepper)

	require.Len(t, verifier, KeyLength)
	require.NotEqual(t, verifier, key, "verifier and key material must come from distinct paths")
}

func TestVerifyMaster(t *testing.T) {
	password := []byte("Tr0ub4dor&3")
	verifier := MakeVerifier(password, testSalt)

	require.True(t, VerifyMaster(password, testSalt, verifier))
	require.False(t, VerifyMaster([]byte("wrong"), testSalt, verifier))
	require.False(t, VerifyMaster(password, []byte("fedcba9876543210"), verifier))
}

func TestSealOpen_RoundTrip(t *testing.T) {
	key := testKey(t)
	plaintext := []byte("s3cr3t!")

	env, err := Seal(plaintext, key)
	require.NoError(t, err)
	require.Equal(t, EnvelopeVersion, env.Version)
	require.Len(t, env.Nonce, NonceLength)
	require.Len(t, env.Tag, TagLength)

	got, err := Open(env, key)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestSeal_FreshNoncePerCall(t *testing.T) {
	key := testKey(t)
	plaintext := []byte("same plaintext")

	env1, err := Seal(plaintext, key)
	require.NoError(t, err)
	env2, err := Seal(plaintext, key)
	require.NoError(t, err)

	require.NotEqual(t, env1.Nonce, env2.Nonce)
	require.NotEqual(t, env1.Ciphertext, env2.Ciphertext)
}

func TestOpen_TamperDetection(t *testing.T) {
	key := testKey(t)

	env, err := Seal([]byte("payload under test"), key)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(e *Envelope)
	}{
		{"flip ciphertext bit", func(e *Envelope) { e.Ciphertext[0] ^= 0x01 }},
		{"flip tag bit", func(e *Envelope) { e.Tag[0] ^= 0x80 }},
		{"flip nonce bit", func(e *Envelope) { e.Nonce[3] ^= 0x10 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mutated := &Envelope{
				Version:    env.Version,
				Nonce:      append([]byte(nil), env.Nonce...),
				Ciphertext: append([]byte(nil), env.Ciphertext...),
				Tag:        append([]byte(nil), env.Tag...),
			}
			tc.mutate(mutated)

			_, err := Open(mutated, key)
			require.ErrorIs(t, err, ErrIntegrity)
		})
	}
}

func TestOpen_WrongKey(t *testing.T) {
	key := testKey(t)
	otherKey := DeriveKey([]byte("another password"), testSalt, testPepper)

	env, err := Seal([]byte("payload"), key)
	require.NoError(t, err)

	_, err = Open(env, otherKey)
	require.ErrorIs(t, err, ErrIntegrity)
}

func TestOpen_MalformedEnvelope(t *testing.T) {
	key := testKey(t)

	env, err := Seal([]byte("payload"), key)
	require.NoError(t, err)

	tests := []struct {
		name string
		env  *Envelope
	}{
		{"nil envelope", nil},
		{"unknown version", &Envelope{Version: 99, Nonce: env.Nonce, Ciphertext: env.Ciphertext, Tag: env.Tag}},
		{"missing nonce", &Envelope{Version: env.Version, Ciphertext: env.Ciphertext, Tag: env.Tag}},
		{"short tag", &Envelope{Version: env.Version, Nonce: env.Nonce, Ciphertext: env.Ciphertext, Tag: env.Tag[:8]}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Open(tc.env, key)
			require.ErrorIs(t, err, ErrMalformedEnvelope)
		})
	}
}

func TestSealOpen_BadKeyLength(t *testing.T) {
	_, err := Seal([]byte("x"), []byte("short"))
	require.True(t, errors.Is(err, ErrInvalidKeyLength))

	_, err = Open(&Envelope{Version: EnvelopeVersion, Nonce: make([]byte, NonceLength), Tag: make([]byte, TagLength)}, []byte("short"))
	require.True(t, errors.Is(err, ErrInvalidKeyLength))
}
