package vault

import (
	"fmt"

	"github.com/quiksafe/quiksafebot/internal/cryptox"
	"github.com/quiksafe/quiksafebot/internal/vault/flow"
)

// FieldNotes is an extra sensitive field not captured by any flow but
// supported on stored entities.
const FieldNotes = "notes"

// sensitiveFields is the fixed classification table: these field names are
// always ciphertext. Everything else (name, tags, status, priority, dates)
// stays plaintext because the hosted store filters on it. The table is not
// user-configurable.
var sensitiveFields = map[string]struct{}{
	flow.FieldSecret:      {},
	flow.FieldUsername:    {},
	flow.FieldContent:     {},
	flow.FieldDescription: {},
	FieldNotes:            {},
}

// IsSensitive reports whether a field name belongs on the ciphertext side
// of the boundary.
func IsSensitive(field string) bool {
	_, ok := sensitiveFields[field]
	return ok
}

// EncryptFields seals every non-empty sensitive field under the key and
// returns the envelope set. Non-sensitive fields are ignored; the caller
// keeps them plaintext.
func EncryptFields(fields map[string]string, key []byte) (map[string]*cryptox.Envelope, error) {
	encrypted := make(map[string]*cryptox.Envelope)
	for name, value := range fields {
		if !IsSensitive(name) || value == "" {
			continue
		}
		env, err := cryptox.Seal([]byte(value), key)
		if err != nil {
			return nil, fmt.Errorf("encrypt field %q: %w", name, err)
		}
		encrypted[name] = env
	}
	return encrypted, nil
}

// DecryptFields opens every envelope in the set. Any integrity failure
// aborts the whole operation; partial plaintext is never returned.
func DecryptFields(envelopes map[string]*cryptox.Envelope, key []byte) (map[string]string, error) {
	fields := make(map[string]string, len(envelopes))
	for name, env := range envelopes {
		plaintext, err := cryptox.Open(env, key)
		if err != nil {
			return nil, fmt.Errorf("decrypt field %q: %w", name, err)
		}
		fields[name] = string(plaintext)
	}
	return fields, nil
}

// ReencryptFields stages a decrypt-then-encrypt of a whole envelope set
// under a new key. All-or-nothing: if any field fails to open under the old
// key, nothing is returned and the inputs are untouched. Used only by the
// master-password-change path.
func ReencryptFields(envelopes map[string]*cryptox.Envelope, oldKey, newKey []byte) (map[string]*cryptox.Envelope, error) {
	// Stage 1: everything must open under the old key.
	plaintexts, err := DecryptFields(envelopes, oldKey)
	if err != nil {
		return nil, err
	}

	// Stage 2: seal under the new key into a fresh set.
	reencrypted := make(map[string]*cryptox.Envelope, len(plaintexts))
	for name, value := range plaintexts {
		env, err := cryptox.Seal([]byte(value), newKey)
		if err != nil {
			return nil, fmt.Errorf("re-encrypt field %q: %w", name, err)
		}
		reencrypted[name] = env
	}
	return reencrypted, nil
}
