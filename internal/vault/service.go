package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quiksafe/quiksafebot/internal/common"
	"github.com/quiksafe/quiksafebot/internal/cryptox"
	"github.com/quiksafe/quiksafebot/internal/logging"
	"github.com/quiksafe/quiksafebot/internal/models"
	"github.com/quiksafe/quiksafebot/internal/vault/flow"
	"github.com/quiksafe/quiksafebot/internal/vault/session"
)

// UserStore is the persistence collaborator for user identities.
type UserStore interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByChatID(ctx context.Context, chatID int64) (*models.User, error)
}

// SecretStore is the persistence collaborator for vault entities. It only
// ever sees sealed envelopes on the ciphertext side of the boundary.
type SecretStore interface {
	Save(ctx context.Context, secret *models.Secret) error
	LoadByUser(ctx context.Context, userID string, filter models.Filter) ([]*models.Secret, error)
	Get(ctx context.Context, id string) (*models.Secret, error)
	UpdateStatus(ctx context.Context, id string, status string) error
	UpdateBlobKey(ctx context.Context, id string, blobKey string) error
	Delete(ctx context.Context, id string) error
}

// Rekeyer atomically swaps a user's salt, verifier, and the re-encrypted
// envelope sets of all their secrets. Either everything is replaced or
// nothing is.
type Rekeyer interface {
	Rekey(ctx context.Context, userID string, salt, verifier []byte, secrets []*models.Secret) error
}

// AuthResult is the outcome of a successful Authenticate call.
type AuthResult struct {
	OK bool
	// Enrolled is true when this call created the vault (first-ever use).
	Enrolled bool
}

// FlowResult is what the transport layer relays back to the user after a
// StartFlow or SubmitStep call.
type FlowResult struct {
	OK        bool
	Done      bool
	Cancelled bool
	// Prompt is the next question, or the repeated one after a
	// validation failure.
	Prompt string
	// Reason is the human-readable validation failure, if any.
	Reason string
	// Secret is the persisted entity once the flow completes.
	Secret *models.Secret
}

// Service is the vault core facade called by the chat transport.
type Service struct {
	users    UserStore
	secrets  SecretStore
	rekeyer  Rekeyer
	sessions *session.Manager

	pepper      []byte
	flowTimeout time.Duration
	logger      logging.Logger
}

// NewService wires the vault core. The pepper is the process-wide
// deployment secret, already validated at start-up.
func NewService(users UserStore, secrets SecretStore, rekeyer Rekeyer, sessions *session.Manager, pepper []byte, flowTimeout time.Duration, logger logging.Logger) *Service {
	return &Service{
		users:       users,
		secrets:     secrets,
		rekeyer:     rekeyer,
		sessions:    sessions,
		pepper:      pepper,
		flowTimeout: flowTimeout,
		logger:      logger.With("module", "vault"),
	}
}

// Authenticate unlocks the user's session with the master password. On the
// first-ever interaction it enrolls: the password is strength-checked, a
// salt and verifier are stored, and the session is unlocked right away.
// A wrong password returns ErrAuthenticationFailed with no further detail.
func (v *Service) Authenticate(ctx context.Context, chatID int64, password string) (*AuthResult, error) {
	enrolled := false

	user, err := v.users.GetByChatID(ctx, chatID)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("user lookup: %w", err)
		}
		if err := flow.ValidateMasterPassword(password); err != nil {
			return nil, err
		}
		salt := common.GenerateRandByteArray(cryptox.SaltLength)
		verifier := cryptox.MakeVerifier([]byte(password), salt)
		user, err = v.users.Create(ctx, &models.User{ChatID: chatID, Salt: salt, Verifier: verifier})
		if err != nil {
			return nil, fmt.Errorf("user create: %w", err)
		}
		enrolled = true
		v.logger.Info(ctx, "vault enrolled", "chat_id", chatID)
	}

	if !enrolled && !cryptox.VerifyMaster([]byte(password), user.Salt, user.Verifier) {
		failures := v.sessions.RecordFailure(chatID)
		v.logger.Warn(ctx, "authentication failed", "chat_id", chatID, "failures", failures)
		return nil, ErrAuthenticationFailed
	}

	key := cryptox.DeriveKey([]byte(password), user.Salt, v.pepper)
	defer common.WipeByteArray(key)

	_ = v.sessions.Update(chatID, func(s *session.Session) error {
		s.Unlock(key, v.sessions.Now())
		return nil
	})

	v.logger.Info(ctx, "session unlocked", "chat_id", chatID)
	return &AuthResult{OK: true, Enrolled: enrolled}, nil
}

// StartFlow begins a capture dialog and returns the first prompt. It fails
// with ErrSessionLocked without an unlocked fresh session, and with
// ErrFlowInProgress when another flow is already active (cancel first: a
// silent overwrite would throw away partially entered secret data).
func (v *Service) StartFlow(ctx context.Context, chatID int64, kind flow.Kind) (*FlowResult, error) {
	def, ok := flow.Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("unknown flow kind %q", kind)
	}

	var res *FlowResult
	err := v.sessions.Update(chatID, func(s *session.Session) error {
		if s.Status != session.Unlocked {
			return ErrSessionLocked
		}
		now := v.sessions.Now()
		v.expireFlow(ctx, chatID, s, now)
		if s.Flow != nil {
			return ErrFlowInProgress
		}
		s.Flow = flow.NewState(def, now)
		s.Touch(now)
		res = &FlowResult{OK: true, Prompt: s.Flow.Prompt()}
		return nil
	})
	if err != nil {
		return nil, err
	}

	v.logger.Info(ctx, "flow started", "chat_id", chatID, "kind", kind)
	return res, nil
}

// SubmitStep feeds one raw input into the user's active flow. A validation
// failure is recovered locally: the same prompt comes back with the reason
// and the flow does not advance. When the last step is accepted the entity
// is built, its sensitive fields are sealed under the session key, and it
// is handed to the persistence collaborator; the flow state is cleared
// either way. If the session auto-locked mid-flow the collected plaintext
// is already gone and ErrSessionLocked is returned.
func (v *Service) SubmitStep(ctx context.Context, chatID int64, input string) (*FlowResult, error) {
	var res *FlowResult
	err := v.sessions.Update(chatID, func(s *session.Session) error {
		if s.Status != session.Unlocked {
			return ErrSessionLocked
		}
		now := v.sessions.Now()
		v.expireFlow(ctx, chatID, s, now)
		if s.Flow == nil {
			return ErrNoActiveFlow
		}

		done, err := s.Flow.Apply(input, now)
		if errors.Is(err, flow.ErrDeclined) {
			s.Flow = nil
			s.Touch(now)
			res = &FlowResult{OK: true, Cancelled: true}
			return nil
		}
		var verr *flow.ValidationError
		if errors.As(err, &verr) {
			s.Touch(now)
			res = &FlowResult{OK: false, Prompt: s.Flow.Prompt(), Reason: verr.Reason}
			return nil
		}
		if err != nil {
			return err
		}

		s.Touch(now)
		if !done {
			res = &FlowResult{OK: true, Prompt: s.Flow.Prompt()}
			return nil
		}

		state := s.Flow
		s.Flow = nil

		secret, err := v.finalizeFlow(ctx, chatID, state, s.Key, now)
		if err != nil {
			return err
		}
		res = &FlowResult{OK: true, Done: true, Secret: secret}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// CancelFlow discards the user's active flow. Idempotent: cancelling with
// no flow running is not an error.
func (v *Service) CancelFlow(ctx context.Context, chatID int64) error {
	return v.sessions.Update(chatID, func(s *session.Session) error {
		if s.Flow != nil {
			s.Flow = nil
			v.logger.Info(ctx, "flow cancelled", "chat_id", chatID)
		}
		return nil
	})
}

// Lock drops the user's key material and discards any in-progress flow.
func (v *Service) Lock(ctx context.Context, chatID int64) error {
	v.sessions.Lock(chatID)
	v.logger.Info(ctx, "session locked", "chat_id", chatID)
	return nil
}

// Logout evicts the session entirely, forcing a full re-login.
func (v *Service) Logout(ctx context.Context, chatID int64) error {
	v.sessions.Logout(chatID)
	v.logger.Info(ctx, "session evicted", "chat_id", chatID)
	return nil
}

// IsUnlocked reports whether the user currently has an unlocked fresh
// session, without touching it.
func (v *Service) IsUnlocked(chatID int64) bool {
	return v.sessions.IsUnlockedAndFresh(chatID)
}

// GetSecret loads one entity owned by the user.
func (v *Service) GetSecret(ctx context.Context, chatID int64, secretID string) (*models.Secret, error) {
	return v.ownedSecret(ctx, chatID, secretID)
}

// List returns the user's entities, plaintext metadata only, filtered
// server-side. Requires an unlocked fresh session.
func (v *Service) List(ctx context.Context, chatID int64, filter models.Filter) ([]*models.Secret, error) {
	user, err := v.requireUnlocked(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return v.secrets.LoadByUser(ctx, user.ID, filter)
}

// DecryptForDisplay opens all ciphertext fields of an entity for the
// owning user. A failed authentication tag surfaces as cryptox.ErrIntegrity
// and must be shown as "cannot decrypt", never swallowed.
func (v *Service) DecryptForDisplay(ctx context.Context, chatID int64, secret *models.Secret) (*models.PlainSecret, error) {
	user, err := v.requireUnlocked(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if secret.UserID != user.ID {
		return nil, common.ErrUnauthorized
	}

	var plain *models.PlainSecret
	err = v.sessions.Update(chatID, func(s *session.Session) error {
		if s.Status != session.Unlocked {
			return ErrSessionLocked
		}
		fields, err := DecryptFields(secret.Encrypted, s.Key)
		if err != nil {
			return err
		}
		plain = &models.PlainSecret{Secret: *secret, Fields: fields}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plain, nil
}

// SetTaskStatus flips a task between pending and done. The status is
// plaintext metadata, so no key material is needed beyond the session gate.
func (v *Service) SetTaskStatus(ctx context.Context, chatID int64, secretID string, done bool) error {
	secret, err := v.ownedSecret(ctx, chatID, secretID)
	if err != nil {
		return err
	}
	if secret.Kind != models.KindTask {
		return fmt.Errorf("entity %s is not a task", secretID)
	}
	status := models.StatusPending
	if done {
		status = models.StatusDone
	}
	return v.secrets.UpdateStatus(ctx, secretID, status)
}

// DeleteSecret removes an entity owned by the user.
func (v *Service) DeleteSecret(ctx context.Context, chatID int64, secretID string) error {
	if _, err := v.ownedSecret(ctx, chatID, secretID); err != nil {
		return err
	}
	return v.secrets.Delete(ctx, secretID)
}

// AttachBlobKey records the object-storage location of an uploaded file
// blob on a file entity.
func (v *Service) AttachBlobKey(ctx context.Context, chatID int64, secretID, blobKey string) error {
	secret, err := v.ownedSecret(ctx, chatID, secretID)
	if err != nil {
		return err
	}
	if secret.Kind != models.KindFile {
		return fmt.Errorf("entity %s is not a file", secretID)
	}
	return v.secrets.UpdateBlobKey(ctx, secretID, blobKey)
}

// ChangeMasterPassword re-keys the user's whole vault: the old password is
// verified, every ciphertext field is staged for re-encryption under the
// new key, and only then are credentials and envelopes swapped atomically
// by the persistence collaborator. If any field fails to open under the
// old key the operation aborts with nothing mutated.
func (v *Service) ChangeMasterPassword(ctx context.Context, chatID int64, oldPassword, newPassword string) error {
	if err := flow.ValidateMasterPassword(newPassword); err != nil {
		return err
	}

	user, err := v.users.GetByChatID(ctx, chatID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return ErrAuthenticationFailed
		}
		return fmt.Errorf("user lookup: %w", err)
	}

	return v.sessions.Update(chatID, func(s *session.Session) error {
		if s.Status != session.Unlocked {
			return ErrSessionLocked
		}
		if !cryptox.VerifyMaster([]byte(oldPassword), user.Salt, user.Verifier) {
			s.Failures++
			return ErrAuthenticationFailed
		}

		oldKey := cryptox.DeriveKey([]byte(oldPassword), user.Salt, v.pepper)
		defer common.WipeByteArray(oldKey)

		newSalt := common.GenerateRandByteArray(cryptox.SaltLength)
		newVerifier := cryptox.MakeVerifier([]byte(newPassword), newSalt)
		newKey := cryptox.DeriveKey([]byte(newPassword), newSalt, v.pepper)
		defer common.WipeByteArray(newKey)

		secrets, err := v.secrets.LoadByUser(ctx, user.ID, models.Filter{})
		if err != nil {
			return fmt.Errorf("load secrets: %w", err)
		}

		// Stage phase: every envelope set must re-encrypt before anything
		// is written back.
		staged := make([]*models.Secret, 0, len(secrets))
		for _, secret := range secrets {
			reencrypted, err := ReencryptFields(secret.Encrypted, oldKey, newKey)
			if err != nil {
				return fmt.Errorf("re-key entity %s: %w", secret.ID, err)
			}
			clone := *secret
			clone.Encrypted = reencrypted
			staged = append(staged, &clone)
		}

		// Swap phase: one atomic write of credentials plus all envelopes.
		if err := v.rekeyer.Rekey(ctx, user.ID, newSalt, newVerifier, staged); err != nil {
			return fmt.Errorf("re-key swap: %w", err)
		}

		s.Unlock(newKey, v.sessions.Now())
		v.logger.Info(ctx, "master password changed", "chat_id", chatID, "entities", len(staged))
		return nil
	})
}

// --- helpers below ---

func (v *Service) requireUnlocked(ctx context.Context, chatID int64) (*models.User, error) {
	if !v.sessions.IsUnlockedAndFresh(chatID) {
		return nil, ErrSessionLocked
	}
	v.sessions.Touch(chatID)

	user, err := v.users.GetByChatID(ctx, chatID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, ErrSessionLocked
		}
		return nil, fmt.Errorf("user lookup: %w", err)
	}
	return user, nil
}

func (v *Service) ownedSecret(ctx context.Context, chatID int64, secretID string) (*models.Secret, error) {
	user, err := v.requireUnlocked(ctx, chatID)
	if err != nil {
		return nil, err
	}
	secret, err := v.secrets.Get(ctx, secretID)
	if err != nil {
		return nil, err
	}
	if secret.UserID != user.ID {
		return nil, common.ErrUnauthorized
	}
	return secret, nil
}

func (v *Service) expireFlow(ctx context.Context, chatID int64, s *session.Session, now time.Time) {
	if s.Flow != nil && s.Flow.Expired(now, v.flowTimeout) {
		s.Flow = nil
		v.logger.Info(ctx, "flow expired", "chat_id", chatID)
	}
}

func (v *Service) finalizeFlow(ctx context.Context, chatID int64, state *flow.State, key []byte, now time.Time) (*models.Secret, error) {
	user, err := v.users.GetByChatID(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("user lookup: %w", err)
	}

	encrypted, err := EncryptFields(state.Collected, key)
	if err != nil {
		return nil, err
	}

	secret := &models.Secret{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Tags:      splitTags(state.Collected[flow.FieldTags]),
		Encrypted: encrypted,
		CreatedAt: now,
		UpdatedAt: now,
	}

	switch state.Kind() {
	case flow.KindAddPassword:
		secret.Kind = models.KindPassword
		secret.Name = state.Collected[flow.FieldServiceName]
	case flow.KindAddTask:
		secret.Kind = models.KindTask
		secret.Name = state.Collected[flow.FieldTitle]
		secret.Status = models.StatusPending
		secret.Priority = state.Collected[flow.FieldPriority]
		if raw := state.Collected[flow.FieldDueDate]; raw != "" {
			due, _ := time.Parse("2006-01-02", raw)
			secret.DueDate = &due
		}
	case flow.KindAddFile:
		secret.Kind = models.KindFile
		secret.Name = state.Collected[flow.FieldFileName]
	}

	if err := v.secrets.Save(ctx, secret); err != nil {
		return nil, fmt.Errorf("save entity: %w", err)
	}
	v.logger.Info(ctx, "flow completed", "chat_id", chatID, "kind", state.Kind(), "entity_id", secret.ID)
	return secret, nil
}

func splitTags(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, ",")
}
