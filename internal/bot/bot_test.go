package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quiksafe/quiksafebot/internal/common"
	"github.com/quiksafe/quiksafebot/internal/cryptox"
	"github.com/quiksafe/quiksafebot/internal/logging"
	"github.com/quiksafe/quiksafebot/internal/models"
	"github.com/quiksafe/quiksafebot/internal/vault"
	"github.com/quiksafe/quiksafebot/internal/vault/session"
)

const (
	testChatID   = int64(777)
	testPassword = "Sup3r$ecret"
)

type fakeAPI struct {
	sent    []tgbotapi.MessageConfig
	deleted []int
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	if d, ok := c.(tgbotapi.DeleteMessageConfig); ok {
		f.deleted = append(f.deleted, d.MessageID)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	ch := make(chan tgbotapi.Update)
	close(ch)
	return ch
}

func (f *fakeAPI) StopReceivingUpdates() {}

func (f *fakeAPI) lastText(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, f.sent, "no messages sent")
	return f.sent[len(f.sent)-1].Text
}

type fakeBlobs struct {
	putErr error
}

func (f *fakeBlobs) PresignedPutURL(ctx context.Context) (string, string, error) {
	if f.putErr != nil {
		return "", "", f.putErr
	}
	return "blobs/test-key", "http://signed/put", nil
}

func (f *fakeBlobs) PresignedGetURL(ctx context.Context, key string) (string, error) {
	return "http://signed/get/" + key, nil
}

type fakeGenerator struct {
	reply string
	err   error
	asked []string
}

func (f *fakeGenerator) Generate(ctx context.Context, message string) (string, error) {
	f.asked = append(f.asked, message)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type memStore struct {
	mu      sync.Mutex
	users   map[int64]*models.User
	secrets map[string]*models.Secret
	nextID  int
}

func newMemStore() *memStore {
	return &memStore{users: make(map[int64]*models.User), secrets: make(map[string]*models.Secret)}
}

func (m *memStore) Create(_ context.Context, user *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	u := *user
	u.ID = fmt.Sprintf("user-%d", m.nextID)
	m.users[u.ChatID] = &u
	return &u, nil
}

func (m *memStore) GetByChatID(_ context.Context, chatID int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[chatID]
	if !ok {
		return nil, common.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *memStore) Save(_ context.Context, secret *models.Secret) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := *secret
	m.secrets[s.ID] = &s
	return nil
}

func (m *memStore) LoadByUser(_ context.Context, userID string, filter models.Filter) ([]*models.Secret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Secret
	for _, s := range m.secrets {
		if s.UserID != userID {
			continue
		}
		if filter.Kind != "" && s.Kind != filter.Kind {
			continue
		}
		if filter.NameLike != "" && !strings.Contains(s.Name, filter.NameLike) {
			continue
		}
		copied := *s
		out = append(out, &copied)
	}
	return out, nil
}

func (m *memStore) Get(_ context.Context, id string) (*models.Secret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.secrets[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (m *memStore) UpdateStatus(_ context.Context, id string, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.secrets[id]
	if !ok {
		return common.ErrNotFound
	}
	s.Status = status
	return nil
}

func (m *memStore) UpdateBlobKey(_ context.Context, id string, blobKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.secrets[id]
	if !ok {
		return common.ErrNotFound
	}
	s.BlobKey = blobKey
	return nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.secrets, id)
	return nil
}

func (m *memStore) Rekey(_ context.Context, userID string, salt, verifier []byte, secrets []*models.Secret) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == userID {
			u.Salt = salt
			u.Verifier = verifier
		}
	}
	for _, s := range secrets {
		copied := *s
		m.secrets[s.ID] = &copied
	}
	return nil
}

type fixture struct {
	bot   *Bot
	api   *fakeAPI
	store *memStore
	gen   *fakeGenerator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	sessions := session.NewManager(time.Hour, logger)
	store := newMemStore()
	pepper := common.GenerateRandByteArray(cryptox.PepperLength)
	svc := vault.NewService(store, store, store, sessions, pepper, 10*time.Minute, logger)
	gen := &fakeGenerator{reply: "hello from the assistant"}
	api := &fakeAPI{}
	b := New(api, svc, &fakeBlobs{}, gen, logger)
	return &fixture{bot: b, api: api, store: store, gen: gen}
}

var nextMessageID = 100

func textUpdate(text string) *tgbotapi.Update {
	nextMessageID++
	msg := &tgbotapi.Message{
		MessageID: nextMessageID,
		Chat:      &tgbotapi.Chat{ID: testChatID},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		cmdLen := len(text)
		if i := strings.IndexByte(text, ' '); i > 0 {
			cmdLen = i
		}
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}}
	}
	return &tgbotapi.Update{Message: msg}
}

func (f *fixture) send(t *testing.T, text string) string {
	t.Helper()
	f.bot.HandleUpdate(context.Background(), textUpdate(text))
	return f.api.lastText(t)
}

func (f *fixture) unlock(t *testing.T) {
	t.Helper()
	reply := f.send(t, testPassword)
	require.Contains(t, reply, "unlocked")
}

func TestStartPromptsForPassword(t *testing.T) {
	f := newFixture(t)
	reply := f.send(t, "/start")
	assert.Contains(t, reply, "master password")
}

func TestPasswordMessageEnrollsAndIsDeleted(t *testing.T) {
	f := newFixture(t)

	reply := f.send(t, testPassword)
	assert.Contains(t, reply, "vault is ready")
	assert.Len(t, f.api.deleted, 1, "password message must be scrubbed")
}

func TestWeakEnrollmentPassword(t *testing.T) {
	f := newFixture(t)

	reply := f.send(t, "weak")
	assert.Contains(t, reply, "too weak")
	assert.Len(t, f.api.deleted, 1)
}

func TestWrongPassword(t *testing.T) {
	f := newFixture(t)
	f.unlock(t)
	f.send(t, "/lock")

	reply := f.send(t, "Wr0ng$pass")
	assert.Contains(t, reply, "Wrong master password")
}

func TestCommandRequiresUnlockedSession(t *testing.T) {
	f := newFixture(t)

	reply := f.send(t, "/newpass")
	assert.Contains(t, reply, "locked")
}

func TestAddPasswordDialog(t *testing.T) {
	f := newFixture(t)
	f.unlock(t)

	reply := f.send(t, "/newpass")
	assert.Contains(t, reply, "service")

	f.send(t, "github")
	f.send(t, "octocat")
	f.send(t, "hunter2!")
	f.send(t, "skip")
	reply = f.send(t, "yes")
	assert.Contains(t, reply, "Saved")

	reply = f.send(t, "/list")
	assert.Contains(t, reply, "github")
}

func TestValidationFailureKeepsPrompt(t *testing.T) {
	f := newFixture(t)
	f.unlock(t)

	f.send(t, "/newpass")
	reply := f.send(t, "bad/name!")
	assert.Contains(t, reply, "service")
}

func TestShowDecryptsEntry(t *testing.T) {
	f := newFixture(t)
	f.unlock(t)

	f.send(t, "/newpass")
	f.send(t, "github")
	f.send(t, "octocat")
	f.send(t, "hunter2!")
	f.send(t, "skip")
	f.send(t, "yes")

	var id string
	for sid := range f.store.secrets {
		id = sid
	}
	require.NotEmpty(t, id)

	reply := f.send(t, "/show "+id[:8])
	assert.Contains(t, reply, "hunter2!")
	assert.Contains(t, reply, "octocat")
}

func TestFileDialogSendsUploadLink(t *testing.T) {
	f := newFixture(t)
	f.unlock(t)

	f.send(t, "/newfile")
	f.send(t, "taxes-2025.pdf")
	f.send(t, "last year's tax return")
	f.send(t, "skip")
	reply := f.send(t, "yes")
	assert.Contains(t, reply, "http://signed/put")

	var secret *models.Secret
	for _, s := range f.store.secrets {
		secret = s
	}
	require.NotNil(t, secret)
	assert.Equal(t, "blobs/test-key", secret.BlobKey)

	reply = f.send(t, "/getfile "+secret.ID[:8])
	assert.Contains(t, reply, "http://signed/get/blobs/test-key")
}

func TestFindMatchesByName(t *testing.T) {
	f := newFixture(t)
	f.unlock(t)

	f.send(t, "/newpass")
	f.send(t, "github")
	f.send(t, "octocat")
	f.send(t, "hunter2!")
	f.send(t, "skip")
	f.send(t, "yes")

	reply := f.send(t, "/find hub")
	assert.Contains(t, reply, "github")
}

func TestFindWithoutMatchAsksAssistant(t *testing.T) {
	f := newFixture(t)
	f.unlock(t)
	f.gen.reply = "Nothing looks related to that."

	f.send(t, "/newpass")
	f.send(t, "github")
	f.send(t, "octocat")
	f.send(t, "hunter2!")
	f.send(t, "skip")
	f.send(t, "yes")

	reply := f.send(t, "/find banking")
	assert.Contains(t, reply, "No exact match")
	assert.Contains(t, reply, "Nothing looks related to that.")

	require.Len(t, f.gen.asked, 1)
	assert.Contains(t, f.gen.asked[0], "banking")
	assert.Contains(t, f.gen.asked[0], "github")
	assert.NotContains(t, f.gen.asked[0], "hunter2!")
}

func TestFindWithoutMatchAndNoAssistant(t *testing.T) {
	f := newFixture(t)
	f.unlock(t)
	f.bot.ai = nil

	reply := f.send(t, "/find anything")
	assert.Contains(t, reply, "/list")
}

func TestSmallTalkFallsBackToAssistant(t *testing.T) {
	f := newFixture(t)
	f.unlock(t)

	reply := f.send(t, "what's the weather like?")
	assert.Equal(t, "hello from the assistant", reply)
	assert.Equal(t, []string{"what's the weather like?"}, f.gen.asked)
}

func TestSmallTalkAssistantFailure(t *testing.T) {
	f := newFixture(t)
	f.unlock(t)
	f.gen.err = errors.New("quota exceeded")

	reply := f.send(t, "hello?")
	assert.Contains(t, reply, "/help")
}

func TestCancelDialog(t *testing.T) {
	f := newFixture(t)
	f.unlock(t)

	f.send(t, "/newpass")
	reply := f.send(t, "/cancel")
	assert.Contains(t, reply, "Cancelled")

	reply = f.send(t, "free text again")
	assert.Equal(t, "hello from the assistant", reply)
}

func TestDoneMarksTask(t *testing.T) {
	f := newFixture(t)
	f.unlock(t)

	f.send(t, "/newtask")
	f.send(t, "renew passport")
	f.send(t, "bring documents")
	f.send(t, "low")
	f.send(t, "skip")
	f.send(t, "skip")
	f.send(t, "yes")

	var id string
	for sid := range f.store.secrets {
		id = sid
	}
	reply := f.send(t, "/done "+id[:8])
	assert.Contains(t, reply, "Done: renew passport")
	assert.Equal(t, models.StatusDone, f.store.secrets[id].Status)
}

func TestChangePassScrubsMessage(t *testing.T) {
	f := newFixture(t)
	f.unlock(t)

	deletedBefore := len(f.api.deleted)
	reply := f.send(t, "/changepass "+testPassword+" N3w&better1")
	assert.Contains(t, reply, "re-encrypted")
	assert.Len(t, f.api.deleted, deletedBefore+1)
}

func TestUnknownCommand(t *testing.T) {
	f := newFixture(t)
	reply := f.send(t, "/frobnicate")
	assert.Contains(t, reply, "/help")
}
