// Package bot is the Telegram transport for the vault. It maps chat
// updates onto vault core operations and renders the results; it never
// touches key material or envelopes itself.
package bot

import (
	"context"
	"errors"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/quiksafe/quiksafebot/internal/ai"
	"github.com/quiksafe/quiksafebot/internal/logging"
	"github.com/quiksafe/quiksafebot/internal/models"
	"github.com/quiksafe/quiksafebot/internal/vault"
	"github.com/quiksafe/quiksafebot/internal/vault/flow"
)

// API is the slice of the Telegram client the bot uses. *tgbotapi.BotAPI
// satisfies it; tests substitute a recorder.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// BlobStore issues presigned upload/download URLs for file entities.
type BlobStore interface {
	PresignedPutURL(ctx context.Context) (string, string, error)
	PresignedGetURL(ctx context.Context, key string) (string, error)
}

type Bot struct {
	api    API
	vault  *vault.Service
	blobs  BlobStore
	ai     ai.Generator
	logger logging.Logger
}

func New(api API, vaultSvc *vault.Service, blobs BlobStore, generator ai.Generator, logger logging.Logger) *Bot {
	return &Bot{
		api:    api,
		vault:  vaultSvc,
		blobs:  blobs,
		ai:     generator,
		logger: logger.With("module", "bot"),
	}
}

// NewAPI connects to the Telegram Bot API with the given token.
func NewAPI(token string) (*tgbotapi.BotAPI, error) {
	return tgbotapi.NewBotAPI(token)
}

// Run consumes long-poll updates until the context is cancelled.
func (b *Bot) Run(ctx context.Context) {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60

	updates := b.api.GetUpdatesChan(updateConfig)

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		b.HandleUpdate(ctx, &update)
	}
	b.logger.Info(ctx, "update loop stopped")
}

// HandleUpdate routes one Telegram update. Ordering matters: commands win
// over flows, flows win over the assistant fallback, and any non-command
// text while locked is treated as a master password attempt.
func (b *Bot) HandleUpdate(ctx context.Context, update *tgbotapi.Update) {
	if update.Message == nil || update.Message.Chat == nil {
		return
	}
	msg := update.Message
	chatID := msg.Chat.ID

	if msg.IsCommand() {
		b.handleCommand(ctx, chatID, msg)
		return
	}

	if msg.Text == "" {
		b.reply(chatID, "I only understand text messages for now.")
		return
	}

	if !b.vault.IsUnlocked(chatID) {
		b.handlePasswordAttempt(ctx, chatID, msg)
		return
	}

	res, err := b.vault.SubmitStep(ctx, chatID, msg.Text)
	if err != nil {
		if errors.Is(err, vault.ErrNoActiveFlow) {
			b.handleSmallTalk(ctx, chatID, msg.Text)
			return
		}
		b.replyError(ctx, chatID, err)
		return
	}
	b.renderFlowResult(ctx, chatID, res)
}

// handlePasswordAttempt treats the message as the master password and
// scrubs it from the chat history either way.
func (b *Bot) handlePasswordAttempt(ctx context.Context, chatID int64, msg *tgbotapi.Message) {
	defer b.deleteMessage(chatID, msg.MessageID)

	res, err := b.vault.Authenticate(ctx, chatID, msg.Text)
	if err != nil {
		var verr *flow.ValidationError
		if errors.As(err, &verr) {
			b.reply(chatID, "That master password is too weak: "+verr.Reason)
			return
		}
		if errors.Is(err, vault.ErrAuthenticationFailed) {
			b.reply(chatID, "Wrong master password. Try again.")
			return
		}
		b.replyError(ctx, chatID, err)
		return
	}

	if res.Enrolled {
		b.reply(chatID, "Your vault is ready and unlocked. I deleted your message with the password; I never keep it.\n\nUse /newpass, /newtask, or /newfile to store something, /help for everything else.")
		return
	}
	b.reply(chatID, "Vault unlocked.")
}

func (b *Bot) handleSmallTalk(ctx context.Context, chatID int64, text string) {
	if b.ai == nil {
		b.reply(chatID, "I did not catch that. Try /help for the commands I know.")
		return
	}
	answer, err := b.ai.Generate(ctx, text)
	if err != nil {
		b.logger.Warn(ctx, "assistant reply failed", "chat_id", chatID, "error", err.Error())
		b.reply(chatID, "I did not catch that. Try /help for the commands I know.")
		return
	}
	b.reply(chatID, answer)
}

func (b *Bot) renderFlowResult(ctx context.Context, chatID int64, res *vault.FlowResult) {
	switch {
	case res.Cancelled:
		b.reply(chatID, "Okay, nothing was saved.")
	case res.Done:
		b.renderSaved(ctx, chatID, res)
	case !res.OK:
		b.reply(chatID, res.Reason+"\n\n"+res.Prompt)
	default:
		b.reply(chatID, res.Prompt)
	}
}

func (b *Bot) renderSaved(ctx context.Context, chatID int64, res *vault.FlowResult) {
	secret := res.Secret
	if secret.Kind == models.KindFile && b.blobs != nil {
		key, url, err := b.blobs.PresignedPutURL(ctx)
		if err == nil {
			err = b.vault.AttachBlobKey(ctx, chatID, secret.ID, key)
		}
		if err != nil {
			b.logger.Error(ctx, "blob upload setup failed", "chat_id", chatID, "error", err.Error())
			b.reply(chatID, "Saved "+secret.Name+", but I could not prepare an upload link. Try /getfile later.")
			return
		}
		b.reply(chatID, "Saved. Upload your file within 15 minutes using this link:\n"+url)
		return
	}
	b.reply(chatID, "Saved "+string(secret.Kind)+" \""+secret.Name+"\" (id "+shortID(secret.ID)+").")
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error(context.Background(), "send failed", "chat_id", chatID, "error", err.Error())
	}
}

func (b *Bot) deleteMessage(chatID int64, messageID int) {
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		b.logger.Warn(context.Background(), "could not delete message", "chat_id", chatID, "error", err.Error())
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
