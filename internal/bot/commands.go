package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/quiksafe/quiksafebot/internal/common"
	"github.com/quiksafe/quiksafebot/internal/cryptox"
	"github.com/quiksafe/quiksafebot/internal/models"
	"github.com/quiksafe/quiksafebot/internal/vault"
	"github.com/quiksafe/quiksafebot/internal/vault/flow"
)

const helpText = `I keep your passwords, tasks, and files in an encrypted vault.

/newpass - store a password
/newtask - add a task
/newfile - register a file and get an upload link
/list - list everything
/list pass|task|file - list one kind
/find <text> - search by name
/show <id> - decrypt and show one entry
/getfile <id> - download link for a stored file
/done <id> - mark a task done
/delete <id> - delete an entry
/cancel - abandon the current dialog
/changepass <old> <new> - change the master password
/lock - lock the vault
/logout - forget this session entirely

When the vault is locked, just send your master password to unlock it.`

func (b *Bot) handleCommand(ctx context.Context, chatID int64, msg *tgbotapi.Message) {
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.reply(chatID, helpText)
	case "lock":
		_ = b.vault.Lock(ctx, chatID)
		b.reply(chatID, "Vault locked. Send your master password to unlock.")
	case "logout":
		_ = b.vault.Logout(ctx, chatID)
		b.reply(chatID, "Session forgotten. Send your master password when you need me again.")
	case "cancel":
		if err := b.vault.CancelFlow(ctx, chatID); err != nil {
			b.replyError(ctx, chatID, err)
			return
		}
		b.reply(chatID, "Cancelled.")
	case "newpass":
		b.startFlow(ctx, chatID, flow.KindAddPassword)
	case "newtask":
		b.startFlow(ctx, chatID, flow.KindAddTask)
	case "newfile":
		b.startFlow(ctx, chatID, flow.KindAddFile)
	case "list":
		b.handleList(ctx, chatID, args)
	case "find":
		b.handleFind(ctx, chatID, args)
	case "show":
		b.handleShow(ctx, chatID, args)
	case "getfile":
		b.handleGetFile(ctx, chatID, args)
	case "done":
		b.handleDone(ctx, chatID, args)
	case "delete":
		b.handleDelete(ctx, chatID, args)
	case "changepass":
		b.handleChangePass(ctx, chatID, msg, args)
	default:
		b.reply(chatID, "Unknown command. Try /help.")
	}
}

func (b *Bot) handleStart(chatID int64) {
	if b.vault.IsUnlocked(chatID) {
		b.reply(chatID, "Your vault is unlocked. Try /help to see what I can do.")
		return
	}
	b.reply(chatID, "Hi, I am QuikSafe. I keep your passwords, tasks, and files encrypted.\n\nSend me your master password to unlock your vault. If this is your first time, the password you send becomes your master password; pick a strong one, it can never be recovered.")
}

func (b *Bot) startFlow(ctx context.Context, chatID int64, kind flow.Kind) {
	res, err := b.vault.StartFlow(ctx, chatID, kind)
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	b.reply(chatID, res.Prompt+"\n\n(Use /cancel to stop at any point.)")
}

func (b *Bot) handleList(ctx context.Context, chatID int64, args string) {
	filter := models.Filter{}
	switch args {
	case "pass", "password", "passwords":
		filter.Kind = models.KindPassword
	case "task", "tasks":
		filter.Kind = models.KindTask
	case "file", "files":
		filter.Kind = models.KindFile
	case "":
	default:
		if strings.HasPrefix(args, "#") {
			filter.Tag = strings.TrimPrefix(args, "#")
		} else {
			b.reply(chatID, "Usage: /list, /list pass|task|file, or /list #tag")
			return
		}
	}

	secrets, err := b.vault.List(ctx, chatID, filter)
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	b.reply(chatID, renderSecretList(secrets))
}

func (b *Bot) handleFind(ctx context.Context, chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /find <text>")
		return
	}
	secrets, err := b.vault.List(ctx, chatID, models.Filter{NameLike: args})
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	if len(secrets) == 0 {
		b.suggestMatches(ctx, chatID, args)
		return
	}
	b.reply(chatID, renderSecretList(secrets))
}

// suggestMatches falls back to the assistant when a substring search over
// entry names comes up empty. Only plaintext names and tags leave the vault.
func (b *Bot) suggestMatches(ctx context.Context, chatID int64, query string) {
	if b.ai == nil {
		b.reply(chatID, "No entries match. Try /list to see everything you have stored.")
		return
	}
	all, err := b.vault.List(ctx, chatID, models.Filter{})
	if err != nil || len(all) == 0 {
		b.reply(chatID, "No entries match. Try /list to see everything you have stored.")
		return
	}

	var names []string
	for _, s := range all {
		names = append(names, fmt.Sprintf("%s (%s)", s.Name, s.Kind))
	}
	prompt := fmt.Sprintf(
		"The user searched their vault for %q but no entry name contains that text. "+
			"Their entries are: %s. In one short sentence, point out which entries look "+
			"related to the search, or say none do.",
		query, strings.Join(names, "; "))

	answer, err := b.ai.Generate(ctx, prompt)
	if err != nil {
		b.logger.Warn(ctx, "search suggestion failed", "chat_id", chatID, "error", err.Error())
		b.reply(chatID, "No entries match. Try /list to see everything you have stored.")
		return
	}
	b.reply(chatID, "No exact match. "+answer)
}

func (b *Bot) handleShow(ctx context.Context, chatID int64, args string) {
	secret, ok := b.resolveSecret(ctx, chatID, args, "Usage: /show <id>")
	if !ok {
		return
	}
	plain, err := b.vault.DecryptForDisplay(ctx, chatID, secret)
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	b.reply(chatID, renderPlainSecret(plain))
}

func (b *Bot) handleGetFile(ctx context.Context, chatID int64, args string) {
	secret, ok := b.resolveSecret(ctx, chatID, args, "Usage: /getfile <id>")
	if !ok {
		return
	}
	if secret.Kind != models.KindFile || secret.BlobKey == "" {
		b.reply(chatID, "That entry has no stored file.")
		return
	}
	url, err := b.blobs.PresignedGetURL(ctx, secret.BlobKey)
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	b.reply(chatID, "Download link (valid 15 minutes):\n"+url)
}

func (b *Bot) handleDone(ctx context.Context, chatID int64, args string) {
	secret, ok := b.resolveSecret(ctx, chatID, args, "Usage: /done <id>")
	if !ok {
		return
	}
	if err := b.vault.SetTaskStatus(ctx, chatID, secret.ID, true); err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	b.reply(chatID, "Done: "+secret.Name)
}

func (b *Bot) handleDelete(ctx context.Context, chatID int64, args string) {
	secret, ok := b.resolveSecret(ctx, chatID, args, "Usage: /delete <id>")
	if !ok {
		return
	}
	if err := b.vault.DeleteSecret(ctx, chatID, secret.ID); err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	b.reply(chatID, "Deleted: "+secret.Name)
}

func (b *Bot) handleChangePass(ctx context.Context, chatID int64, msg *tgbotapi.Message, args string) {
	// The command carries both passwords, so scrub it from the history.
	defer b.deleteMessage(chatID, msg.MessageID)

	parts := strings.Fields(args)
	if len(parts) != 2 {
		b.reply(chatID, "Usage: /changepass <old password> <new password>\nI will delete your message right away.")
		return
	}

	err := b.vault.ChangeMasterPassword(ctx, chatID, parts[0], parts[1])
	if err != nil {
		var verr *flow.ValidationError
		if errors.As(err, &verr) {
			b.reply(chatID, "New password is too weak: "+verr.Reason)
			return
		}
		b.replyError(ctx, chatID, err)
		return
	}
	b.reply(chatID, "Master password changed. Everything in your vault was re-encrypted.")
}

// resolveSecret looks up an entity by the (possibly shortened) id the user
// pasted from a /list reply.
func (b *Bot) resolveSecret(ctx context.Context, chatID int64, args, usage string) (*models.Secret, bool) {
	if args == "" {
		b.reply(chatID, usage)
		return nil, false
	}

	// A full UUID can be looked up directly; the column type rejects
	// anything shorter.
	if len(args) == 36 {
		secret, err := b.vault.GetSecret(ctx, chatID, args)
		if err == nil {
			return secret, true
		}
		if !errors.Is(err, common.ErrNotFound) {
			b.replyError(ctx, chatID, err)
			return nil, false
		}
		b.reply(chatID, "Nothing found with that id.")
		return nil, false
	}

	// Shortened id: prefix match over the user's own entities.
	secrets, listErr := b.vault.List(ctx, chatID, models.Filter{})
	if listErr != nil {
		b.replyError(ctx, chatID, listErr)
		return nil, false
	}
	var match *models.Secret
	for _, s := range secrets {
		if strings.HasPrefix(s.ID, args) {
			if match != nil {
				b.reply(chatID, "That id is ambiguous, use more characters.")
				return nil, false
			}
			match = s
		}
	}
	if match == nil {
		b.reply(chatID, "Nothing found with that id.")
		return nil, false
	}
	return match, true
}

func (b *Bot) replyError(ctx context.Context, chatID int64, err error) {
	switch {
	case errors.Is(err, vault.ErrSessionLocked):
		b.reply(chatID, "Vault is locked. Send your master password to unlock.")
	case errors.Is(err, vault.ErrAuthenticationFailed):
		b.reply(chatID, "Wrong master password.")
	case errors.Is(err, vault.ErrFlowInProgress):
		b.reply(chatID, "You already have a dialog in progress. Finish it or /cancel first.")
	case errors.Is(err, vault.ErrNoActiveFlow):
		b.reply(chatID, "There is no dialog in progress.")
	case errors.Is(err, cryptox.ErrIntegrity):
		b.reply(chatID, "I cannot decrypt that entry: the stored data failed its integrity check.")
	case errors.Is(err, common.ErrUnauthorized):
		b.reply(chatID, "That entry does not belong to you.")
	case errors.Is(err, common.ErrNotFound):
		b.reply(chatID, "Nothing found with that id.")
	default:
		b.logger.Error(ctx, "operation failed", "chat_id", chatID, "error", err.Error())
		b.reply(chatID, "Something went wrong on my side. Please try again.")
	}
}

func renderSecretList(secrets []*models.Secret) string {
	if len(secrets) == 0 {
		return "Nothing stored yet."
	}

	var sb strings.Builder
	for _, s := range secrets {
		sb.WriteString(fmt.Sprintf("%s  [%s] %s", shortID(s.ID), s.Kind, s.Name))
		if s.Kind == models.KindTask {
			if s.Status != "" {
				sb.WriteString(" - " + s.Status)
			}
			if s.DueDate != nil {
				sb.WriteString(" (due " + formatDate(s.DueDate) + ")")
			}
		}
		if len(s.Tags) > 0 {
			sb.WriteString("  #" + strings.Join(s.Tags, " #"))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\nUse /show <id> to decrypt an entry.")
	return sb.String()
}

func renderPlainSecret(plain *models.PlainSecret) string {
	var sb strings.Builder
	sb.WriteString(string(plain.Kind) + ": " + plain.Name + "\n")

	for _, field := range []string{flow.FieldUsername, flow.FieldSecret, flow.FieldContent, flow.FieldDescription, vault.FieldNotes} {
		if value, ok := plain.Fields[field]; ok {
			sb.WriteString(field + ": " + value + "\n")
		}
	}
	if plain.Kind == models.KindTask {
		if plain.Priority != "" {
			sb.WriteString("priority: " + plain.Priority + "\n")
		}
		if plain.DueDate != nil {
			sb.WriteString("due: " + formatDate(plain.DueDate) + "\n")
		}
		if plain.Status != "" {
			sb.WriteString("status: " + plain.Status + "\n")
		}
	}
	if len(plain.Tags) > 0 {
		sb.WriteString("tags: #" + strings.Join(plain.Tags, " #") + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
