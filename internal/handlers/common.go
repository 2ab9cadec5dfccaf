// Package handlers implements the Telegram commands. Every Telegram user has
// their own session, keyed by user id.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Kerhoff/ChoreBoT/internal/models"
	"github.com/Kerhoff/ChoreBoT/internal/repository"
	"github.com/Kerhoff/ChoreBoT/internal/service"
	"github.com/Kerhoff/ChoreBoT/internal/session"
	"github.com/Kerhoff/ChoreBoT/internal/telegram"
	"github.com/Kerhoff/ChoreBoT/internal/validation"
)

// SessionKey returns the session key of a Telegram user
func SessionKey(userID int64) string {
	return fmt.Sprintf("tg:%d", userID)
}

// Limiter throttles login attempts per session key
type Limiter interface {
	Allow(key string) bool
}

const (
	notLoggedInText = "🔒 You need to log in first.\nParents: `/login <email> <password>`\nChildren: `/child <family code>`"
	noFamilyText    = "🏠 Join or create a family first."
	throttledText   = "⏳ Too many attempts. Please wait a minute and try again."
)

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

// reply sends a Markdown message to a chat
func reply(bot telegram.Sender, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// userFacing returns the text shown for errors the user can act on, and
// false for unexpected failures
func userFacing(err error) (string, bool) {
	var verr *validation.ValidationError
	var serr *session.Error
	switch {
	case errors.As(err, &verr):
		return "❌ " + escape(verr.Error()), true
	case errors.As(err, &serr):
		return "❌ " + escape(serr.Message), true
	case errors.Is(err, repository.ErrInsufficientPoints):
		return "💸 You don't have enough points for that yet.", true
	case errors.Is(err, service.ErrForbidden):
		return "🚫 You are not allowed to do that.", true
	case errors.Is(err, service.ErrNotFound):
		return "❓ Not found. Check the reference and try again.", true
	case errors.Is(err, service.ErrConflict):
		return "⚠️ That can't be done right now.", true
	}
	return "", false
}

// replyError reports user errors in the chat and passes anything else up to
// the router
func replyError(bot telegram.Sender, chatID int64, err error) error {
	if text, ok := userFacing(err); ok {
		return reply(bot, chatID, text)
	}
	return err
}

// actor resolves the session of the sender and the signed-in member with a
// fresh roster. The member is nil when nobody is signed in. A failed refresh
// leaves the previous roster in place.
func actor(ctx context.Context, sessions *session.Registry, message *tgbotapi.Message) (*session.Manager, *models.FamilyMember, error) {
	m, err := sessions.Get(ctx, SessionKey(message.From.ID))
	if err != nil {
		return nil, nil, err
	}
	if m.State().Family != nil {
		m.RefreshMembers(ctx)
	}
	return m, m.CurrentMember(), nil
}

// shortRef is the id prefix shown in lists and accepted by commands
func shortRef(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// resolveRef finds the single item whose id starts with ref
func resolveRef[T any](items []T, id func(T) string, ref string) (T, bool) {
	var found T
	n := 0
	ref = strings.ToLower(strings.TrimSpace(ref))
	if ref == "" {
		return found, false
	}
	for _, item := range items {
		if strings.HasPrefix(strings.ToLower(id(item)), ref) {
			found = item
			n++
		}
	}
	if n != 1 {
		var zero T
		return zero, false
	}
	return found, true
}

func memberName(members []*models.FamilyMember, id string) string {
	for _, m := range members {
		if m.ID == id {
			return m.Name
		}
	}
	return "someone"
}

func roleEmoji(r models.Role) string {
	if r == models.RoleParent {
		return "👑"
	}
	return "🧒"
}
