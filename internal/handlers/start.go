package handlers

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/ChoreBoT/internal/session"
	"github.com/Kerhoff/ChoreBoT/internal/telegram"
)

// StartHandler handles the /start command
type StartHandler struct {
	sessions *session.Registry
	logger   *logrus.Logger
}

// NewStartHandler creates a new start command handler
func NewStartHandler(sessions *session.Registry, logger *logrus.Logger) *StartHandler {
	return &StartHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// Handle processes the /start command. The first message of a user restores
// their previous session, so a returning user is greeted by name.
func (h *StartHandler) Handle(ctx context.Context, bot telegram.Sender, message *tgbotapi.Message, args []string) error {
	m, err := h.sessions.Get(ctx, SessionKey(message.From.ID))
	if err != nil {
		return err
	}

	if state := m.State(); state.LoggedIn() {
		text := "🎯 *Welcome back to ChoreBoT!*\n\n" + describeSession(state, m.CurrentMember()) + "\nUse /help to see what you can do."
		return reply(bot, message.Chat.ID, text)
	}

	welcomeText := `🎯 *Welcome to ChoreBoT!*

I help families keep track of chores and rewards.

*Parents:*
• /register <email> <password> <password> <family name> - Create a family
• /login <email> <password> - Log in

*Children:*
• /child <family code> - Pick your profile

Use /help to see all commands.`

	if err := reply(bot, message.Chat.ID, welcomeText); err != nil {
		return fmt.Errorf("failed to send start message: %w", err)
	}

	h.logger.WithFields(logrus.Fields{
		"chat_id": message.Chat.ID,
		"user_id": message.From.ID,
	}).Info("Sent start message")

	return nil
}
