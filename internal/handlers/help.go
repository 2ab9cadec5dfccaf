package handlers

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/ChoreBoT/internal/telegram"
)

// HelpHandler handles the /help command
type HelpHandler struct {
	logger *logrus.Logger
}

func NewHelpHandler(logger *logrus.Logger) *HelpHandler {
	return &HelpHandler{logger: logger}
}

func (h *HelpHandler) Handle(ctx context.Context, bot telegram.Sender, message *tgbotapi.Message, args []string) error {
	helpText := `📚 *ChoreBoT Help*

*Account:*
• /register <email> <password> <password> <family name> - Create a family
• /login <email> <password> - Parent login
• /child <family code> [name] - Child login
• /whoami - Show who you are
• /logout - Log out

*Family:*
• /family - Show family and members
• /addchild <name> [age] [avatar 1-7] - Add a child profile
• /leaderboard - Points ranking

*Chores:*
• /chores - List chores
• /addchore <points> <title> [@child] - Create a chore
• /done <ref> [notes] - Mark a chore as done
• /verify <ref> - Verify a chore and award points

*Rewards:*
• /rewards - List rewards
• /addreward <cost> <title> - Create a reward
• /redeem <ref> - Spend points on a reward
• /approve <id> - Approve a redeemed reward

_<ref> is the short code shown in lists. Messages with passwords are deleted right away._`

	msg := tgbotapi.NewMessage(message.Chat.ID, helpText)
	msg.ParseMode = tgbotapi.ModeMarkdown

	_, err := bot.Send(msg)
	if err != nil {
		return fmt.Errorf("failed to send help message: %w", err)
	}

	h.logger.WithFields(logrus.Fields{
		"chat_id": message.Chat.ID,
		"user_id": message.From.ID,
	}).Info("Sent help message")

	return nil
}
