package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Sender is the part of the bot API handlers use. *tgbotapi.BotAPI
// satisfies it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Router handles message routing and command parsing
type Router struct {
	logger    *logrus.Logger
	handlers  map[string]CommandHandler
	callbacks map[string]CallbackHandler
}

// CommandHandler defines the interface for command handlers
type CommandHandler interface {
	Handle(ctx context.Context, bot Sender, message *tgbotapi.Message, args []string) error
}

// SecretHandler is implemented by handlers whose arguments carry a password.
// Their messages are not logged and are deleted from the chat once handled.
type SecretHandler interface {
	CommandHandler
	Secret() bool
}

// CallbackHandler handles inline keyboard presses whose data starts with the
// registered prefix. data is what follows "prefix:".
type CallbackHandler interface {
	HandleCallback(ctx context.Context, bot Sender, query *tgbotapi.CallbackQuery, data string) error
}

// NewRouter creates a new message router
func NewRouter(logger *logrus.Logger) *Router {
	return &Router{
		logger:    logger,
		handlers:  make(map[string]CommandHandler),
		callbacks: make(map[string]CallbackHandler),
	}
}

// RegisterCommand registers a command handler
func (r *Router) RegisterCommand(command string, handler CommandHandler) {
	r.handlers[command] = handler
	r.logger.Debugf("Registered command: %s", command)
}

// RegisterCallback registers a callback handler for a data prefix
func (r *Router) RegisterCallback(prefix string, handler CallbackHandler) {
	r.callbacks[prefix] = handler
	r.logger.Debugf("Registered callback: %s", prefix)
}

func isSecret(h CommandHandler) bool {
	s, ok := h.(SecretHandler)
	return ok && s.Secret()
}

// HandleMessage handles incoming messages
func (r *Router) HandleMessage(ctx context.Context, bot Sender, message *tgbotapi.Message) {
	if message.From == nil || message.Text == "" || !message.IsCommand() {
		return
	}

	command := message.Command()
	handler, exists := r.handlers[command]

	fields := logrus.Fields{
		"chat_id":    message.Chat.ID,
		"user_id":    message.From.ID,
		"username":   message.From.UserName,
		"message_id": message.MessageID,
		"command":    command,
	}
	if !exists || !isSecret(handler) {
		fields["text"] = message.Text
	}
	r.logger.WithFields(fields).Info("Received message")

	if !exists {
		r.logger.WithFields(logrus.Fields{
			"command": command,
			"chat_id": message.Chat.ID,
			"user_id": message.From.ID,
		}).Warn("Unknown command")

		unknownMsg := tgbotapi.NewMessage(message.Chat.ID, "❓ Unknown command. Use /help to see available commands.")
		bot.Send(unknownMsg)
		return
	}

	args := strings.Fields(message.CommandArguments())
	if err := handler.Handle(ctx, bot, message, args); err != nil {
		r.logger.WithFields(logrus.Fields{
			"command": command,
			"chat_id": message.Chat.ID,
			"user_id": message.From.ID,
			"error":   err,
		}).Error("Command handler failed")

		errorMsg := tgbotapi.NewMessage(message.Chat.ID, "❌ An error occurred while processing your command. Please try again.")
		bot.Send(errorMsg)
	}

	if isSecret(handler) {
		if _, err := bot.Request(tgbotapi.NewDeleteMessage(message.Chat.ID, message.MessageID)); err != nil {
			r.logger.WithFields(logrus.Fields{
				"chat_id":    message.Chat.ID,
				"message_id": message.MessageID,
			}).Warnf("Failed to delete message with credentials: %v", err)
		}
	}
}

// HandleCallbackQuery handles callback queries from inline keyboards
func (r *Router) HandleCallbackQuery(ctx context.Context, bot Sender, callbackQuery *tgbotapi.CallbackQuery) {
	r.logger.WithFields(logrus.Fields{
		"callback_id": callbackQuery.ID,
		"user_id":     callbackQuery.From.ID,
		"data":        callbackQuery.Data,
	}).Info("Received callback query")

	// Answer the callback query to remove loading state
	bot.Request(tgbotapi.NewCallback(callbackQuery.ID, ""))

	prefix, data, _ := strings.Cut(callbackQuery.Data, ":")
	handler, exists := r.callbacks[prefix]
	if !exists {
		r.logger.WithField("prefix", prefix).Warn("Unknown callback")
		return
	}
	if err := handler.HandleCallback(ctx, bot, callbackQuery, data); err != nil {
		r.logger.WithFields(logrus.Fields{
			"prefix":  prefix,
			"user_id": callbackQuery.From.ID,
			"error":   err,
		}).Error("Callback handler failed")

		if callbackQuery.Message != nil {
			bot.Send(tgbotapi.NewMessage(callbackQuery.Message.Chat.ID, "❌ An error occurred. Please try again."))
		}
	}
}
