package handlers

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/ChoreBoT/internal/models"
	"github.com/Kerhoff/ChoreBoT/internal/session"
	"github.com/Kerhoff/ChoreBoT/internal/telegram"
	"github.com/Kerhoff/ChoreBoT/internal/validation"
)

// ChildCallbackPrefix prefixes the data of child picker buttons
const ChildCallbackPrefix = "child"

// ---------------------------------------------------------------------------
// RegisterHandler – /register <email> <password> <password> <family name>
// ---------------------------------------------------------------------------

// RegisterHandler signs up a parent and creates their family
type RegisterHandler struct {
	sessions *session.Registry
	logger   *logrus.Logger
}

// NewRegisterHandler creates a new RegisterHandler.
func NewRegisterHandler(sessions *session.Registry, logger *logrus.Logger) *RegisterHandler {
	return &RegisterHandler{sessions: sessions, logger: logger}
}

// Secret marks /register messages for deletion
func (h *RegisterHandler) Secret() bool { return true }

// Handle processes the /register command.
func (h *RegisterHandler) Handle(ctx context.Context, bot telegram.Sender, message *tgbotapi.Message, args []string) error {
	if len(args) < 4 {
		return reply(bot, message.Chat.ID,
			"❌ Usage: `/register <email> <password> <password again> <family name>`\n\n_Your message will be deleted right away._")
	}
	email, password, confirm := args[0], args[1], args[2]
	familyName := strings.Join(args[3:], " ")

	if err := validation.Registration(email, password, confirm, familyName); err != nil {
		return replyError(bot, message.Chat.ID, err)
	}

	m, err := h.sessions.Get(ctx, SessionKey(message.From.ID))
	if err != nil {
		return err
	}
	if err := m.RegisterParent(ctx, email, password, familyName); err != nil {
		return replyError(bot, message.Chat.ID, err)
	}

	state := m.State()
	text := fmt.Sprintf("🎉 *Welcome to ChoreBoT!*\n\nYour family *%s* is ready.\nFamily code: `%s`\n\nShare the code with your children so they can log in with `/child %s`.\nAdd a child profile with `/addchild <name> [age]`.",
		escape(state.Family.Name), state.Family.Code, state.Family.Code)

	h.logger.WithFields(logrus.Fields{
		"user_id":   message.From.ID,
		"family_id": state.Family.ID,
	}).Info("Parent registered")

	return reply(bot, message.Chat.ID, text)
}

// ---------------------------------------------------------------------------
// LoginHandler – /login <email> <password>
// ---------------------------------------------------------------------------

// LoginHandler signs a parent in
type LoginHandler struct {
	sessions *session.Registry
	limiter  Limiter
	logger   *logrus.Logger
}

// NewLoginHandler creates a new LoginHandler.
func NewLoginHandler(sessions *session.Registry, limiter Limiter, logger *logrus.Logger) *LoginHandler {
	return &LoginHandler{sessions: sessions, limiter: limiter, logger: logger}
}

// Secret marks /login messages for deletion
func (h *LoginHandler) Secret() bool { return true }

// Handle processes the /login command.
func (h *LoginHandler) Handle(ctx context.Context, bot telegram.Sender, message *tgbotapi.Message, args []string) error {
	if len(args) != 2 {
		return reply(bot, message.Chat.ID,
			"❌ Usage: `/login <email> <password>`\n\n_Your message will be deleted right away._")
	}
	key := SessionKey(message.From.ID)
	if h.limiter != nil && !h.limiter.Allow(key) {
		return reply(bot, message.Chat.ID, throttledText)
	}
	if err := validation.Login(args[0], args[1]); err != nil {
		return replyError(bot, message.Chat.ID, err)
	}

	m, err := h.sessions.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := m.LoginParent(ctx, args[0], args[1]); err != nil {
		return replyError(bot, message.Chat.ID, err)
	}

	state := m.State()
	h.logger.WithFields(logrus.Fields{
		"user_id":   message.From.ID,
		"family_id": state.Family.ID,
	}).Info("Parent logged in")

	return reply(bot, message.Chat.ID,
		fmt.Sprintf("👋 Welcome back! You are managing *%s*.\nSee /family or /chores.", escape(state.Family.Name)))
}

// ---------------------------------------------------------------------------
// ChildHandler – /child <family code> [name]
// ---------------------------------------------------------------------------

// ChildHandler lets a child pick their profile from the family roster. With
// only a code it shows one button per child; with a name it logs in
// directly.
type ChildHandler struct {
	sessions *session.Registry
	limiter  Limiter
	logger   *logrus.Logger
}

// NewChildHandler creates a new ChildHandler.
func NewChildHandler(sessions *session.Registry, limiter Limiter, logger *logrus.Logger) *ChildHandler {
	return &ChildHandler{sessions: sessions, limiter: limiter, logger: logger}
}

// Handle processes the /child command.
func (h *ChildHandler) Handle(ctx context.Context, bot telegram.Sender, message *tgbotapi.Message, args []string) error {
	if len(args) == 0 {
		return reply(bot, message.Chat.ID, "❌ Please enter your family code.\nUsage: `/child ABC123`")
	}
	key := SessionKey(message.From.ID)
	if h.limiter != nil && !h.limiter.Allow(key) {
		return reply(bot, message.Chat.ID, throttledText)
	}
	code, err := validation.FamilyCode(args[0])
	if err != nil {
		return replyError(bot, message.Chat.ID, err)
	}

	m, err := h.sessions.Get(ctx, key)
	if err != nil {
		return err
	}
	family, err := m.GetFamilyByCode(ctx, code)
	if err != nil {
		return replyError(bot, message.Chat.ID, err)
	}
	if family == nil {
		return reply(bot, message.Chat.ID, "❓ No family found with that code. Ask a parent to check it.")
	}

	var children []*models.FamilyMember
	for _, member := range m.GetFamilyMembers(ctx, family.ID) {
		if member.IsChild() {
			children = append(children, member)
		}
	}
	if len(children) == 0 {
		return reply(bot, message.Chat.ID,
			fmt.Sprintf("👶 *%s* has no child profiles yet. Ask a parent to add you with /addchild.", escape(family.Name)))
	}

	if len(args) > 1 {
		name := strings.Join(args[1:], " ")
		for _, child := range children {
			if strings.EqualFold(child.Name, name) {
				return h.login(ctx, bot, m, message.Chat.ID, message.From.ID, code, child.ID)
			}
		}
		return reply(bot, message.Chat.ID, fmt.Sprintf("❓ No child named *%s* in this family.", escape(name)))
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(children))
	for _, child := range children {
		data := fmt.Sprintf("%s:%s:%s", ChildCallbackPrefix, code, child.ID)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🧒 "+child.Name, data)))
	}
	msg := tgbotapi.NewMessage(message.Chat.ID, fmt.Sprintf("👋 *%s*\n\nWho are you?", escape(family.Name)))
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	if _, err := bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send child picker: %w", err)
	}
	return nil
}

// HandleCallback logs in the child picked from the keyboard. data is
// "<family code>:<member id>".
func (h *ChildHandler) HandleCallback(ctx context.Context, bot telegram.Sender, query *tgbotapi.CallbackQuery, data string) error {
	if query.Message == nil {
		return nil
	}
	code, memberID, ok := strings.Cut(data, ":")
	if !ok {
		return fmt.Errorf("malformed child callback %q", data)
	}

	key := SessionKey(query.From.ID)
	if h.limiter != nil && !h.limiter.Allow(key) {
		return reply(bot, query.Message.Chat.ID, throttledText)
	}
	m, err := h.sessions.Get(ctx, key)
	if err != nil {
		return err
	}
	return h.login(ctx, bot, m, query.Message.Chat.ID, query.From.ID, code, memberID)
}

func (h *ChildHandler) login(ctx context.Context, bot telegram.Sender, m *session.Manager, chatID, userID int64, code, memberID string) error {
	if err := m.LoginChild(ctx, code, memberID); err != nil {
		return replyError(bot, chatID, err)
	}

	h.logger.WithFields(logrus.Fields{
		"user_id":   userID,
		"member_id": memberID,
	}).Info("Child logged in")

	member := m.CurrentMember()
	if member == nil {
		return reply(bot, chatID, "🌟 You are logged in! See your chores with /chores.")
	}
	return reply(bot, chatID,
		fmt.Sprintf("🌟 Hi *%s*! You have *%d* points.\nSee your chores with /chores.", escape(member.Name), member.Points))
}

// ---------------------------------------------------------------------------
// LogoutHandler – /logout
// ---------------------------------------------------------------------------

// LogoutHandler signs the sender out
type LogoutHandler struct {
	sessions *session.Registry
	logger   *logrus.Logger
}

// NewLogoutHandler creates a new LogoutHandler.
func NewLogoutHandler(sessions *session.Registry, logger *logrus.Logger) *LogoutHandler {
	return &LogoutHandler{sessions: sessions, logger: logger}
}

// Handle processes the /logout command.
func (h *LogoutHandler) Handle(ctx context.Context, bot telegram.Sender, message *tgbotapi.Message, args []string) error {
	key := SessionKey(message.From.ID)
	m, err := h.sessions.Get(ctx, key)
	if err != nil {
		return err
	}
	if !m.State().LoggedIn() {
		return reply(bot, message.Chat.ID, "ℹ️ You are not logged in.")
	}
	if err := m.Logout(ctx); err != nil {
		return replyError(bot, message.Chat.ID, err)
	}
	h.sessions.Forget(key)
	return reply(bot, message.Chat.ID, "👋 Logged out. See you soon!")
}

// ---------------------------------------------------------------------------
// WhoAmIHandler – /whoami
// ---------------------------------------------------------------------------

// WhoAmIHandler shows who the sender is signed in as
type WhoAmIHandler struct {
	sessions *session.Registry
	logger   *logrus.Logger
}

// NewWhoAmIHandler creates a new WhoAmIHandler.
func NewWhoAmIHandler(sessions *session.Registry, logger *logrus.Logger) *WhoAmIHandler {
	return &WhoAmIHandler{sessions: sessions, logger: logger}
}

// Handle processes the /whoami command.
func (h *WhoAmIHandler) Handle(ctx context.Context, bot telegram.Sender, message *tgbotapi.Message, args []string) error {
	m, member, err := actor(ctx, h.sessions, message)
	if err != nil {
		return err
	}
	return reply(bot, message.Chat.ID, describeSession(m.State(), member))
}

func describeSession(state session.State, member *models.FamilyMember) string {
	if !state.LoggedIn() {
		return notLoggedInText
	}

	var sb strings.Builder
	switch u := state.User.(type) {
	case models.ParentUser:
		sb.WriteString(fmt.Sprintf("👑 Signed in as parent *%s*\n", escape(u.Email)))
	case models.ChildUser:
		name := "child"
		if member != nil {
			name = member.Name
		}
		sb.WriteString(fmt.Sprintf("🧒 Signed in as *%s*\n", escape(name)))
	}
	if state.Family != nil {
		sb.WriteString(fmt.Sprintf("🏠 Family: *%s*", escape(state.Family.Name)))
		if state.User.UserRole() == models.RoleParent {
			sb.WriteString(fmt.Sprintf(" (code `%s`)", state.Family.Code))
		}
		sb.WriteString("\n")
	}
	if member != nil && member.IsChild() {
		sb.WriteString(fmt.Sprintf("⭐ Points: *%d*\n", member.Points))
	}
	return sb.String()
}
