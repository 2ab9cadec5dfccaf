package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/ChoreBoT/internal/models"
	"github.com/Kerhoff/ChoreBoT/internal/service"
	"github.com/Kerhoff/ChoreBoT/internal/session"
	"github.com/Kerhoff/ChoreBoT/internal/telegram"
	"github.com/Kerhoff/ChoreBoT/internal/validation"
)

// ---------------------------------------------------------------------------
// FamilyHandler – /family
// ---------------------------------------------------------------------------

// FamilyHandler shows the current family and its roster
type FamilyHandler struct {
	sessions *session.Registry
	svc      *service.Service
	logger   *logrus.Logger
}

// NewFamilyHandler creates a new FamilyHandler.
func NewFamilyHandler(sessions *session.Registry, svc *service.Service, logger *logrus.Logger) *FamilyHandler {
	return &FamilyHandler{sessions: sessions, svc: svc, logger: logger}
}

// Handle processes the /family command.
func (h *FamilyHandler) Handle(ctx context.Context, bot telegram.Sender, message *tgbotapi.Message, args []string) error {
	m, err := h.sessions.Get(ctx, SessionKey(message.From.ID))
	if err != nil {
		return err
	}
	state := m.State()
	if !state.LoggedIn() {
		return reply(bot, message.Chat.ID, notLoggedInText)
	}
	if state.Family == nil {
		return reply(bot, message.Chat.ID, noFamilyText)
	}

	if err := m.RefreshMembers(ctx); err != nil {
		h.logger.WithField("family_id", state.Family.ID).Warnf("Failed to refresh members: %v", err)
	}
	state = m.State()

	overview, err := h.svc.Overview(ctx, state.Family.ID)
	if err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🏠 *%s*\n", escape(state.Family.Name)))
	if state.User.UserRole() == models.RoleParent {
		sb.WriteString(fmt.Sprintf("Family code: `%s`\n", state.Family.Code))
	}
	sb.WriteString("\n*Members:*\n")
	for _, member := range state.Members {
		sb.WriteString(fmt.Sprintf("%s %s", roleEmoji(member.Role), escape(member.Name)))
		if member.IsChild() {
			if member.Age != nil {
				sb.WriteString(fmt.Sprintf(", %d", *member.Age))
			}
			sb.WriteString(fmt.Sprintf(" - ⭐ %d", member.Points))
		}
		sb.WriteString("\n")
	}
	sb.WriteString(fmt.Sprintf("\n📋 Active chores: *%d*\n✅ Completed chores: *%d*\n⭐ Total points: *%d*",
		overview.ActiveChores, overview.CompletedChores, overview.TotalPoints))

	return reply(bot, message.Chat.ID, sb.String())
}

// ---------------------------------------------------------------------------
// AddChildHandler – /addchild <name> [age] [avatar]
// ---------------------------------------------------------------------------

// AddChildHandler adds a child profile to the parent's family
type AddChildHandler struct {
	sessions *session.Registry
	logger   *logrus.Logger
}

// NewAddChildHandler creates a new AddChildHandler.
func NewAddChildHandler(sessions *session.Registry, logger *logrus.Logger) *AddChildHandler {
	return &AddChildHandler{sessions: sessions, logger: logger}
}

// parseChildArgs splits "/addchild" arguments into name, age and avatar.
// Trailing numbers are the age and then the avatar number.
func parseChildArgs(args []string) (name, age, avatar string, err error) {
	rest := args
	var nums []string
	for len(rest) > 1 && len(nums) < 2 {
		last := rest[len(rest)-1]
		if _, convErr := strconv.Atoi(last); convErr != nil {
			break
		}
		nums = append([]string{last}, nums...)
		rest = rest[:len(rest)-1]
	}
	name = strings.Join(rest, " ")
	if len(nums) > 0 {
		age = nums[0]
	}
	if len(nums) > 1 {
		n, _ := strconv.Atoi(nums[1])
		if n < 1 || n > len(validation.Avatars) {
			return "", "", "", fmt.Errorf("avatar must be between 1 and %d", len(validation.Avatars))
		}
		avatar = validation.Avatars[n-1]
	}
	return name, age, avatar, nil
}

// Handle processes the /addchild command.
func (h *AddChildHandler) Handle(ctx context.Context, bot telegram.Sender, message *tgbotapi.Message, args []string) error {
	if len(args) == 0 {
		return reply(bot, message.Chat.ID, "❌ Please provide a name.\nUsage: `/addchild Emma 8`")
	}

	m, member, err := actor(ctx, h.sessions, message)
	if err != nil {
		return err
	}
	if member == nil {
		return reply(bot, message.Chat.ID, notLoggedInText)
	}
	if member.Role != models.RoleParent {
		return reply(bot, message.Chat.ID, "🚫 Only parents can add children.")
	}

	name, ageText, avatar, err := parseChildArgs(args)
	if err != nil {
		return reply(bot, message.Chat.ID, "❌ "+escape(err.Error()))
	}
	age, err := validation.Child(name, ageText, avatar)
	if err != nil {
		return replyError(bot, message.Chat.ID, err)
	}

	var avatarPtr *string
	if avatar != "" {
		avatarPtr = &avatar
	}
	child, err := m.AddFamilyMember(ctx, name, age, avatarPtr)
	if err != nil {
		return replyError(bot, message.Chat.ID, err)
	}

	h.logger.WithFields(logrus.Fields{
		"family_id": child.FamilyID,
		"member_id": child.ID,
	}).Info("Child added")

	family := m.State().Family
	return reply(bot, message.Chat.ID,
		fmt.Sprintf("✅ *%s* joined the family!\nThey can log in with `/child %s`.", escape(child.Name), family.Code))
}

// ---------------------------------------------------------------------------
// LeaderboardHandler – /leaderboard
// ---------------------------------------------------------------------------

// LeaderboardHandler ranks the family's children by points
type LeaderboardHandler struct {
	sessions *session.Registry
	svc      *service.Service
	logger   *logrus.Logger
}

// NewLeaderboardHandler creates a new LeaderboardHandler.
func NewLeaderboardHandler(sessions *session.Registry, svc *service.Service, logger *logrus.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{sessions: sessions, svc: svc, logger: logger}
}

var medals = []string{"🥇", "🥈", "🥉"}

// Handle processes the /leaderboard command.
func (h *LeaderboardHandler) Handle(ctx context.Context, bot telegram.Sender, message *tgbotapi.Message, args []string) error {
	_, member, err := actor(ctx, h.sessions, message)
	if err != nil {
		return err
	}
	if member == nil {
		return reply(bot, message.Chat.ID, notLoggedInText)
	}

	children, err := h.svc.Leaderboard(ctx, member.FamilyID)
	if err != nil {
		return err
	}
	if len(children) == 0 {
		return reply(bot, message.Chat.ID, "🏆 No children in this family yet. Add one with /addchild.")
	}

	var sb strings.Builder
	sb.WriteString("🏆 *Leaderboard*\n\n")
	for i, child := range children {
		place := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			place = medals[i]
		}
		sb.WriteString(fmt.Sprintf("%s %s - *%d* points\n", place, escape(child.Name), child.Points))
	}
	return reply(bot, message.Chat.ID, sb.String())
}
