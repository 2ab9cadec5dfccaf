package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/ChoreBoT/internal/models"
	"github.com/Kerhoff/ChoreBoT/internal/repository"
	"github.com/Kerhoff/ChoreBoT/internal/service"
	"github.com/Kerhoff/ChoreBoT/internal/session"
	"github.com/Kerhoff/ChoreBoT/internal/telegram"
)

// statusEmoji returns an emoji representing the chore status.
func statusEmoji(s models.ChoreStatus) string {
	switch s {
	case models.ChoreStatusPending:
		return "⏳"
	case models.ChoreStatusCompleted:
		return "✅"
	case models.ChoreStatusVerified:
		return "🏅"
	default:
		return "⬜"
	}
}

func choreID(c *models.Chore) string { return c.ID }

// findChore resolves a chore reference within the member's family
func findChore(ctx context.Context, svc *service.Service, familyID, ref string) (*models.Chore, bool, error) {
	chores, err := svc.ListChores(ctx, familyID, repository.ChoreFilters{})
	if err != nil {
		return nil, false, err
	}
	chore, ok := resolveRef(chores, choreID, ref)
	return chore, ok, nil
}

// ---------------------------------------------------------------------------
// ChoresHandler – /chores
// ---------------------------------------------------------------------------

// ChoresHandler lists the family's chores. Children only see chores they
// may complete.
type ChoresHandler struct {
	sessions *session.Registry
	svc      *service.Service
	logger   *logrus.Logger
}

// NewChoresHandler creates a new ChoresHandler.
func NewChoresHandler(sessions *session.Registry, svc *service.Service, logger *logrus.Logger) *ChoresHandler {
	return &ChoresHandler{sessions: sessions, svc: svc, logger: logger}
}

// Handle processes the /chores command.
func (h *ChoresHandler) Handle(ctx context.Context, bot telegram.Sender, message *tgbotapi.Message, args []string) error {
	m, member, err := actor(ctx, h.sessions, message)
	if err != nil {
		return err
	}
	if member == nil {
		return reply(bot, message.Chat.ID, notLoggedInText)
	}

	chores, err := h.svc.ListChores(ctx, member.FamilyID, repository.ChoreFilters{})
	if err != nil {
		return err
	}
	if member.IsChild() {
		visible := chores[:0]
		for _, c := range chores {
			if c.AssignableTo(member.ID) {
				visible = append(visible, c)
			}
		}
		chores = visible
	}

	if len(chores) == 0 {
		text := "📋 *No chores yet!*"
		if member.Role == models.RoleParent {
			text += "\n\nAdd one with `/addchore 10 Feed the cat`"
		}
		return reply(bot, message.Chat.ID, text)
	}

	members := m.State().Members
	var sb strings.Builder
	sb.WriteString("📋 *Chores*\n\n")
	for _, c := range chores {
		sb.WriteString(fmt.Sprintf("%s `%s` %s - ⭐ %d", statusEmoji(c.Status), shortRef(c.ID), escape(c.Title), c.Points))
		if c.AssignedTo != nil {
			sb.WriteString(fmt.Sprintf(" _(%s)_", escape(memberName(members, *c.AssignedTo))))
		}
		if c.DueDate != nil {
			sb.WriteString(fmt.Sprintf("  📅 _%s_", c.DueDate.Format("2006-01-02")))
		}
		if c.IsOverdue() {
			sb.WriteString(" ⚠️")
		}
		sb.WriteString("\n")
	}
	if member.IsChild() {
		sb.WriteString("\n_Finished one? Send_ `/done <ref>`")
	} else {
		sb.WriteString("\n_Verify finished chores with_ `/verify <ref>`")
	}

	h.logger.WithFields(logrus.Fields{
		"family_id": member.FamilyID,
		"count":     len(chores),
	}).Info("Listed chores")

	return reply(bot, message.Chat.ID, sb.String())
}

// ---------------------------------------------------------------------------
// AddChoreHandler – /addchore <points> <title> [@child]
// ---------------------------------------------------------------------------

// AddChoreHandler creates a chore, optionally assigned to a child by name
type AddChoreHandler struct {
	sessions *session.Registry
	svc      *service.Service
	logger   *logrus.Logger
}

// NewAddChoreHandler creates a new AddChoreHandler.
func NewAddChoreHandler(sessions *session.Registry, svc *service.Service, logger *logrus.Logger) *AddChoreHandler {
	return &AddChoreHandler{sessions: sessions, svc: svc, logger: logger}
}

// Handle processes the /addchore command.
func (h *AddChoreHandler) Handle(ctx context.Context, bot telegram.Sender, message *tgbotapi.Message, args []string) error {
	const usage = "❌ Usage: `/addchore <points> <title> [@child]`\nExample: `/addchore 10 Feed the cat @Emma`"
	if len(args) < 2 {
		return reply(bot, message.Chat.ID, usage)
	}
	points, err := strconv.Atoi(args[0])
	if err != nil {
		return reply(bot, message.Chat.ID, usage)
	}

	m, member, err := actor(ctx, h.sessions, message)
	if err != nil {
		return err
	}
	if member == nil {
		return reply(bot, message.Chat.ID, notLoggedInText)
	}

	in := service.ChoreInput{Points: points}
	words := args[1:]
	if last := words[len(words)-1]; strings.HasPrefix(last, "@") {
		name := strings.TrimPrefix(last, "@")
		var child *models.FamilyMember
		for _, candidate := range m.State().Members {
			if candidate.IsChild() && strings.EqualFold(candidate.Name, name) {
				child = candidate
				break
			}
		}
		if child == nil {
			return reply(bot, message.Chat.ID, fmt.Sprintf("❓ No child named *%s* in this family.", escape(name)))
		}
		in.AssignedTo = &child.ID
		words = words[:len(words)-1]
	}
	in.Title = strings.Join(words, " ")

	chore, err := h.svc.CreateChore(ctx, member, in)
	if err != nil {
		return replyError(bot, message.Chat.ID, err)
	}

	return reply(bot, message.Chat.ID,
		fmt.Sprintf("✅ *Chore added!*\n\n⏳ `%s` %s - ⭐ %d", shortRef(chore.ID), escape(chore.Title), chore.Points))
}

// ---------------------------------------------------------------------------
// DoneHandler – /done <ref> [notes]
// ---------------------------------------------------------------------------

// DoneHandler lets a child mark a chore as done
type DoneHandler struct {
	sessions *session.Registry
	svc      *service.Service
	logger   *logrus.Logger
}

// NewDoneHandler creates a new DoneHandler.
func NewDoneHandler(sessions *session.Registry, svc *service.Service, logger *logrus.Logger) *DoneHandler {
	return &DoneHandler{sessions: sessions, svc: svc, logger: logger}
}

// Handle processes the /done command.
func (h *DoneHandler) Handle(ctx context.Context, bot telegram.Sender, message *tgbotapi.Message, args []string) error {
	if len(args) == 0 {
		return reply(bot, message.Chat.ID, "❌ Please provide a chore reference.\nUsage: `/done 1a2b3c4d`")
	}

	_, member, err := actor(ctx, h.sessions, message)
	if err != nil {
		return err
	}
	if member == nil {
		return reply(bot, message.Chat.ID, notLoggedInText)
	}

	chore, ok, err := findChore(ctx, h.svc, member.FamilyID, args[0])
	if err != nil {
		return err
	}
	if !ok {
		return reply(bot, message.Chat.ID, "❓ No chore matches that reference. See /chores.")
	}

	if _, err := h.svc.CompleteChore(ctx, member, chore.ID, strings.Join(args[1:], " ")); err != nil {
		return replyError(bot, message.Chat.ID, err)
	}

	return reply(bot, message.Chat.ID,
		fmt.Sprintf("🙌 Great job! *%s* is waiting for a parent to verify it.", escape(chore.Title)))
}

// ---------------------------------------------------------------------------
// VerifyHandler – /verify <ref>
// ---------------------------------------------------------------------------

// VerifyHandler lets a parent verify a completed chore, awarding its points
type VerifyHandler struct {
	sessions *session.Registry
	svc      *service.Service
	logger   *logrus.Logger
}

// NewVerifyHandler creates a new VerifyHandler.
func NewVerifyHandler(sessions *session.Registry, svc *service.Service, logger *logrus.Logger) *VerifyHandler {
	return &VerifyHandler{sessions: sessions, svc: svc, logger: logger}
}

// Handle processes the /verify command.
func (h *VerifyHandler) Handle(ctx context.Context, bot telegram.Sender, message *tgbotapi.Message, args []string) error {
	if len(args) == 0 {
		return reply(bot, message.Chat.ID, "❌ Please provide a chore reference.\nUsage: `/verify 1a2b3c4d`")
	}

	m, member, err := actor(ctx, h.sessions, message)
	if err != nil {
		return err
	}
	if member == nil {
		return reply(bot, message.Chat.ID, notLoggedInText)
	}

	chore, ok, err := findChore(ctx, h.svc, member.FamilyID, args[0])
	if err != nil {
		return err
	}
	if !ok {
		return reply(bot, message.Chat.ID, "❓ No chore matches that reference. See /chores.")
	}

	completion, balance, err := h.svc.VerifyChore(ctx, member, chore.ID)
	if err != nil {
		return replyError(bot, message.Chat.ID, err)
	}

	name := memberName(m.State().Members, completion.CompletedBy)
	return reply(bot, message.Chat.ID,
		fmt.Sprintf("🏅 *%s* verified! %s earned *%d* points and now has *%d*.",
			escape(chore.Title), escape(name), chore.Points, balance))
}
