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
)

func rewardID(r *models.Reward) string { return r.ID }

// ---------------------------------------------------------------------------
// RewardsHandler – /rewards
// ---------------------------------------------------------------------------

// RewardsHandler lists the family's rewards
type RewardsHandler struct {
	sessions *session.Registry
	svc      *service.Service
	logger   *logrus.Logger
}

// NewRewardsHandler creates a new RewardsHandler.
func NewRewardsHandler(sessions *session.Registry, svc *service.Service, logger *logrus.Logger) *RewardsHandler {
	return &RewardsHandler{sessions: sessions, svc: svc, logger: logger}
}

// Handle processes the /rewards command.
func (h *RewardsHandler) Handle(ctx context.Context, bot telegram.Sender, message *tgbotapi.Message, args []string) error {
	_, member, err := actor(ctx, h.sessions, message)
	if err != nil {
		return err
	}
	if member == nil {
		return reply(bot, message.Chat.ID, notLoggedInText)
	}

	rewards, err := h.svc.ListRewards(ctx, member.FamilyID)
	if err != nil {
		return err
	}
	if len(rewards) == 0 {
		text := "🎁 *No rewards yet!*"
		if member.Role == models.RoleParent {
			text += "\n\nAdd one with `/addreward 50 Movie night`"
		}
		return reply(bot, message.Chat.ID, text)
	}

	var sb strings.Builder
	sb.WriteString("🎁 *Rewards*\n\n")
	for _, r := range rewards {
		mark := ""
		if member.IsChild() && member.Points >= r.Cost {
			mark = " 🔓"
		}
		sb.WriteString(fmt.Sprintf("`%s` %s - 💰 %d%s\n", shortRef(r.ID), escape(r.Title), r.Cost, mark))
	}
	if member.IsChild() {
		sb.WriteString(fmt.Sprintf("\n_You have_ *%d* _points. Redeem with_ `/redeem <ref>`", member.Points))
	}
	return reply(bot, message.Chat.ID, sb.String())
}

// ---------------------------------------------------------------------------
// AddRewardHandler – /addreward <cost> <title>
// ---------------------------------------------------------------------------

// AddRewardHandler creates a reward
type AddRewardHandler struct {
	sessions *session.Registry
	svc      *service.Service
	logger   *logrus.Logger
}

// NewAddRewardHandler creates a new AddRewardHandler.
func NewAddRewardHandler(sessions *session.Registry, svc *service.Service, logger *logrus.Logger) *AddRewardHandler {
	return &AddRewardHandler{sessions: sessions, svc: svc, logger: logger}
}

// Handle processes the /addreward command.
func (h *AddRewardHandler) Handle(ctx context.Context, bot telegram.Sender, message *tgbotapi.Message, args []string) error {
	const usage = "❌ Usage: `/addreward <cost> <title>`\nExample: `/addreward 50 Movie night`"
	if len(args) < 2 {
		return reply(bot, message.Chat.ID, usage)
	}
	cost, err := strconv.Atoi(args[0])
	if err != nil {
		return reply(bot, message.Chat.ID, usage)
	}

	_, member, err := actor(ctx, h.sessions, message)
	if err != nil {
		return err
	}
	if member == nil {
		return reply(bot, message.Chat.ID, notLoggedInText)
	}

	reward, err := h.svc.CreateReward(ctx, member, strings.Join(args[1:], " "), "", cost)
	if err != nil {
		return replyError(bot, message.Chat.ID, err)
	}
	return reply(bot, message.Chat.ID,
		fmt.Sprintf("✅ *Reward added!*\n\n`%s` %s - 💰 %d", shortRef(reward.ID), escape(reward.Title), reward.Cost))
}

// ---------------------------------------------------------------------------
// RedeemHandler – /redeem <ref>
// ---------------------------------------------------------------------------

// RedeemHandler spends a child's points on a reward
type RedeemHandler struct {
	sessions *session.Registry
	svc      *service.Service
	logger   *logrus.Logger
}

// NewRedeemHandler creates a new RedeemHandler.
func NewRedeemHandler(sessions *session.Registry, svc *service.Service, logger *logrus.Logger) *RedeemHandler {
	return &RedeemHandler{sessions: sessions, svc: svc, logger: logger}
}

// Handle processes the /redeem command.
func (h *RedeemHandler) Handle(ctx context.Context, bot telegram.Sender, message *tgbotapi.Message, args []string) error {
	if len(args) == 0 {
		return reply(bot, message.Chat.ID, "❌ Please provide a reward reference.\nUsage: `/redeem 1a2b3c4d`")
	}

	_, member, err := actor(ctx, h.sessions, message)
	if err != nil {
		return err
	}
	if member == nil {
		return reply(bot, message.Chat.ID, notLoggedInText)
	}

	rewards, err := h.svc.ListRewards(ctx, member.FamilyID)
	if err != nil {
		return err
	}
	reward, ok := resolveRef(rewards, rewardID, args[0])
	if !ok {
		return reply(bot, message.Chat.ID, "❓ No reward matches that reference. See /rewards.")
	}

	redemption, balance, err := h.svc.RedeemReward(ctx, member, reward.ID)
	if err != nil {
		return replyError(bot, message.Chat.ID, err)
	}

	return reply(bot, message.Chat.ID,
		fmt.Sprintf("🎉 You redeemed *%s*! You have *%d* points left.\nShow a parent this code: `%s`",
			escape(reward.Title), balance, redemption.ID))
}

// ---------------------------------------------------------------------------
// ApproveHandler – /approve <redemption id>
// ---------------------------------------------------------------------------

// ApproveHandler lets a parent confirm a redeemed reward was handed out
type ApproveHandler struct {
	sessions *session.Registry
	svc      *service.Service
	logger   *logrus.Logger
}

// NewApproveHandler creates a new ApproveHandler.
func NewApproveHandler(sessions *session.Registry, svc *service.Service, logger *logrus.Logger) *ApproveHandler {
	return &ApproveHandler{sessions: sessions, svc: svc, logger: logger}
}

// Handle processes the /approve command.
func (h *ApproveHandler) Handle(ctx context.Context, bot telegram.Sender, message *tgbotapi.Message, args []string) error {
	if len(args) != 1 {
		return reply(bot, message.Chat.ID, "❌ Usage: `/approve <redemption code>`")
	}

	_, member, err := actor(ctx, h.sessions, message)
	if err != nil {
		return err
	}
	if member == nil {
		return reply(bot, message.Chat.ID, notLoggedInText)
	}

	if err := h.svc.ApproveRedemption(ctx, member, args[0]); err != nil {
		return replyError(bot, message.Chat.ID, err)
	}
	return reply(bot, message.Chat.ID, "✅ Reward approved. Enjoy!")
}
