package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/ChoreBoT/internal/service"
	"github.com/Kerhoff/ChoreBoT/internal/session"
	"github.com/Kerhoff/ChoreBoT/internal/telegram"
)

// Registrar is satisfied by telegram.Bot and telegram.Router
type Registrar interface {
	RegisterCommand(command string, handler telegram.CommandHandler)
	RegisterCallback(prefix string, handler telegram.CallbackHandler)
}

// Register wires every bot command. limiter may be nil.
func Register(r Registrar, sessions *session.Registry, svc *service.Service, limiter Limiter, logger *logrus.Logger) {
	child := NewChildHandler(sessions, limiter, logger)

	r.RegisterCommand("start", NewStartHandler(sessions, logger))
	r.RegisterCommand("help", NewHelpHandler(logger))
	r.RegisterCommand("register", NewRegisterHandler(sessions, logger))
	r.RegisterCommand("login", NewLoginHandler(sessions, limiter, logger))
	r.RegisterCommand("child", child)
	r.RegisterCallback(ChildCallbackPrefix, child)
	r.RegisterCommand("logout", NewLogoutHandler(sessions, logger))
	r.RegisterCommand("whoami", NewWhoAmIHandler(sessions, logger))

	r.RegisterCommand("family", NewFamilyHandler(sessions, svc, logger))
	r.RegisterCommand("addchild", NewAddChildHandler(sessions, logger))
	r.RegisterCommand("leaderboard", NewLeaderboardHandler(sessions, svc, logger))

	r.RegisterCommand("chores", NewChoresHandler(sessions, svc, logger))
	r.RegisterCommand("addchore", NewAddChoreHandler(sessions, svc, logger))
	r.RegisterCommand("done", NewDoneHandler(sessions, svc, logger))
	r.RegisterCommand("verify", NewVerifyHandler(sessions, svc, logger))

	r.RegisterCommand("rewards", NewRewardsHandler(sessions, svc, logger))
	r.RegisterCommand("addreward", NewAddRewardHandler(sessions, svc, logger))
	r.RegisterCommand("redeem", NewRedeemHandler(sessions, svc, logger))
	r.RegisterCommand("approve", NewApproveHandler(sessions, svc, logger))
}
