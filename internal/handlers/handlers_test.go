package handlers

import (
	"context"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kerhoff/ChoreBoT/internal/models"
	"github.com/Kerhoff/ChoreBoT/internal/repository"
	"github.com/Kerhoff/ChoreBoT/internal/repository/memory"
	"github.com/Kerhoff/ChoreBoT/internal/service"
	"github.com/Kerhoff/ChoreBoT/internal/session"
	"github.com/Kerhoff/ChoreBoT/internal/storage"
	"github.com/Kerhoff/ChoreBoT/internal/telegram"
	"github.com/Kerhoff/ChoreBoT/pkg/logger"
)

const (
	parentTG int64 = 100
	childTG  int64 = 200
)

type fakeSender struct {
	sent     []tgbotapi.MessageConfig
	requests []tgbotapi.Chattable
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

type stubLimiter struct{ allow bool }

func (s *stubLimiter) Allow(string) bool { return s.allow }

type env struct {
	b        *memory.Backend
	sessions *session.Registry
	router   *telegram.Router
	bot      *fakeSender
	limiter  *stubLimiter
}

func newEnv(t *testing.T) *env {
	t.Helper()
	l := logger.Discard()

	b := memory.NewBackend()
	store := storage.NewMemoryStore()
	sessions := session.NewRegistry(func(key string) (*session.Manager, error) {
		prefixed := storage.WithPrefix(store, key)
		return session.NewManager(session.Deps{
			Key:      key,
			Auth:     b.NewAuth(prefixed),
			Families: b.Families(),
			Members:  b.Members(),
			Storage:  prefixed,
			Logger:   l,
		}), nil
	})
	svc := service.New(l, b.Members(), b.Chores(), b.Rewards())

	e := &env{
		b:        b,
		sessions: sessions,
		router:   telegram.NewRouter(l),
		bot:      &fakeSender{},
		limiter:  &stubLimiter{allow: true},
	}
	Register(e.router, sessions, svc, e.limiter, l)
	return e
}

// send routes a command from a user and returns the last reply
func (e *env) send(t *testing.T, from int64, text string) string {
	t.Helper()
	n := strings.IndexByte(text, ' ')
	if n < 0 {
		n = len(text)
	}
	before := len(e.bot.sent)
	e.router.HandleMessage(context.Background(), e.bot, &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: from},
		Chat:      &tgbotapi.Chat{ID: from},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: n}},
	})
	require.Greater(t, len(e.bot.sent), before, "no reply to %s", text)
	return e.bot.sent[len(e.bot.sent)-1].Text
}

func (e *env) press(t *testing.T, from int64, data string) string {
	t.Helper()
	before := len(e.bot.sent)
	e.router.HandleCallbackQuery(context.Background(), e.bot, &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: from},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: from}},
		Data:    data,
	})
	require.Greater(t, len(e.bot.sent), before)
	return e.bot.sent[len(e.bot.sent)-1].Text
}

func (e *env) state(t *testing.T, from int64) session.State {
	t.Helper()
	m, err := e.sessions.Get(context.Background(), SessionKey(from))
	require.NoError(t, err)
	return m.State()
}

func (e *env) chores(t *testing.T, familyID string) []*models.Chore {
	t.Helper()
	chores, err := e.b.Chores().ListByFamily(context.Background(), familyID, repository.ChoreFilters{})
	require.NoError(t, err)
	return chores
}

// family registers a parent with one child, Emma, and logs the child in
func (e *env) family(t *testing.T) *models.Family {
	t.Helper()
	reply := e.send(t, parentTG, "/register a@b.com secret1 secret1 The Smiths")
	require.Contains(t, reply, "Family code")
	family := e.state(t, parentTG).Family
	require.NotNil(t, family)

	require.Contains(t, e.send(t, parentTG, "/addchild Emma 8"), "joined the family")
	require.Contains(t, e.send(t, childTG, "/child "+strings.ToLower(family.Code)+" emma"), "Hi *Emma*")
	return family
}

func TestRegisterDeletesPasswordMessage(t *testing.T) {
	e := newEnv(t)

	reply := e.send(t, parentTG, "/register a@b.com secret1 secret1 The Smiths")

	family := e.state(t, parentTG).Family
	require.NotNil(t, family)
	assert.Contains(t, reply, family.Code)
	assert.Contains(t, reply, "The Smiths")
	require.Len(t, e.bot.requests, 1)
	_, ok := e.bot.requests[0].(tgbotapi.DeleteMessageConfig)
	assert.True(t, ok)
}

func TestRegisterValidation(t *testing.T) {
	e := newEnv(t)

	reply := e.send(t, parentTG, "/register a@b.com secret1 secret2 Smiths")

	assert.Contains(t, reply, "Passwords do not match")
	assert.False(t, e.state(t, parentTG).LoggedIn())
}

func TestLoginFlow(t *testing.T) {
	e := newEnv(t)
	e.send(t, parentTG, "/register a@b.com secret1 secret1 Smiths")
	assert.Contains(t, e.send(t, parentTG, "/logout"), "Logged out")
	assert.Equal(t, 0, e.sessions.Len())
	assert.Contains(t, e.send(t, parentTG, "/logout"), "not logged in")

	assert.Contains(t, e.send(t, parentTG, "/login a@b.com wrong12"), "❌")
	assert.False(t, e.state(t, parentTG).LoggedIn())

	assert.Contains(t, e.send(t, parentTG, "/login a@b.com secret1"), "Welcome back")
	assert.True(t, e.state(t, parentTG).LoggedIn())
	assert.Contains(t, e.send(t, parentTG, "/whoami"), "a@b.com")
}

func TestLoginThrottled(t *testing.T) {
	e := newEnv(t)
	e.limiter.allow = false

	assert.Contains(t, e.send(t, parentTG, "/login a@b.com secret1"), "Too many attempts")
	assert.Contains(t, e.send(t, childTG, "/child SMI123"), "Too many attempts")
}

func TestChildPicker(t *testing.T) {
	e := newEnv(t)
	e.send(t, parentTG, "/register a@b.com secret1 secret1 Smiths")
	family := e.state(t, parentTG).Family
	e.send(t, parentTG, "/addchild Emma 8 2")
	e.send(t, parentTG, "/addchild Max")

	e.send(t, childTG, "/child "+family.Code)
	picker := e.bot.sent[len(e.bot.sent)-1]
	keyboard, ok := picker.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, keyboard.InlineKeyboard, 2)

	button := keyboard.InlineKeyboard[1][0]
	assert.Equal(t, "🧒 Max", button.Text)
	require.NotNil(t, button.CallbackData)
	assert.True(t, strings.HasPrefix(*button.CallbackData, ChildCallbackPrefix+":"+family.Code+":"))

	assert.Contains(t, e.press(t, childTG, *button.CallbackData), "Hi *Max*")
	state := e.state(t, childTG)
	require.True(t, state.LoggedIn())
	assert.Equal(t, models.RoleChild, state.User.UserRole())
}

func TestChildUnknownFamily(t *testing.T) {
	e := newEnv(t)

	assert.Contains(t, e.send(t, childTG, "/child ZZZ999"), "No family found")
	assert.Contains(t, e.send(t, childTG, "/child 12"), "❌")
	assert.Contains(t, e.send(t, childTG, "/child"), "family code")
}

func TestAddChildRequiresParent(t *testing.T) {
	e := newEnv(t)
	e.family(t)

	assert.Contains(t, e.send(t, childTG, "/addchild Max"), "Only parents")
	assert.Contains(t, e.send(t, parentTG, "/addchild Max 30"), "valid age")
}

func TestCommandsRequireLogin(t *testing.T) {
	e := newEnv(t)

	for _, cmd := range []string{"/chores", "/rewards", "/family", "/leaderboard", "/done abc", "/whoami"} {
		assert.Contains(t, e.send(t, childTG, cmd), "log in first", cmd)
	}
}

func TestChoreLifecycle(t *testing.T) {
	e := newEnv(t)
	family := e.family(t)

	assert.Contains(t, e.send(t, parentTG, "/addchore 10 Feed the cat @emma"), "Chore added")
	assert.Contains(t, e.send(t, parentTG, "/addchore 5 Walk the dog @Nobody"), "No child named")
	chores := e.chores(t, family.ID)
	require.Len(t, chores, 1)
	ref := shortRef(chores[0].ID)

	assert.Contains(t, e.send(t, childTG, "/chores"), "Feed the cat")
	assert.Contains(t, e.send(t, parentTG, "/verify "+ref), "can't be done")

	assert.Contains(t, e.send(t, parentTG, "/done "+ref), "not allowed")
	assert.Contains(t, e.send(t, childTG, "/done "+ref+" all bowls full"), "Great job")
	assert.Contains(t, e.send(t, childTG, "/done "+ref), "can't be done")

	reply := e.send(t, parentTG, "/verify "+ref)
	assert.Contains(t, reply, "Emma earned *10* points and now has *10*")

	assert.Contains(t, e.send(t, childTG, "/whoami"), "Points: *10*")
	assert.Contains(t, e.send(t, parentTG, "/leaderboard"), "🥇 Emma - *10* points")
	assert.Contains(t, e.send(t, parentTG, "/family"), "Completed chores: *1*")
}

func TestRewardRedemption(t *testing.T) {
	e := newEnv(t)
	family := e.family(t)

	assert.Contains(t, e.send(t, childTG, "/addreward 5 Ice cream"), "not allowed")
	assert.Contains(t, e.send(t, parentTG, "/addreward 5 Ice cream"), "Reward added")
	rewards, err := e.b.Rewards().ListByFamily(context.Background(), family.ID)
	require.NoError(t, err)
	require.Len(t, rewards, 1)
	ref := shortRef(rewards[0].ID)

	assert.Contains(t, e.send(t, childTG, "/redeem "+ref), "enough points")

	e.send(t, parentTG, "/addchore 8 Tidy room")
	chore := e.chores(t, family.ID)[0]
	e.send(t, childTG, "/done "+shortRef(chore.ID))
	e.send(t, parentTG, "/verify "+shortRef(chore.ID))

	assert.Contains(t, e.send(t, childTG, "/rewards"), "🔓")
	reply := e.send(t, childTG, "/redeem "+ref)
	assert.Contains(t, reply, "*3* points left")

	start := strings.LastIndex(reply, "`")
	code := reply[strings.LastIndex(reply[:start], "`")+1 : start]
	assert.Contains(t, e.send(t, parentTG, "/approve "+code), "approved")
	assert.Contains(t, e.send(t, parentTG, "/approve "+code), "can't be done")
	assert.Contains(t, e.send(t, parentTG, "/approve nope"), "Not found")
}

func TestParseChildArgs(t *testing.T) {
	tests := []struct {
		args   []string
		name   string
		age    string
		avatar int
		err    bool
	}{
		{args: []string{"Emma"}, name: "Emma"},
		{args: []string{"Emma", "8"}, name: "Emma", age: "8"},
		{args: []string{"Anna", "Lena", "8", "3"}, name: "Anna Lena", age: "8", avatar: 3},
		{args: []string{"Emma", "8", "9"}, err: true},
		{args: []string{"7"}, name: "7"},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, "_"), func(t *testing.T) {
			name, age, avatar, err := parseChildArgs(tt.args)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.age, age)
			if tt.avatar > 0 {
				assert.NotEmpty(t, avatar)
			} else {
				assert.Empty(t, avatar)
			}
		})
	}
}

func TestResolveRef(t *testing.T) {
	ids := []string{"abc12345-0000", "abd99999-0000", "fff00000-0000"}
	id := func(s string) string { return s }

	got, ok := resolveRef(ids, id, "ABC")
	assert.True(t, ok)
	assert.Equal(t, "abc12345-0000", got)

	_, ok = resolveRef(ids, id, "ab")
	assert.False(t, ok, "ambiguous")
	_, ok = resolveRef(ids, id, "zzz")
	assert.False(t, ok)
	_, ok = resolveRef(ids, id, " ")
	assert.False(t, ok)
}
