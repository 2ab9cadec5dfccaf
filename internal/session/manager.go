// Package session holds the per-session state of a signed-in parent or child
// and mediates every change to it through the remote data service.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/ChoreBoT/internal/familycode"
	"github.com/Kerhoff/ChoreBoT/internal/models"
	"github.com/Kerhoff/ChoreBoT/internal/repository"
	"github.com/Kerhoff/ChoreBoT/internal/storage"
	"github.com/Kerhoff/ChoreBoT/pkg/logger"
)

// Recorder observes operation outcomes
type Recorder interface {
	ObserveOperation(op string, err error, d time.Duration)
	ObserveCodeAttempts(n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, error, time.Duration) {}
func (nopRecorder) ObserveCodeAttempts(int)                       {}

// Deps wires a Manager to its collaborators. Auth must keep its tokens in
// the same Storage.
type Deps struct {
	Key      string
	Auth     repository.AuthRepository
	Families repository.FamilyRepository
	Members  repository.MemberRepository
	Storage  storage.Store
	Codes    familycode.Generator
	Policy   familycode.Policy
	Logger   *logrus.Logger
	Recorder Recorder
}

// State is a snapshot of a session
type State struct {
	User    models.User
	Family  *models.Family
	Members []*models.FamilyMember
	Loading bool
	Error   string
}

// LoggedIn reports whether a user is signed in
func (s State) LoggedIn() bool {
	return s.User != nil
}

// Manager owns the state of one session. Operations are expected to be
// invoked one at a time; the mutex only keeps snapshots consistent.
type Manager struct {
	auth     repository.AuthRepository
	families repository.FamilyRepository
	members  repository.MemberRepository
	storage  storage.Store
	codes    familycode.Generator
	policy   familycode.Policy
	logger   *logrus.Entry
	recorder Recorder

	mu    sync.Mutex
	state State
}

// NewManager creates a logged-out manager
func NewManager(d Deps) *Manager {
	if d.Codes == nil {
		d.Codes = familycode.NewRandom(nil)
	}
	if d.Policy.MaxAttempts == 0 {
		d.Policy = familycode.DefaultPolicy()
	}
	if d.Logger == nil {
		d.Logger = logger.Discard()
	}
	if d.Recorder == nil {
		d.Recorder = nopRecorder{}
	}

	return &Manager{
		auth:     d.Auth,
		families: d.Families,
		members:  d.Members,
		storage:  d.Storage,
		codes:    d.Codes,
		policy:   d.Policy,
		logger:   d.Logger.WithField("session", d.Key),
		recorder: d.Recorder,
	}
}

// State returns a copy of the current state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state
	s.Members = append([]*models.FamilyMember(nil), m.state.Members...)
	return s
}

// CurrentMember returns the roster entry of the signed-in user, if any
func (m *Manager) CurrentMember() *models.FamilyMember {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, member := range m.state.Members {
		if member.Owns(m.state.User) {
			return member
		}
	}
	return nil
}

// ClearError clears the error field
func (m *Manager) ClearError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Error = ""
}

// run applies the loading and error contract around fn
func (m *Manager) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()

	m.mu.Lock()
	m.state.Error = ""
	m.state.Loading = true
	m.mu.Unlock()

	err := fn(ctx)

	m.mu.Lock()
	m.state.Loading = false
	if err != nil {
		m.state.Error = UserMessage(err)
	}
	m.mu.Unlock()

	m.recorder.ObserveOperation(op, err, time.Since(start))
	if err != nil {
		m.logger.WithFields(logrus.Fields{
			"operation": op,
		}).WithError(err).Warn("Session operation failed")
	}
	return err
}

func (m *Manager) setSession(user models.User, family *models.Family, members []*models.FamilyMember) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.User = user
	m.state.Family = family
	m.state.Members = members
}

func (m *Manager) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.User = nil
	m.state.Family = nil
	m.state.Members = nil
}

func (m *Manager) current() (models.User, *models.Family) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.User, m.state.Family
}
