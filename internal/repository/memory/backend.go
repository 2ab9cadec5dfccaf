// Package memory is an in-process implementation of the remote data service.
// It backs local development runs and the tests of the layers above it, and
// supports injecting failures per operation.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Kerhoff/ChoreBoT/internal/models"
	"github.com/Kerhoff/ChoreBoT/internal/repository"
	"github.com/Kerhoff/ChoreBoT/internal/storage"
)

// Operation names accepted by Fail and Calls
const (
	OpSignUp         = "auth.sign_up"
	OpSignIn         = "auth.sign_in"
	OpSignOut        = "auth.sign_out"
	OpCurrentSession = "auth.current_session"
	OpDeleteUser     = "auth.delete_user"

	OpFamilyCreate    = "families.create"
	OpFamilyGetByID   = "families.get_by_id"
	OpFamilyGetByCode = "families.get_by_code"
	OpFamilyDelete    = "families.delete"

	OpMemberCreate       = "members.create"
	OpMemberGetByID      = "members.get_by_id"
	OpMemberGetByUser    = "members.get_by_user"
	OpMemberList         = "members.list"
	OpMemberAdjustPoints = "members.adjust_points"

	OpChoreCreate            = "chores.create"
	OpChoreGetByID           = "chores.get_by_id"
	OpChoreList              = "chores.list"
	OpChoreUpdateStatus      = "chores.update_status"
	OpChoreCreateCompletion  = "chores.create_completion"
	OpChoreGetCompletion     = "chores.get_completion"
	OpChorePendingCompletion = "chores.pending_completion"
	OpChoreMarkVerified      = "chores.mark_verified"

	OpRewardCreate           = "rewards.create"
	OpRewardGetByID          = "rewards.get_by_id"
	OpRewardList             = "rewards.list"
	OpRewardCreateRedemption = "rewards.create_redemption"
	OpRewardGetRedemption    = "rewards.get_redemption"
	OpRewardMarkApproved     = "rewards.mark_approved"
)

type account struct {
	id       string
	email    string
	password string
}

// Backend holds every table of the data service in memory
type Backend struct {
	mu  sync.Mutex
	now func() time.Time
	ttl time.Duration

	accounts map[string]*account // by email
	tokens   map[string]*models.AuthSession

	families    map[string]*models.Family
	members     map[string]*models.FamilyMember
	memberOrder []string
	chores      map[string]*models.Chore
	choreOrder  []string
	completions map[string]*models.ChoreCompletion
	rewards     map[string]*models.Reward
	rewardOrder []string
	redemptions map[string]*models.RewardRedemption

	faults map[string]error
	calls  map[string]int
}

// NewBackend creates an empty backend
func NewBackend() *Backend {
	return &Backend{
		now:         time.Now,
		ttl:         24 * time.Hour,
		accounts:    make(map[string]*account),
		tokens:      make(map[string]*models.AuthSession),
		families:    make(map[string]*models.Family),
		members:     make(map[string]*models.FamilyMember),
		chores:      make(map[string]*models.Chore),
		completions: make(map[string]*models.ChoreCompletion),
		rewards:     make(map[string]*models.Reward),
		redemptions: make(map[string]*models.RewardRedemption),
		faults:      make(map[string]error),
		calls:       make(map[string]int),
	}
}

// Fail makes every subsequent call of op return err until Recover is called
func (b *Backend) Fail(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults[op] = err
}

// Recover clears an injected failure
func (b *Backend) Recover(op string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.faults, op)
}

// Calls returns how many times op was invoked
func (b *Backend) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// ResetCalls zeroes every call counter
func (b *Backend) ResetCalls() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = make(map[string]int)
}

// enter records a call and returns the injected failure, if any. Callers must
// hold b.mu.
func (b *Backend) enter(op string) error {
	b.calls[op]++
	return b.faults[op]
}

func newID() string {
	return uuid.NewString()
}

// NewAuth returns a credential client bound to one session's storage
func (b *Backend) NewAuth(store storage.Store) repository.AuthRepository {
	return &authRepository{b: b, store: store}
}

// Families returns the family table
func (b *Backend) Families() repository.FamilyRepository { return &familyRepository{b: b} }

// Members returns the family member table
func (b *Backend) Members() repository.MemberRepository { return &memberRepository{b: b} }

// Chores returns the chore and completion tables
func (b *Backend) Chores() repository.ChoreRepository { return &choreRepository{b: b} }

// Rewards returns the reward and redemption tables
func (b *Backend) Rewards() repository.RewardRepository { return &rewardRepository{b: b} }
