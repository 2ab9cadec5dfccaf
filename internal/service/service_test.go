package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kerhoff/ChoreBoT/internal/models"
	"github.com/Kerhoff/ChoreBoT/internal/repository"
	"github.com/Kerhoff/ChoreBoT/internal/repository/memory"
	"github.com/Kerhoff/ChoreBoT/internal/validation"
	"github.com/Kerhoff/ChoreBoT/pkg/logger"
)

var errUnavailable = errors.New("service unavailable")

type fixture struct {
	b      *memory.Backend
	svc    *Service
	parent *models.FamilyMember
	anna   *models.FamilyMember
	ben    *models.FamilyMember
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	b := memory.NewBackend()
	l := logger.Discard()

	family := b.SeedFamily("Smiths", "SMI123")
	userID := "parent-user"
	members := b.Members()

	parent, err := members.Create(ctx, &models.FamilyMember{FamilyID: family.ID, UserID: &userID, Name: "Parent", Role: models.RoleParent})
	require.NoError(t, err)
	anna, err := members.Create(ctx, &models.FamilyMember{FamilyID: family.ID, Name: "Anna", Role: models.RoleChild})
	require.NoError(t, err)
	ben, err := members.Create(ctx, &models.FamilyMember{FamilyID: family.ID, Name: "Ben", Role: models.RoleChild})
	require.NoError(t, err)

	svc := New(l, members, b.Chores(), b.Rewards())
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return &fixture{b: b, svc: svc, parent: parent, anna: anna, ben: ben}
}

func (f *fixture) balance(t *testing.T, memberID string) int {
	t.Helper()
	m, err := f.b.Members().GetByID(context.Background(), memberID)
	require.NoError(t, err)
	require.NotNil(t, m)
	return m.Points
}

func TestCreateChore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	chore, err := f.svc.CreateChore(ctx, f.parent, ChoreInput{Title: " Dishes ", Points: 5, AssignedTo: &f.anna.ID})
	require.NoError(t, err)
	assert.Equal(t, "Dishes", chore.Title)
	assert.Equal(t, models.ChoreStatusPending, chore.Status)
	assert.Equal(t, f.parent.ID, chore.CreatedBy)
	assert.Nil(t, chore.Description)

	_, err = f.svc.CreateChore(ctx, f.anna, ChoreInput{Title: "Dishes", Points: 5})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.CreateChore(ctx, f.parent, ChoreInput{Title: "", Points: 0})
	var verr *validation.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = f.svc.CreateChore(ctx, f.parent, ChoreInput{Title: "Dishes", Points: 5, AssignedTo: &f.parent.ID})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChoreLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	chore, err := f.svc.CreateChore(ctx, f.parent, ChoreInput{Title: "Dishes", Points: 5, AssignedTo: &f.anna.ID})
	require.NoError(t, err)

	_, err = f.svc.CompleteChore(ctx, f.ben, chore.ID, "")
	assert.ErrorIs(t, err, ErrForbidden)

	_, _, err = f.svc.VerifyChore(ctx, f.parent, chore.ID)
	assert.ErrorIs(t, err, ErrConflict)

	completion, err := f.svc.CompleteChore(ctx, f.anna, chore.ID, "all clean")
	require.NoError(t, err)
	assert.Equal(t, "all clean", *completion.Notes)

	_, err = f.svc.CompleteChore(ctx, f.anna, chore.ID, "")
	assert.ErrorIs(t, err, ErrConflict)

	_, _, err = f.svc.VerifyChore(ctx, f.anna, chore.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	verified, balance, err := f.svc.VerifyChore(ctx, f.parent, chore.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, balance)
	assert.Equal(t, 5, f.balance(t, f.anna.ID))
	assert.True(t, verified.IsVerified())
	assert.Equal(t, f.parent.ID, *verified.VerifiedBy)

	stored, err := f.b.Chores().GetByID(ctx, chore.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChoreStatusVerified, stored.Status)

	_, _, err = f.svc.VerifyChore(ctx, f.parent, chore.ID)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 5, f.balance(t, f.anna.ID))
}

func TestVerifyChoreRefundsWhenVerificationFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	chore, err := f.svc.CreateChore(ctx, f.parent, ChoreInput{Title: "Dishes", Points: 5})
	require.NoError(t, err)
	_, err = f.svc.CompleteChore(ctx, f.ben, chore.ID, "")
	require.NoError(t, err)

	f.b.Fail(memory.OpChoreMarkVerified, errUnavailable)
	_, _, err = f.svc.VerifyChore(ctx, f.parent, chore.ID)
	assert.ErrorIs(t, err, errUnavailable)
	assert.Equal(t, 0, f.balance(t, f.ben.ID))
}

func TestChoreFromOtherFamily(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other := f.b.SeedFamily("Others", "OTH123")
	stranger, err := f.b.Members().Create(ctx, &models.FamilyMember{FamilyID: other.ID, Name: "Zed", Role: models.RoleChild})
	require.NoError(t, err)

	chore, err := f.svc.CreateChore(ctx, f.parent, ChoreInput{Title: "Dishes", Points: 5})
	require.NoError(t, err)

	_, err = f.svc.CompleteChore(ctx, stranger, chore.ID, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedeemReward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reward, err := f.svc.CreateReward(ctx, f.parent, "Ice cream", "", 10)
	require.NoError(t, err)
	_, err = f.svc.CreateReward(ctx, f.anna, "Candy", "", 1)
	assert.ErrorIs(t, err, ErrForbidden)

	_, balance, err := f.svc.RedeemReward(ctx, f.anna, reward.ID)
	assert.ErrorIs(t, err, repository.ErrInsufficientPoints)
	assert.Equal(t, 0, balance)

	_, err = f.b.Members().AdjustPoints(ctx, f.anna.ID, 12)
	require.NoError(t, err)

	redemption, balance, err := f.svc.RedeemReward(ctx, f.anna, reward.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, balance)
	assert.Equal(t, f.anna.ID, redemption.RedeemedBy)

	require.NoError(t, f.svc.ApproveRedemption(ctx, f.parent, redemption.ID))
	assert.ErrorIs(t, f.svc.ApproveRedemption(ctx, f.parent, redemption.ID), ErrConflict)
	assert.ErrorIs(t, f.svc.ApproveRedemption(ctx, f.anna, redemption.ID), ErrForbidden)
	assert.ErrorIs(t, f.svc.ApproveRedemption(ctx, f.parent, "missing"), ErrNotFound)
}

func TestRedeemRewardRefund(t *testing.T) {
	ctx := context.Background()

	t.Run("refunded", func(t *testing.T) {
		f := newFixture(t)
		reward, err := f.svc.CreateReward(ctx, f.parent, "Ice cream", "", 10)
		require.NoError(t, err)
		_, err = f.b.Members().AdjustPoints(ctx, f.anna.ID, 10)
		require.NoError(t, err)

		f.b.Fail(memory.OpRewardCreateRedemption, errUnavailable)
		_, _, err = f.svc.RedeemReward(ctx, f.anna, reward.ID)
		assert.ErrorIs(t, err, errUnavailable)
		assert.Equal(t, 10, f.balance(t, f.anna.ID))
	})

	t.Run("refund fails", func(t *testing.T) {
		f := newFixture(t)
		reward, err := f.svc.CreateReward(ctx, f.parent, "Ice cream", "", 10)
		require.NoError(t, err)
		_, err = f.b.Members().AdjustPoints(ctx, f.anna.ID, 10)
		require.NoError(t, err)

		f.b.Fail(memory.OpRewardCreateRedemption, errUnavailable)
		members := &failAfter{MemberRepository: f.b.Members(), ok: 1}
		f.svc.Members = members

		_, _, err = f.svc.RedeemReward(ctx, f.anna, reward.ID)
		require.Error(t, err)
		assert.ErrorIs(t, err, errUnavailable)
		assert.Contains(t, err.Error(), "refund")
		assert.Equal(t, 0, f.balance(t, f.anna.ID))
	})
}

// failAfter lets the first ok points adjustments through and fails the rest
type failAfter struct {
	repository.MemberRepository
	ok    int32
	calls atomic.Int32
}

func (f *failAfter) AdjustPoints(ctx context.Context, memberID string, delta int) (int, error) {
	if f.calls.Add(1) > f.ok {
		return 0, errUnavailable
	}
	return f.MemberRepository.AdjustPoints(ctx, memberID, delta)
}

func TestOverviewAndLeaderboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.b.Members().AdjustPoints(ctx, f.ben.ID, 7)
	require.NoError(t, err)
	_, err = f.b.Members().AdjustPoints(ctx, f.anna.ID, 3)
	require.NoError(t, err)

	chore, err := f.svc.CreateChore(ctx, f.parent, ChoreInput{Title: "Dishes", Points: 5})
	require.NoError(t, err)
	_, err = f.svc.CreateChore(ctx, f.parent, ChoreInput{Title: "Laundry", Points: 2})
	require.NoError(t, err)
	_, err = f.svc.CompleteChore(ctx, f.anna, chore.ID, "")
	require.NoError(t, err)

	o, err := f.svc.Overview(ctx, f.parent.FamilyID)
	require.NoError(t, err)
	assert.Len(t, o.Children, 2)
	assert.Equal(t, 1, o.ActiveChores)
	assert.Equal(t, 1, o.CompletedChores)
	assert.Equal(t, 10, o.TotalPoints)

	board, err := f.svc.Leaderboard(ctx, f.parent.FamilyID)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "Ben", board[0].Name)
	assert.Equal(t, "Anna", board[1].Name)

	f.b.Fail(memory.OpMemberList, errUnavailable)
	_, err = f.svc.Leaderboard(ctx, f.parent.FamilyID)
	assert.ErrorIs(t, err, errUnavailable)
}

type countingPurger struct {
	calls atomic.Int32
	err   error
}

func (p *countingPurger) PurgeExpired(context.Context) (int64, error) {
	p.calls.Add(1)
	return 2, p.err
}

func TestSessionJanitor(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	purger := &countingPurger{}
	var purged atomic.Int64
	done := make(chan struct{})
	go func() {
		f.svc.StartSessionJanitor(ctx, purger, 5*time.Millisecond, func(n int64) { purged.Add(n) })
		close(done)
	}()

	require.Eventually(t, func() bool { return purger.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.GreaterOrEqual(t, purged.Load(), int64(4))
}

func TestPurgeSessionsError(t *testing.T) {
	f := newFixture(t)
	purger := &countingPurger{err: errUnavailable}
	observed := false

	f.svc.purgeSessions(context.Background(), purger, func(int64) { observed = true })
	assert.Equal(t, int32(1), purger.calls.Load())
	assert.False(t, observed)
}
