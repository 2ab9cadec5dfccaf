package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kerhoff/ChoreBoT/internal/familycode"
	"github.com/Kerhoff/ChoreBoT/internal/models"
	"github.com/Kerhoff/ChoreBoT/internal/repository/memory"
	"github.com/Kerhoff/ChoreBoT/internal/storage"
)

var errUnavailable = errors.New("service unavailable")

// sequence yields the given codes in order, then random ones
func sequence(codes ...string) familycode.Generator {
	var mu sync.Mutex
	fallback := familycode.NewRandom(rand.NewPCG(1, 2))
	return familycode.GeneratorFunc(func() string {
		mu.Lock()
		defer mu.Unlock()
		if len(codes) == 0 {
			return fallback.Generate()
		}
		code := codes[0]
		codes = codes[1:]
		return code
	})
}

type recorder struct {
	mu       sync.Mutex
	ops      map[string]int
	failed   map[string]int
	attempts []int
}

func newRecorder() *recorder {
	return &recorder{ops: map[string]int{}, failed: map[string]int{}}
}

func (r *recorder) ObserveOperation(op string, err error, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[op]++
	if err != nil {
		r.failed[op]++
	}
}

func (r *recorder) ObserveCodeAttempts(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, n)
}

func newManager(b *memory.Backend, store storage.Store, gen familycode.Generator) *Manager {
	return NewManager(Deps{
		Key:      "test",
		Auth:     b.NewAuth(store),
		Families: b.Families(),
		Members:  b.Members(),
		Storage:  store,
		Codes:    gen,
	})
}

func storedUser(t *testing.T, store storage.Store) (models.StoredUser, bool) {
	t.Helper()
	data, ok, err := store.Get(context.Background(), storage.KeyUser)
	require.NoError(t, err)
	var u models.StoredUser
	if ok {
		require.NoError(t, json.Unmarshal(data, &u))
	}
	return u, ok
}

func storedFamily(t *testing.T, store storage.Store) (models.Family, bool) {
	t.Helper()
	data, ok, err := store.Get(context.Background(), storage.KeyFamily)
	require.NoError(t, err)
	var f models.Family
	if ok {
		require.NoError(t, json.Unmarshal(data, &f))
	}
	return f, ok
}

// registered returns a backend with one registered parent and the manager
// that registered it
func registered(t *testing.T) (*memory.Backend, *storage.MemoryStore, *Manager) {
	t.Helper()
	b := memory.NewBackend()
	store := storage.NewMemoryStore()
	m := newManager(b, store, sequence("SMI123"))
	require.NoError(t, m.RegisterParent(context.Background(), "a@b.com", "secret1", "Smiths"))
	return b, store, m
}

func TestRegisterParent(t *testing.T) {
	_, store, m := registered(t)

	state := m.State()
	assert.True(t, state.LoggedIn())
	assert.False(t, state.Loading)
	assert.Empty(t, state.Error)

	parent, ok := state.User.(models.ParentUser)
	require.True(t, ok)
	assert.Equal(t, "a@b.com", parent.Email)

	require.NotNil(t, state.Family)
	assert.Equal(t, "Smiths", state.Family.Name)
	assert.Len(t, state.Family.Code, familycode.Length)
	assert.True(t, familycode.Valid(state.Family.Code))
	assert.Equal(t, parent.ID, state.Family.OwnerID)
	assert.Equal(t, state.Family.ID, parent.FamilyID)

	require.Len(t, state.Members, 1)
	assert.Equal(t, models.RoleParent, state.Members[0].Role)
	assert.Equal(t, 0, state.Members[0].Points)
	assert.Equal(t, ParentMemberName, state.Members[0].Name)
	assert.Same(t, state.Members[0], m.CurrentMember())

	cachedUser, ok := storedUser(t, store)
	require.True(t, ok)
	assert.Equal(t, models.EncodeUser(parent), cachedUser)

	cachedFamily, ok := storedFamily(t, store)
	require.True(t, ok)
	assert.Equal(t, state.Family.ID, cachedFamily.ID)
	assert.Equal(t, state.Family.Code, cachedFamily.Code)
}

func TestRegisterParentEmailTaken(t *testing.T) {
	b, _, _ := registered(t)
	m := newManager(b, storage.NewMemoryStore(), nil)

	err := m.RegisterParent(context.Background(), "A@B.com", "other1", "Others")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrService)

	state := m.State()
	assert.False(t, state.LoggedIn())
	assert.Equal(t, "An account with this email already exists", state.Error)
	assert.Equal(t, 1, b.FamilyCount())
}

func TestRegisterParentCompensation(t *testing.T) {
	t.Run("family create fails", func(t *testing.T) {
		b := memory.NewBackend()
		store := storage.NewMemoryStore()
		m := newManager(b, store, nil)
		b.Fail(memory.OpFamilyCreate, errUnavailable)

		err := m.RegisterParent(context.Background(), "a@b.com", "secret1", "Smiths")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrService)
		assert.ErrorIs(t, err, errUnavailable)

		assert.False(t, b.HasAccount("a@b.com"))
		assert.Equal(t, 1, b.Calls(memory.OpDeleteUser))
		assert.Equal(t, 0, b.Calls(memory.OpFamilyDelete))
		assert.Equal(t, 0, store.Len())
		assert.False(t, m.State().LoggedIn())
	})

	t.Run("member create fails", func(t *testing.T) {
		b := memory.NewBackend()
		store := storage.NewMemoryStore()
		m := newManager(b, store, nil)
		b.Fail(memory.OpMemberCreate, errUnavailable)

		err := m.RegisterParent(context.Background(), "a@b.com", "secret1", "Smiths")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrService)

		assert.Equal(t, 0, b.FamilyCount())
		assert.False(t, b.HasAccount("a@b.com"))
		assert.Equal(t, 0, store.Len())
		assert.Equal(t, "Failed to add you to the family", m.State().Error)
	})

	t.Run("compensation failures are swallowed", func(t *testing.T) {
		b := memory.NewBackend()
		m := newManager(b, storage.NewMemoryStore(), nil)
		b.Fail(memory.OpMemberCreate, errUnavailable)
		b.Fail(memory.OpFamilyDelete, errUnavailable)

		err := m.RegisterParent(context.Background(), "a@b.com", "secret1", "Smiths")
		require.Error(t, err)
		assert.Equal(t, "Failed to add you to the family", m.State().Error)

		// the orphaned family stays, the credential is still undone
		assert.Equal(t, 1, b.FamilyCount())
		assert.False(t, b.HasAccount("a@b.com"))
	})

	t.Run("credential session cannot be saved", func(t *testing.T) {
		b := memory.NewBackend()
		store := &brokenStore{Store: storage.NewMemoryStore(), key: storage.KeyAuthSession}
		m := newManager(b, store, nil)

		err := m.RegisterParent(context.Background(), "a@b.com", "secret1", "Smiths")
		require.Error(t, err)
		assert.Equal(t, "Failed to register", m.State().Error)
		assert.False(t, m.State().LoggedIn())

		// the account is gone, so the email can be used again
		assert.False(t, b.HasAccount("a@b.com"))
		assert.Equal(t, 1, b.Calls(memory.OpDeleteUser))
		assert.Equal(t, 0, b.FamilyCount())

		store.key = ""
		require.NoError(t, m.RegisterParent(context.Background(), "a@b.com", "secret1", "Smiths"))
		assert.True(t, m.State().LoggedIn())
	})
}

func TestLoginParent(t *testing.T) {
	b, _, first := registered(t)
	want := first.State()

	store := storage.NewMemoryStore()
	m := newManager(b, store, nil)

	err := m.LoginParent(context.Background(), "a@b.com", "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrService)
	assert.Equal(t, "Invalid email or password", m.State().Error)
	assert.False(t, m.State().LoggedIn())

	require.NoError(t, m.LoginParent(context.Background(), "a@b.com", "secret1"))
	state := m.State()
	assert.Empty(t, state.Error)
	assert.Equal(t, want.User, state.User)
	assert.Equal(t, want.Family.ID, state.Family.ID)
	require.Len(t, state.Members, 1)

	cached, ok := storedUser(t, store)
	require.True(t, ok)
	assert.Equal(t, models.RoleParent, cached.Role)
}

func TestLoginParentWithoutFamily(t *testing.T) {
	b := memory.NewBackend()
	store := storage.NewMemoryStore()
	_, err := b.NewAuth(storage.NewMemoryStore()).SignUp(context.Background(), "lone@b.com", "secret1")
	require.NoError(t, err)

	m := newManager(b, store, nil)
	err = m.LoginParent(context.Background(), "lone@b.com", "secret1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "No family found for this account", m.State().Error)
	assert.False(t, m.State().LoggedIn())

	_, ok := storedUser(t, store)
	assert.False(t, ok)
}

func TestLoginChild(t *testing.T) {
	b, _, parent := registered(t)
	ctx := context.Background()

	age := 8
	child, err := parent.AddFamilyMember(ctx, "Tom", &age, nil)
	require.NoError(t, err)
	code := parent.State().Family.Code

	store := storage.NewMemoryStore()
	m := newManager(b, store, nil)
	require.NoError(t, m.LoginChild(ctx, " smi123 ", child.ID))
	assert.Equal(t, "SMI123", code)

	state := m.State()
	assert.Equal(t, models.ChildUser{MemberID: child.ID, FamilyID: state.Family.ID}, state.User)
	assert.Len(t, state.Members, 2)
	assert.Equal(t, child.ID, m.CurrentMember().ID)

	cached, ok := storedUser(t, store)
	require.True(t, ok)
	assert.Equal(t, models.RoleChild, cached.Role)
	assert.Empty(t, cached.Email)
}

func TestLoginChildNotFound(t *testing.T) {
	b, _, parent := registered(t)
	ctx := context.Background()
	parentMember := parent.State().Members[0]

	tests := []struct {
		name     string
		code     string
		memberID string
		message  string
	}{
		{name: "parent member", code: "SMI123", memberID: parentMember.ID, message: "Child not found in this family"},
		{name: "unknown member", code: "SMI123", memberID: "missing", message: "Child not found in this family"},
		{name: "unknown code", code: "XYZ999", memberID: parentMember.ID, message: "Family not found with that code"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			m := newManager(b, store, nil)

			err := m.LoginChild(ctx, tt.code, tt.memberID)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrNotFound)
			assert.Equal(t, tt.message, m.State().Error)
			assert.False(t, m.State().LoggedIn())
			assert.Equal(t, 0, store.Len())
		})
	}
}

func TestLoginChildDropsParentCredential(t *testing.T) {
	b, store, parent := registered(t)
	ctx := context.Background()
	child, err := parent.AddFamilyMember(ctx, "Tom", nil, nil)
	require.NoError(t, err)

	// same device switches to the child
	require.NoError(t, parent.LoginChild(ctx, "SMI123", child.ID))
	assert.Equal(t, 1, b.Calls(memory.OpSignOut))

	restored := newManager(b, store, nil)
	require.NoError(t, restored.RestoreSession(ctx))
	assert.Equal(t, models.RoleChild, restored.State().User.UserRole())
}

func TestLogout(t *testing.T) {
	ctx := context.Background()

	t.Run("parent", func(t *testing.T) {
		b, store, m := registered(t)
		require.NoError(t, m.Logout(ctx))

		assert.Equal(t, 1, b.Calls(memory.OpSignOut))
		assert.Equal(t, 0, store.Len())
		assert.Equal(t, State{}, m.State())
	})

	t.Run("child", func(t *testing.T) {
		b, _, parent := registered(t)
		child, err := parent.AddFamilyMember(ctx, "Tom", nil, nil)
		require.NoError(t, err)

		store := storage.NewMemoryStore()
		m := newManager(b, store, nil)
		require.NoError(t, m.LoginChild(ctx, "SMI123", child.ID))
		b.ResetCalls()

		require.NoError(t, m.Logout(ctx))
		assert.Equal(t, 0, b.Calls(memory.OpSignOut))
		assert.Equal(t, 0, store.Len())
		assert.False(t, m.State().LoggedIn())
	})

	t.Run("remote sign-out fails", func(t *testing.T) {
		b, store, m := registered(t)
		b.Fail(memory.OpSignOut, errUnavailable)

		require.NoError(t, m.Logout(ctx))
		_, hasUser := storedUser(t, store)
		_, hasFamily := storedFamily(t, store)
		assert.False(t, hasUser)
		assert.False(t, hasFamily)
		assert.False(t, hasAuthSession(t, store))
		assert.Equal(t, 0, store.Len())
		assert.False(t, m.State().LoggedIn())

		// the unrevoked credential must not sign the parent back in
		b.Recover(memory.OpSignOut)
		restarted := newManager(b, store, nil)
		require.NoError(t, restarted.RestoreSession(ctx))
		assert.False(t, restarted.State().LoggedIn())
	})
}

func hasAuthSession(t *testing.T, store storage.Store) bool {
	t.Helper()
	_, ok, err := store.Get(context.Background(), storage.KeyAuthSession)
	require.NoError(t, err)
	return ok
}

func TestCreateFamily(t *testing.T) {
	ctx := context.Background()

	t.Run("requires user", func(t *testing.T) {
		m := newManager(memory.NewBackend(), storage.NewMemoryStore(), nil)
		family, err := m.CreateFamily(ctx, "Smiths")
		assert.Nil(t, family)
		assert.ErrorIs(t, err, ErrNotAuthenticated)
		assert.Equal(t, "You need to log in first", m.State().Error)
	})

	t.Run("retries collisions", func(t *testing.T) {
		b := memory.NewBackend()
		codes := []string{"ZZZ999"}
		for i := 1; i <= 10; i++ {
			code := fmt.Sprintf("AAA%03d", i)
			if i < 10 {
				b.SeedFamily("Taken", code)
			}
			codes = append(codes, code)
		}
		rec := newRecorder()
		store := storage.NewMemoryStore()
		m := NewManager(Deps{
			Auth:     b.NewAuth(store),
			Families: b.Families(),
			Members:  b.Members(),
			Storage:  store,
			Codes:    sequence(codes...),
			Recorder: rec,
		})
		require.NoError(t, m.RegisterParent(ctx, "a@b.com", "secret1", "Smiths"))
		before := m.State().Family
		b.ResetCalls()

		family, err := m.CreateFamily(ctx, "Second")
		require.NoError(t, err)
		assert.Equal(t, "AAA010", family.Code)
		assert.Equal(t, 10, b.Calls(memory.OpFamilyGetByCode))
		assert.Equal(t, []int{1, 10}, rec.attempts)

		// the session keeps its family
		assert.Equal(t, before.ID, m.State().Family.ID)
	})

	t.Run("exhausted", func(t *testing.T) {
		b, _, m := registered(t)
		b.SeedFamily("Taken", "TAK000")
		m.codes = sequence("TAK000", "TAK000", "TAK000", "TAK000", "TAK000",
			"TAK000", "TAK000", "TAK000", "TAK000", "TAK000")
		families := b.FamilyCount()

		family, err := m.CreateFamily(ctx, "Second")
		assert.Nil(t, family)
		assert.ErrorIs(t, err, ErrService)
		assert.ErrorIs(t, err, familycode.ErrExhausted)
		assert.Equal(t, families, b.FamilyCount())
		assert.Equal(t, "Could not generate a unique family code, please try again", m.State().Error)
	})

	t.Run("exhausted with proceed policy", func(t *testing.T) {
		b, _, m := registered(t)
		b.SeedFamily("Taken", "TAK000")
		m.policy = familycode.Policy{MaxAttempts: 2, OnExhaustion: familycode.Proceed}
		m.codes = sequence("TAK000", "TAK000")

		family, err := m.CreateFamily(ctx, "Second")
		require.NoError(t, err)
		assert.Equal(t, "TAK000", family.Code)
	})

	t.Run("lookup fails", func(t *testing.T) {
		b, _, m := registered(t)
		b.Fail(memory.OpFamilyGetByCode, errUnavailable)

		_, err := m.CreateFamily(ctx, "Second")
		assert.ErrorIs(t, err, ErrService)
		assert.ErrorIs(t, err, errUnavailable)
		assert.Equal(t, "Failed to create family", m.State().Error)
	})
}

func TestAddFamilyMember(t *testing.T) {
	ctx := context.Background()

	t.Run("requires family", func(t *testing.T) {
		m := newManager(memory.NewBackend(), storage.NewMemoryStore(), nil)
		member, err := m.AddFamilyMember(ctx, "Tom", nil, nil)
		assert.Nil(t, member)
		assert.ErrorIs(t, err, ErrNoFamily)
	})

	t.Run("appends in order", func(t *testing.T) {
		_, _, m := registered(t)
		before := m.State().Members

		avatar := "🦊"
		a, err := m.AddFamilyMember(ctx, "Anna", nil, &avatar)
		require.NoError(t, err)
		age := 7
		bb, err := m.AddFamilyMember(ctx, "Ben", &age, nil)
		require.NoError(t, err)

		after := m.State().Members
		require.Len(t, after, len(before)+2)
		assert.Equal(t, before, after[:len(before)])
		assert.Equal(t, a, after[len(after)-2])
		assert.Equal(t, bb, after[len(after)-1])
		assert.Equal(t, models.RoleChild, a.Role)
		assert.Equal(t, 0, a.Points)
		assert.Equal(t, "🦊", *a.Avatar)
		assert.Equal(t, 7, *bb.Age)
	})

	t.Run("service failure keeps roster", func(t *testing.T) {
		b, _, m := registered(t)
		before := m.State().Members
		b.Fail(memory.OpMemberCreate, errUnavailable)

		_, err := m.AddFamilyMember(ctx, "Tom", nil, nil)
		assert.ErrorIs(t, err, ErrService)
		assert.Equal(t, before, m.State().Members)
		assert.Equal(t, "Failed to add family member", m.State().Error)
	})
}

func TestGetFamilyByCode(t *testing.T) {
	b, _, _ := registered(t)
	ctx := context.Background()
	m := newManager(b, storage.NewMemoryStore(), nil)

	lower, err := m.GetFamilyByCode(ctx, "smi123")
	require.NoError(t, err)
	upper, err := m.GetFamilyByCode(ctx, "SMI123")
	require.NoError(t, err)
	require.NotNil(t, lower)
	assert.Equal(t, upper, lower)

	missing, err := m.GetFamilyByCode(ctx, "NOP000")
	assert.NoError(t, err)
	assert.Nil(t, missing)
	assert.Empty(t, m.State().Error)

	b.Fail(memory.OpFamilyGetByCode, errUnavailable)
	_, err = m.GetFamilyByCode(ctx, "SMI123")
	assert.ErrorIs(t, err, ErrService)
}

func TestGetFamilyMembers(t *testing.T) {
	b, _, m := registered(t)
	ctx := context.Background()
	familyID := m.State().Family.ID
	_, err := m.AddFamilyMember(ctx, "Anna", nil, nil)
	require.NoError(t, err)

	members := m.GetFamilyMembers(ctx, familyID)
	require.Len(t, members, 2)
	assert.Equal(t, models.RoleParent, members[0].Role)
	assert.Equal(t, "Anna", members[1].Name)

	b.Fail(memory.OpMemberList, errUnavailable)
	members = m.GetFamilyMembers(ctx, familyID)
	assert.NotNil(t, members)
	assert.Empty(t, members)
	assert.Empty(t, m.State().Error)
}

func TestRefreshMembers(t *testing.T) {
	b, _, m := registered(t)
	ctx := context.Background()
	parent := m.CurrentMember()

	_, err := b.Members().AdjustPoints(ctx, parent.ID, 15)
	require.NoError(t, err)
	require.NoError(t, m.RefreshMembers(ctx))
	assert.Equal(t, 15, m.CurrentMember().Points)

	loggedOut := newManager(b, storage.NewMemoryStore(), nil)
	assert.ErrorIs(t, loggedOut.RefreshMembers(ctx), ErrNoFamily)
}

func TestRestoreSessionEmpty(t *testing.T) {
	m := newManager(memory.NewBackend(), storage.NewMemoryStore(), nil)
	require.NoError(t, m.RestoreSession(context.Background()))
	assert.Equal(t, State{}, m.State())
}

func TestRestoreSessionFromCredential(t *testing.T) {
	b, store, first := registered(t)
	ctx := context.Background()
	_, err := first.AddFamilyMember(ctx, "Anna", nil, nil)
	require.NoError(t, err)

	// cache points somewhere else; the credential wins
	require.NoError(t, store.Set(ctx, storage.KeyFamily, []byte(`{"id":"stale","code":"OLD000"}`)))

	m := newManager(b, store, nil)
	require.NoError(t, m.RestoreSession(ctx))

	state := m.State()
	assert.Equal(t, first.State().User, state.User)
	assert.Equal(t, first.State().Family.ID, state.Family.ID)
	assert.Len(t, state.Members, 2)

	cached, ok := storedFamily(t, store)
	require.True(t, ok)
	assert.Equal(t, state.Family.ID, cached.ID)
}

func TestRestoreSessionFallsBackToCache(t *testing.T) {
	ctx := context.Background()

	t.Run("revoked credential", func(t *testing.T) {
		b, store, first := registered(t)
		b.RevokeSessions(first.State().User.UserID())

		m := newManager(b, store, nil)
		require.NoError(t, m.RestoreSession(ctx))
		assert.Equal(t, first.State().User, m.State().User)
		assert.Len(t, m.State().Members, 1)
		assert.False(t, hasAuthSession(t, store))
	})

	t.Run("credential check fails", func(t *testing.T) {
		b, store, first := registered(t)
		b.Fail(memory.OpCurrentSession, errUnavailable)

		m := newManager(b, store, nil)
		require.NoError(t, m.RestoreSession(ctx))
		assert.Equal(t, first.State().User, m.State().User)
	})

	t.Run("member lookup fails", func(t *testing.T) {
		b, store, first := registered(t)
		b.Fail(memory.OpMemberGetByUser, errUnavailable)

		m := newManager(b, store, nil)
		require.NoError(t, m.RestoreSession(ctx))
		assert.Equal(t, first.State().Family.ID, m.State().Family.ID)
		assert.Empty(t, m.State().Error)
	})
}

// childSession logs a child in on a fresh store and returns the backend, the
// store holding the cached session and the child's member id
func childSession(t *testing.T) (*memory.Backend, *storage.MemoryStore, string) {
	t.Helper()
	ctx := context.Background()
	b, _, parent := registered(t)
	child, err := parent.AddFamilyMember(ctx, "Tom", nil, nil)
	require.NoError(t, err)

	store := storage.NewMemoryStore()
	require.NoError(t, newManager(b, store, nil).LoginChild(ctx, "SMI123", child.ID))
	return b, store, child.ID
}

func TestRestoreSessionChild(t *testing.T) {
	ctx := context.Background()

	t.Run("valid", func(t *testing.T) {
		b, store, childID := childSession(t)
		m := newManager(b, store, nil)
		require.NoError(t, m.RestoreSession(ctx))
		assert.Equal(t, childID, m.State().User.UserID())
		assert.Len(t, m.State().Members, 2)
	})

	t.Run("child removed", func(t *testing.T) {
		b, store, childID := childSession(t)
		b.RemoveMember(childID)

		m := newManager(b, store, nil)
		require.NoError(t, m.RestoreSession(ctx))
		assert.Equal(t, State{}, m.State())
		assert.Equal(t, 0, store.Len())
	})

	t.Run("family removed", func(t *testing.T) {
		b, store, _ := childSession(t)
		cached, ok := storedFamily(t, store)
		require.True(t, ok)
		b.RemoveFamily(cached.ID)

		m := newManager(b, store, nil)
		require.NoError(t, m.RestoreSession(ctx))
		assert.False(t, m.State().LoggedIn())
		assert.Equal(t, 0, store.Len())
	})

	t.Run("code reused by another family", func(t *testing.T) {
		b, store, _ := childSession(t)
		cached, ok := storedFamily(t, store)
		require.True(t, ok)
		b.RemoveFamily(cached.ID)
		b.SeedFamily("Impostors", cached.Code)

		m := newManager(b, store, nil)
		require.NoError(t, m.RestoreSession(ctx))
		assert.False(t, m.State().LoggedIn())
		assert.Equal(t, 0, store.Len())
	})

	t.Run("service failure keeps cache", func(t *testing.T) {
		b, store, _ := childSession(t)
		b.Fail(memory.OpFamilyGetByCode, errUnavailable)

		m := newManager(b, store, nil)
		err := m.RestoreSession(ctx)
		assert.ErrorIs(t, err, ErrService)
		assert.Equal(t, "Failed to restore session", m.State().Error)
		assert.False(t, m.State().LoggedIn())
		_, ok := storedUser(t, store)
		assert.True(t, ok)
	})

	t.Run("roster failure keeps cache", func(t *testing.T) {
		b, store, _ := childSession(t)
		b.Fail(memory.OpMemberList, errUnavailable)

		m := newManager(b, store, nil)
		assert.ErrorIs(t, m.RestoreSession(ctx), ErrService)
		_, ok := storedUser(t, store)
		assert.True(t, ok)
	})
}

func TestRestoreSessionCorruptCache(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		user   string
		family string
	}{
		{name: "invalid json", user: `{`, family: `{"id":"f1","code":"ABC123"}`},
		{name: "child with email", user: `{"id":"m1","role":"child","email":"x@y.z","familyId":"f1"}`, family: `{"id":"f1","code":"ABC123"}`},
		{name: "unknown role", user: `{"id":"m1","role":"admin"}`, family: `{"id":"f1","code":"ABC123"}`},
		{name: "missing family", user: `{"id":"m1","role":"child","familyId":"f1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			require.NoError(t, store.Set(ctx, storage.KeyUser, []byte(tt.user)))
			if tt.family != "" {
				require.NoError(t, store.Set(ctx, storage.KeyFamily, []byte(tt.family)))
			}

			m := newManager(memory.NewBackend(), store, nil)
			require.NoError(t, m.RestoreSession(ctx))
			assert.Equal(t, State{}, m.State())
			assert.Equal(t, 0, store.Len())
		})
	}
}

// brokenStore fails writes of one key
type brokenStore struct {
	storage.Store
	key string
}

func (s *brokenStore) Set(ctx context.Context, key string, value []byte) error {
	if key == s.key {
		return errors.New("disk full")
	}
	return s.Store.Set(ctx, key, value)
}

func (s *brokenStore) Remove(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		if k == s.key {
			return errors.New("disk full")
		}
	}
	return s.Store.Remove(ctx, keys...)
}

func TestStorageFailure(t *testing.T) {
	b, _, parent := registered(t)
	ctx := context.Background()
	child, err := parent.AddFamilyMember(ctx, "Tom", nil, nil)
	require.NoError(t, err)

	store := &brokenStore{Store: storage.NewMemoryStore(), key: storage.KeyFamily}
	m := newManager(b, store, nil)

	err = m.LoginChild(ctx, "SMI123", child.ID)
	assert.ErrorIs(t, err, ErrStorage)
	assert.Equal(t, "Failed to save session on this device", m.State().Error)
	assert.False(t, m.State().LoggedIn())

	store.key = ""
	require.NoError(t, m.LoginChild(ctx, "SMI123", child.ID))
	store.key = storage.KeyUser

	err = m.Logout(ctx)
	assert.ErrorIs(t, err, ErrStorage)
	assert.False(t, m.State().LoggedIn())
}

func TestClearError(t *testing.T) {
	m := newManager(memory.NewBackend(), storage.NewMemoryStore(), nil)

	before := m.State()
	m.ClearError()
	assert.Equal(t, before, m.State())

	_, err := m.CreateFamily(context.Background(), "Smiths")
	require.Error(t, err)
	require.NotEmpty(t, m.State().Error)
	m.ClearError()
	assert.Empty(t, m.State().Error)
}

func TestOperationsClearPreviousError(t *testing.T) {
	b, _, _ := registered(t)
	ctx := context.Background()
	m := newManager(b, storage.NewMemoryStore(), nil)

	require.Error(t, m.LoginParent(ctx, "a@b.com", "wrong"))
	require.NotEmpty(t, m.State().Error)

	require.NoError(t, m.LoginParent(ctx, "a@b.com", "secret1"))
	assert.Empty(t, m.State().Error)
	assert.False(t, m.State().Loading)
}

func TestRecorderObservesOperations(t *testing.T) {
	b := memory.NewBackend()
	store := storage.NewMemoryStore()
	rec := newRecorder()
	m := NewManager(Deps{
		Auth:     b.NewAuth(store),
		Families: b.Families(),
		Members:  b.Members(),
		Storage:  store,
		Recorder: rec,
	})
	ctx := context.Background()

	require.NoError(t, m.RegisterParent(ctx, "a@b.com", "secret1", "Smiths"))
	require.Error(t, m.LoginChild(ctx, "NOP000", "x"))

	assert.Equal(t, 1, rec.ops[OpRegisterParent])
	assert.Equal(t, 0, rec.failed[OpRegisterParent])
	assert.Equal(t, 1, rec.failed[OpLoginChild])
	assert.Equal(t, []int{1}, rec.attempts)
}
