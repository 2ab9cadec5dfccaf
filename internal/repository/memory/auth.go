package memory

import (
	"context"
	"strings"

	"github.com/Kerhoff/ChoreBoT/internal/models"
	"github.com/Kerhoff/ChoreBoT/internal/repository"
	"github.com/Kerhoff/ChoreBoT/internal/storage"
)

type authRepository struct {
	b     *Backend
	store storage.Store
}

func (r *authRepository) issue(acc *account) *models.AuthSession {
	s := &models.AuthSession{
		UserID:      acc.id,
		Email:       acc.email,
		AccessToken: newID(),
		ExpiresAt:   r.b.now().Add(r.b.ttl),
	}
	r.b.tokens[s.AccessToken] = s
	return s
}

func (r *authRepository) SignUp(ctx context.Context, email, password string) (*models.AuthSession, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	r.b.mu.Lock()
	if err := r.b.enter(OpSignUp); err != nil {
		r.b.mu.Unlock()
		return nil, err
	}
	if _, exists := r.b.accounts[email]; exists {
		r.b.mu.Unlock()
		return nil, repository.ErrEmailTaken
	}
	acc := &account{id: newID(), email: email, password: password}
	r.b.accounts[email] = acc
	s := r.issue(acc)
	r.b.mu.Unlock()

	if err := repository.SaveAuthSession(ctx, r.store, s); err != nil {
		return nil, repository.AbandonSignUp(ctx, r, acc.id, err)
	}
	return s, nil
}

func (r *authRepository) SignIn(ctx context.Context, email, password string) (*models.AuthSession, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	r.b.mu.Lock()
	if err := r.b.enter(OpSignIn); err != nil {
		r.b.mu.Unlock()
		return nil, err
	}
	acc, ok := r.b.accounts[email]
	if !ok || acc.password != password {
		r.b.mu.Unlock()
		return nil, repository.ErrInvalidCredentials
	}
	s := r.issue(acc)
	r.b.mu.Unlock()

	if err := repository.SaveAuthSession(ctx, r.store, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *authRepository) SignOut(ctx context.Context) error {
	current, err := repository.LoadAuthSession(ctx, r.store)
	if err != nil {
		return err
	}

	r.b.mu.Lock()
	if err := r.b.enter(OpSignOut); err != nil {
		r.b.mu.Unlock()
		return err
	}
	if current != nil {
		delete(r.b.tokens, current.AccessToken)
	}
	r.b.mu.Unlock()

	return repository.ClearAuthSession(ctx, r.store)
}

func (r *authRepository) CurrentSession(ctx context.Context) (*models.AuthSession, error) {
	current, err := repository.LoadAuthSession(ctx, r.store)
	if err != nil || current == nil {
		return nil, err
	}

	r.b.mu.Lock()
	if err := r.b.enter(OpCurrentSession); err != nil {
		r.b.mu.Unlock()
		return nil, err
	}
	live, ok := r.b.tokens[current.AccessToken]
	valid := ok && !live.IsExpired()
	r.b.mu.Unlock()

	if !valid {
		return nil, repository.ClearAuthSession(ctx, r.store)
	}
	return live, nil
}

func (r *authRepository) DeleteUser(ctx context.Context, userID string) error {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	if err := r.b.enter(OpDeleteUser); err != nil {
		return err
	}
	for email, acc := range r.b.accounts {
		if acc.id == userID {
			delete(r.b.accounts, email)
		}
	}
	for token, s := range r.b.tokens {
		if s.UserID == userID {
			delete(r.b.tokens, token)
		}
	}
	return nil
}

// HasAccount reports whether an account exists for email
func (b *Backend) HasAccount(email string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.accounts[strings.ToLower(strings.TrimSpace(email))]
	return ok
}

// RevokeSessions invalidates every token issued to userID, as if the remote
// service had expired them
func (b *Backend) RevokeSessions(userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for token, s := range b.tokens {
		if s.UserID == userID {
			delete(b.tokens, token)
		}
	}
}
