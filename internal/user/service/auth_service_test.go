package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"bitbattle/internal/common/cache"
	"bitbattle/internal/common/db"
	"bitbattle/internal/user/model"
	"bitbattle/internal/user/repository"
	"bitbattle/internal/user/service"
	appErr "bitbattle/pkg/errors"
)

type fakeUserRepo struct {
	mu     sync.Mutex
	byID   map[string]*model.User
	byName map[string]*model.User
	nextID int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		byID:   make(map[string]*model.User),
		byName: make(map[string]*model.User),
	}
}

func (f *fakeUserRepo) Create(ctx context.Context, tx db.Transaction, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byName[user.Username]; ok {
		return repository.ErrUsernameExists
	}
	f.nextID++
	user.ID = fmt.Sprintf("uid-%04d", f.nextID)
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	clone := *user
	f.byID[user.ID] = &clone
	f.byName[user.Username] = &clone
	return nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, tx db.Transaction, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

func (f *fakeUserRepo) GetByUsername(ctx context.Context, tx db.Transaction, username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.byName[username]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

type fakeTokenRepo struct {
	mu             sync.Mutex
	tokens         map[string]*model.RefreshToken
	nextID         int
	revokeAllCalls int
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{tokens: make(map[string]*model.RefreshToken)}
}

func (f *fakeTokenRepo) Create(ctx context.Context, tx db.Transaction, token *model.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	token.ID = fmt.Sprintf("row-%04d", f.nextID)
	token.CreatedAt = time.Now()
	clone := *token
	f.tokens[token.TokenID] = &clone
	return nil
}

func (f *fakeTokenRepo) GetByTokenID(ctx context.Context, tx db.Transaction, tokenID string) (*model.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token, ok := f.tokens[tokenID]
	if !ok {
		return nil, repository.ErrTokenNotFound
	}
	clone := *token
	return &clone, nil
}

func (f *fakeTokenRepo) Revoke(ctx context.Context, tx db.Transaction, tokenID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	token, ok := f.tokens[tokenID]
	if !ok || token.RevokedAt != nil {
		return repository.ErrTokenNotFound
	}
	now := time.Now()
	token.RevokedAt = &now
	return nil
}

func (f *fakeTokenRepo) RevokeAllForUser(ctx context.Context, tx db.Transaction, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokeAllCalls++
	now := time.Now()
	for _, token := range f.tokens {
		if token.UserID == userID && token.RevokedAt == nil {
			token.RevokedAt = &now
		}
	}
	return nil
}

func (f *fakeTokenRepo) DeleteExpired(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted int64
	now := time.Now()
	for id, token := range f.tokens {
		if token.ExpiresAt.Before(now) {
			delete(f.tokens, id)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeTokenRepo) liveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	live := 0
	for _, token := range f.tokens {
		if token.RevokedAt == nil {
			live++
		}
	}
	return live
}

type authFixture struct {
	svc    *service.AuthService
	users  *fakeUserRepo
	tokens *fakeTokenRepo
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := cache.NewRedisCache(mr.Addr())
	if err != nil {
		t.Fatalf("redis cache: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	users := newFakeUserRepo()
	tokens := newFakeTokenRepo()
	svc := service.NewAuthService(
		db.NewStaticProvider(nil),
		users,
		tokens,
		store,
		service.AuthServiceConfig{JWTSecret: []byte("0123456789abcdef0123456789abcdef")},
	)
	return &authFixture{svc: svc, users: users, tokens: tokens}
}

func (f *authFixture) register(t *testing.T, username, password string) service.AuthResult {
	t.Helper()
	result, err := f.svc.Register(context.Background(), service.RegisterInput{
		Username: username,
		Password: password,
	})
	if err != nil {
		t.Fatalf("Register(%s): %v", username, err)
	}
	return result
}

func TestRegisterIssuesTokenPair(t *testing.T) {
	f := newAuthFixture(t)

	result := f.register(t, "alice", "Password1")

	if result.User.Username != "alice" || result.User.ID == "" {
		t.Errorf("user info = %+v", result.User)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatal("missing tokens in register result")
	}
	if !result.RefreshExpiresAt.After(result.AccessExpiresAt) {
		t.Error("refresh token expires before access token")
	}

	tm := f.svc.TokenManager()
	access, err := tm.Parse(result.AccessToken, service.TokenTypeAccess)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if access.Username != "alice" || access.Subject != result.User.ID {
		t.Errorf("access claims = %+v", access)
	}

	refresh, err := tm.Parse(result.RefreshToken, service.TokenTypeRefresh)
	if err != nil {
		t.Fatalf("parse refresh token: %v", err)
	}
	if _, err := f.tokens.GetByTokenID(context.Background(), nil, refresh.ID); err != nil {
		t.Errorf("refresh jti %q has no database record: %v", refresh.ID, err)
	}
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "alice", "Password1")

	_, err := f.svc.Register(context.Background(), service.RegisterInput{
		Username: "alice",
		Password: "Password2",
	})
	if !appErr.Is(err, appErr.UsernameAlreadyExists) {
		t.Errorf("duplicate register error = %v, want UsernameAlreadyExists", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		want     appErr.ErrorCode
	}{
		{"username with spaces", "bad name", "Password1", appErr.InvalidUsername},
		{"guest prefix reserved", "guest-abcd", "Password1", appErr.ReservedUsername},
		{"system name reserved", "admin", "Password1", appErr.ReservedUsername},
		{"password too short", "alice", "Pw1", appErr.PasswordTooWeak},
		{"password without digits", "alice", "OnlyLetters", appErr.PasswordTooWeak},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture(t)
			_, err := f.svc.Register(context.Background(), service.RegisterInput{
				Username: tt.username,
				Password: tt.password,
			})
			if !appErr.Is(err, tt.want) {
				t.Errorf("Register error = %v, want code %d", err, tt.want)
			}
		})
	}
}

func TestLoginWrongPasswordThenSuccess(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "alice", "Password1")

	_, err := f.svc.Login(context.Background(), service.LoginInput{
		Username: "alice", Password: "WrongPass1", IP: "10.0.0.1",
	})
	if !appErr.Is(err, appErr.InvalidCredentials) {
		t.Fatalf("wrong password error = %v, want InvalidCredentials", err)
	}

	result, err := f.svc.Login(context.Background(), service.LoginInput{
		Username: "alice", Password: "Password1", IP: "10.0.0.1",
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if result.User.Username != "alice" {
		t.Errorf("login user = %+v", result.User)
	}
}

func TestLoginUnknownUserLooksLikeWrongPassword(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Login(context.Background(), service.LoginInput{
		Username: "nobody", Password: "Password1", IP: "10.0.0.1",
	})
	if !appErr.Is(err, appErr.InvalidCredentials) {
		t.Errorf("unknown user error = %v, want InvalidCredentials", err)
	}
}

func TestLoginLockedAfterRepeatedFailures(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "alice", "Password1")

	for i := 0; i < 5; i++ {
		_, err := f.svc.Login(context.Background(), service.LoginInput{
			Username: "alice", Password: "WrongPass1", IP: "10.0.0.1",
		})
		if !appErr.Is(err, appErr.InvalidCredentials) {
			t.Fatalf("attempt %d error = %v", i, err)
		}
	}

	// Even the right password is refused once the limit is hit.
	_, err := f.svc.Login(context.Background(), service.LoginInput{
		Username: "alice", Password: "Password1", IP: "10.0.0.1",
	})
	if !appErr.Is(err, appErr.TooManyRequests) {
		t.Errorf("locked login error = %v, want TooManyRequests", err)
	}

	// A different address is not affected.
	if _, err := f.svc.Login(context.Background(), service.LoginInput{
		Username: "alice", Password: "Password1", IP: "10.0.0.2",
	}); err != nil {
		t.Errorf("login from other address: %v", err)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	f := newAuthFixture(t)
	first := f.register(t, "alice", "Password1")

	second, err := f.svc.Refresh(context.Background(), service.RefreshInput{RefreshToken: first.RefreshToken})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Error("refresh returned the same token")
	}
	if second.User.ID != first.User.ID {
		t.Errorf("rotated token user = %s, want %s", second.User.ID, first.User.ID)
	}
	if live := f.tokens.liveCount(); live != 1 {
		t.Errorf("%d live refresh tokens after rotation, want 1", live)
	}
}

func TestRefreshReplayBurnsAllTokens(t *testing.T) {
	f := newAuthFixture(t)
	first := f.register(t, "alice", "Password1")

	if _, err := f.svc.Refresh(context.Background(), service.RefreshInput{RefreshToken: first.RefreshToken}); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// Replaying the consumed token must fail and revoke the whole family.
	_, err := f.svc.Refresh(context.Background(), service.RefreshInput{RefreshToken: first.RefreshToken})
	if !appErr.Is(err, appErr.RefreshTokenRevoked) {
		t.Fatalf("replay error = %v, want RefreshTokenRevoked", err)
	}
	if f.tokens.revokeAllCalls != 1 {
		t.Errorf("revoke-all called %d times, want 1", f.tokens.revokeAllCalls)
	}
	if live := f.tokens.liveCount(); live != 0 {
		t.Errorf("%d live tokens after replay detection, want 0", live)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	f := newAuthFixture(t)
	result := f.register(t, "alice", "Password1")

	_, err := f.svc.Refresh(context.Background(), service.RefreshInput{RefreshToken: result.AccessToken})
	if !appErr.Is(err, appErr.TokenInvalid) {
		t.Errorf("refresh with access token error = %v, want TokenInvalid", err)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newAuthFixture(t)
	result := f.register(t, "alice", "Password1")

	input := service.LogoutInput{RefreshToken: result.RefreshToken}
	if err := f.svc.Logout(context.Background(), input); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if err := f.svc.Logout(context.Background(), input); err != nil {
		t.Errorf("second Logout = %v, want nil", err)
	}
	if live := f.tokens.liveCount(); live != 0 {
		t.Errorf("%d live tokens after logout, want 0", live)
	}
}

func TestExpiredAccessTokenRejected(t *testing.T) {
	tm := service.NewTokenManager([]byte("0123456789abcdef0123456789abcdef"), "bitbattle", -time.Minute, time.Hour)
	signed, _, err := tm.IssueAccess(&model.User{ID: "uid-1", Username: "alice"})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	_, err = tm.Parse(signed, service.TokenTypeAccess)
	if !appErr.Is(err, appErr.TokenExpired) {
		t.Errorf("expired token error = %v, want TokenExpired", err)
	}
}

func TestTamperedTokenRejected(t *testing.T) {
	tm := service.NewTokenManager([]byte("0123456789abcdef0123456789abcdef"), "bitbattle", time.Hour, time.Hour)
	other := service.NewTokenManager([]byte("ffffffffffffffffffffffffffffffff"), "bitbattle", time.Hour, time.Hour)

	signed, _, err := tm.IssueAccess(&model.User{ID: "uid-1", Username: "alice"})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := other.Parse(signed, service.TokenTypeAccess); !appErr.Is(err, appErr.TokenInvalid) {
		t.Errorf("token signed with other secret parsed: %v", err)
	}
}

func TestCleanupExpiredTokens(t *testing.T) {
	f := newAuthFixture(t)

	expired := &model.RefreshToken{UserID: "uid-1", TokenID: "jti-old", ExpiresAt: time.Now().Add(-time.Hour)}
	live := &model.RefreshToken{UserID: "uid-1", TokenID: "jti-new", ExpiresAt: time.Now().Add(time.Hour)}
	if err := f.tokens.Create(context.Background(), nil, expired); err != nil {
		t.Fatal(err)
	}
	if err := f.tokens.Create(context.Background(), nil, live); err != nil {
		t.Fatal(err)
	}

	deleted, err := f.svc.CleanupExpiredTokens(context.Background())
	if err != nil {
		t.Fatalf("CleanupExpiredTokens: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted %d tokens, want 1", deleted)
	}
}
