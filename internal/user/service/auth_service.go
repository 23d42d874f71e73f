// Package service implements registration, login and token rotation for
// player accounts, plus the read side of profiles and leaderboards.
package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	"bitbattle/internal/common/cache"
	"bitbattle/internal/common/db"
	"bitbattle/internal/user/model"
	"bitbattle/internal/user/repository"
	pkgerrors "bitbattle/pkg/errors"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
	defaultLoginFailTTL    = 15 * time.Minute
	defaultLoginFailLimit  = 5
)

// AuthServiceConfig holds configuration for AuthService.
type AuthServiceConfig struct {
	JWTSecret       []byte
	JWTIssuer       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	LoginFailTTL    time.Duration
	LoginFailLimit  int
}

// AuthService handles account authentication flows.
type AuthService struct {
	dbProvider     db.Provider
	users          repository.UserRepository
	tokens         repository.RefreshTokenRepository
	loginFailCache cache.BasicOps
	tokenManager   *TokenManager
	config         AuthServiceConfig
}

// NewAuthService creates a new AuthService.
func NewAuthService(
	provider db.Provider,
	users repository.UserRepository,
	tokens repository.RefreshTokenRepository,
	loginFailCache cache.BasicOps,
	cfg AuthServiceConfig,
) *AuthService {
	if cfg.AccessTokenTTL == 0 {
		cfg.AccessTokenTTL = defaultAccessTokenTTL
	}
	if cfg.RefreshTokenTTL == 0 {
		cfg.RefreshTokenTTL = defaultRefreshTokenTTL
	}
	if cfg.LoginFailTTL == 0 {
		cfg.LoginFailTTL = defaultLoginFailTTL
	}
	if cfg.LoginFailLimit == 0 {
		cfg.LoginFailLimit = defaultLoginFailLimit
	}
	if cfg.JWTIssuer == "" {
		cfg.JWTIssuer = "bitbattle"
	}

	return &AuthService{
		dbProvider:     provider,
		users:          users,
		tokens:         tokens,
		loginFailCache: loginFailCache,
		tokenManager:   NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
		config:         cfg,
	}
}

// TokenManager exposes the verifier so the auth middleware can parse access
// tokens with the same settings the service signs them with.
func (s *AuthService) TokenManager() *TokenManager {
	return s.tokenManager
}

// RegisterInput represents input for user registration.
type RegisterInput struct {
	Username string
	Password string
}

// LoginInput represents input for user login.
type LoginInput struct {
	Username  string
	Password  string
	IP        string
	UserAgent string
}

// RefreshInput represents input for token refresh.
type RefreshInput struct {
	RefreshToken string
}

// LogoutInput represents input for logout.
type LogoutInput struct {
	RefreshToken string
}

// UserInfo represents basic user info for auth responses.
type UserInfo struct {
	ID       string
	Username string
}

// AuthResult represents the result of auth operations.
type AuthResult struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	User             UserInfo
}

// Register creates a new account and issues its first token pair.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	username, err := validateAccountUsername(input.Username)
	if err != nil {
		return AuthResult{}, err
	}
	if err := validateNewPassword(input.Password); err != nil {
		return AuthResult{}, err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return AuthResult{}, pkgerrors.Wrap(fmt.Errorf("hash password failed: %w", err), pkgerrors.InternalServerError)
	}

	user := &model.User{
		Username:     username,
		PasswordHash: string(passwordHash),
	}

	var result AuthResult
	err = s.withTransaction(ctx, func(tx db.Transaction) error {
		if createErr := s.users.Create(ctx, tx, user); createErr != nil {
			return mapUserCreateError(createErr)
		}
		resultData, tokenErr := s.issueTokens(ctx, tx, user, "", "")
		if tokenErr != nil {
			return tokenErr
		}
		result = resultData
		return nil
	})
	if err != nil {
		return AuthResult{}, err
	}
	return result, nil
}

// Login verifies credentials and issues tokens.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	username, err := validateAccountUsername(input.Username)
	if err != nil {
		return AuthResult{}, err
	}
	if err := validateLoginPassword(input.Password); err != nil {
		return AuthResult{}, err
	}

	if err := s.checkLoginLimit(ctx, username, input.IP); err != nil {
		return AuthResult{}, err
	}

	user, err := s.users.GetByUsername(ctx, nil, username)
	if err != nil {
		if stderrors.Is(err, repository.ErrUserNotFound) {
			s.recordLoginFailure(ctx, username, input.IP)
			return AuthResult{}, pkgerrors.New(pkgerrors.InvalidCredentials)
		}
		return AuthResult{}, pkgerrors.Wrap(fmt.Errorf("get user failed: %w", err), pkgerrors.DatabaseError)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		s.recordLoginFailure(ctx, username, input.IP)
		return AuthResult{}, pkgerrors.New(pkgerrors.InvalidCredentials)
	}

	s.clearLoginFailure(ctx, username, input.IP)

	var result AuthResult
	err = s.withTransaction(ctx, func(tx db.Transaction) error {
		tokenResult, tokenErr := s.issueTokens(ctx, tx, user, input.UserAgent, input.IP)
		if tokenErr != nil {
			return tokenErr
		}
		result = tokenResult
		return nil
	})
	if err != nil {
		return AuthResult{}, err
	}
	return result, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is issued. Presenting an already-revoked token is treated as a
// replay and burns every live token of that user.
func (s *AuthService) Refresh(ctx context.Context, input RefreshInput) (AuthResult, error) {
	claims, err := s.tokenManager.Parse(input.RefreshToken, TokenTypeRefresh)
	if err != nil {
		return AuthResult{}, err
	}

	record, err := s.tokens.GetByTokenID(ctx, nil, claims.ID)
	if err != nil {
		if stderrors.Is(err, repository.ErrTokenNotFound) {
			return AuthResult{}, pkgerrors.New(pkgerrors.TokenInvalid)
		}
		return AuthResult{}, pkgerrors.Wrap(fmt.Errorf("get refresh token failed: %w", err), pkgerrors.DatabaseError)
	}

	if record.UserID != claims.Subject {
		return AuthResult{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if record.Revoked() {
		_ = s.tokens.RevokeAllForUser(ctx, nil, record.UserID)
		return AuthResult{}, pkgerrors.New(pkgerrors.RefreshTokenRevoked)
	}
	if time.Now().After(record.ExpiresAt) {
		return AuthResult{}, pkgerrors.New(pkgerrors.TokenExpired)
	}

	var result AuthResult
	err = s.withTransaction(ctx, func(tx db.Transaction) error {
		if err := s.tokens.Revoke(ctx, tx, record.TokenID); err != nil {
			if stderrors.Is(err, repository.ErrTokenNotFound) {
				return pkgerrors.New(pkgerrors.TokenInvalid)
			}
			return pkgerrors.Wrap(fmt.Errorf("revoke refresh token failed: %w", err), pkgerrors.DatabaseError)
		}

		user, err := s.getUserByID(ctx, record.UserID)
		if err != nil {
			return err
		}

		userAgent := ""
		if record.UserAgent != nil {
			userAgent = *record.UserAgent
		}
		ip := ""
		if record.IPAddress != nil {
			ip = *record.IPAddress
		}

		tokenResult, tokenErr := s.issueTokens(ctx, tx, user, userAgent, ip)
		if tokenErr != nil {
			return tokenErr
		}
		result = tokenResult
		return nil
	})
	return result, err
}

// Logout revokes a refresh token. Revoking a token that is already revoked
// is a no-op.
func (s *AuthService) Logout(ctx context.Context, input LogoutInput) error {
	claims, err := s.tokenManager.Parse(input.RefreshToken, TokenTypeRefresh)
	if err != nil {
		return err
	}

	record, err := s.tokens.GetByTokenID(ctx, nil, claims.ID)
	if err != nil {
		if stderrors.Is(err, repository.ErrTokenNotFound) {
			return pkgerrors.New(pkgerrors.TokenInvalid)
		}
		return pkgerrors.Wrap(fmt.Errorf("get refresh token failed: %w", err), pkgerrors.DatabaseError)
	}

	if record.UserID != claims.Subject {
		return pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if record.Revoked() {
		return nil
	}

	if err := s.tokens.Revoke(ctx, nil, record.TokenID); err != nil {
		if stderrors.Is(err, repository.ErrTokenNotFound) {
			return nil
		}
		return pkgerrors.Wrap(fmt.Errorf("revoke refresh token failed: %w", err), pkgerrors.DatabaseError)
	}
	return nil
}

// Me resolves the authenticated caller's account.
func (s *AuthService) Me(ctx context.Context, userID string) (*model.User, error) {
	return s.getUserByID(ctx, userID)
}

// CleanupExpiredTokens deletes refresh token rows past their expiry. Run
// periodically; expired tokens fail signature checks regardless.
func (s *AuthService) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	deleted, err := s.tokens.DeleteExpired(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(fmt.Errorf("delete expired tokens failed: %w", err), pkgerrors.DatabaseError)
	}
	return deleted, nil
}

func (s *AuthService) withTransaction(ctx context.Context, fn func(tx db.Transaction) error) error {
	database, err := db.CurrentDatabase(s.dbProvider)
	if err != nil {
		return fn(nil)
	}
	if err := database.Transaction(ctx, fn); err != nil {
		if _, ok := err.(*pkgerrors.Error); ok {
			return err
		}
		return pkgerrors.Wrap(fmt.Errorf("transaction failed: %w", err), pkgerrors.TransactionFailed)
	}
	return nil
}

func (s *AuthService) issueTokens(ctx context.Context, tx db.Transaction, user *model.User, userAgent, ip string) (AuthResult, error) {
	accessToken, accessExp, err := s.tokenManager.IssueAccess(user)
	if err != nil {
		return AuthResult{}, err
	}
	refreshToken, tokenID, refreshExp, err := s.tokenManager.IssueRefresh(user)
	if err != nil {
		return AuthResult{}, err
	}

	record := &model.RefreshToken{
		UserID:    user.ID,
		TokenID:   tokenID,
		ExpiresAt: refreshExp,
	}
	if userAgent != "" {
		record.UserAgent = &userAgent
	}
	if ip != "" {
		record.IPAddress = &ip
	}
	if err := s.tokens.Create(ctx, tx, record); err != nil {
		return AuthResult{}, pkgerrors.Wrap(fmt.Errorf("create refresh token record failed: %w", err), pkgerrors.DatabaseError)
	}

	return AuthResult{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		User: UserInfo{
			ID:       user.ID,
			Username: user.Username,
		},
	}, nil
}

func (s *AuthService) getUserByID(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetByID(ctx, nil, userID)
	if err != nil {
		if stderrors.Is(err, repository.ErrUserNotFound) {
			return nil, pkgerrors.New(pkgerrors.UserNotFound)
		}
		return nil, pkgerrors.Wrap(fmt.Errorf("get user failed: %w", err), pkgerrors.DatabaseError)
	}
	return user, nil
}

func (s *AuthService) checkLoginLimit(ctx context.Context, username, ip string) error {
	if s.loginFailCache == nil {
		return nil
	}
	value, err := s.loginFailCache.Get(ctx, loginFailKey(username, ip))
	if err != nil || value == "" {
		return nil
	}
	count, err := strconv.Atoi(value)
	if err != nil {
		return nil
	}
	if count >= s.config.LoginFailLimit {
		return pkgerrors.New(pkgerrors.TooManyRequests).
			WithMessage("Too many failed login attempts, try again later")
	}
	return nil
}

func (s *AuthService) recordLoginFailure(ctx context.Context, username, ip string) {
	if s.loginFailCache == nil {
		return
	}
	key := loginFailKey(username, ip)
	count, err := s.loginFailCache.Incr(ctx, key)
	if err != nil {
		return
	}
	if count == 1 {
		_ = s.loginFailCache.Expire(ctx, key, s.config.LoginFailTTL)
	}
}

func (s *AuthService) clearLoginFailure(ctx context.Context, username, ip string) {
	if s.loginFailCache == nil {
		return
	}
	_ = s.loginFailCache.Del(ctx, loginFailKey(username, ip))
}

func loginFailKey(username, ip string) string {
	return fmt.Sprintf("login:fail:%s:%s", username, ip)
}

func mapUserCreateError(err error) error {
	if stderrors.Is(err, repository.ErrUsernameExists) {
		return pkgerrors.New(pkgerrors.UsernameAlreadyExists)
	}
	if stderrors.Is(err, repository.ErrDuplicate) {
		return pkgerrors.New(pkgerrors.RecordAlreadyExists)
	}
	return pkgerrors.Wrap(fmt.Errorf("create user failed: %w", err), pkgerrors.DatabaseError)
}
