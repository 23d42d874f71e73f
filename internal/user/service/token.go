package service

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"bitbattle/internal/user/model"
	pkgerrors "bitbattle/pkg/errors"
)

const (
	// TokenTypeAccess marks short-lived tokens accepted by the API and
	// WebSocket surfaces.
	TokenTypeAccess = "access"

	// TokenTypeRefresh marks tokens that can only be exchanged at the
	// refresh endpoint. Each one is tracked in the database by its jti.
	TokenTypeRefresh = "refresh"
)

// TokenClaims is the JWT payload for both token types. Access tokens carry
// the username so handlers can resolve the caller without a lookup; refresh
// tokens carry a jti instead.
type TokenClaims struct {
	Username  string `json:"username,omitempty"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies the HS256 tokens used by the auth flow.
type TokenManager struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewTokenManager(secret []byte, issuer string, accessTTL, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{
		secret:     secret,
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// IssueAccess signs a short-lived access token for the user.
func (m *TokenManager) IssueAccess(user *model.User) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(m.accessTTL)
	claims := TokenClaims{
		Username:  user.Username,
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, pkgerrors.Wrap(fmt.Errorf("sign access token: %w", err), pkgerrors.TokenGenerationFailed)
	}
	return signed, expiresAt, nil
}

// IssueRefresh signs a refresh token and returns its jti so the caller can
// record it.
func (m *TokenManager) IssueRefresh(user *model.User) (signed, tokenID string, expiresAt time.Time, err error) {
	now := time.Now()
	expiresAt = now.Add(m.refreshTTL)
	tokenID = uuid.NewString()
	claims := TokenClaims{
		TokenType: TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        tokenID,
		},
	}
	signed, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", "", time.Time{}, pkgerrors.Wrap(fmt.Errorf("sign refresh token: %w", err), pkgerrors.TokenGenerationFailed)
	}
	return signed, tokenID, expiresAt, nil
}

// Parse verifies signature, expiry and token type.
func (m *TokenManager) Parse(tokenString, wantType string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, pkgerrors.New(pkgerrors.TokenExpired)
		}
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if claims.TokenType != wantType || claims.Subject == "" {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	return claims, nil
}
