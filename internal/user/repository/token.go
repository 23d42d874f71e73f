package repository

import (
	"context"
	"database/sql"
	"errors"

	"bitbattle/internal/common/db"
	"bitbattle/internal/user/model"
)

// RefreshTokenRepository stores one row per issued refresh token, keyed by
// the token's jti claim. Revocation writes revoked_at; the signed token
// itself never touches the database.
type RefreshTokenRepository interface {
	Create(ctx context.Context, tx db.Transaction, token *model.RefreshToken) error
	GetByTokenID(ctx context.Context, tx db.Transaction, tokenID string) (*model.RefreshToken, error)

	// Revoke marks a live token revoked. Returns ErrTokenNotFound when the
	// token does not exist or was already revoked, so rotation can detect
	// replays.
	Revoke(ctx context.Context, tx db.Transaction, tokenID string) error

	// RevokeAllForUser invalidates every live token of one user.
	RevokeAllForUser(ctx context.Context, tx db.Transaction, userID string) error

	// DeleteExpired removes rows whose tokens can no longer verify anyway.
	DeleteExpired(ctx context.Context) (int64, error)
}

type PostgresRefreshTokenRepository struct {
	dbProvider db.Provider
}

func NewRefreshTokenRepository(provider db.Provider) RefreshTokenRepository {
	return &PostgresRefreshTokenRepository{dbProvider: provider}
}

const refreshTokenColumns = "id, user_id, token_id, expires_at, created_at, revoked_at, user_agent, ip_address"

func (r *PostgresRefreshTokenRepository) Create(ctx context.Context, tx db.Transaction, token *model.RefreshToken) error {
	if token == nil {
		return errors.New("token is nil")
	}
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return err
	}

	userAgent := sql.NullString{}
	if token.UserAgent != nil {
		userAgent = sql.NullString{String: *token.UserAgent, Valid: true}
	}
	ipAddress := sql.NullString{}
	if token.IPAddress != nil {
		ipAddress = sql.NullString{String: *token.IPAddress, Valid: true}
	}

	query := "INSERT INTO refresh_tokens (user_id, token_id, expires_at, user_agent, ip_address) VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at"
	row := querier.QueryRow(ctx, query, token.UserID, token.TokenID, token.ExpiresAt, userAgent, ipAddress)
	if err := row.Scan(&token.ID, &token.CreatedAt); err != nil {
		if _, ok := db.UniqueViolation(err); ok {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *PostgresRefreshTokenRepository) GetByTokenID(ctx context.Context, tx db.Transaction, tokenID string) (*model.RefreshToken, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + refreshTokenColumns + " FROM refresh_tokens WHERE token_id = $1"
	row := querier.QueryRow(ctx, query, tokenID)
	token, err := scanRefreshToken(row)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return token, nil
}

func (r *PostgresRefreshTokenRepository) Revoke(ctx context.Context, tx db.Transaction, tokenID string) error {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return err
	}
	query := "UPDATE refresh_tokens SET revoked_at = NOW() WHERE token_id = $1 AND revoked_at IS NULL"
	result, err := querier.Exec(ctx, query, tokenID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTokenNotFound
	}
	return nil
}

func (r *PostgresRefreshTokenRepository) RevokeAllForUser(ctx context.Context, tx db.Transaction, userID string) error {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return err
	}
	query := "UPDATE refresh_tokens SET revoked_at = NOW() WHERE user_id = $1 AND revoked_at IS NULL"
	_, err = querier.Exec(ctx, query, userID)
	return err
}

func (r *PostgresRefreshTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, nil)
	if err != nil {
		return 0, err
	}
	result, err := querier.Exec(ctx, "DELETE FROM refresh_tokens WHERE expires_at < NOW()")
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanRefreshToken(scanner db.Scanner) (*model.RefreshToken, error) {
	var token model.RefreshToken
	var revokedAt sql.NullTime
	var userAgent sql.NullString
	var ipAddress sql.NullString

	err := scanner.Scan(
		&token.ID,
		&token.UserID,
		&token.TokenID,
		&token.ExpiresAt,
		&token.CreatedAt,
		&revokedAt,
		&userAgent,
		&ipAddress,
	)
	if err != nil {
		return nil, err
	}

	if revokedAt.Valid {
		token.RevokedAt = &revokedAt.Time
	}
	if userAgent.Valid {
		token.UserAgent = &userAgent.String
	}
	if ipAddress.Valid {
		token.IPAddress = &ipAddress.String
	}
	return &token, nil
}
