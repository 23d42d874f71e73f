// Package repository holds the PostgreSQL persistence for accounts, refresh
// tokens and player statistics. Reads that sit on the hot path go through a
// Redis read-through cache with null caching to absorb lookups for names
// that do not exist.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bitbattle/internal/common/cache"
	"bitbattle/internal/common/db"
	"bitbattle/internal/user/model"
)

type UserRepository interface {
	// Create inserts the account and its empty stats row, filling in the
	// generated id and timestamps.
	Create(ctx context.Context, tx db.Transaction, user *model.User) error
	GetByID(ctx context.Context, tx db.Transaction, id string) (*model.User, error)
	GetByUsername(ctx context.Context, tx db.Transaction, username string) (*model.User, error)
}

type PostgresUserRepository struct {
	dbProvider db.Provider
	cache      cache.Cache
	ttl        time.Duration
	emptyTTL   time.Duration
}

func NewUserRepository(provider db.Provider, cacheClient cache.Cache) UserRepository {
	return NewUserRepositoryWithTTL(provider, cacheClient, defaultUserCacheTTL, defaultUserCacheEmptyTTL)
}

func NewUserRepositoryWithTTL(provider db.Provider, cacheClient cache.Cache, ttl, emptyTTL time.Duration) UserRepository {
	if ttl <= 0 {
		ttl = defaultUserCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultUserCacheEmptyTTL
	}
	return &PostgresUserRepository{
		dbProvider: provider,
		cache:      cacheClient,
		ttl:        ttl,
		emptyTTL:   emptyTTL,
	}
}

const userColumns = "id, username, password_hash, created_at, updated_at"

func (r *PostgresUserRepository) Create(ctx context.Context, tx db.Transaction, user *model.User) error {
	if user == nil {
		return errors.New("user is nil")
	}

	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return err
	}

	query := "INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING id, created_at, updated_at"
	row := querier.QueryRow(ctx, query, user.Username, user.PasswordHash)
	if err := row.Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if _, ok := db.UniqueViolation(err); ok {
			return ErrUsernameExists
		}
		return err
	}

	// Every account gets a stats row up front so game writes and profile
	// reads never have to special-case a missing one.
	if _, err := querier.Exec(ctx, "INSERT INTO user_stats (user_id) VALUES ($1)", user.ID); err != nil {
		return err
	}

	if r.cache != nil {
		r.setCache(ctx, user)
	}
	return nil
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, tx db.Transaction, id string) (*model.User, error) {
	if r.cache != nil && tx == nil {
		user, err := cache.GetWithCached[*model.User](
			ctx,
			r.cache,
			userInfoKey(id),
			cache.JitterTTL(r.ttl),
			cache.JitterTTL(r.emptyTTL),
			func(user *model.User) bool { return user == nil },
			marshalUser,
			unmarshalUser,
			func(ctx context.Context) (*model.User, error) {
				user, err := r.getByIDFromDB(ctx, nil, id)
				if err != nil {
					if errors.Is(err, ErrUserNotFound) {
						return nil, nil
					}
					return nil, err
				}
				return user, nil
			},
		)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, ErrUserNotFound
		}
		return user, nil
	}
	return r.getByIDFromDB(ctx, tx, id)
}

func (r *PostgresUserRepository) GetByUsername(ctx context.Context, tx db.Transaction, username string) (*model.User, error) {
	if r.cache != nil && tx == nil {
		user, err := cache.GetWithCached[*model.User](
			ctx,
			r.cache,
			userUsernameKey(username),
			cache.JitterTTL(r.ttl),
			cache.JitterTTL(r.emptyTTL),
			func(user *model.User) bool { return user == nil },
			marshalUser,
			unmarshalUser,
			func(ctx context.Context) (*model.User, error) {
				user, err := r.getByUsernameFromDB(ctx, nil, username)
				if err != nil {
					if errors.Is(err, ErrUserNotFound) {
						return nil, nil
					}
					return nil, err
				}
				return user, nil
			},
		)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, ErrUserNotFound
		}
		return user, nil
	}
	return r.getByUsernameFromDB(ctx, tx, username)
}

const (
	userInfoKeyPrefix     = "user:info:"
	userUsernameKeyPrefix = "user:username:"

	defaultUserCacheTTL      = 30 * time.Minute
	defaultUserCacheEmptyTTL = 5 * time.Minute
)

func (r *PostgresUserRepository) getByIDFromDB(ctx context.Context, tx db.Transaction, id string) (*model.User, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + userColumns + " FROM users WHERE id = $1"
	row := querier.QueryRow(ctx, query, id)
	user, err := scanUser(row)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (r *PostgresUserRepository) getByUsernameFromDB(ctx context.Context, tx db.Transaction, username string) (*model.User, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + userColumns + " FROM users WHERE username = $1"
	row := querier.QueryRow(ctx, query, username)
	user, err := scanUser(row)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (r *PostgresUserRepository) setCache(ctx context.Context, user *model.User) {
	if r.cache == nil || user == nil {
		return
	}
	data := marshalUser(user)
	if data == "" {
		return
	}
	_ = r.cache.Set(ctx, userInfoKey(user.ID), data, cache.JitterTTL(r.ttl))
	if user.Username != "" {
		_ = r.cache.Set(ctx, userUsernameKey(user.Username), data, cache.JitterTTL(r.ttl))
	}
}

func userInfoKey(id string) string {
	return userInfoKeyPrefix + id
}

func userUsernameKey(username string) string {
	return fmt.Sprintf("%s%s", userUsernameKeyPrefix, username)
}

func marshalUser(user *model.User) string {
	payload, err := json.Marshal(struct {
		ID           string    `json:"id"`
		Username     string    `json:"username"`
		PasswordHash string    `json:"password_hash"`
		CreatedAt    time.Time `json:"created_at"`
		UpdatedAt    time.Time `json:"updated_at"`
	}{user.ID, user.Username, user.PasswordHash, user.CreatedAt, user.UpdatedAt})
	if err != nil {
		return ""
	}
	return string(payload)
}

func unmarshalUser(data string) (*model.User, error) {
	if data == "" {
		return nil, nil
	}
	var cached struct {
		ID           string    `json:"id"`
		Username     string    `json:"username"`
		PasswordHash string    `json:"password_hash"`
		CreatedAt    time.Time `json:"created_at"`
		UpdatedAt    time.Time `json:"updated_at"`
	}
	if err := json.Unmarshal([]byte(data), &cached); err != nil {
		return nil, err
	}
	return &model.User{
		ID:           cached.ID,
		Username:     cached.Username,
		PasswordHash: cached.PasswordHash,
		CreatedAt:    cached.CreatedAt,
		UpdatedAt:    cached.UpdatedAt,
	}, nil
}

func scanUser(scanner db.Scanner) (*model.User, error) {
	var user model.User
	err := scanner.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
