package db

import (
	"context"
	"errors"
	"fmt"

	"spotx/internal/models"
	"spotx/internal/money"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// DB wraps a PostgreSQL connection pool. Every operation that takes row
// locks receives an explicit pgx.Tx; the caller owns transaction scope.
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	db.Pool.Close()
}

// WithTx runs fn inside a transaction, committing on nil and rolling back
// on error. Row locks taken by fn are held until the transaction ends.
func (db *DB) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// TryBookLock attempts the per-symbol matching lock. It is scoped to the
// transaction (released automatically at commit or rollback) and never
// blocks: false means another match attempt holds the book.
func (db *DB) TryBookLock(ctx context.Context, tx pgx.Tx, symbol string) (bool, error) {
	var acquired bool
	err := tx.QueryRow(ctx,
		"SELECT pg_try_advisory_xact_lock(hashtext($1))",
		"orderbook:"+symbol).Scan(&acquired)
	if err != nil {
		return false, fmt.Errorf("failed to acquire book lock: %w", err)
	}
	return acquired, nil
}

// CreateUser inserts a new user with a zero balance.
func (db *DB) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	user := &models.User{}
	var balance string
	err := db.Pool.QueryRow(ctx,
		"INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING id, username, password_hash, balance::text, created_at",
		username, passwordHash).Scan(&user.ID, &user.Username, &user.PasswordHash, &balance, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	if user.Balance, err = money.Parse(balance); err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return db.scanUser(db.Pool.QueryRow(ctx,
		"SELECT id, username, password_hash, balance::text, created_at FROM users WHERE username = $1",
		username))
}

// GetUserByID retrieves a user by id
func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return db.scanUser(db.Pool.QueryRow(ctx,
		"SELECT id, username, password_hash, balance::text, created_at FROM users WHERE id = $1",
		id))
}

// GetUserForUpdate locks a user row for the duration of the transaction.
func (db *DB) GetUserForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.User, error) {
	return db.scanUser(tx.QueryRow(ctx,
		"SELECT id, username, password_hash, balance::text, created_at FROM users WHERE id = $1 FOR UPDATE",
		id))
}

// SetUserBalance writes a balance computed under the user's row lock.
func (db *DB) SetUserBalance(ctx context.Context, tx pgx.Tx, id int64, balance decimal.Decimal) error {
	tag, err := tx.Exec(ctx,
		"UPDATE users SET balance = $1 WHERE id = $2",
		money.String(balance), id)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %d not found", id)
	}
	return nil
}

func (db *DB) scanUser(row pgx.Row) (*models.User, error) {
	user := &models.User{}
	var balance string
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &balance, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user.Balance, err = money.Parse(balance); err != nil {
		return nil, err
	}
	return user, nil
}

// GetAssetForUpdate locks the (user, symbol) asset row. It returns nil
// without error when the user holds no row for the symbol.
func (db *DB) GetAssetForUpdate(ctx context.Context, tx pgx.Tx, userID int64, symbol string) (*models.Asset, error) {
	asset, err := scanAsset(tx.QueryRow(ctx,
		"SELECT id, user_id, symbol, amount::text, locked_amount::text, created_at, updated_at FROM assets WHERE user_id = $1 AND symbol = $2 FOR UPDATE",
		userID, symbol))
	if err != nil {
		return nil, err
	}
	return asset, nil
}

// GetOrCreateAssetForUpdate locks the asset row, creating it with zero
// amounts first if the user has never held the symbol.
func (db *DB) GetOrCreateAssetForUpdate(ctx context.Context, tx pgx.Tx, userID int64, symbol string) (*models.Asset, error) {
	asset, err := db.GetAssetForUpdate(ctx, tx, userID, symbol)
	if err != nil || asset != nil {
		return asset, err
	}

	asset, err = scanAsset(tx.QueryRow(ctx,
		"INSERT INTO assets (user_id, symbol) VALUES ($1, $2) RETURNING id, user_id, symbol, amount::text, locked_amount::text, created_at, updated_at",
		userID, symbol))
	if err != nil {
		return nil, fmt.Errorf("failed to create asset: %w", err)
	}
	return asset, nil
}

// SetAssetAmounts writes free and locked amounts computed under the
// asset's row lock.
func (db *DB) SetAssetAmounts(ctx context.Context, tx pgx.Tx, id int64, amount, lockedAmount decimal.Decimal) error {
	tag, err := tx.Exec(ctx,
		"UPDATE assets SET amount = $1, locked_amount = $2, updated_at = NOW() WHERE id = $3",
		money.String(amount), money.String(lockedAmount), id)
	if err != nil {
		return fmt.Errorf("failed to update asset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("asset %d not found", id)
	}
	return nil
}

// GetUserAssets retrieves all asset rows for a user.
func (db *DB) GetUserAssets(ctx context.Context, userID int64) ([]models.Asset, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT id, user_id, symbol, amount::text, locked_amount::text, created_at, updated_at FROM assets WHERE user_id = $1 ORDER BY symbol",
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user assets: %w", err)
	}
	defer rows.Close()

	var assets []models.Asset
	for rows.Next() {
		asset, err := scanAssetValues(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, *asset)
	}
	return assets, rows.Err()
}

func scanAsset(row pgx.Row) (*models.Asset, error) {
	asset, err := scanAssetValues(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return asset, nil
}

func scanAssetValues(row pgx.Row) (*models.Asset, error) {
	asset := &models.Asset{}
	var amount, locked string
	err := row.Scan(&asset.ID, &asset.UserID, &asset.Symbol, &amount, &locked, &asset.CreatedAt, &asset.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if asset.Amount, err = money.Parse(amount); err != nil {
		return nil, err
	}
	if asset.LockedAmount, err = money.Parse(locked); err != nil {
		return nil, err
	}
	return asset, nil
}
