// Package postgres provides a PostgreSQL implementation of the
// entitlement.Store interface. The debit path runs as a single SQL
// transaction with a conditional UPDATE, so the balance check and the debit
// collapse into one atomic step and a result is never billed without being
// persisted.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cygon23/caeerhub-platform-sub002/pkg/entitlement"
)

// Store implements entitlement.Store using PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL store configuration.
type Config struct {
	// ConnectionString is the PostgreSQL connection string (required).
	ConnectionString string

	// Pool configuration.
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// DefaultTier is assigned to entitlement rows created by Grant
	// (default: "free").
	DefaultTier string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		DefaultTier:     "free",
	}
}

// New creates a new PostgreSQL store.
func New(ctx context.Context, config Config) (*Store, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}
	if config.DefaultTier == "" {
		config.DefaultTier = "free"
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool, config: config}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// GetEntitlement implements entitlement.Store.
func (s *Store) GetEntitlement(ctx context.Context, userID string) (*entitlement.Entitlement, error) {
	ent := &entitlement.Entitlement{
		UserID:      userID,
		UsageCounts: make(map[string]int),
		UsageLimits: make(map[string]int),
	}

	err := s.pool.QueryRow(ctx,
		`SELECT credits_available, plan_tier, updated_at
			FROM entitlements WHERE user_id = $1`,
		userID).Scan(&ent.CreditsAvailable, &ent.PlanTier, &ent.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, entitlement.ErrEntitlementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entitlement: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT feature, usage_count, usage_limit
			FROM feature_usage WHERE user_id = $1`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get feature usage: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var feature string
		var count int
		var limit *int
		if err := rows.Scan(&feature, &count, &limit); err != nil {
			return nil, fmt.Errorf("failed to scan feature usage: %w", err)
		}
		ent.UsageCounts[feature] = count
		if limit != nil {
			ent.UsageLimits[feature] = *limit
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read feature usage: %w", err)
	}

	return ent, nil
}

// SetEntitlement implements entitlement.Store.
func (s *Store) SetEntitlement(ctx context.Context, ent *entitlement.Entitlement) error {
	if ent == nil || ent.UserID == "" {
		return fmt.Errorf("invalid entitlement")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx,
		`INSERT INTO entitlements (user_id, credits_available, plan_tier, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id) DO UPDATE SET
				credits_available = EXCLUDED.credits_available,
				plan_tier = EXCLUDED.plan_tier,
				updated_at = EXCLUDED.updated_at`,
		ent.UserID, ent.CreditsAvailable, ent.PlanTier, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set entitlement: %w", err)
	}

	for feature, limit := range ent.UsageLimits {
		l := limit
		_, err = tx.Exec(ctx,
			`INSERT INTO feature_usage (user_id, feature, usage_count, usage_limit)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (user_id, feature) DO UPDATE SET usage_limit = EXCLUDED.usage_limit`,
			ent.UserID, feature, ent.UsageCounts[feature], &l)
		if err != nil {
			return fmt.Errorf("failed to set usage limit: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Deduct implements entitlement.Store. Steps run inside one transaction:
// usage-limit check (FOR UPDATE), conditional debit, usage increment,
// ledger append, artifact upsert. Any failure rolls everything back.
func (s *Store) Deduct(ctx context.Context, req *entitlement.DeductRequest) (*entitlement.DeductResult, error) {
	if req.Amount < 0 {
		return nil, entitlement.ErrInvalidAmount
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// Ensure the usage row exists, then lock it for the limit check.
	_, err = tx.Exec(ctx,
		`INSERT INTO feature_usage (user_id, feature, usage_count)
			VALUES ($1, $2, 0)
			ON CONFLICT (user_id, feature) DO NOTHING`,
		req.UserID, req.Feature)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure usage row: %w", err)
	}

	var usageCount int
	var usageLimit *int
	err = tx.QueryRow(ctx,
		`SELECT usage_count, usage_limit FROM feature_usage
			WHERE user_id = $1 AND feature = $2 FOR UPDATE`,
		req.UserID, req.Feature).Scan(&usageCount, &usageLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to get usage for update: %w", err)
	}
	if usageLimit != nil && usageCount >= *usageLimit {
		return nil, entitlement.ErrUsageLimitExceeded
	}

	// Conditional debit: the balance check and the decrement are one
	// statement, so concurrent commits serialize on the row and the loser
	// sees no matching row instead of a negative balance.
	var newBalance int
	err = tx.QueryRow(ctx,
		`UPDATE entitlements
			SET credits_available = credits_available - $2, updated_at = $3
			WHERE user_id = $1 AND credits_available >= $2
			RETURNING credits_available`,
		req.UserID, req.Amount, time.Now().UTC()).Scan(&newBalance)
	if err == pgx.ErrNoRows {
		var exists bool
		checkErr := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM entitlements WHERE user_id = $1)`,
			req.UserID).Scan(&exists)
		if checkErr != nil {
			return nil, fmt.Errorf("failed to check entitlement: %w", checkErr)
		}
		if !exists {
			return nil, entitlement.ErrEntitlementNotFound
		}
		return nil, entitlement.ErrInsufficientCredits
	}
	if err != nil {
		return nil, fmt.Errorf("failed to debit credits: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE feature_usage SET usage_count = usage_count + 1
			WHERE user_id = $1 AND feature = $2`,
		req.UserID, req.Feature)
	if err != nil {
		return nil, fmt.Errorf("failed to increment usage: %w", err)
	}

	txnID, err := insertTransaction(ctx, tx, req.UserID, req.Feature, -req.Amount, req.ReferenceID, req.Metadata)
	if err != nil {
		return nil, err
	}

	if req.Artifact != nil {
		if err := upsertArtifact(ctx, tx, req.Artifact); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	return &entitlement.DeductResult{
		NewBalance:    newBalance,
		TransactionID: txnID,
	}, nil
}

// Grant implements entitlement.Store. A unique index on
// (user_id, reference_id) backs the duplicate-reference check, so
// concurrent webhook retries cannot double-grant.
func (s *Store) Grant(ctx context.Context, req *entitlement.GrantRequest) (*entitlement.GrantResult, error) {
	if req.Amount <= 0 {
		return nil, entitlement.ErrInvalidAmount
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var newBalance int
	err = tx.QueryRow(ctx,
		`INSERT INTO entitlements (user_id, credits_available, plan_tier, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id) DO UPDATE SET
				credits_available = entitlements.credits_available + EXCLUDED.credits_available,
				updated_at = EXCLUDED.updated_at
			RETURNING credits_available`,
		req.UserID, req.Amount, s.config.DefaultTier, time.Now().UTC()).Scan(&newBalance)
	if err != nil {
		return nil, fmt.Errorf("failed to grant credits: %w", err)
	}

	txnID, err := insertTransaction(ctx, tx, req.UserID, req.Feature, req.Amount, req.ReferenceID, req.Metadata)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, entitlement.ErrDuplicateReference
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	return &entitlement.GrantResult{
		NewBalance:    newBalance,
		TransactionID: txnID,
	}, nil
}

// GetTransactions implements entitlement.Store.
func (s *Store) GetTransactions(ctx context.Context, userID string, limit int) ([]*entitlement.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, feature, delta, reference_id, metadata, created_at
			FROM credit_transactions
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	var txns []*entitlement.Transaction
	for rows.Next() {
		txn := &entitlement.Transaction{UserID: userID}
		var metadata []byte
		if err := rows.Scan(&txn.ID, &txn.Feature, &txn.Delta, &txn.ReferenceID, &metadata, &txn.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &txn.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode transaction metadata: %w", err)
			}
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}

	return txns, nil
}

// SaveArtifact implements entitlement.Store.
func (s *Store) SaveArtifact(ctx context.Context, artifact *entitlement.Artifact) error {
	if artifact == nil || artifact.UserID == "" || artifact.Feature == "" {
		return fmt.Errorf("invalid artifact")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := upsertArtifact(ctx, tx, artifact); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetArtifact implements entitlement.Store.
func (s *Store) GetArtifact(ctx context.Context, userID, feature string) (*entitlement.Artifact, error) {
	artifact := &entitlement.Artifact{UserID: userID, Feature: feature}

	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, source, payload, created_at
			FROM generated_artifacts
			WHERE user_id = $1 AND feature = $2`,
		userID, feature).Scan(&artifact.ID, &artifact.Source, &payload, &artifact.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, entitlement.ErrArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	artifact.Payload = payload

	return artifact, nil
}

func insertTransaction(
	ctx context.Context, tx pgx.Tx,
	userID, feature string, delta int, referenceID string, metadata map[string]string,
) (string, error) {
	var metadataJSON []byte
	if len(metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(metadata)
		if err != nil {
			return "", fmt.Errorf("failed to encode metadata: %w", err)
		}
	}

	var id string
	err := tx.QueryRow(ctx,
		`INSERT INTO credit_transactions (user_id, feature, delta, reference_id, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
		userID, feature, delta, referenceID, metadataJSON, time.Now().UTC()).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to insert transaction: %w", err)
	}
	return id, nil
}

func upsertArtifact(ctx context.Context, tx pgx.Tx, artifact *entitlement.Artifact) error {
	createdAt := artifact.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := tx.Exec(ctx,
		`INSERT INTO generated_artifacts (user_id, feature, source, payload, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_id, feature) DO UPDATE SET
				source = EXCLUDED.source,
				payload = EXCLUDED.payload,
				created_at = EXCLUDED.created_at`,
		artifact.UserID, artifact.Feature, artifact.Source, []byte(artifact.Payload), createdAt)
	if err != nil {
		return fmt.Errorf("failed to upsert artifact: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
