// Package redis provides a Redis implementation of the entitlement.Store
// interface. The debit path runs as a single Lua script so the balance check,
// decrement, usage increment, ledger append and artifact write are atomic.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cygon23/caeerhub-platform-sub002/pkg/entitlement"
)

// Store implements entitlement.Store using Redis.
type Store struct {
	client  redis.UniversalClient
	config  Config
	scripts map[string]*redis.Script
}

// Config holds Redis store configuration.
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "careerhub:")
	KeyPrefix string

	// EntitlementTTL is the TTL for entitlement keys (0 = no expiration)
	EntitlementTTL time.Duration

	// ArtifactTTL is the TTL for generated artifact keys (0 = no expiration)
	ArtifactTTL time.Duration

	// TransactionHistory caps the per-user ledger list length (default: 200)
	TransactionHistory int

	// DefaultTier is assigned when a grant creates an entitlement
	// (default: "free")
	DefaultTier string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		KeyPrefix:          "careerhub:",
		EntitlementTTL:     0,
		ArtifactTTL:        90 * 24 * time.Hour,
		TransactionHistory: 200,
		DefaultTier:        "free",
	}
}

// New creates a new Redis store adapter.
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring.
func New(client redis.UniversalClient, config Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = "careerhub:"
	}
	if config.TransactionHistory == 0 {
		config.TransactionHistory = 200
	}
	if config.DefaultTier == "" {
		config.DefaultTier = "free"
	}

	s := &Store{
		client:  client,
		config:  config,
		scripts: make(map[string]*redis.Script),
	}

	s.loadScripts()

	return s, nil
}

// loadScripts loads and compiles Lua scripts for atomic operations.
func (s *Store) loadScripts() {
	// Deduct credits atomically. The ledger append and artifact write ride
	// in the same script, so a debit is never recorded without its
	// deliverable.
	s.scripts["deduct"] = redis.NewScript(`
		local entKey = KEYS[1]
		local usageKey = KEYS[2]
		local limitsKey = KEYS[3]
		local txnKey = KEYS[4]
		local artifactKey = KEYS[5]
		local feature = ARGV[1]
		local amount = tonumber(ARGV[2])
		local txnData = ARGV[3]
		local artifactData = ARGV[4]
		local historyLimit = tonumber(ARGV[5])
		local now = ARGV[6]
		local entTTL = tonumber(ARGV[7])
		local artifactTTL = tonumber(ARGV[8])

		if redis.call('EXISTS', entKey) == 0 then
			return {'not_found', 0}
		end

		local limit = redis.call('HGET', limitsKey, feature)
		if limit then
			local used = tonumber(redis.call('HGET', usageKey, feature) or '0')
			if used >= tonumber(limit) then
				return {'limit_exceeded', 0}
			end
		end

		local credits = tonumber(redis.call('HGET', entKey, 'credits') or '0')
		if credits < amount then
			return {'insufficient', credits}
		end

		local newBalance = redis.call('HINCRBY', entKey, 'credits', -amount)
		redis.call('HSET', entKey, 'updated_at', now)
		redis.call('HINCRBY', usageKey, feature, 1)

		redis.call('LPUSH', txnKey, txnData)
		if historyLimit > 0 then
			redis.call('LTRIM', txnKey, 0, historyLimit - 1)
		end

		if artifactData ~= '' then
			redis.call('SET', artifactKey, artifactData)
			if artifactTTL > 0 then
				redis.call('EXPIRE', artifactKey, artifactTTL)
			end
		end

		if entTTL > 0 then
			redis.call('EXPIRE', entKey, entTTL)
		end

		return {'ok', newBalance}
	`)

	// Grant credits atomically with reference-based deduplication.
	s.scripts["grant"] = redis.NewScript(`
		local entKey = KEYS[1]
		local refsKey = KEYS[2]
		local txnKey = KEYS[3]
		local amount = tonumber(ARGV[1])
		local refID = ARGV[2]
		local txnData = ARGV[3]
		local historyLimit = tonumber(ARGV[4])
		local now = ARGV[5]
		local defaultTier = ARGV[6]
		local entTTL = tonumber(ARGV[7])

		if refID ~= '' then
			if redis.call('SISMEMBER', refsKey, refID) == 1 then
				return {'duplicate', 0}
			end
			redis.call('SADD', refsKey, refID)
		end

		local newBalance = redis.call('HINCRBY', entKey, 'credits', amount)
		if redis.call('HEXISTS', entKey, 'plan_tier') == 0 then
			redis.call('HSET', entKey, 'plan_tier', defaultTier)
		end
		redis.call('HSET', entKey, 'updated_at', now)

		redis.call('LPUSH', txnKey, txnData)
		if historyLimit > 0 then
			redis.call('LTRIM', txnKey, 0, historyLimit - 1)
		end

		if entTTL > 0 then
			redis.call('EXPIRE', entKey, entTTL)
		end

		return {'ok', newBalance}
	`)
}

// GetEntitlement implements entitlement.Store.
func (s *Store) GetEntitlement(ctx context.Context, userID string) (*entitlement.Entitlement, error) {
	fields, err := s.client.HGetAll(ctx, s.entitlementKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get entitlement: %w", err)
	}
	if len(fields) == 0 {
		return nil, entitlement.ErrEntitlementNotFound
	}

	ent := &entitlement.Entitlement{
		UserID:   userID,
		PlanTier: fields["plan_tier"],
	}
	if v, ok := fields["credits"]; ok {
		ent.CreditsAvailable, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("failed to parse credits: %w", err)
		}
	}
	if v, ok := fields["updated_at"]; ok {
		ent.UpdatedAt, _ = time.Parse(time.RFC3339Nano, v)
	}

	ent.UsageCounts, err = s.getCounts(ctx, s.usageKey(userID))
	if err != nil {
		return nil, err
	}
	limits, err := s.getCounts(ctx, s.limitsKey(userID))
	if err != nil {
		return nil, err
	}
	if len(limits) > 0 {
		ent.UsageLimits = limits
	}

	return ent, nil
}

// SetEntitlement implements entitlement.Store.
func (s *Store) SetEntitlement(ctx context.Context, ent *entitlement.Entitlement) error {
	if ent == nil || ent.UserID == "" {
		return fmt.Errorf("invalid entitlement")
	}

	updatedAt := ent.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.entitlementKey(ent.UserID),
		"credits", ent.CreditsAvailable,
		"plan_tier", ent.PlanTier,
		"updated_at", updatedAt.Format(time.RFC3339Nano),
	)

	usageKey := s.usageKey(ent.UserID)
	pipe.Del(ctx, usageKey)
	for feature, count := range ent.UsageCounts {
		pipe.HSet(ctx, usageKey, feature, count)
	}

	limitsKey := s.limitsKey(ent.UserID)
	pipe.Del(ctx, limitsKey)
	for feature, limit := range ent.UsageLimits {
		pipe.HSet(ctx, limitsKey, feature, limit)
	}

	if s.config.EntitlementTTL > 0 {
		pipe.Expire(ctx, s.entitlementKey(ent.UserID), s.config.EntitlementTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set entitlement: %w", err)
	}
	return nil
}

// Deduct implements entitlement.Store with an atomic Lua script.
func (s *Store) Deduct(ctx context.Context, req *entitlement.DeductRequest) (*entitlement.DeductResult, error) {
	if req.Amount < 0 {
		return nil, entitlement.ErrInvalidAmount
	}

	now := time.Now().UTC()
	txn := &entitlement.Transaction{
		ID:          newID("txn", now),
		UserID:      req.UserID,
		Feature:     req.Feature,
		Delta:       -req.Amount,
		ReferenceID: req.ReferenceID,
		Metadata:    req.Metadata,
		CreatedAt:   now,
	}
	txnData, err := json.Marshal(txn)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transaction: %w", err)
	}

	artifactData := ""
	if req.Artifact != nil {
		artifact := *req.Artifact
		if artifact.ID == "" {
			artifact.ID = newID("art", now)
		}
		if artifact.CreatedAt.IsZero() {
			artifact.CreatedAt = now
		}
		data, err := json.Marshal(&artifact)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal artifact: %w", err)
		}
		artifactData = string(data)
	}

	result, err := s.scripts["deduct"].Run(
		ctx,
		s.client,
		[]string{
			s.entitlementKey(req.UserID),
			s.usageKey(req.UserID),
			s.limitsKey(req.UserID),
			s.transactionsKey(req.UserID),
			s.artifactKey(req.UserID, req.Feature),
		},
		req.Feature,
		req.Amount,
		string(txnData),
		artifactData,
		s.config.TransactionHistory,
		now.Format(time.RFC3339Nano),
		int64(s.config.EntitlementTTL.Seconds()),
		int64(s.config.ArtifactTTL.Seconds()),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to execute deduct script: %w", err)
	}

	status, balance, err := parseScriptResult(result)
	if err != nil {
		return nil, err
	}

	switch status {
	case "ok":
		return &entitlement.DeductResult{
			NewBalance:    balance,
			TransactionID: txn.ID,
		}, nil
	case "not_found":
		return nil, entitlement.ErrEntitlementNotFound
	case "limit_exceeded":
		return nil, entitlement.ErrUsageLimitExceeded
	case "insufficient":
		return nil, entitlement.ErrInsufficientCredits
	default:
		return nil, fmt.Errorf("unexpected deduct status: %s", status)
	}
}

// Grant implements entitlement.Store with an atomic Lua script.
func (s *Store) Grant(ctx context.Context, req *entitlement.GrantRequest) (*entitlement.GrantResult, error) {
	if req.Amount <= 0 {
		return nil, entitlement.ErrInvalidAmount
	}

	now := time.Now().UTC()
	txn := &entitlement.Transaction{
		ID:          newID("txn", now),
		UserID:      req.UserID,
		Feature:     req.Feature,
		Delta:       req.Amount,
		ReferenceID: req.ReferenceID,
		Metadata:    req.Metadata,
		CreatedAt:   now,
	}
	txnData, err := json.Marshal(txn)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transaction: %w", err)
	}

	result, err := s.scripts["grant"].Run(
		ctx,
		s.client,
		[]string{
			s.entitlementKey(req.UserID),
			s.referencesKey(req.UserID),
			s.transactionsKey(req.UserID),
		},
		req.Amount,
		req.ReferenceID,
		string(txnData),
		s.config.TransactionHistory,
		now.Format(time.RFC3339Nano),
		s.config.DefaultTier,
		int64(s.config.EntitlementTTL.Seconds()),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to execute grant script: %w", err)
	}

	status, balance, err := parseScriptResult(result)
	if err != nil {
		return nil, err
	}

	switch status {
	case "ok":
		return &entitlement.GrantResult{
			NewBalance:    balance,
			TransactionID: txn.ID,
		}, nil
	case "duplicate":
		return nil, entitlement.ErrDuplicateReference
	default:
		return nil, fmt.Errorf("unexpected grant status: %s", status)
	}
}

// GetTransactions implements entitlement.Store. Transactions come back
// newest first.
func (s *Store) GetTransactions(ctx context.Context, userID string, limit int) ([]*entitlement.Transaction, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	entries, err := s.client.LRange(ctx, s.transactionsKey(userID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}

	txns := make([]*entitlement.Transaction, 0, len(entries))
	for _, entry := range entries {
		var txn entitlement.Transaction
		if err := json.Unmarshal([]byte(entry), &txn); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transaction: %w", err)
		}
		txns = append(txns, &txn)
	}
	return txns, nil
}

// SaveArtifact implements entitlement.Store.
func (s *Store) SaveArtifact(ctx context.Context, artifact *entitlement.Artifact) error {
	if artifact == nil || artifact.UserID == "" || artifact.Feature == "" {
		return fmt.Errorf("invalid artifact")
	}

	stored := *artifact
	if stored.ID == "" {
		stored.ID = newID("art", time.Now().UTC())
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}

	key := s.artifactKey(stored.UserID, stored.Feature)
	if err := s.client.Set(ctx, key, data, s.config.ArtifactTTL).Err(); err != nil {
		return fmt.Errorf("failed to save artifact: %w", err)
	}
	return nil
}

// GetArtifact implements entitlement.Store.
func (s *Store) GetArtifact(ctx context.Context, userID, feature string) (*entitlement.Artifact, error) {
	data, err := s.client.Get(ctx, s.artifactKey(userID, feature)).Bytes()
	if err == redis.Nil {
		return nil, entitlement.ErrArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}

	var artifact entitlement.Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("failed to unmarshal artifact: %w", err)
	}
	return &artifact, nil
}

// Close closes the Redis client connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) getCounts(ctx context.Context, key string) (map[string]int, error) {
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}

	counts := make(map[string]int, len(fields))
	for feature, v := range fields {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("failed to parse count for %s: %w", feature, err)
		}
		counts[feature] = n
	}
	return counts, nil
}

func parseScriptResult(result interface{}) (status string, balance int, err error) {
	slice, ok := result.([]interface{})
	if !ok || len(slice) != 2 {
		return "", 0, fmt.Errorf("unexpected script result format")
	}
	status, ok = slice[0].(string)
	if !ok {
		return "", 0, fmt.Errorf("failed to parse status")
	}
	balanceInt64, ok := slice[1].(int64)
	if !ok {
		return "", 0, fmt.Errorf("failed to parse balance")
	}
	return status, int(balanceInt64), nil
}

func newID(prefix string, now time.Time) string {
	return fmt.Sprintf("%s_%x", prefix, now.UnixNano())
}

func (s *Store) entitlementKey(userID string) string {
	return fmt.Sprintf("%sent:%s", s.config.KeyPrefix, userID)
}

func (s *Store) usageKey(userID string) string {
	return fmt.Sprintf("%susage:%s", s.config.KeyPrefix, userID)
}

func (s *Store) limitsKey(userID string) string {
	return fmt.Sprintf("%slimits:%s", s.config.KeyPrefix, userID)
}

func (s *Store) transactionsKey(userID string) string {
	return fmt.Sprintf("%stxns:%s", s.config.KeyPrefix, userID)
}

func (s *Store) referencesKey(userID string) string {
	return fmt.Sprintf("%srefs:%s", s.config.KeyPrefix, userID)
}

func (s *Store) artifactKey(userID, feature string) string {
	return fmt.Sprintf("%sartifact:%s:%s", s.config.KeyPrefix, userID, feature)
}
