package entitlement

import (
	"context"
	"fmt"
	"time"
)

// Costs maps feature keys to their fixed credit cost. Cost is decoupled from
// actual provider token usage; observed token counts travel in transaction
// metadata for telemetry only.
type Costs map[string]int

// Config holds service configuration.
type Config struct {
	// Costs is the static feature -> credit cost table (required).
	Costs Costs

	// DefaultTier is assigned to entitlements created by Grant when the
	// user has no record yet (default: "free").
	DefaultTier string

	// TransactionLimit caps GetTransactions results (default: 50).
	TransactionLimit int
}

// Service is the entitlement gate and ledger facade over a Store.
type Service struct {
	store  Store
	config Config
}

// NewService creates a new entitlement service.
func NewService(store Store, config Config) (*Service, error) {
	if store == nil {
		return nil, ErrStorageUnavailable
	}
	if len(config.Costs) == 0 {
		return nil, fmt.Errorf("costs table is required")
	}
	if config.DefaultTier == "" {
		config.DefaultTier = "free"
	}
	if config.TransactionLimit <= 0 {
		config.TransactionLimit = 50
	}
	return &Service{store: store, config: config}, nil
}

// Cost returns the fixed credit cost for a feature key.
func (s *Service) Cost(feature string) (int, error) {
	cost, ok := s.config.Costs[feature]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownFeature, feature)
	}
	return cost, nil
}

// CanUseFeature performs the side-effect-free pre-flight check. A missing
// entitlement record is reported as a zero-balance rejection, not an error.
// The result is an optimistic hint: the authoritative check happens inside
// Deduct at commit time.
func (s *Service) CanUseFeature(ctx context.Context, userID, feature string) (*CreditCheck, error) {
	cost, err := s.Cost(feature)
	if err != nil {
		return nil, err
	}

	ent, err := s.store.GetEntitlement(ctx, userID)
	if err == ErrEntitlementNotFound {
		return &CreditCheck{
			CanUse:          false,
			Reason:          fmt.Sprintf("insufficient credits: need %d, have 0", cost),
			CreditsRequired: cost,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entitlement: %w", err)
	}

	check := &CreditCheck{
		CreditsAvailable: ent.CreditsAvailable,
		CreditsRequired:  cost,
		UsageCount:       ent.UsageCounts[feature],
	}
	if limit, ok := ent.UsageLimits[feature]; ok {
		l := limit
		check.UsageLimit = &l
		if check.UsageCount >= limit {
			check.Reason = fmt.Sprintf("usage limit reached for %s: %d of %d used", feature, check.UsageCount, limit)
			return check, nil
		}
	}
	if ent.CreditsAvailable < cost {
		check.Reason = fmt.Sprintf("insufficient credits: need %d, have %d", cost, ent.CreditsAvailable)
		return check, nil
	}

	check.CanUse = true
	return check, nil
}

// Deduct commits a debit. Amount defaults to the configured feature cost
// when zero. The underlying store applies the debit, ledger append and
// artifact persistence as one transaction.
func (s *Service) Deduct(ctx context.Context, req *DeductRequest) (*DeductResult, error) {
	if req == nil || req.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if req.Amount == 0 {
		cost, err := s.Cost(req.Feature)
		if err != nil {
			return nil, err
		}
		req.Amount = cost
	}
	if req.Amount < 0 {
		return nil, ErrInvalidAmount
	}
	return s.store.Deduct(ctx, req)
}

// Grant credits a user, creating the entitlement record on first grant.
func (s *Service) Grant(ctx context.Context, req *GrantRequest) (*GrantResult, error) {
	if req == nil || req.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.store.Grant(ctx, req)
}

// GetBalance returns the current credit balance. Users without a record
// have a zero balance.
func (s *Service) GetBalance(ctx context.Context, userID string) (int, error) {
	ent, err := s.store.GetEntitlement(ctx, userID)
	if err == ErrEntitlementNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return ent.CreditsAvailable, nil
}

// GetTransactions returns the newest ledger entries for a user.
func (s *Service) GetTransactions(ctx context.Context, userID string, limit int) ([]*Transaction, error) {
	if limit <= 0 || limit > s.config.TransactionLimit {
		limit = s.config.TransactionLimit
	}
	return s.store.GetTransactions(ctx, userID, limit)
}

// GetEntitlement retrieves a user's entitlement record.
func (s *Service) GetEntitlement(ctx context.Context, userID string) (*Entitlement, error) {
	return s.store.GetEntitlement(ctx, userID)
}

// SetEntitlement creates or replaces a user's entitlement record.
func (s *Service) SetEntitlement(ctx context.Context, ent *Entitlement) error {
	if ent == nil || ent.UserID == "" {
		return fmt.Errorf("invalid entitlement")
	}
	if ent.PlanTier == "" {
		ent.PlanTier = s.config.DefaultTier
	}
	if ent.UpdatedAt.IsZero() {
		ent.UpdatedAt = time.Now().UTC()
	}
	return s.store.SetEntitlement(ctx, ent)
}

// SaveArtifact persists an artifact without touching the ledger.
func (s *Service) SaveArtifact(ctx context.Context, artifact *Artifact) error {
	if artifact == nil || artifact.UserID == "" || artifact.Feature == "" {
		return fmt.Errorf("invalid artifact")
	}
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = time.Now().UTC()
	}
	return s.store.SaveArtifact(ctx, artifact)
}

// GetArtifact returns the latest artifact for a user/feature pair.
func (s *Service) GetArtifact(ctx context.Context, userID, feature string) (*Artifact, error) {
	return s.store.GetArtifact(ctx, userID, feature)
}

// DefaultTier returns the tier assigned to entitlements created by grants.
func (s *Service) DefaultTier() string {
	return s.config.DefaultTier
}
