// Package memory provides an in-memory implementation of the
// entitlement.Store interface. Primarily intended for testing and
// development.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cygon23/caeerhub-platform-sub002/pkg/entitlement"
)

// Store implements entitlement.Store using mutex-guarded maps.
type Store struct {
	mu           sync.Mutex
	entitlements map[string]*entitlement.Entitlement
	transactions map[string][]*entitlement.Transaction
	artifacts    map[string]*entitlement.Artifact
	references   map[string]bool
	seq          int64
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		entitlements: make(map[string]*entitlement.Entitlement),
		transactions: make(map[string][]*entitlement.Transaction),
		artifacts:    make(map[string]*entitlement.Artifact),
		references:   make(map[string]bool),
	}
}

// GetEntitlement implements entitlement.Store.
func (s *Store) GetEntitlement(ctx context.Context, userID string) (*entitlement.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entitlements[userID]
	if !ok {
		return nil, entitlement.ErrEntitlementNotFound
	}
	return copyEntitlement(ent), nil
}

// SetEntitlement implements entitlement.Store.
func (s *Store) SetEntitlement(ctx context.Context, ent *entitlement.Entitlement) error {
	if ent == nil || ent.UserID == "" {
		return fmt.Errorf("invalid entitlement")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entitlements[ent.UserID] = copyEntitlement(ent)
	return nil
}

// Deduct implements entitlement.Store. The balance check, debit, usage
// increment, transaction append and artifact write all happen under one
// lock, so concurrent deductions cannot double-spend.
func (s *Store) Deduct(ctx context.Context, req *entitlement.DeductRequest) (*entitlement.DeductResult, error) {
	if req.Amount < 0 {
		return nil, entitlement.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entitlements[req.UserID]
	if !ok {
		return nil, entitlement.ErrEntitlementNotFound
	}
	if limit, capped := ent.UsageLimits[req.Feature]; capped && ent.UsageCounts[req.Feature] >= limit {
		return nil, entitlement.ErrUsageLimitExceeded
	}
	if ent.CreditsAvailable < req.Amount {
		return nil, entitlement.ErrInsufficientCredits
	}

	ent.CreditsAvailable -= req.Amount
	if ent.UsageCounts == nil {
		ent.UsageCounts = make(map[string]int)
	}
	ent.UsageCounts[req.Feature]++
	ent.UpdatedAt = time.Now().UTC()

	txn := &entitlement.Transaction{
		ID:          s.nextID("txn"),
		UserID:      req.UserID,
		Feature:     req.Feature,
		Delta:       -req.Amount,
		ReferenceID: req.ReferenceID,
		Metadata:    copyMetadata(req.Metadata),
		CreatedAt:   time.Now().UTC(),
	}
	s.transactions[req.UserID] = append([]*entitlement.Transaction{txn}, s.transactions[req.UserID]...)

	if req.Artifact != nil {
		artifact := *req.Artifact
		if artifact.ID == "" {
			artifact.ID = s.nextID("art")
		}
		if artifact.CreatedAt.IsZero() {
			artifact.CreatedAt = time.Now().UTC()
		}
		s.artifacts[artifactKey(artifact.UserID, artifact.Feature)] = &artifact
	}

	return &entitlement.DeductResult{
		NewBalance:    ent.CreditsAvailable,
		TransactionID: txn.ID,
	}, nil
}

// Grant implements entitlement.Store.
func (s *Store) Grant(ctx context.Context, req *entitlement.GrantRequest) (*entitlement.GrantResult, error) {
	if req.Amount <= 0 {
		return nil, entitlement.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.ReferenceID != "" {
		refKey := req.UserID + ":" + req.ReferenceID
		if s.references[refKey] {
			return nil, entitlement.ErrDuplicateReference
		}
		s.references[refKey] = true
	}

	ent, ok := s.entitlements[req.UserID]
	if !ok {
		ent = &entitlement.Entitlement{
			UserID:      req.UserID,
			UsageCounts: make(map[string]int),
		}
		s.entitlements[req.UserID] = ent
	}
	ent.CreditsAvailable += req.Amount
	ent.UpdatedAt = time.Now().UTC()

	txn := &entitlement.Transaction{
		ID:          s.nextID("txn"),
		UserID:      req.UserID,
		Feature:     req.Feature,
		Delta:       req.Amount,
		ReferenceID: req.ReferenceID,
		Metadata:    copyMetadata(req.Metadata),
		CreatedAt:   time.Now().UTC(),
	}
	s.transactions[req.UserID] = append([]*entitlement.Transaction{txn}, s.transactions[req.UserID]...)

	return &entitlement.GrantResult{
		NewBalance:    ent.CreditsAvailable,
		TransactionID: txn.ID,
	}, nil
}

// GetTransactions implements entitlement.Store.
func (s *Store) GetTransactions(ctx context.Context, userID string, limit int) ([]*entitlement.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txns := s.transactions[userID]
	if limit > 0 && limit < len(txns) {
		txns = txns[:limit]
	}
	out := make([]*entitlement.Transaction, len(txns))
	for i, t := range txns {
		txn := *t
		out[i] = &txn
	}
	return out, nil
}

// SaveArtifact implements entitlement.Store.
func (s *Store) SaveArtifact(ctx context.Context, artifact *entitlement.Artifact) error {
	if artifact == nil || artifact.UserID == "" || artifact.Feature == "" {
		return fmt.Errorf("invalid artifact")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *artifact
	if stored.ID == "" {
		stored.ID = s.nextID("art")
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.artifacts[artifactKey(stored.UserID, stored.Feature)] = &stored
	return nil
}

// GetArtifact implements entitlement.Store.
func (s *Store) GetArtifact(ctx context.Context, userID, feature string) (*entitlement.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	artifact, ok := s.artifacts[artifactKey(userID, feature)]
	if !ok {
		return nil, entitlement.ErrArtifactNotFound
	}
	stored := *artifact
	return &stored, nil
}

// Clear removes all data (useful for testing).
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entitlements = make(map[string]*entitlement.Entitlement)
	s.transactions = make(map[string][]*entitlement.Transaction)
	s.artifacts = make(map[string]*entitlement.Artifact)
	s.references = make(map[string]bool)
}

func (s *Store) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s_%d", prefix, s.seq)
}

func artifactKey(userID, feature string) string {
	return userID + ":" + feature
}

func copyEntitlement(ent *entitlement.Entitlement) *entitlement.Entitlement {
	out := *ent
	out.UsageCounts = make(map[string]int, len(ent.UsageCounts))
	for k, v := range ent.UsageCounts {
		out.UsageCounts[k] = v
	}
	if ent.UsageLimits != nil {
		out.UsageLimits = make(map[string]int, len(ent.UsageLimits))
		for k, v := range ent.UsageLimits {
			out.UsageLimits[k] = v
		}
	}
	return &out
}

func copyMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
