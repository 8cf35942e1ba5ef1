package posting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/tallybooks/tallybooks/internal/accounting"
	"github.com/tallybooks/tallybooks/internal/accounting/mappings"
	"github.com/tallybooks/tallybooks/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, accounting.TxRepository) error) error
}

// RoleResolver maps a company role onto its configured account.
type RoleResolver interface {
	Resolve(ctx context.Context, companyID int64, role mappings.Role) (int64, error)
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CacheInvalidator drops cached reports after the ledger changes.
type CacheInvalidator interface {
	Bump(ctx context.Context, companyID int64) error
}

// MetricsRecorder counts posting engine outcomes.
type MetricsRecorder interface {
	LedgerOperation(operation string, err error)
}

// IdempotencyPort guards replayed payment applications.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, companyID int64, key, module string) error
	Delete(ctx context.Context, companyID int64, key string) error
}

// Service posts, voids and deletes transactions and applies payments.
type Service struct {
	repo        RepositoryPort
	roles       RoleResolver
	audit       AuditPort
	cache       CacheInvalidator
	metrics     MetricsRecorder
	idempotency IdempotencyPort
	logger      *slog.Logger
	now         func() time.Time
	newBatch    func() uuid.UUID
}

// NewService constructs the posting engine.
func NewService(repo RepositoryPort, roles RoleResolver, audit AuditPort) *Service {
	return &Service{
		repo:     repo,
		roles:    roles,
		audit:    audit,
		logger:   slog.Default(),
		now:      time.Now,
		newBatch: uuid.New,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithCache wires report cache invalidation.
func (s *Service) WithCache(cache CacheInvalidator) { s.cache = cache }

// WithMetrics wires operation counters.
func (s *Service) WithMetrics(metrics MetricsRecorder) { s.metrics = metrics }

// WithIdempotency wires the idempotency key store.
func (s *Service) WithIdempotency(store IdempotencyPort) { s.idempotency = store }

// WithLogger overrides the logger.
func (s *Service) WithLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// PostInput identifies the transaction to post. PostingDate overrides the
// entry_date of the written entries and nothing else.
type PostInput struct {
	CompanyID     int64
	TransactionID int64
	PostingDate   *time.Time
	ActorID       int64
}

// PostResult is the posted transaction and the entries written for it.
type PostResult struct {
	Transaction accounting.Transaction    `json:"transaction"`
	Entries     []accounting.JournalEntry `json:"entries"`
}

// Post converts a draft transaction into balanced journal entries. The
// is_posted flip is a compare-and-swap, so concurrent callers cannot both succeed.
func (s *Service) Post(ctx context.Context, in PostInput) (result PostResult, err error) {
	defer func() { s.observe("post", err) }()
	if in.CompanyID == 0 || in.TransactionID == 0 {
		return PostResult{}, fmt.Errorf("%w: company and transaction required", shared.ErrValidation)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx accounting.TxRepository) error {
		txn, err := tx.GetTransaction(ctx, in.CompanyID, in.TransactionID)
		if err != nil {
			return err
		}
		if txn.IsVoid {
			return accounting.ErrCannotPostVoided
		}
		if txn.IsPosted {
			return accounting.ErrAlreadyPosted
		}
		if err := txn.ValidateTotals(); err != nil {
			return err
		}
		rule, err := RuleFor(txn.Type)
		if err != nil {
			return err
		}
		roles, err := s.resolveRoles(ctx, in.CompanyID, rule, txn)
		if err != nil {
			return err
		}
		date := txn.Date
		if in.PostingDate != nil && !in.PostingDate.IsZero() {
			date = *in.PostingDate
		}
		entries, err := BuildEntries(txn, rule, roles, s.newBatch(), date)
		if err != nil {
			return err
		}
		if err := accounting.ValidateEntries(entries); err != nil {
			return err
		}
		if err := checkAccounts(ctx, tx, in.CompanyID, entries); err != nil {
			return err
		}
		postedAt := s.now()
		if err := tx.ClaimForPosting(ctx, in.CompanyID, in.TransactionID, postedAt); err != nil {
			return err
		}
		inserted, err := tx.InsertJournalEntries(ctx, entries)
		if err != nil {
			return err
		}
		txn.IsPosted = true
		txn.PostedAt = &postedAt
		txn.Status = accounting.TransactionStatusPosted
		result = PostResult{Transaction: txn, Entries: inserted}
		return nil
	})
	if err != nil {
		return PostResult{}, err
	}
	s.afterChange(ctx, in.CompanyID, in.ActorID, "transaction.post", result.Transaction.ID, map[string]any{
		"number":  result.Transaction.Number,
		"type":    string(result.Transaction.Type),
		"entries": len(result.Entries),
		"total":   result.Transaction.TotalAmount.StringFixed(2),
	})
	return result, nil
}

// VoidInput identifies the transaction to void.
type VoidInput struct {
	CompanyID     int64
	TransactionID int64
	Reason        string
	ActorID       int64
}

// Void marks a transaction void. Posted transactions get mirror entries dated
// at void time; original entries are never modified.
func (s *Service) Void(ctx context.Context, in VoidInput) (result PostResult, err error) {
	defer func() { s.observe("void", err) }()
	if in.CompanyID == 0 || in.TransactionID == 0 {
		return PostResult{}, fmt.Errorf("%w: company and transaction required", shared.ErrValidation)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx accounting.TxRepository) error {
		at := s.now()
		txn, err := tx.ClaimForVoid(ctx, in.CompanyID, in.TransactionID, accounting.VoidClaim{
			Reason: in.Reason,
			Actor:  in.ActorID,
			At:     at,
		})
		if err != nil {
			return err
		}
		result.Transaction = txn
		if !txn.IsPosted {
			return nil
		}
		originals, err := tx.ListJournalEntries(ctx, in.CompanyID, in.TransactionID)
		if err != nil {
			return err
		}
		if len(originals) == 0 {
			return nil
		}
		batch := s.newBatch()
		memo := "VOID " + txn.Number
		reversals := make([]accounting.JournalEntry, 0, len(originals))
		for _, e := range originals {
			reversals = append(reversals, e.Reversal(batch, at, memo))
		}
		if err := accounting.ValidateEntries(reversals); err != nil {
			return err
		}
		inserted, err := tx.InsertJournalEntries(ctx, reversals)
		if err != nil {
			return err
		}
		result.Entries = inserted
		return nil
	})
	if err != nil {
		return PostResult{}, err
	}
	s.afterChange(ctx, in.CompanyID, in.ActorID, "transaction.void", in.TransactionID, map[string]any{
		"reason":    in.Reason,
		"reversals": len(result.Entries),
	})
	return result, nil
}

// DeleteInput identifies the draft transaction to delete.
type DeleteInput struct {
	CompanyID     int64
	TransactionID int64
	ActorID       int64
}

// Delete removes an unposted transaction with its lines. Posted transactions
// must be voided instead.
func (s *Service) Delete(ctx context.Context, in DeleteInput) (err error) {
	defer func() { s.observe("delete", err) }()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx accounting.TxRepository) error {
		return tx.DeleteUnposted(ctx, in.CompanyID, in.TransactionID)
	})
	if err != nil {
		return err
	}
	s.record(ctx, shared.AuditLog{
		CompanyID: in.CompanyID,
		ActorID:   in.ActorID,
		Action:    "transaction.delete",
		Entity:    "transaction",
		EntityID:  strconv.FormatInt(in.TransactionID, 10),
		At:        s.now(),
	})
	return nil
}

func (s *Service) resolveRoles(ctx context.Context, companyID int64, rule Rule, txn accounting.Transaction) (map[mappings.Role]int64, error) {
	needed := RequiredRoles(rule, txn)
	roles := make(map[mappings.Role]int64, len(needed))
	for _, role := range needed {
		if s.roles == nil {
			return nil, fmt.Errorf("%w: %s", accounting.ErrMappingNotFound, role)
		}
		id, err := s.roles.Resolve(ctx, companyID, role)
		if err != nil {
			return nil, err
		}
		roles[role] = id
	}
	return roles, nil
}

// checkAccounts rejects entries against accounts outside the company or inactive.
func checkAccounts(ctx context.Context, tx accounting.TxRepository, companyID int64, entries []accounting.JournalEntry) error {
	ids := make([]int64, 0, len(entries))
	seen := make(map[int64]struct{}, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.AccountID]; ok {
			continue
		}
		seen[e.AccountID] = struct{}{}
		ids = append(ids, e.AccountID)
	}
	accounts, err := tx.GetAccounts(ctx, companyID, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		account, ok := accounts[id]
		if !ok {
			return fmt.Errorf("%w: %d", accounting.ErrAccountNotFound, id)
		}
		if !account.IsActive {
			return fmt.Errorf("%w: %s", accounting.ErrAccountInactive, account.Code)
		}
	}
	return nil
}

func (s *Service) afterChange(ctx context.Context, companyID, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.cache != nil {
		if err := s.cache.Bump(ctx, companyID); err != nil {
			s.logger.Warn("report cache bump failed", slog.Int64("company_id", companyID), slog.Any("error", err))
		}
	}
	s.record(ctx, shared.AuditLog{
		CompanyID: companyID,
		ActorID:   actorID,
		Action:    action,
		Entity:    "transaction",
		EntityID:  strconv.FormatInt(entityID, 10),
		Meta:      meta,
		At:        s.now(),
	})
}

func (s *Service) record(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", log.Action), slog.Any("error", err))
	}
}

func (s *Service) observe(operation string, err error) {
	if s.metrics != nil {
		s.metrics.LedgerOperation(operation, err)
	}
	if err != nil && !errors.Is(err, shared.ErrValidation) && !errors.Is(err, shared.ErrInvalidState) && !errors.Is(err, shared.ErrNotFound) {
		s.logger.Error("ledger operation failed", slog.String("operation", operation), slog.Any("error", err))
	}
}
