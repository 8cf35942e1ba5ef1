package posting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/tallybooks/tallybooks/internal/accounting"
	"github.com/tallybooks/tallybooks/internal/shared"
)

const paymentModule = "payments.apply"

// ApplicationInput is one requested application of a payment.
type ApplicationInput struct {
	TransactionID int64           `json:"transaction_id" validate:"required,gt=0"`
	AmountApplied decimal.Decimal `json:"amount_applied"`
}

// ApplyInput applies a payment to one or more open documents.
type ApplyInput struct {
	CompanyID      int64
	PaymentID      int64
	ActorID        int64
	IdempotencyKey string
	Applications   []ApplicationInput
}

// ApplyPayment validates every application before writing any of them, then
// decrements each target's balance_due, never below zero.
func (s *Service) ApplyPayment(ctx context.Context, in ApplyInput) (payment accounting.Payment, err error) {
	defer func() { s.observe("apply_payment", err) }()
	if in.CompanyID == 0 || in.PaymentID == 0 {
		return accounting.Payment{}, fmt.Errorf("%w: company and payment required", shared.ErrValidation)
	}
	inserted := false
	if s.idempotency != nil && in.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, in.CompanyID, in.IdempotencyKey, paymentModule); err != nil {
			return accounting.Payment{}, err
		}
		inserted = true
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx accounting.TxRepository) error {
		p, err := tx.GetPaymentForUpdate(ctx, in.CompanyID, in.PaymentID)
		if err != nil {
			return err
		}
		at := s.now()
		apps := make([]accounting.PaymentApplication, 0, len(in.Applications))
		for _, req := range in.Applications {
			apps = append(apps, accounting.PaymentApplication{
				CompanyID:     in.CompanyID,
				PaymentID:     p.ID,
				TransactionID: req.TransactionID,
				AmountApplied: req.AmountApplied,
				AppliedAt:     at,
			})
		}
		if err := p.ValidateApplications(apps); err != nil {
			return err
		}
		if err := checkTargets(ctx, tx, in.CompanyID, apps); err != nil {
			return err
		}
		for _, app := range apps {
			stored, err := tx.InsertPaymentApplication(ctx, app)
			if err != nil {
				return err
			}
			if _, err := tx.UpdateBalanceDue(ctx, in.CompanyID, app.TransactionID, app.AmountApplied); err != nil {
				return err
			}
			p.Applications = append(p.Applications, stored)
		}
		payment = p
		return nil
	})
	if err != nil {
		if inserted {
			_ = s.idempotency.Delete(ctx, in.CompanyID, in.IdempotencyKey)
		}
		return accounting.Payment{}, err
	}
	if s.cache != nil {
		if err := s.cache.Bump(ctx, in.CompanyID); err != nil {
			s.logger.Warn("report cache bump failed", slog.Int64("company_id", in.CompanyID), slog.Any("error", err))
		}
	}
	s.record(ctx, shared.AuditLog{
		CompanyID: in.CompanyID,
		ActorID:   in.ActorID,
		Action:    "payment.apply",
		Entity:    "payment",
		EntityID:  strconv.FormatInt(in.PaymentID, 10),
		Meta: map[string]any{
			"applications": len(in.Applications),
			"applied":      payment.AppliedTotal().StringFixed(2),
		},
		At: s.now(),
	})
	return payment, nil
}

// checkTargets locks each target document and confirms it is open and that the
// requested amounts fit its balance due.
func checkTargets(ctx context.Context, tx accounting.TxRepository, companyID int64, apps []accounting.PaymentApplication) error {
	remaining := make(map[int64]decimal.Decimal, len(apps))
	for _, app := range apps {
		balance, ok := remaining[app.TransactionID]
		if !ok {
			target, err := tx.GetTransactionForUpdate(ctx, companyID, app.TransactionID)
			if err != nil {
				if errors.Is(err, accounting.ErrTransactionNotFound) {
					return fmt.Errorf("application target %d: %w", app.TransactionID, err)
				}
				return err
			}
			if !target.IsPosted || target.IsVoid || !target.Status.IsOpen() {
				return fmt.Errorf("%w: %s is %s", accounting.ErrNotPayable, target.Number, target.Status)
			}
			balance = target.BalanceDue
		}
		balance = balance.Sub(app.AmountApplied)
		if balance.IsNegative() {
			return fmt.Errorf("%w: transaction %d", accounting.ErrExceedsBalance, app.TransactionID)
		}
		remaining[app.TransactionID] = balance
	}
	return nil
}
