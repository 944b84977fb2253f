package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Proposal describes a transaction to create or, when ExistingID is set, to amend.
// On amends an invalid Amount keeps the stored amount and an empty TxID keeps
// the stored reference.
type Proposal struct {
	WalletID   string
	TxID       string
	Amount     decimal.NullDecimal
	ExistingID string
}

func (p Proposal) isAmend() bool {
	return p.ExistingID != ""
}

// Engine is the single authority deciding whether a transaction may be committed.
// It keeps no state between calls; every decision re-reads the store.
type Engine struct {
	store Store
}

// NewEngine builds an engine over the provided store.
func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// GetBalance returns the wallet's current balance.
func (e *Engine) GetBalance(ctx context.Context, walletID string) (decimal.Decimal, error) {
	if _, err := e.store.GetWallet(ctx, walletID); err != nil {
		return decimal.Zero, err
	}
	return e.store.SumTransactionAmounts(ctx, walletID)
}

// ProposeTransaction validates the proposal against the wallet balance and
// commits it in one boundary. It performs a single attempt; ErrConflict is
// left to the caller to retry.
func (e *Engine) ProposeTransaction(ctx context.Context, p Proposal) (Transaction, error) {
	if err := e.validate(p); err != nil {
		return Transaction{}, err
	}

	walletID := p.WalletID
	if p.isAmend() {
		// The owning wallet is immutable, so resolving it outside the boundary
		// is safe. The pre-image itself is re-read under the lock below.
		existing, err := e.store.GetTransaction(ctx, p.ExistingID)
		if err != nil {
			return Transaction{}, err
		}
		if walletID != "" && walletID != existing.WalletID {
			return Transaction{}, fmt.Errorf("%w: transaction %s belongs to another wallet", ErrTransactionNotFound, p.ExistingID)
		}
		walletID = existing.WalletID
	}

	var committed Transaction
	err := e.store.WithinWallet(ctx, walletID, func(ctx context.Context, tx Tx) error {
		current, err := tx.SumTransactionAmounts(ctx)
		if err != nil {
			return err
		}

		if !p.isAmend() {
			if err := admit(current, p.Amount.Decimal); err != nil {
				return err
			}
			committed, err = tx.InsertTransaction(ctx, Transaction{
				WalletID: walletID,
				TxID:     p.TxID,
				Amount:   p.Amount.Decimal,
			})
			return err
		}

		original, err := tx.GetTransaction(ctx, p.ExistingID)
		if err != nil {
			return err
		}
		next := original
		if p.TxID != "" {
			next.TxID = p.TxID
		}
		if p.Amount.Valid {
			next.Amount = p.Amount.Decimal
		}

		if next.Amount.Equal(original.Amount) {
			if next.TxID == original.TxID {
				committed = original
				return nil
			}
			committed, err = tx.UpdateTransaction(ctx, next)
			return err
		}

		if err := admit(current.Sub(original.Amount), next.Amount); err != nil {
			return err
		}
		committed, err = tx.UpdateTransaction(ctx, next)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	return committed, nil
}

func (e *Engine) validate(p Proposal) error {
	if p.isAmend() {
		if p.TxID != "" {
			if err := ValidateTxID(p.TxID); err != nil {
				return err
			}
		}
		if p.Amount.Valid {
			return ValidateAmount(p.Amount.Decimal)
		}
		return nil
	}
	if p.WalletID == "" {
		return ErrWalletNotFound
	}
	if err := ValidateTxID(p.TxID); err != nil {
		return err
	}
	if !p.Amount.Valid {
		return fmt.Errorf("%w: amount is required", ErrInvalidAmount)
	}
	return ValidateAmount(p.Amount.Decimal)
}

// admit checks current+amount against zero exactly.
func admit(current, amount decimal.Decimal) error {
	if current.Add(amount).IsNegative() {
		return &NegativeBalanceError{CurrentBalance: current, Amount: amount}
	}
	return nil
}

// IsRetryable reports whether err is transient boundary contention.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}
