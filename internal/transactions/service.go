package transactions

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/notification"
)

// CreateInput captures a new ledger entry.
type CreateInput struct {
	WalletID string
	TxID     string
	Amount   decimal.NullDecimal
}

// AmendInput carries the fields to change on an existing entry. Zero values
// keep the stored value.
type AmendInput struct {
	TxID   string
	Amount decimal.NullDecimal
}

// Service records transactions through the balance engine.
type Service struct {
	store    ledger.Store
	engine   *ledger.Engine
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService builds a transaction service.
func NewService(store ledger.Store, engine *ledger.Engine, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{store: store, engine: engine, notifier: notifier, logger: logger}
}

// Create admits a new transaction if the wallet balance stays non-negative.
func (s *Service) Create(ctx context.Context, in CreateInput) (ledger.Transaction, error) {
	if _, err := uuid.Parse(in.WalletID); err != nil {
		return ledger.Transaction{}, ledger.ErrWalletNotFound
	}

	tx, err := s.engine.ProposeTransaction(ctx, ledger.Proposal{
		WalletID: in.WalletID,
		TxID:     strings.TrimSpace(in.TxID),
		Amount:   in.Amount,
	})
	if err != nil {
		s.logRejection(in.WalletID, in.TxID, err)
		return ledger.Transaction{}, err
	}

	s.logger.Info("transaction recorded",
		slog.String("transaction_id", tx.ID),
		slog.String("wallet_id", tx.WalletID),
		slog.String("txid", tx.TxID),
		slog.String("amount", tx.Amount.String()),
	)
	s.notify(ctx, notification.KindTransactionCreated, tx)
	return tx, nil
}

// Amend rewrites an existing transaction. The original amount is retracted
// before the new one is checked against the balance.
func (s *Service) Amend(ctx context.Context, id string, in AmendInput) (ledger.Transaction, error) {
	if _, err := uuid.Parse(id); err != nil {
		return ledger.Transaction{}, ledger.ErrTransactionNotFound
	}

	tx, err := s.engine.ProposeTransaction(ctx, ledger.Proposal{
		ExistingID: id,
		TxID:       strings.TrimSpace(in.TxID),
		Amount:     in.Amount,
	})
	if err != nil {
		s.logRejection("", in.TxID, err, slog.String("transaction_id", id))
		return ledger.Transaction{}, err
	}

	s.logger.Info("transaction amended",
		slog.String("transaction_id", tx.ID),
		slog.String("wallet_id", tx.WalletID),
		slog.String("txid", tx.TxID),
		slog.String("amount", tx.Amount.String()),
	)
	s.notify(ctx, notification.KindTransactionAmended, tx)
	return tx, nil
}

// Get returns a single transaction.
func (s *Service) Get(ctx context.Context, id string) (ledger.Transaction, error) {
	if _, err := uuid.Parse(id); err != nil {
		return ledger.Transaction{}, ledger.ErrTransactionNotFound
	}
	return s.store.GetTransaction(ctx, id)
}

// List returns a filtered page of transactions.
func (s *Service) List(ctx context.Context, filter ledger.TransactionFilter, page ledger.PageRequest) (ledger.Page[ledger.Transaction], error) {
	if filter.WalletID != "" {
		if _, err := uuid.Parse(filter.WalletID); err != nil {
			// No wallet can match a malformed id.
			page = page.Normalize()
			return ledger.Page[ledger.Transaction]{Items: []ledger.Transaction{}, Page: page.Page, Size: page.Size}, nil
		}
	}
	return s.store.ListTransactions(ctx, filter, page.Normalize())
}

func (s *Service) logRejection(walletID, txid string, err error, extra ...any) {
	attrs := append([]any{
		slog.String("wallet_id", walletID),
		slog.String("txid", txid),
		slog.Any("error", err),
	}, extra...)

	switch {
	case ledger.IsRetryable(err):
		s.logger.Warn("transaction contended", attrs...)
	case isClientError(err):
		s.logger.Info("transaction rejected", attrs...)
	default:
		s.logger.Error("transaction failed", attrs...)
	}
}

func (s *Service) notify(ctx context.Context, kind string, tx ledger.Transaction) {
	err := s.notifier.Send(ctx, notification.Message{
		Kind: kind,
		Key:  tx.WalletID,
		Payload: map[string]string{
			"id":         tx.ID,
			"wallet_id":  tx.WalletID,
			"txid":       tx.TxID,
			"amount":     ledger.FormatAmount(tx.Amount),
			"created_at": tx.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		s.logger.Warn("transaction notification failed",
			slog.String("kind", kind),
			slog.String("transaction_id", tx.ID),
			slog.Any("error", err),
		)
	}
}

func isClientError(err error) bool {
	for _, target := range []error{
		ledger.ErrNegativeBalance,
		ledger.ErrDuplicateTxID,
		ledger.ErrWalletNotFound,
		ledger.ErrTransactionNotFound,
		ledger.ErrInvalidTxID,
		ledger.ErrInvalidAmount,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
