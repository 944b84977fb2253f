package wallet

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/notification"
)

// Service exposes wallet operations backed by the ledger.
type Service struct {
	store    ledger.Store
	engine   *ledger.Engine
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService builds a wallet service instance.
func NewService(store ledger.Store, engine *ledger.Engine, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{store: store, engine: engine, notifier: notifier, logger: logger}
}

// Create opens an empty wallet.
func (s *Service) Create(ctx context.Context, label string) (ledger.Wallet, error) {
	label = strings.TrimSpace(label)
	if err := ledger.ValidateLabel(label); err != nil {
		return ledger.Wallet{}, err
	}
	return s.store.CreateWallet(ctx, label)
}

// Get returns the wallet together with its current balance.
func (s *Service) Get(ctx context.Context, id string) (ledger.WalletBalance, error) {
	if err := checkID(id); err != nil {
		return ledger.WalletBalance{}, err
	}
	w, err := s.store.GetWallet(ctx, id)
	if err != nil {
		return ledger.WalletBalance{}, err
	}
	balance, err := s.store.SumTransactionAmounts(ctx, id)
	if err != nil {
		return ledger.WalletBalance{}, err
	}
	return ledger.WalletBalance{Wallet: w, Balance: balance}, nil
}

// Detail returns the wallet, its balance and its first page of transactions.
func (s *Service) Detail(ctx context.Context, id string) (Detail, error) {
	w, err := s.Get(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	txs, err := s.store.ListTransactions(ctx, ledger.TransactionFilter{WalletID: id}, ledger.PageRequest{
		Page:  1,
		Size:  ledger.DefaultPageSize,
		Order: ledger.Order{Field: "created_at"},
	})
	if err != nil {
		return Detail{}, err
	}
	return Detail{WalletBalance: w, Transactions: txs}, nil
}

// Rename changes the wallet label. Balances are unaffected.
func (s *Service) Rename(ctx context.Context, id, label string) (ledger.WalletBalance, error) {
	if err := checkID(id); err != nil {
		return ledger.WalletBalance{}, err
	}
	label = strings.TrimSpace(label)
	if err := ledger.ValidateLabel(label); err != nil {
		return ledger.WalletBalance{}, err
	}
	if _, err := s.store.UpdateWalletLabel(ctx, id, label); err != nil {
		return ledger.WalletBalance{}, err
	}
	return s.Get(ctx, id)
}

// Delete removes the wallet and every transaction it owns.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	if err := s.store.DeleteWallet(ctx, id); err != nil {
		return err
	}

	s.logger.Info("wallet deleted", slog.String("wallet_id", id))
	if err := s.notifier.Send(ctx, notification.Message{
		Kind:    notification.KindWalletDeleted,
		Key:     id,
		Payload: map[string]string{"wallet_id": id},
	}); err != nil {
		s.logger.Warn("wallet deletion notification failed", slog.String("wallet_id", id), slog.Any("error", err))
	}
	return nil
}

// List returns a page of wallets with their balances.
func (s *Service) List(ctx context.Context, filter ledger.WalletFilter, page ledger.PageRequest) (ledger.Page[ledger.WalletBalance], error) {
	return s.store.ListWallets(ctx, filter, page.Normalize())
}

// Balance returns the wallet's balance as of now.
func (s *Service) Balance(ctx context.Context, id string) (Balance, error) {
	if err := checkID(id); err != nil {
		return Balance{}, err
	}
	amount, err := s.engine.GetBalance(ctx, id)
	if err != nil {
		return Balance{}, err
	}
	return Balance{WalletID: id, Amount: amount, AsOf: time.Now().UTC()}, nil
}

func checkID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ledger.ErrWalletNotFound
	}
	return nil
}
