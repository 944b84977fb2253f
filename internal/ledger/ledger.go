package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrWalletNotFound is returned when the referenced wallet does not exist.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrTransactionNotFound is returned when the referenced transaction does not exist.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrDuplicateTxID indicates the external reference is already used somewhere in the store.
	ErrDuplicateTxID = errors.New("duplicate txid")

	// ErrNegativeBalance is matched by *NegativeBalanceError.
	ErrNegativeBalance = errors.New("negative balance")

	// ErrConflict reports contention on a wallet boundary. Callers may retry with backoff.
	ErrConflict = errors.New("wallet busy")

	// ErrStoreUnavailable wraps failures of the underlying storage.
	ErrStoreUnavailable = errors.New("ledger store unavailable")

	ErrInvalidTxID   = errors.New("txid must be between 1 and 100 characters")
	ErrInvalidAmount = errors.New("amount must fit NUMERIC(38,18)")
	ErrInvalidLabel  = errors.New("label must be between 1 and 100 characters")
	ErrInvalidOrder  = errors.New("invalid ordering")
)

const (
	// AmountScale is the number of fractional digits persisted for amounts.
	AmountScale = 18
	// MaxTxIDLength bounds the external reference length.
	MaxTxIDLength = 100
	// MaxLabelLength bounds wallet labels.
	MaxLabelLength = 100
)

// Exponent window accepted by ValidateAmount. Amounts written with an
// exponent outside it are rejected without being rescaled.
const (
	minAmountExponent = -AmountScale - 20
	maxAmountExponent = 38
)

// maxAmount is the first magnitude that no longer fits NUMERIC(38,18).
var maxAmount = decimal.New(1, 38-AmountScale)

// NegativeBalanceError is returned when admitting a transaction would drive
// the wallet balance below zero.
type NegativeBalanceError struct {
	CurrentBalance decimal.Decimal
	Amount         decimal.Decimal
}

func (e *NegativeBalanceError) Error() string {
	return fmt.Sprintf("transaction of %s would make wallet balance negative, current balance: %s",
		e.Amount.String(), e.CurrentBalance.String())
}

// Is lets errors.Is(err, ErrNegativeBalance) match.
func (e *NegativeBalanceError) Is(target error) bool {
	return target == ErrNegativeBalance
}

// Wallet is a named account. Its balance is always derived from transactions.
type Wallet struct {
	ID        string
	Label     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WalletBalance pairs a wallet with its derived balance.
type WalletBalance struct {
	Wallet
	Balance decimal.Decimal
}

// Transaction is a signed monetary entry owned by exactly one wallet.
type Transaction struct {
	ID        string
	WalletID  string
	TxID      string
	Amount    decimal.Decimal
	CreatedAt time.Time
}

// WalletFilter narrows wallet listings.
type WalletFilter struct {
	LabelContains string
}

// TransactionFilter narrows transaction listings. Zero values mean "no filter".
type TransactionFilter struct {
	WalletID     string
	TxIDContains string
	MinAmount    decimal.NullDecimal
	MaxAmount    decimal.NullDecimal
}

// Store is the durable storage the engine runs against.
type Store interface {
	CreateWallet(ctx context.Context, label string) (Wallet, error)
	GetWallet(ctx context.Context, id string) (Wallet, error)
	UpdateWalletLabel(ctx context.Context, id, label string) (Wallet, error)
	// DeleteWallet removes the wallet and cascades to its transactions.
	DeleteWallet(ctx context.Context, id string) error

	GetTransaction(ctx context.Context, id string) (Transaction, error)
	// SumTransactionAmounts returns zero for wallets without transactions.
	SumTransactionAmounts(ctx context.Context, walletID string) (decimal.Decimal, error)

	ListWallets(ctx context.Context, filter WalletFilter, page PageRequest) (Page[WalletBalance], error)
	ListTransactions(ctx context.Context, filter TransactionFilter, page PageRequest) (Page[Transaction], error)

	// WithinWallet runs fn inside a boundary holding the wallet's exclusive
	// lock. No other boundary for the same wallet can commit until fn returns.
	// The boundary commits when fn returns nil and rolls back otherwise.
	WithinWallet(ctx context.Context, walletID string, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the view of the store inside a wallet boundary. Reads observe the
// boundary's own writes.
type Tx interface {
	WalletID() string
	SumTransactionAmounts(ctx context.Context) (decimal.Decimal, error)
	// GetTransaction reads a transaction of the locked wallet.
	GetTransaction(ctx context.Context, id string) (Transaction, error)
	InsertTransaction(ctx context.Context, tx Transaction) (Transaction, error)
	UpdateTransaction(ctx context.Context, tx Transaction) (Transaction, error)
}

// FormatAmount renders an amount with the persisted number of fractional digits.
func FormatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(AmountScale)
}

// ValidateAmount rejects amounts that cannot be stored without rounding.
func ValidateAmount(amount decimal.Decimal) error {
	// Rescaling cost grows with the exponent, so bound it before any arithmetic.
	if exp := amount.Exponent(); exp < minAmountExponent || exp > maxAmountExponent {
		return fmt.Errorf("%w: exponent out of range", ErrInvalidAmount)
	}
	if !amount.Equal(amount.Truncate(AmountScale)) {
		return fmt.Errorf("%w: more than %d fractional digits", ErrInvalidAmount, AmountScale)
	}
	if amount.Abs().GreaterThanOrEqual(maxAmount) {
		return fmt.Errorf("%w: magnitude too large", ErrInvalidAmount)
	}
	return nil
}

// ValidateTxID checks the external reference shape.
func ValidateTxID(txid string) error {
	if txid == "" || len([]rune(txid)) > MaxTxIDLength {
		return ErrInvalidTxID
	}
	return nil
}

// ValidateLabel checks a wallet label.
func ValidateLabel(label string) error {
	if label == "" || len([]rune(label)) > MaxLabelLength {
		return ErrInvalidLabel
	}
	return nil
}
