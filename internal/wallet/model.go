package wallet

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletledger/internal/ledger"
)

// Balance is a point-in-time read of a wallet's derived balance.
type Balance struct {
	WalletID string
	Amount   decimal.Decimal
	AsOf     time.Time
}

// Detail is a wallet with its balance and the first page of its transactions,
// oldest first.
type Detail struct {
	ledger.WalletBalance
	Transactions ledger.Page[ledger.Transaction]
}
