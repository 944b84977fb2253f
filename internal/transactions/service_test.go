package transactions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/logging"
	"github.com/congo-pay/walletledger/internal/notification"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []notification.Message
	err      error
}

func (n *recordingNotifier) Send(_ context.Context, m notification.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, m)
	return n.err
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.messages))
	for _, m := range n.messages {
		out = append(out, m.Kind)
	}
	return out
}

type fixture struct {
	svc      *Service
	store    *ledger.MemoryStore
	notifier *recordingNotifier
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := ledger.NewMemoryStore(time.Second)
	notifier := &recordingNotifier{}
	svc := NewService(store, ledger.NewEngine(store), notifier, logging.Discard())
	return fixture{svc: svc, store: store, notifier: notifier}
}

func (f fixture) wallet(t *testing.T) ledger.Wallet {
	t.Helper()
	w, err := f.store.CreateWallet(context.Background(), "Test")
	require.NoError(t, err)
	return w
}

func amount(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func TestServiceCreateNotifies(t *testing.T) {
	f := newFixture(t)
	w := f.wallet(t)

	tx, err := f.svc.Create(context.Background(), CreateInput{WalletID: w.ID, TxID: " tx1 ", Amount: amount("100")})
	require.NoError(t, err)
	assert.Equal(t, "tx1", tx.TxID)

	require.Len(t, f.notifier.messages, 1)
	msg := f.notifier.messages[0]
	assert.Equal(t, notification.KindTransactionCreated, msg.Kind)
	assert.Equal(t, w.ID, msg.Key)
	assert.Equal(t, "100.000000000000000000", msg.Payload.(map[string]string)["amount"])
}

func TestServiceRejectionDoesNotNotify(t *testing.T) {
	f := newFixture(t)
	w := f.wallet(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, CreateInput{WalletID: w.ID, TxID: "tx1", Amount: amount("100")})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, CreateInput{WalletID: w.ID, TxID: "tx2", Amount: amount("-150")})
	assert.ErrorIs(t, err, ledger.ErrNegativeBalance)
	_, err = f.svc.Create(ctx, CreateInput{WalletID: "garbage", TxID: "tx3", Amount: amount("1")})
	assert.ErrorIs(t, err, ledger.ErrWalletNotFound)

	assert.Equal(t, []string{notification.KindTransactionCreated}, f.notifier.kinds())
}

func TestServiceNotificationFailureKeepsCommit(t *testing.T) {
	f := newFixture(t)
	w := f.wallet(t)
	f.notifier.err = errors.New("broker down")

	tx, err := f.svc.Create(context.Background(), CreateInput{WalletID: w.ID, TxID: "tx1", Amount: amount("5")})
	require.NoError(t, err)

	stored, err := f.svc.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.True(t, stored.Amount.Equal(decimal.NewFromInt(5)))
}

func TestServiceAmend(t *testing.T) {
	f := newFixture(t)
	w := f.wallet(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, CreateInput{WalletID: w.ID, TxID: "deposit", Amount: amount("100")})
	require.NoError(t, err)
	spend, err := f.svc.Create(ctx, CreateInput{WalletID: w.ID, TxID: "spend", Amount: amount("-30")})
	require.NoError(t, err)

	amended, err := f.svc.Amend(ctx, spend.ID, AmendInput{Amount: amount("-80")})
	require.NoError(t, err)
	assert.True(t, amended.Amount.Equal(decimal.NewFromInt(-80)))

	_, err = f.svc.Amend(ctx, spend.ID, AmendInput{Amount: amount("-101")})
	assert.ErrorIs(t, err, ledger.ErrNegativeBalance)

	_, err = f.svc.Amend(ctx, uuid.NewString(), AmendInput{Amount: amount("1")})
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
	_, err = f.svc.Amend(ctx, "bad-id", AmendInput{Amount: amount("1")})
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)

	assert.Equal(t, []string{
		notification.KindTransactionCreated,
		notification.KindTransactionCreated,
		notification.KindTransactionAmended,
	}, f.notifier.kinds())
}

func TestServiceListWithMalformedWalletIsEmpty(t *testing.T) {
	f := newFixture(t)
	w := f.wallet(t)
	_, err := f.svc.Create(context.Background(), CreateInput{WalletID: w.ID, TxID: "tx1", Amount: amount("1")})
	require.NoError(t, err)

	page, err := f.svc.List(context.Background(), ledger.TransactionFilter{WalletID: "nope"}, ledger.PageRequest{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.Empty(t, page.Items)

	page, err = f.svc.List(context.Background(), ledger.TransactionFilter{WalletID: w.ID}, ledger.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}
