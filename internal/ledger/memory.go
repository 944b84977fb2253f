package ledger

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"
)

type memoryWallet struct {
	Wallet
	seq int64
}

type memoryRow struct {
	Transaction
	seq int64
}

// MemoryStore is a concurrency-safe in-memory Store used in development mode
// and unit tests. Each wallet has its own semaphore so boundaries on
// different wallets never wait on each other.
type MemoryStore struct {
	mu           sync.RWMutex
	wallets      map[string]memoryWallet
	transactions map[string]memoryRow
	txids        map[string]string
	locks        map[string]*semaphore.Weighted
	seq          int64

	lockTimeout time.Duration
	now         func() time.Time
}

// NewMemoryStore creates an empty store. A zero lockTimeout waits for the
// wallet lock until the context is done.
func NewMemoryStore(lockTimeout time.Duration) *MemoryStore {
	return &MemoryStore{
		wallets:      make(map[string]memoryWallet),
		transactions: make(map[string]memoryRow),
		txids:        make(map[string]string),
		locks:        make(map[string]*semaphore.Weighted),
		lockTimeout:  lockTimeout,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) nextSeq() int64 {
	s.seq++
	return s.seq
}

func (s *MemoryStore) CreateWallet(_ context.Context, label string) (Wallet, error) {
	if err := ValidateLabel(label); err != nil {
		return Wallet{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	w := Wallet{ID: uuid.NewString(), Label: label, CreatedAt: now, UpdatedAt: now}
	s.wallets[w.ID] = memoryWallet{Wallet: w, seq: s.nextSeq()}
	s.locks[w.ID] = semaphore.NewWeighted(1)
	return w, nil
}

func (s *MemoryStore) GetWallet(_ context.Context, id string) (Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallets[id]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return w.Wallet, nil
}

func (s *MemoryStore) UpdateWalletLabel(_ context.Context, id, label string) (Wallet, error) {
	if err := ValidateLabel(label); err != nil {
		return Wallet{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[id]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	w.Label = label
	w.UpdatedAt = s.now()
	s.wallets[id] = w
	return w.Wallet, nil
}

func (s *MemoryStore) DeleteWallet(ctx context.Context, id string) error {
	release, err := s.lockWallet(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()
	for txID, row := range s.transactions {
		if row.WalletID == id {
			delete(s.txids, row.TxID)
			delete(s.transactions, txID)
		}
	}
	delete(s.wallets, id)
	delete(s.locks, id)
	return nil
}

func (s *MemoryStore) GetTransaction(_ context.Context, id string) (Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.transactions[id]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	return row.Transaction, nil
}

func (s *MemoryStore) SumTransactionAmounts(_ context.Context, walletID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sumLocked(walletID, nil), nil
}

// sumLocked requires s.mu held. Staged rows replace or extend committed ones.
func (s *MemoryStore) sumLocked(walletID string, staged map[string]Transaction) decimal.Decimal {
	sum := decimal.Zero
	for id, row := range s.transactions {
		if row.WalletID != walletID {
			continue
		}
		if override, ok := staged[id]; ok {
			sum = sum.Add(override.Amount)
			continue
		}
		sum = sum.Add(row.Amount)
	}
	for id, t := range staged {
		if _, ok := s.transactions[id]; !ok {
			sum = sum.Add(t.Amount)
		}
	}
	return sum
}

func (s *MemoryStore) ListWallets(_ context.Context, filter WalletFilter, req PageRequest) (Page[WalletBalance], error) {
	req = req.Normalize()
	needle := strings.ToLower(filter.LabelContains)

	s.mu.RLock()
	rows := make([]memoryWallet, 0, len(s.wallets))
	for _, w := range s.wallets {
		if needle != "" && !strings.Contains(strings.ToLower(w.Label), needle) {
			continue
		}
		rows = append(rows, w)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		var less, equal bool
		switch req.Order.Field {
		case "id":
			less, equal = a.ID < b.ID, a.ID == b.ID
		case "label":
			less, equal = a.Label < b.Label, a.Label == b.Label
		default:
			less, equal = a.seq < b.seq, a.seq == b.seq
		}
		if equal {
			return a.seq < b.seq
		}
		return less != req.Order.Desc
	})
	items := make([]WalletBalance, 0, len(rows))
	for _, w := range rows {
		items = append(items, WalletBalance{Wallet: w.Wallet, Balance: s.sumLocked(w.ID, nil)})
	}
	s.mu.RUnlock()

	return paginate(items, req), nil
}

func (s *MemoryStore) ListTransactions(_ context.Context, filter TransactionFilter, req PageRequest) (Page[Transaction], error) {
	req = req.Normalize()
	needle := strings.ToLower(filter.TxIDContains)

	s.mu.RLock()
	rows := make([]memoryRow, 0)
	for _, row := range s.transactions {
		switch {
		case filter.WalletID != "" && row.WalletID != filter.WalletID:
			continue
		case needle != "" && !strings.Contains(strings.ToLower(row.TxID), needle):
			continue
		case filter.MinAmount.Valid && row.Amount.LessThan(filter.MinAmount.Decimal):
			continue
		case filter.MaxAmount.Valid && row.Amount.GreaterThan(filter.MaxAmount.Decimal):
			continue
		}
		rows = append(rows, row)
	}
	s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		var less, equal bool
		switch req.Order.Field {
		case "id":
			less, equal = a.ID < b.ID, a.ID == b.ID
		case "amount":
			cmp := a.Amount.Cmp(b.Amount)
			less, equal = cmp < 0, cmp == 0
		default:
			less, equal = a.seq < b.seq, a.seq == b.seq
		}
		if equal {
			return a.seq < b.seq
		}
		return less != req.Order.Desc
	})
	items := make([]Transaction, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.Transaction)
	}
	return paginate(items, req), nil
}

func (s *MemoryStore) WithinWallet(ctx context.Context, walletID string, fn func(ctx context.Context, tx Tx) error) error {
	release, err := s.lockWallet(ctx, walletID)
	if err != nil {
		return err
	}
	defer release()

	tx := &memoryTx{store: s, walletID: walletID, staged: make(map[string]Transaction)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return s.commit(tx)
}

// lockWallet acquires the wallet's semaphore, bounded by the lock timeout.
func (s *MemoryStore) lockWallet(ctx context.Context, walletID string) (func(), error) {
	s.mu.RLock()
	sem, ok := s.locks[walletID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrWalletNotFound
	}

	acquireCtx := ctx
	if s.lockTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}
	if err := sem.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrConflict
	}

	// The wallet may have been deleted while we waited.
	s.mu.RLock()
	_, ok = s.wallets[walletID]
	s.mu.RUnlock()
	if !ok {
		sem.Release(1)
		return nil, ErrWalletNotFound
	}
	return func() { sem.Release(1) }, nil
}

func (s *MemoryStore) commit(tx *memoryTx) error {
	if len(tx.staged) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// Another wallet's boundary may have committed the same txid since it was staged.
	for id, t := range tx.staged {
		owner, taken := s.txids[t.TxID]
		if !taken || owner == id {
			continue
		}
		if renamed, ok := tx.staged[owner]; ok && renamed.TxID != t.TxID {
			continue
		}
		return ErrDuplicateTxID
	}
	for _, id := range tx.order {
		if prev, ok := s.transactions[id]; ok {
			delete(s.txids, prev.TxID)
		}
	}
	for _, id := range tx.order {
		t := tx.staged[id]
		prev, exists := s.transactions[id]
		seq := prev.seq
		if !exists {
			seq = s.nextSeq()
		}
		s.transactions[id] = memoryRow{Transaction: t, seq: seq}
		s.txids[t.TxID] = id
	}
	return nil
}

type memoryTx struct {
	store    *MemoryStore
	walletID string
	staged   map[string]Transaction
	order    []string
}

func (t *memoryTx) WalletID() string {
	return t.walletID
}

func (t *memoryTx) SumTransactionAmounts(_ context.Context) (decimal.Decimal, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return t.store.sumLocked(t.walletID, t.staged), nil
}

func (t *memoryTx) GetTransaction(_ context.Context, id string) (Transaction, error) {
	if staged, ok := t.staged[id]; ok {
		return staged, nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	row, ok := t.store.transactions[id]
	if !ok || row.WalletID != t.walletID {
		return Transaction{}, ErrTransactionNotFound
	}
	return row.Transaction, nil
}

func (t *memoryTx) InsertTransaction(_ context.Context, tx Transaction) (Transaction, error) {
	if tx.WalletID != t.walletID {
		return Transaction{}, ErrWalletNotFound
	}
	if t.txidTaken(tx.TxID, "") {
		return Transaction{}, ErrDuplicateTxID
	}
	tx.ID = uuid.NewString()
	tx.CreatedAt = t.store.now()
	t.stage(tx)
	return tx, nil
}

func (t *memoryTx) UpdateTransaction(ctx context.Context, tx Transaction) (Transaction, error) {
	current, err := t.GetTransaction(ctx, tx.ID)
	if err != nil {
		return Transaction{}, err
	}
	if t.txidTaken(tx.TxID, tx.ID) {
		return Transaction{}, ErrDuplicateTxID
	}
	current.TxID = tx.TxID
	current.Amount = tx.Amount
	t.stage(current)
	return current, nil
}

func (t *memoryTx) stage(tx Transaction) {
	if _, ok := t.staged[tx.ID]; !ok {
		t.order = append(t.order, tx.ID)
	}
	t.staged[tx.ID] = tx
}

func (t *memoryTx) txidTaken(txid, self string) bool {
	for id, staged := range t.staged {
		if id != self && staged.TxID == txid {
			return true
		}
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	owner, taken := t.store.txids[txid]
	if !taken || owner == self {
		return false
	}
	// A committed row renamed inside this boundary frees its old txid.
	if staged, ok := t.staged[owner]; ok && staged.TxID != txid {
		return false
	}
	return true
}
