package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStore persists wallets and transactions in PostgreSQL. Wallet
// boundaries lock the wallet row, so same-wallet writers queue up while
// writers on other wallets proceed.
type PostgresStore struct {
	db          *pgxpool.Pool
	lockTimeout time.Duration
}

// NewPostgresStore constructs a Postgres-backed store. A zero lockTimeout
// falls back to the server's lock_timeout setting.
func NewPostgresStore(db *pgxpool.Pool, lockTimeout time.Duration) *PostgresStore {
	return &PostgresStore{db: db, lockTimeout: lockTimeout}
}

// querier is satisfied by both the pool and an open pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const transactionColumns = `id, wallet_id, txid, amount::text, created_at`

func (s *PostgresStore) CreateWallet(ctx context.Context, label string) (Wallet, error) {
	if err := ValidateLabel(label); err != nil {
		return Wallet{}, err
	}
	w := Wallet{ID: uuid.NewString(), Label: label}
	err := s.db.QueryRow(ctx, `INSERT INTO wallets (id, label) VALUES ($1, $2)
        RETURNING created_at, updated_at`, w.ID, label).Scan(&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return Wallet{}, classify(err)
	}
	w.CreatedAt, w.UpdatedAt = w.CreatedAt.UTC(), w.UpdatedAt.UTC()
	return w, nil
}

func (s *PostgresStore) GetWallet(ctx context.Context, id string) (Wallet, error) {
	walletID, err := uuid.Parse(id)
	if err != nil {
		return Wallet{}, ErrWalletNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT id, label, created_at, updated_at FROM wallets WHERE id = $1`, walletID)
	w, err := scanWallet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, classify(err)
	}
	return w, nil
}

func (s *PostgresStore) UpdateWalletLabel(ctx context.Context, id, label string) (Wallet, error) {
	if err := ValidateLabel(label); err != nil {
		return Wallet{}, err
	}
	walletID, err := uuid.Parse(id)
	if err != nil {
		return Wallet{}, ErrWalletNotFound
	}
	row := s.db.QueryRow(ctx, `UPDATE wallets SET label = $2, updated_at = now() WHERE id = $1
        RETURNING id, label, created_at, updated_at`, walletID, label)
	w, err := scanWallet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, classify(err)
	}
	return w, nil
}

// DeleteWallet relies on ON DELETE CASCADE. The row lock taken by DELETE
// waits for any open boundary on the wallet.
func (s *PostgresStore) DeleteWallet(ctx context.Context, id string) error {
	walletID, err := uuid.Parse(id)
	if err != nil {
		return ErrWalletNotFound
	}
	cmd, err := s.db.Exec(ctx, `DELETE FROM wallets WHERE id = $1`, walletID)
	if err != nil {
		return classify(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrWalletNotFound
	}
	return nil
}

func (s *PostgresStore) GetTransaction(ctx context.Context, id string) (Transaction, error) {
	txID, err := uuid.Parse(id)
	if err != nil {
		return Transaction{}, ErrTransactionNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, txID)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, classify(err)
	}
	return t, nil
}

func (s *PostgresStore) SumTransactionAmounts(ctx context.Context, walletID string) (decimal.Decimal, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return decimal.Zero, ErrWalletNotFound
	}
	return sumForWallet(ctx, s.db, id)
}

func (s *PostgresStore) ListWallets(ctx context.Context, filter WalletFilter, req PageRequest) (Page[WalletBalance], error) {
	req = req.Normalize()
	var where clauses
	if filter.LabelContains != "" {
		where.add("w.label ILIKE '%%' || $%d || '%%'", escapeLike(filter.LabelContains))
	}

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM wallets w`+where.sql(), where.args...).Scan(&total); err != nil {
		return Page[WalletBalance]{}, classify(err)
	}

	column := map[string]string{"id": "w.id", "label": "w.label"}[req.Order.Field]
	if column == "" {
		column = "w.created_at"
	}
	query := fmt.Sprintf(`SELECT w.id, w.label, w.created_at, w.updated_at, COALESCE(SUM(t.amount), 0)::text
        FROM wallets w
        LEFT JOIN transactions t ON t.wallet_id = w.id%s
        GROUP BY w.id
        ORDER BY %s %s, w.id
        LIMIT %d OFFSET %d`, where.sql(), column, direction(req.Order), req.Size, req.Offset())

	rows, err := s.db.Query(ctx, query, where.args...)
	if err != nil {
		return Page[WalletBalance]{}, classify(err)
	}
	defer rows.Close()

	page := Page[WalletBalance]{Items: []WalletBalance{}, Total: total, Page: req.Page, Size: req.Size}
	for rows.Next() {
		var (
			wb      WalletBalance
			id      uuid.UUID
			balance string
		)
		if err := rows.Scan(&id, &wb.Label, &wb.CreatedAt, &wb.UpdatedAt, &balance); err != nil {
			return Page[WalletBalance]{}, classify(err)
		}
		wb.ID = id.String()
		wb.CreatedAt, wb.UpdatedAt = wb.CreatedAt.UTC(), wb.UpdatedAt.UTC()
		if wb.Balance, err = decimal.NewFromString(balance); err != nil {
			return Page[WalletBalance]{}, err
		}
		page.Items = append(page.Items, wb)
	}
	if err := rows.Err(); err != nil {
		return Page[WalletBalance]{}, classify(err)
	}
	return page, nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context, filter TransactionFilter, req PageRequest) (Page[Transaction], error) {
	req = req.Normalize()
	var where clauses
	if filter.WalletID != "" {
		walletID, err := uuid.Parse(filter.WalletID)
		if err != nil {
			return Page[Transaction]{Items: []Transaction{}, Page: req.Page, Size: req.Size}, nil
		}
		where.add("wallet_id = $%d", walletID)
	}
	if filter.TxIDContains != "" {
		where.add("txid ILIKE '%%' || $%d || '%%'", escapeLike(filter.TxIDContains))
	}
	if filter.MinAmount.Valid {
		where.add("amount >= $%d::numeric", filter.MinAmount.Decimal.String())
	}
	if filter.MaxAmount.Valid {
		where.add("amount <= $%d::numeric", filter.MaxAmount.Decimal.String())
	}

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM transactions`+where.sql(), where.args...).Scan(&total); err != nil {
		return Page[Transaction]{}, classify(err)
	}

	column := map[string]string{"id": "id", "amount": "amount"}[req.Order.Field]
	if column == "" {
		column = "created_at"
	}
	query := fmt.Sprintf(`SELECT %s FROM transactions%s ORDER BY %s %s, id LIMIT %d OFFSET %d`,
		transactionColumns, where.sql(), column, direction(req.Order), req.Size, req.Offset())

	rows, err := s.db.Query(ctx, query, where.args...)
	if err != nil {
		return Page[Transaction]{}, classify(err)
	}
	defer rows.Close()

	page := Page[Transaction]{Items: []Transaction{}, Total: total, Page: req.Page, Size: req.Size}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return Page[Transaction]{}, classify(err)
		}
		page.Items = append(page.Items, t)
	}
	if err := rows.Err(); err != nil {
		return Page[Transaction]{}, classify(err)
	}
	return page, nil
}

// WithinWallet opens a READ COMMITTED transaction and locks the wallet row
// with SELECT ... FOR UPDATE before running fn. Every statement after the
// lock sees all commits of earlier holders.
func (s *PostgresStore) WithinWallet(ctx context.Context, walletID string, fn func(ctx context.Context, tx Tx) error) error {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return ErrWalletNotFound
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if s.lockTimeout > 0 {
		timeout := fmt.Sprintf("%dms", s.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, timeout); err != nil {
			return classify(err)
		}
	}

	var locked uuid.UUID
	if err := tx.QueryRow(ctx, `SELECT id FROM wallets WHERE id = $1 FOR UPDATE`, id).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrWalletNotFound
		}
		return classify(err)
	}

	if err := fn(ctx, &postgresTx{tx: tx, walletID: id}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(err)
	}
	return nil
}

type postgresTx struct {
	tx       pgx.Tx
	walletID uuid.UUID
}

func (t *postgresTx) WalletID() string {
	return t.walletID.String()
}

func (t *postgresTx) SumTransactionAmounts(ctx context.Context) (decimal.Decimal, error) {
	return sumForWallet(ctx, t.tx, t.walletID)
}

func (t *postgresTx) GetTransaction(ctx context.Context, id string) (Transaction, error) {
	txID, err := uuid.Parse(id)
	if err != nil {
		return Transaction{}, ErrTransactionNotFound
	}
	row := t.tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions
        WHERE id = $1 AND wallet_id = $2 FOR UPDATE`, txID, t.walletID)
	tr, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, classify(err)
	}
	return tr, nil
}

func (t *postgresTx) InsertTransaction(ctx context.Context, tr Transaction) (Transaction, error) {
	if tr.WalletID != t.walletID.String() {
		return Transaction{}, ErrWalletNotFound
	}
	id := uuid.New()
	row := t.tx.QueryRow(ctx, `INSERT INTO transactions (id, wallet_id, txid, amount)
        VALUES ($1, $2, $3, $4::numeric)
        RETURNING `+transactionColumns, id, t.walletID, tr.TxID, tr.Amount.String())
	inserted, err := scanTransaction(row)
	if err != nil {
		return Transaction{}, classify(err)
	}
	return inserted, nil
}

func (t *postgresTx) UpdateTransaction(ctx context.Context, tr Transaction) (Transaction, error) {
	txID, err := uuid.Parse(tr.ID)
	if err != nil {
		return Transaction{}, ErrTransactionNotFound
	}
	row := t.tx.QueryRow(ctx, `UPDATE transactions SET txid = $3, amount = $4::numeric
        WHERE id = $1 AND wallet_id = $2
        RETURNING `+transactionColumns, txID, t.walletID, tr.TxID, tr.Amount.String())
	updated, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, classify(err)
	}
	return updated, nil
}

func sumForWallet(ctx context.Context, q querier, walletID uuid.UUID) (decimal.Decimal, error) {
	const query = `SELECT COALESCE(SUM(amount), 0)::text FROM transactions WHERE wallet_id = $1`
	var sum string
	if err := q.QueryRow(ctx, query, walletID).Scan(&sum); err != nil {
		return decimal.Zero, classify(err)
	}
	return decimal.NewFromString(sum)
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w  Wallet
		id uuid.UUID
	)
	if err := row.Scan(&id, &w.Label, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return Wallet{}, err
	}
	w.ID = id.String()
	w.CreatedAt, w.UpdatedAt = w.CreatedAt.UTC(), w.UpdatedAt.UTC()
	return w, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		t        Transaction
		id       uuid.UUID
		walletID uuid.UUID
		amount   string
	)
	if err := row.Scan(&id, &walletID, &t.TxID, &amount, &t.CreatedAt); err != nil {
		return Transaction{}, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return Transaction{}, err
	}
	t.ID = id.String()
	t.WalletID = walletID.String()
	t.Amount = parsed
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

// classify maps driver errors onto the ledger's error taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrDuplicateTxID, pgErr.ConstraintName)
		case "23503":
			return ErrWalletNotFound
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
		case "22003":
			return fmt.Errorf("%w: %s", ErrInvalidAmount, pgErr.Message)
		}
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

type clauses struct {
	parts []string
	args  []any
}

// add appends a predicate whose single placeholder is written as $%d.
func (c *clauses) add(predicate string, arg any) {
	c.args = append(c.args, arg)
	c.parts = append(c.parts, fmt.Sprintf(predicate, len(c.args)))
}

func (c *clauses) sql() string {
	if len(c.parts) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.parts, " AND ")
}

func direction(o Order) string {
	if o.Desc {
		return "DESC"
	}
	return "ASC"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
