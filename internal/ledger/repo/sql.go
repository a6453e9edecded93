package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/radieske/arena-escrow/internal/ledger"
	"github.com/radieske/arena-escrow/internal/shared/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS rounds (
    topic         TEXT PRIMARY KEY,
    authority     TEXT    NOT NULL,
    fee_recipient TEXT    NOT NULL,
    deadline_ms   BIGINT  NOT NULL,
    pool_a        BIGINT  NOT NULL DEFAULT 0,
    pool_b        BIGINT  NOT NULL DEFAULT 0,
    fee_bps       BIGINT  NOT NULL,
    fee_paid      BIGINT  NOT NULL DEFAULT 0,
    status        TEXT    NOT NULL,
    winner        TEXT    NOT NULL DEFAULT '',
    settled_by    TEXT    NOT NULL DEFAULT '',
    created_ms    BIGINT  NOT NULL,
    settled_ms    BIGINT  NOT NULL DEFAULT 0,
    version       BIGINT  NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS stakes (
    topic      TEXT    NOT NULL REFERENCES rounds(topic),
    user_id    TEXT    NOT NULL,
    side       TEXT    NOT NULL,
    amount     BIGINT  NOT NULL,
    claimed    BOOLEAN NOT NULL DEFAULT FALSE,
    reward     BIGINT  NOT NULL DEFAULT 0,
    created_ms BIGINT  NOT NULL,
    claimed_ms BIGINT  NOT NULL DEFAULT 0,
    PRIMARY KEY (topic, user_id)
);

CREATE TABLE IF NOT EXISTS accounts (
    id      TEXT PRIMARY KEY,
    balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0)
);

CREATE TABLE IF NOT EXISTS ledger_entries (
    id         TEXT PRIMARY KEY,
    account_id TEXT   NOT NULL,
    op         TEXT   NOT NULL,
    amount     BIGINT NOT NULL,
    ref        TEXT   NOT NULL,
    created_ms BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rounds_status_deadline ON rounds(status, deadline_ms);
CREATE INDEX IF NOT EXISTS idx_entries_account ON ledger_entries(account_id, created_ms);
`

const roundCols = `topic, authority, fee_recipient, deadline_ms, pool_a, pool_b, fee_bps, fee_paid, status, winner, settled_by, created_ms, settled_ms, version`

const stakeCols = `topic, user_id, side, amount, claimed, reward, created_ms, claimed_ms`

// SQL implementa ledger.Store sobre database/sql (Postgres ou SQLite).
// Postgres serializa por rodada com SELECT ... FOR UPDATE; SQLite pela conexão única.
type SQL struct {
	db      *sql.DB
	dialect db.Dialect
}

// NewSQL cria o store; chame Migrate antes do primeiro uso
func NewSQL(conn *sql.DB, d db.Dialect) *SQL { return &SQL{db: conn, dialect: d} }

// Migrate aplica o schema (idempotente)
func (s *SQL) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("repo.Migrate: %w", err)
	}
	return nil
}

// Ping verifica a conexão (healthz)
func (s *SQL) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// InTx abre uma transação, executa fn e faz commit; qualquer erro faz rollback
func (s *SQL) InTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repo.InTx: begin: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqlTx{tx: tx, d: s.dialect}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("repo.InTx: commit: %w", err)
	}
	return nil
}

func (s *SQL) Round(ctx context.Context, topic string) (ledger.Round, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.Rebind(`SELECT `+roundCols+` FROM rounds WHERE topic = ?`), topic)
	return scanRound(row)
}

func (s *SQL) Rounds(ctx context.Context, f ledger.RoundFilter) ([]ledger.Round, error) {
	q := `SELECT ` + roundCols + ` FROM rounds WHERE 1 = 1`
	var args []any
	if f.Status != "" {
		q += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if !f.DueBefore.IsZero() {
		q += ` AND deadline_ms <= ?`
		args = append(args, toMillis(f.DueBefore))
	}
	q += ` ORDER BY deadline_ms DESC, topic ASC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("repo.Rounds: query: %w", err)
	}
	defer rows.Close()

	var out []ledger.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQL) Stake(ctx context.Context, topic string, user ledger.Identity) (ledger.Stake, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.Rebind(`SELECT `+stakeCols+` FROM stakes WHERE topic = ? AND user_id = ?`), topic, string(user))
	return scanStake(row)
}

func (s *SQL) Stakes(ctx context.Context, topic string) ([]ledger.Stake, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(`SELECT `+stakeCols+` FROM stakes WHERE topic = ? ORDER BY user_id`), topic)
	if err != nil {
		return nil, fmt.Errorf("repo.Stakes: query: %w", err)
	}
	defer rows.Close()

	var out []ledger.Stake
	for rows.Next() {
		st, err := scanStake(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *SQL) Balance(ctx context.Context, acc ledger.Account) (uint64, error) {
	return balance(ctx, s.db, s.dialect, acc)
}

func (s *SQL) Entries(ctx context.Context, acc ledger.Account, limit int) ([]ledger.Entry, error) {
	q := `SELECT id, account_id, op, amount, ref, created_ms FROM ledger_entries WHERE account_id = ? ORDER BY created_ms DESC, id DESC`
	args := []any{string(acc)}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("repo.Entries: query: %w", err)
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		var account string
		var amount, created int64
		if err := rows.Scan(&e.ID, &account, &e.Op, &amount, &e.Ref, &created); err != nil {
			return nil, fmt.Errorf("repo.Entries: scan: %w", err)
		}
		e.Account = ledger.Account(account)
		e.Amount = uint64(amount)
		e.CreatedAt = fromMillis(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// sqlTx implementa ledger.Tx dentro de uma *sql.Tx
type sqlTx struct {
	tx *sql.Tx
	d  db.Dialect
}

func (t *sqlTx) exec(ctx context.Context, q string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, t.d.Rebind(q), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (t *sqlTx) LockRound(ctx context.Context, topic string) (ledger.Round, error) {
	row := t.tx.QueryRowContext(ctx, t.d.Rebind(`SELECT `+roundCols+` FROM rounds WHERE topic = ?`+t.d.ForUpdate()), topic)
	return scanRound(row)
}

func (t *sqlTx) InsertRound(ctx context.Context, r ledger.Round) error {
	n, err := t.exec(ctx, `
		INSERT INTO rounds (`+roundCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (topic) DO NOTHING`,
		r.Topic, string(r.Authority), string(r.FeeRecipient), toMillis(r.Deadline),
		int64(r.PoolA), int64(r.PoolB), int64(r.FeeBps), int64(r.FeePaid),
		string(r.Status), string(r.Winner), string(r.SettledBy),
		toMillis(r.CreatedAt), toMillis(r.SettledAt), int64(r.Version),
	)
	if err != nil {
		return fmt.Errorf("repo.InsertRound: %w", err)
	}
	if n == 0 {
		return ledger.ErrRoundAlreadyExists
	}
	return nil
}

func (t *sqlTx) IncrementPool(ctx context.Context, topic string, side ledger.Side, amount uint64) error {
	var q string
	switch side {
	case ledger.SideA:
		q = `UPDATE rounds SET pool_a = pool_a + ?, version = version + 1 WHERE topic = ? AND status = ?`
	case ledger.SideB:
		q = `UPDATE rounds SET pool_b = pool_b + ?, version = version + 1 WHERE topic = ? AND status = ?`
	default:
		return ledger.ErrInvalidSide
	}
	n, err := t.exec(ctx, q, int64(amount), topic, string(ledger.StatusOpen))
	if err != nil {
		return fmt.Errorf("repo.IncrementPool: %w", err)
	}
	if n == 0 {
		return ledger.ErrRoundClosed
	}
	return nil
}

func (t *sqlTx) SettleRound(ctx context.Context, r ledger.Round) error {
	n, err := t.exec(ctx, `
		UPDATE rounds
		SET status = ?, winner = ?, fee_paid = ?, settled_by = ?, settled_ms = ?, version = version + 1
		WHERE topic = ? AND status = ?`,
		string(r.Status), string(r.Winner), int64(r.FeePaid), string(r.SettledBy), toMillis(r.SettledAt),
		r.Topic, string(ledger.StatusOpen),
	)
	if err != nil {
		return fmt.Errorf("repo.SettleRound: %w", err)
	}
	if n == 0 {
		return ledger.ErrAlreadySettled
	}
	return nil
}

func (t *sqlTx) GetStake(ctx context.Context, topic string, user ledger.Identity) (ledger.Stake, error) {
	row := t.tx.QueryRowContext(ctx, t.d.Rebind(`SELECT `+stakeCols+` FROM stakes WHERE topic = ? AND user_id = ?`), topic, string(user))
	return scanStake(row)
}

func (t *sqlTx) InsertStake(ctx context.Context, s ledger.Stake) error {
	n, err := t.exec(ctx, `
		INSERT INTO stakes (`+stakeCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (topic, user_id) DO NOTHING`,
		s.Topic, string(s.User), string(s.Side), int64(s.Amount), s.Claimed, int64(s.Reward),
		toMillis(s.CreatedAt), toMillis(s.ClaimedAt),
	)
	if err != nil {
		return fmt.Errorf("repo.InsertStake: %w", err)
	}
	if n == 0 {
		return ledger.ErrDuplicateStake
	}
	return nil
}

func (t *sqlTx) MarkClaimed(ctx context.Context, s ledger.Stake) error {
	n, err := t.exec(ctx, `
		UPDATE stakes SET claimed = ?, reward = ?, claimed_ms = ?
		WHERE topic = ? AND user_id = ? AND claimed = ?`,
		true, int64(s.Reward), toMillis(s.ClaimedAt), s.Topic, string(s.User), false,
	)
	if err != nil {
		return fmt.Errorf("repo.MarkClaimed: %w", err)
	}
	if n == 0 {
		return ledger.ErrAlreadyClaimed
	}
	return nil
}

func (t *sqlTx) Credit(ctx context.Context, acc ledger.Account, amount uint64, ref string, at time.Time) error {
	if _, err := t.exec(ctx, `
		INSERT INTO accounts (id, balance) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET balance = accounts.balance + excluded.balance`,
		string(acc), int64(amount),
	); err != nil {
		return fmt.Errorf("repo.Credit: %w", err)
	}
	return t.insertEntry(ctx, acc, ledger.OpCredit, amount, ref, at)
}

func (t *sqlTx) Debit(ctx context.Context, acc ledger.Account, amount uint64, ref string, at time.Time) error {
	n, err := t.exec(ctx, `UPDATE accounts SET balance = balance - ? WHERE id = ? AND balance >= ?`,
		int64(amount), string(acc), int64(amount))
	if err != nil {
		return fmt.Errorf("repo.Debit: %w", err)
	}
	if n == 0 {
		return ledger.ErrInsufficientFunds
	}
	return t.insertEntry(ctx, acc, ledger.OpDebit, amount, ref, at)
}

func (t *sqlTx) Balance(ctx context.Context, acc ledger.Account) (uint64, error) {
	return balance(ctx, t.tx, t.d, acc)
}

func (t *sqlTx) insertEntry(ctx context.Context, acc ledger.Account, op string, amount uint64, ref string, at time.Time) error {
	if _, err := t.exec(ctx, `
		INSERT INTO ledger_entries (id, account_id, op, amount, ref, created_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), string(acc), op, int64(amount), ref, toMillis(at),
	); err != nil {
		return fmt.Errorf("repo.insertEntry: %w", err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func balance(ctx context.Context, q queryer, d db.Dialect, acc ledger.Account) (uint64, error) {
	var bal int64
	err := q.QueryRowContext(ctx, d.Rebind(`SELECT balance FROM accounts WHERE id = ?`), string(acc)).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("repo.Balance: %w", err)
	}
	return uint64(bal), nil
}

func scanRound(row scanner) (ledger.Round, error) {
	var (
		r                             ledger.Round
		authority, feeRecipient       string
		status, winner, settledBy     string
		deadline, created, settled    int64
		poolA, poolB, feeBps, feePaid int64
		version                       int64
	)
	err := row.Scan(&r.Topic, &authority, &feeRecipient, &deadline, &poolA, &poolB,
		&feeBps, &feePaid, &status, &winner, &settledBy, &created, &settled, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Round{}, ledger.ErrRoundNotFound
	}
	if err != nil {
		return ledger.Round{}, fmt.Errorf("repo.scanRound: %w", err)
	}
	r.Authority = ledger.Identity(authority)
	r.FeeRecipient = ledger.Identity(feeRecipient)
	r.Deadline = fromMillis(deadline)
	r.PoolA, r.PoolB = uint64(poolA), uint64(poolB)
	r.FeeBps, r.FeePaid = uint64(feeBps), uint64(feePaid)
	r.Status = ledger.Status(status)
	r.Winner = ledger.Side(winner)
	r.SettledBy = ledger.Identity(settledBy)
	r.CreatedAt = fromMillis(created)
	r.SettledAt = fromMillis(settled)
	r.Version = uint64(version)
	return r, nil
}

func scanStake(row scanner) (ledger.Stake, error) {
	var (
		s                  ledger.Stake
		user, side         string
		amount, reward     int64
		created, claimedAt int64
	)
	err := row.Scan(&s.Topic, &user, &side, &amount, &s.Claimed, &reward, &created, &claimedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Stake{}, ledger.ErrNoSuchStake
	}
	if err != nil {
		return ledger.Stake{}, fmt.Errorf("repo.scanStake: %w", err)
	}
	s.User = ledger.Identity(user)
	s.Side = ledger.Side(side)
	s.Amount, s.Reward = uint64(amount), uint64(reward)
	s.CreatedAt = fromMillis(created)
	s.ClaimedAt = fromMillis(claimedAt)
	return s, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
