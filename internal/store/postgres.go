package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/predikt/prediction-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Odds and multipliers are stored as NUMERIC for exact decimal precision;
// token and point amounts are BIGINT.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// entryTable returns the transaction-log table for a currency. The two
// ledgers are separate tables so each stays small and append-only.
func entryTable(c model.Currency) string {
	if c == model.CurrencyPoints {
		return "point_entries"
	}
	return "token_entries"
}

func balanceColumn(c model.Currency) string {
	if c == model.CurrencyPoints {
		return "points_balance"
	}
	return "token_balance"
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, username, token_balance, points_balance, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Username, u.TokenBalance, u.PointsBalance, u.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var u model.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, token_balance, points_balance, created_at
		 FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Username, &u.TokenBalance, &u.PointsBalance, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return &u, nil
}

// --- Ledger reads ---

func (s *PostgresStore) SumLedgerEntries(ctx context.Context, userID uuid.UUID, currency model.Currency) (int64, error) {
	var sum int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM `+entryTable(currency)+` WHERE user_id = $1`,
		userID).Scan(&sum)
	return sum, err
}

func (s *PostgresStore) ListLedgerEntries(ctx context.Context, userID uuid.UUID, currency model.Currency, kind *model.EntryKind, limit, offset int) ([]model.LedgerEntry, error) {
	query := `SELECT id, user_id, amount, balance_after, kind, ref_type, ref_id, description, created_at
	          FROM ` + entryTable(currency) + ` WHERE user_id = $1`
	args := []any{userID}
	if kind != nil {
		query += ` AND kind = $2`
		args = append(args, string(*kind))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var refType, desc *string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &e.BalanceAfter, &e.Kind,
			&refType, &e.RefID, &desc, &e.CreatedAt); err != nil {
			return nil, err
		}
		if refType != nil {
			e.RefType = *refType
		}
		if desc != nil {
			e.Description = *desc
		}
		e.Currency = currency
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Events ---

const eventColumns = `id, title, description, starts_at, outcomes, multiplier::TEXT,
	status, final_outcome, external_id, sport_key, odds_snapshot, odds_updated_at,
	created_by, settled_by, settled_at, created_at`

func (s *PostgresStore) CreateEvent(ctx context.Context, e *model.Event) error {
	snapshot, err := marshalSnapshot(e.OddsSnapshot)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO events (id, title, description, starts_at, outcomes, multiplier,
		                     status, final_outcome, external_id, sport_key, odds_snapshot,
		                     odds_updated_at, created_by, settled_by, settled_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		e.ID, e.Title, e.Description, e.StartsAt, e.Outcomes, e.Multiplier.String(),
		e.Status, e.FinalOutcome, e.ExternalID, e.SportKey, snapshot,
		e.OddsUpdatedAt, e.CreatedBy, e.SettledBy, e.SettledAt, e.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetEvent(ctx context.Context, id uuid.UUID) (*model.Event, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	return scanEvent(row)
}

func (s *PostgresStore) ListEvents(ctx context.Context, status *model.EventStatus) ([]model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events`
	args := []any{}
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, string(*status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (s *PostgresStore) UpdateEventOdds(ctx context.Context, id uuid.UUID, snapshot []model.OutcomePrice, at time.Time) error {
	data, err := marshalSnapshot(snapshot)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE events SET odds_snapshot = $2, odds_updated_at = $3 WHERE id = $1`,
		id, data, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) LockStartedEvents(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE events SET status = $1 WHERE status = $2 AND starts_at <= $3`,
		model.EventLocked, model.EventOpen, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) ListSettleableEvents(ctx context.Context, limit int) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE status = $1 AND external_id <> '' AND sport_key <> ''
		 ORDER BY starts_at ASC LIMIT $2`,
		model.EventLocked, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// --- Predictions ---

const predictionColumns = `id, user_id, event_id, outcome, stake, odds::TEXT, status,
	payout, cashout_amount, cashed_out_at, settled_at, created_at`

func (s *PostgresStore) GetPrediction(ctx context.Context, id uuid.UUID) (*model.Prediction, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+predictionColumns+` FROM predictions WHERE id = $1`, id)
	return scanPrediction(row)
}

func (s *PostgresStore) ListPredictionsByUser(ctx context.Context, userID uuid.UUID) ([]model.Prediction, error) {
	return s.listPredictions(ctx, `user_id`, userID)
}

func (s *PostgresStore) ListPredictionsByEvent(ctx context.Context, eventID uuid.UUID) ([]model.Prediction, error) {
	return s.listPredictions(ctx, `event_id`, eventID)
}

func (s *PostgresStore) listPredictions(ctx context.Context, column string, id uuid.UUID) ([]model.Prediction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+predictionColumns+` FROM predictions WHERE `+column+` = $1 ORDER BY created_at ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var preds []model.Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		preds = append(preds, *p)
	}
	return preds, rows.Err()
}

// --- Transaction view ---

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetBalanceForUpdate(ctx context.Context, userID uuid.UUID, currency model.Currency) (int64, error) {
	var balance int64
	err := t.tx.QueryRow(ctx,
		`SELECT `+balanceColumn(currency)+` FROM users WHERE id = $1 FOR UPDATE`,
		userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, model.ErrNotFound
	}
	return balance, err
}

func (t *pgTx) SetBalance(ctx context.Context, userID uuid.UUID, currency model.Currency, balance int64) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE users SET `+balanceColumn(currency)+` = $2 WHERE id = $1`,
		userID, balance)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (t *pgTx) InsertLedgerEntry(ctx context.Context, e *model.LedgerEntry) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO `+entryTable(e.Currency)+`
		 (id, user_id, amount, balance_after, kind, ref_type, ref_id, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NULLIF($8, ''), $9)`,
		e.ID, e.UserID, e.Amount, e.BalanceAfter, e.Kind, e.RefType, e.RefID, e.Description, e.CreatedAt,
	)
	return err
}

func (t *pgTx) SumLedgerEntries(ctx context.Context, userID uuid.UUID, currency model.Currency) (int64, error) {
	var sum int64
	err := t.tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM `+entryTable(currency)+` WHERE user_id = $1`,
		userID).Scan(&sum)
	return sum, err
}

func (t *pgTx) GetAllowanceForUpdate(ctx context.Context, userID uuid.UUID) (*model.Allowance, error) {
	var a model.Allowance
	err := t.tx.QueryRow(ctx,
		`SELECT user_id, tokens_remaining, last_reset_date
		 FROM allowances WHERE user_id = $1 FOR UPDATE`, userID).
		Scan(&a.UserID, &a.TokensRemaining, &a.LastResetDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (t *pgTx) PutAllowance(ctx context.Context, a *model.Allowance) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO allowances (user_id, tokens_remaining, last_reset_date)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id)
		 DO UPDATE SET tokens_remaining = $2, last_reset_date = $3`,
		a.UserID, a.TokensRemaining, a.LastResetDate)
	return err
}

func (t *pgTx) GetEventForUpdate(ctx context.Context, id uuid.UUID) (*model.Event, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, id)
	return scanEvent(row)
}

func (t *pgTx) UpdateEvent(ctx context.Context, e *model.Event) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE events
		 SET status = $2, final_outcome = $3, settled_by = $4, settled_at = $5
		 WHERE id = $1`,
		e.ID, e.Status, e.FinalOutcome, e.SettledBy, e.SettledAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (t *pgTx) ListPendingPredictionsForUpdate(ctx context.Context, eventID uuid.UUID) ([]model.Prediction, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+predictionColumns+` FROM predictions
		 WHERE event_id = $1 AND status = $2
		 ORDER BY created_at ASC
		 FOR UPDATE`,
		eventID, model.PredictionPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var preds []model.Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		preds = append(preds, *p)
	}
	return preds, rows.Err()
}

func (t *pgTx) GetPredictionForUpdate(ctx context.Context, id uuid.UUID) (*model.Prediction, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+predictionColumns+` FROM predictions WHERE id = $1 FOR UPDATE`, id)
	return scanPrediction(row)
}

func (t *pgTx) CreatePrediction(ctx context.Context, p *model.Prediction) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO predictions (id, user_id, event_id, outcome, stake, odds, status,
		                          payout, cashout_amount, cashed_out_at, settled_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.UserID, p.EventID, p.Outcome, p.Stake, p.Odds.String(), p.Status,
		p.Payout, p.CashoutAmount, p.CashedOutAt, p.SettledAt, p.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		// Unique (user_id, event_id) constraint: one prediction per pair.
		return model.ErrAlreadyPredicted
	}
	return err
}

func (t *pgTx) UpdatePrediction(ctx context.Context, p *model.Prediction) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE predictions
		 SET status = $2, payout = $3, cashout_amount = $4, cashed_out_at = $5, settled_at = $6
		 WHERE id = $1`,
		p.ID, p.Status, p.Payout, p.CashoutAmount, p.CashedOutAt, p.SettledAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// --- Scan helpers ---

type pgxRow interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row pgxRow) (*model.Event, error) {
	var e model.Event
	var multiplier string
	var snapshot []byte

	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.StartsAt, &e.Outcomes, &multiplier,
		&e.Status, &e.FinalOutcome, &e.ExternalID, &e.SportKey, &snapshot, &e.OddsUpdatedAt,
		&e.CreatedBy, &e.SettledBy, &e.SettledAt, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	e.Multiplier, err = decimal.NewFromString(multiplier)
	if err != nil {
		return nil, fmt.Errorf("decode multiplier for event %s: %w", e.ID, err)
	}
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &e.OddsSnapshot); err != nil {
			return nil, fmt.Errorf("decode odds snapshot for event %s: %w", e.ID, err)
		}
	}
	return &e, nil
}

func scanPrediction(row pgxRow) (*model.Prediction, error) {
	var p model.Prediction
	var odds string

	err := row.Scan(&p.ID, &p.UserID, &p.EventID, &p.Outcome, &p.Stake, &odds, &p.Status,
		&p.Payout, &p.CashoutAmount, &p.CashedOutAt, &p.SettledAt, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.Odds, err = decimal.NewFromString(odds)
	if err != nil {
		return nil, fmt.Errorf("decode odds for prediction %s: %w", p.ID, err)
	}
	return &p, nil
}

func marshalSnapshot(snapshot []model.OutcomePrice) ([]byte, error) {
	if len(snapshot) == 0 {
		return nil, nil
	}
	return json.Marshal(snapshot)
}
