package calls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"amd-dashboard/pkg/utils"

	"github.com/jackc/pgx/v5/pgconn"
)

// NOTE: This repository assumes the following tables exist:
//
//   calls (
//     id TEXT PRIMARY KEY,
//     user_id TEXT NOT NULL,
//     phone_number TEXT NOT NULL,
//     amd_strategy TEXT NOT NULL,
//     call_direction TEXT NOT NULL,
//     call_status TEXT NOT NULL,
//     twilio_call_sid TEXT UNIQUE,
//     twilio_status TEXT,
//     amd_result TEXT NOT NULL DEFAULT 'UNKNOWN',
//     confidence DOUBLE PRECISION,
//     detection_latency INT,
//     duration INT NOT NULL DEFAULT 0,
//     answered_at TIMESTAMPTZ,
//     ended_at TIMESTAMPTZ,
//     error_message TEXT,
//     metadata TEXT,
//     created_at TIMESTAMPTZ NOT NULL,
//     updated_at TIMESTAMPTZ NOT NULL
//   )
//
//   call_logs (
//     id TEXT PRIMARY KEY,
//     call_id TEXT NOT NULL REFERENCES calls(id),
//     event TEXT NOT NULL,
//     message TEXT NOT NULL,
//     level TEXT NOT NULL,
//     metadata TEXT,
//     created_at TIMESTAMPTZ NOT NULL
//   )
//
// call_logs is INSERT-only; no UPDATE/DELETE statements exist in this file.

const pgUniqueViolation = "23505"

type PostgresRepo struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db, clock: time.Now}
}

const callColumns = `
id, user_id, phone_number, amd_strategy, call_direction, call_status,
twilio_call_sid, twilio_status, amd_result, confidence, detection_latency,
duration, answered_at, ended_at, error_message, metadata, created_at, updated_at`

func (r *PostgresRepo) Create(ctx context.Context, c Call, initLog LogEntry) (Call, error) {
	now := r.clock().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.AMDResult == "" {
		c.AMDResult = ResultUnknown
	}

	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
INSERT INTO calls (
  id, user_id, phone_number, amd_strategy, call_direction, call_status,
  amd_result, duration, error_message, metadata, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)
`
		if _, err := tx.ExecContext(ctx, q,
			c.ID,
			c.UserID,
			c.PhoneNumber,
			c.AMDStrategy,
			c.Direction,
			c.Status,
			c.AMDResult,
			c.DurationSeconds,
			nullString(c.ErrorMessage),
			nullString(c.Metadata),
			c.CreatedAt,
			c.UpdatedAt,
		); err != nil {
			return err
		}
		initLog.CallID = c.ID
		return insertLog(ctx, tx, initLog, now)
	})
	if err != nil {
		return Call{}, err
	}
	return c, nil
}

func (r *PostgresRepo) AssignProviderSID(ctx context.Context, callID, sid string, status CallStatus) error {
	// twilio_call_sid IS NULL makes the assignment first-write-only.
	const q = `
UPDATE calls
SET twilio_call_sid = $2, call_status = $3, updated_at = $4
WHERE id = $1 AND twilio_call_sid IS NULL
`
	res, err := r.db.ExecContext(ctx, q, callID, sid, status, r.clock().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateSID
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.GetByID(ctx, callID); err != nil {
			return err
		}
		return ErrDuplicateSID
	}
	return nil
}

func (r *PostgresRepo) GetByID(ctx context.Context, id string) (Call, error) {
	q := `SELECT` + callColumns + ` FROM calls WHERE id = $1`
	return scanCall(r.db.QueryRowContext(ctx, q, id))
}

func (r *PostgresRepo) GetByProviderSID(ctx context.Context, sid string) (Call, error) {
	q := `SELECT` + callColumns + ` FROM calls WHERE twilio_call_sid = $1`
	return scanCall(r.db.QueryRowContext(ctx, q, sid))
}

func (r *PostgresRepo) ApplyStatus(ctx context.Context, callID string, u StatusUpdate) error {
	// Status, raw status and duration overwrite unconditionally; answered_at
	// and ended_at keep their first value via COALESCE on the column.
	const q = `
UPDATE calls
SET call_status = $2,
    twilio_status = $3,
    duration = COALESCE($4, duration),
    answered_at = COALESCE(answered_at, $5),
    ended_at = COALESCE(ended_at, $6),
    updated_at = $7
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q,
		callID,
		u.Status,
		u.RawStatus,
		nullInt(u.DurationSeconds),
		nullTime(u.AnsweredAt),
		nullTime(u.EndedAt),
		r.clock().UTC(),
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PostgresRepo) ApplyAMD(ctx context.Context, callID string, u AMDUpdate) error {
	const q = `
UPDATE calls
SET amd_result = $2,
    confidence = $3,
    detection_latency = $4,
    metadata = $5,
    updated_at = $6
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q,
		callID,
		u.Result,
		u.Confidence,
		nullInt(u.DetectionLatencyMS),
		nullString(u.Metadata),
		r.clock().UTC(),
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PostgresRepo) AppendLog(ctx context.Context, e LogEntry) error {
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		return insertLog(ctx, tx, e, r.clock().UTC())
	})
}

func (r *PostgresRepo) ListLogs(ctx context.Context, callID string) ([]LogEntry, error) {
	const q = `
SELECT id, call_id, event, message, level, metadata, created_at
FROM call_logs
WHERE call_id = $1
ORDER BY created_at ASC, id ASC
`
	rows, err := r.db.QueryContext(ctx, q, callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		var meta sql.NullString
		if err := rows.Scan(&e.ID, &e.CallID, &e.Event, &e.Message, &e.Level, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Metadata = meta.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) List(ctx context.Context, f ListFilter) ([]Call, error) {
	where, args := buildFilter(f)
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := `SELECT` + callColumns + ` FROM calls` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, limit, max(f.Offset, 0))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		c, err := scanCallRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Summarize(ctx context.Context, f ListFilter) (Summary, error) {
	where, args := buildFilter(f)
	q := `SELECT call_status, amd_result, duration FROM calls` + where

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return Summary{}, err
	}
	defer rows.Close()

	sum := Summary{ByStatus: map[CallStatus]int{}, ByResult: map[AMDResult]int{}}
	for rows.Next() {
		var status CallStatus
		var result AMDResult
		var dur int
		if err := rows.Scan(&status, &result, &dur); err != nil {
			return Summary{}, err
		}
		sum.TotalCalls++
		sum.ByStatus[status]++
		sum.ByResult[result]++
		sum.TotalDurationSeconds += dur
	}
	return sum, rows.Err()
}

func buildFilter(f ListFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.Status != "" {
		add("call_status = $%d", f.Status)
	}
	if f.Result != "" {
		add("amd_result = $%d", f.Result)
	}
	if f.Strategy != "" {
		add("amd_strategy = $%d", f.Strategy)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func insertLog(ctx context.Context, tx *sql.Tx, e LogEntry, now time.Time) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	const q = `
INSERT INTO call_logs (id, call_id, event, message, level, metadata, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`
	_, err := tx.ExecContext(ctx, q,
		e.ID,
		e.CallID,
		e.Event,
		e.Message,
		e.Level,
		nullString(e.Metadata),
		e.CreatedAt,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (Call, error) {
	c, err := scanCallRows(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, ErrNotFound
		}
		return Call{}, err
	}
	return c, nil
}

func scanCallRows(row rowScanner) (Call, error) {
	var c Call
	var sid, rawStatus, errMsg, meta sql.NullString
	var conf sql.NullFloat64
	var latency sql.NullInt64
	var answered, ended sql.NullTime

	if err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.PhoneNumber,
		&c.AMDStrategy,
		&c.Direction,
		&c.Status,
		&sid,
		&rawStatus,
		&c.AMDResult,
		&conf,
		&latency,
		&c.DurationSeconds,
		&answered,
		&ended,
		&errMsg,
		&meta,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return Call{}, err
	}

	c.TwilioCallSID = sid.String
	c.TwilioStatus = rawStatus.String
	c.ErrorMessage = errMsg.String
	c.Metadata = meta.String
	if conf.Valid {
		v := conf.Float64
		c.Confidence = &v
	}
	if latency.Valid {
		v := int(latency.Int64)
		c.DetectionLatencyMS = &v
	}
	if answered.Valid {
		v := answered.Time
		c.AnsweredAt = &v
	}
	if ended.Valid {
		v := ended.Time
		c.EndedAt = &v
	}
	return c, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
