package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/opertusmundi/normalize/internal/data/pgxutil"
	"github.com/opertusmundi/normalize/internal/domain/model"
)

// insertTicketParams groups parameters for inserting a ticket within a transaction.
type insertTicketParams struct {
	Token   string
	Payload []byte
}

// SQL used by ClaimNext to atomically move the oldest pending ticket to running.
const claimNextUpdateSQL = `
  WITH cte AS (
    SELECT id FROM tickets
    WHERE status = 'pending'
    ORDER BY requested_time ASC, id ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE tickets t
  SET
    status = 'running',
    started_time = COALESCE(t.started_time, $1)
  FROM cte
  WHERE t.id = cte.id
  RETURNING t.id, t.ticket, t.status, t.success, t.payload, t.requested_time, t.started_time, t.completed_time, t.execution_time, t.result, t.filesize, t.comment`

// Create opens a new ticket in pending state. When the request carries no token
// a fresh UUIDv4 is generated; an explicit token that collides with an existing
// ticket surfaces as ErrDuplicateTicket.
func (r *TicketRepo) Create(
	ctx context.Context,
	req *model.CreateTicketRequest,
) (*model.Ticket, error) {
	if req == nil {
		return nil, errors.New("create ticket request is required")
	}

	if validateErr := req.Validate(); validateErr != nil {
		return nil, validateErr
	}

	token := req.Token
	if token == "" {
		token = uuid.NewString()
	}

	p := &insertTicketParams{
		Token:   token,
		Payload: req.Payload,
	}

	var ticket *model.Ticket
	if txErr := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			var insertErr error
			ticket, insertErr = r.insertTicketInTx(ctx, tx, p)
			return insertErr
		},
	}); txErr != nil {
		if isUniqueViolation(txErr) {
			return nil, ErrDuplicateTicket
		}
		return nil, txErr
	}

	return ticket, nil
}

// insertTicketInTx inserts a ticket within a pgx.Tx and announces it on the
// notify channel so idle workers wake up.
func (r *TicketRepo) insertTicketInTx(ctx context.Context, tx pgx.Tx, params *insertTicketParams) (*model.Ticket, error) {
	if params == nil {
		return nil, errors.New("insert ticket params are required")
	}

	query := `
      INSERT INTO tickets(ticket, status, payload, requested_time)
      VALUES ($1, 'pending', $2, $3)
      RETURNING ` + ticketColumns

	rows, err := tx.Query(ctx, query, params.Token, params.Payload, r.timeProvider.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("insert ticket: %w", err)
	}
	ticket, collectErr := collectTicketFromRows(rows)
	rows.Close()
	if collectErr != nil {
		return nil, fmt.Errorf("collect ticket: %w", collectErr)
	}

	if _, execErr := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, notifyChannel, ticket.Token); execErr != nil {
		return nil, fmt.Errorf("send ticket notification: %w", execErr)
	}

	return ticket, nil
}

// ClaimNext atomically claims the oldest pending ticket and returns it in
// running state. Returns model.ErrNoTicketsAvailable when the queue is empty.
func (r *TicketRepo) ClaimNext(ctx context.Context) (*model.Ticket, error) {
	var ticket *model.Ticket
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{
			Isolation: sql.LevelReadCommitted,
			ReadOnly:  false,
		},
		Fn: func(tx pgx.Tx) error {
			rows, qerr := tx.Query(ctx, claimNextUpdateSQL, r.timeProvider.Now().UTC())
			if qerr != nil {
				return fmt.Errorf("claim ticket: %w", qerr)
			}
			defer rows.Close()

			t, cerr := collectTicketFromRows(rows)
			if errors.Is(cerr, pgx.ErrNoRows) {
				return model.ErrNoTicketsAvailable
			}
			if cerr != nil {
				return fmt.Errorf("claim ticket: %w", cerr)
			}
			ticket = t
			return nil
		},
	})
	if err != nil {
		if errors.Is(err, model.ErrNoTicketsAvailable) {
			return nil, model.ErrNoTicketsAvailable
		}
		return nil, err
	}
	return ticket, nil
}

// MarkRunning moves a pending ticket to running. The status predicate makes the
// transition a single atomic compare-and-set; a zero-row update is re-checked to
// distinguish an unknown token from a ticket that already left pending.
func (r *TicketRepo) MarkRunning(ctx context.Context, token string) (*model.Ticket, error) {
	query := `
		UPDATE tickets
		SET status = 'running',
		    started_time = COALESCE(started_time, $2)
		WHERE ticket = $1 AND status = 'pending'
		RETURNING ` + ticketColumns

	row := r.DB.QueryRowContext(ctx, query, token, r.timeProvider.Now().UTC())
	ticket, err := scanTicketFromRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.classifyFailedTransition(ctx, token, model.TicketStatusPending)
		}
		return nil, fmt.Errorf("mark ticket running: %w", err)
	}
	return ticket, nil
}

// MarkCompleted records the terminal state of a running ticket: success flag,
// execution time, result location, filesize and comment, all in one UPDATE so
// readers never observe a partially written terminal record. When the request
// carries no execution time it is derived from requested_time.
func (r *TicketRepo) MarkCompleted(
	ctx context.Context,
	token string,
	req *model.CompleteTicketRequest,
) (*model.Ticket, error) {
	if req == nil {
		return nil, errors.New("complete ticket request is required")
	}
	if validateErr := req.Validate(); validateErr != nil {
		return nil, validateErr
	}

	currentTime := r.timeProvider.Now().UTC()

	query := `
		UPDATE tickets
		SET status = 'completed',
		    success = $2,
		    completed_time = $3,
		    execution_time = COALESCE($4, EXTRACT(EPOCH FROM ($3::timestamptz - requested_time))),
		    result = $5,
		    filesize = $6,
		    comment = $7
		WHERE ticket = $1 AND status = 'running'
		RETURNING ` + ticketColumns

	row := r.DB.QueryRowContext(ctx, query,
		token,
		req.Success,
		currentTime,
		req.ExecutionTime,
		req.Result,
		req.Filesize,
		req.Comment,
	)
	ticket, err := scanTicketFromRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.classifyFailedTransition(ctx, token, model.TicketStatusRunning)
		}
		return nil, fmt.Errorf("mark ticket completed: %w", err)
	}
	return ticket, nil
}

// classifyFailedTransition re-checks a ticket after a zero-row lifecycle update
// to report why the compare-and-set missed.
func (r *TicketRepo) classifyFailedTransition(
	ctx context.Context,
	token string,
	want model.TicketStatus,
) error {
	ticket, err := r.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrUnknownTicket) {
			return ErrUnknownTicket
		}
		return fmt.Errorf("re-check ticket after update attempt: %w", err)
	}
	if ticket.Status != want {
		return fmt.Errorf("%w: ticket is %s", ErrInvalidTransition, ticket.Status)
	}
	return errors.New("unexpected state: ticket matches the transition predicate but update failed")
}

// GetByToken retrieves a ticket by its opaque token.
func (r *TicketRepo) GetByToken(ctx context.Context, token string) (*model.Ticket, error) {
	var ticket *model.Ticket
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, `
			SELECT `+ticketColumns+`
			FROM tickets
			WHERE ticket = $1
		`, token)
		if err != nil {
			return err
		}
		defer rows.Close()
		ticket, err = collectTicketFromRows(rows)
		return err
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUnknownTicket
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return ticket, nil
}

// List returns tickets ordered by requested_time ascending with id as the tie
// breaker, so repeated paginated reads walk a stable sequence.
func (r *TicketRepo) List(ctx context.Context, opts model.TicketListOptions) ([]*model.Ticket, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50 // Default limit
	}
	if limit > 1000 {
		limit = 1000 // Max limit
	}
	offset := max(opts.Offset, 0)

	query := `
		SELECT ` + ticketColumns + `
		FROM tickets
	`
	args := []any{}
	if opts.Status != nil && *opts.Status != "" {
		query += ` WHERE status = $3`
		args = append(args, *opts.Status)
	}
	query += `
		ORDER BY requested_time ASC, id ASC
		LIMIT $1 OFFSET $2
	`
	args = append([]any{limit, offset}, args...)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tickets: %w", err)
	}
	defer rows.Close()

	var result []*model.Ticket
	for rows.Next() {
		ticket, scanErr := scanTicketFromRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan ticket: %w", scanErr)
		}
		result = append(result, ticket)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate tickets: %w", rowsErr)
	}
	return result, nil
}

// Stats returns counts of tickets in each lifecycle state, splitting completed
// tickets by outcome.
func (r *TicketRepo) Stats(ctx context.Context) (*model.TicketStats, error) {
	var s model.TicketStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'pending')                        AS pending,
    count(*) FILTER (WHERE status = 'running')                        AS running,
    count(*) FILTER (WHERE status = 'completed')                      AS completed,
    count(*) FILTER (WHERE status = 'completed' AND success)          AS succeeded,
    count(*) FILTER (WHERE status = 'completed' AND NOT success)      AS failed
  FROM tickets
  `).Scan(
		&s.Pending,
		&s.Running,
		&s.Completed,
		&s.Succeeded,
		&s.Failed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket stats: %w", err)
	}
	return &s, nil
}

// WaitForNotification waits for a PostgreSQL notification indicating new tickets are available.
func (r *TicketRepo) WaitForNotification(ctx context.Context) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			_ = cerr
		}
	}()

	quoted := pgx.Identifier{notifyChannel}.Sanitize()

	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", notifyChannel, execErr)
	}
	defer func() {
		if _, execErr := conn.ExecContext(context.Background(), "UNLISTEN "+quoted); execErr != nil {
			_ = execErr
		}
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}

// isUniqueViolation reports whether err carries a Postgres unique violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// collectTicketFromRows collects a single ticket from pgx rows.
func collectTicketFromRows(rows pgx.Rows) (*model.Ticket, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}

	ticket, err := scanTicketFromRow(rows)
	if err != nil {
		return nil, err
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}

	return ticket, nil
}

type ticketRowScanner interface {
	Scan(dest ...any) error
}

type ticketRowData struct {
	payload                    []byte
	success                    sql.NullBool
	startedTime, completedTime sql.NullTime
	executionTime              sql.NullFloat64
	result, comment            sql.NullString
	filesize                   sql.NullInt64
}

func (d *ticketRowData) scanInto(scanner ticketRowScanner, ticket *model.Ticket) error {
	return scanner.Scan(
		&ticket.ID,
		&ticket.Token,
		&ticket.Status,
		&d.success,
		&d.payload,
		&ticket.RequestedTime,
		&d.startedTime,
		&d.completedTime,
		&d.executionTime,
		&d.result,
		&d.filesize,
		&d.comment,
	)
}

func (d *ticketRowData) apply(ticket *model.Ticket) {
	ticket.Payload = cloneJSON(d.payload)
	ticket.Success = cloneNullableBool(d.success)
	ticket.StartedTime = cloneNullableTime(d.startedTime)
	ticket.CompletedTime = cloneNullableTime(d.completedTime)
	ticket.ExecutionTime = cloneNullableFloat(d.executionTime)
	ticket.Result = cloneNullableString(d.result)
	ticket.Filesize = cloneNullableInt(d.filesize)
	ticket.Comment = cloneNullableString(d.comment)
}

func scanTicketFromRow(scanner ticketRowScanner) (*model.Ticket, error) {
	ticket := &model.Ticket{}
	var data ticketRowData
	if err := data.scanInto(scanner, ticket); err != nil {
		return nil, err
	}

	data.apply(ticket)
	return ticket, nil
}

func cloneJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func cloneNullableBool(nb sql.NullBool) *bool {
	if !nb.Valid {
		return nil
	}
	b := nb.Bool
	return &b
}

func cloneNullableFloat(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	f := nf.Float64
	return &f
}

func cloneNullableInt(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}
