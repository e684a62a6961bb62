package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core/access"
)

type accessRequestRow struct {
	ID           string      `db:"id"`
	AccountEmail string      `db:"account_email"`
	SchoolID     string      `db:"school_id"`
	Status       string      `db:"status"`
	RequestedAt  time.Time   `db:"requested_at"`
	DecidedAt    null.Time   `db:"decided_at"`
	DecidedBy    null.String `db:"decided_by"`
}

func (r accessRequestRow) domain() access.Request {
	return access.Request{
		ID:           r.ID,
		AccountEmail: r.AccountEmail,
		SchoolID:     r.SchoolID,
		Status:       access.Status(r.Status),
		RequestedAt:  r.RequestedAt,
		DecidedAt:    r.DecidedAt,
		DecidedBy:    r.DecidedBy,
	}
}

type accessRepository struct {
	db *sqlx.DB
}

var _ access.Repository = (*accessRepository)(nil) // interface compliance check

func NewAccessRepository(db *sqlx.DB) *accessRepository {
	return &accessRepository{db: db}
}

func (repo accessRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return access.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo accessRepository) GetRequest(ctx context.Context, id string) (access.Request, error) {
	if _, err := uuid.Parse(id); err != nil {
		return access.Request{}, access.ErrNotFound
	}

	var row accessRequestRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM access_request WHERE id = $1`, id); err != nil {
		return access.Request{}, repo.trapNoRowsErr(err, "finding access request")
	}
	return row.domain(), nil
}

func (repo accessRepository) GetRequestByKey(ctx context.Context, email, schoolID string) (access.Request, error) {
	var row accessRequestRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT * FROM access_request WHERE account_email = $1 AND school_id = $2`, email, schoolID)
	if err != nil {
		return access.Request{}, repo.trapNoRowsErr(err, "finding access request by key")
	}
	return row.domain(), nil
}

// UpsertRequest relies on the (account_email, school_id) unique
// constraint: a concurrent submit can never leave two live rows.
func (repo accessRepository) UpsertRequest(ctx context.Context, req access.Request) (access.Request, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO access_request (id, account_email, school_id, status, requested_at, decided_at, decided_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (account_email, school_id) DO UPDATE
		 SET status = EXCLUDED.status,
		     requested_at = EXCLUDED.requested_at,
		     decided_at = EXCLUDED.decided_at,
		     decided_by = EXCLUDED.decided_by`,
		req.ID, req.AccountEmail, req.SchoolID, req.Status, req.RequestedAt, req.DecidedAt, req.DecidedBy,
	)
	if err != nil {
		return access.Request{}, errors.Wrap(err, "upserting access request")
	}
	// the pre-existing row keeps its id on conflict
	return repo.GetRequestByKey(ctx, req.AccountEmail, req.SchoolID)
}

func (repo accessRepository) UpdateRequest(ctx context.Context, req access.Request) (access.Request, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE access_request SET status = $1, decided_at = $2, decided_by = $3 WHERE id = $4`,
		req.Status, req.DecidedAt, req.DecidedBy, req.ID,
	)
	if err != nil {
		return access.Request{}, errors.Wrap(err, "updating access request")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return access.Request{}, access.ErrNotFound
	}
	return req, nil
}

func (repo accessRepository) FilterRequests(ctx context.Context, filter *access.QueryFilter) ([]access.Request, error) {
	q := `SELECT * FROM access_request WHERE 1=1`
	var args []interface{}

	if filter != nil {
		if filter.SchoolID != "" {
			args = append(args, filter.SchoolID)
			q += ` AND school_id = $` + itoa(len(args))
		}
		if filter.AccountEmail != "" {
			args = append(args, filter.AccountEmail)
			q += ` AND account_email = $` + itoa(len(args))
		}
		if filter.Status != "" {
			args = append(args, filter.Status)
			q += ` AND status = $` + itoa(len(args))
		}
	}
	q += ` ORDER BY requested_at`

	var rows []accessRequestRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying access requests")
	}

	reqs := make([]access.Request, 0, len(rows))
	for _, r := range rows {
		reqs = append(reqs, r.domain())
	}
	return reqs, nil
}
