package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core/billing"
)

type debtorRow struct {
	ID            string    `db:"id"`
	SchoolID      string    `db:"school_id"`
	GuardianEmail string    `db:"guardian_email"`
	StudentRef    string    `db:"student_ref"`
	BalanceCents  int64     `db:"balance_cents"`
	Status        string    `db:"status"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r debtorRow) domain() billing.DebtorAccount {
	return billing.DebtorAccount{
		ID:            r.ID,
		SchoolID:      r.SchoolID,
		GuardianEmail: r.GuardianEmail,
		StudentRef:    r.StudentRef,
		BalanceCents:  r.BalanceCents,
		Status:        r.Status,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

type paymentRow struct {
	ID          string      `db:"id"`
	DebtorID    string      `db:"debtor_id"`
	AmountCents int64       `db:"amount_cents"`
	Method      string      `db:"method"`
	ExternalID  null.String `db:"external_id"`
	Status      string      `db:"status"`
	CreatedAt   time.Time   `db:"created_at"`
	SettledAt   null.Time   `db:"settled_at"`
}

func (r paymentRow) domain() billing.Payment {
	return billing.Payment{
		ID:          r.ID,
		DebtorID:    r.DebtorID,
		AmountCents: r.AmountCents,
		Method:      r.Method,
		ExternalID:  r.ExternalID,
		Status:      billing.PaymentStatus(r.Status),
		CreatedAt:   r.CreatedAt,
		SettledAt:   r.SettledAt,
	}
}

type billingRepository struct {
	db *sqlx.DB
}

var _ billing.Repository = (*billingRepository)(nil) // interface compliance check

func NewBillingRepository(db *sqlx.DB) *billingRepository {
	return &billingRepository{db: db}
}

func (repo billingRepository) CreateDebtor(ctx context.Context, d billing.DebtorAccount) (billing.DebtorAccount, error) {
	d.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO debtor_account (id, school_id, guardian_email, student_ref, balance_cents, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.SchoolID, d.GuardianEmail, d.StudentRef, d.BalanceCents, d.Status, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return billing.DebtorAccount{}, errors.Wrap(err, "inserting debtor")
	}
	return d, nil
}

func (repo billingRepository) GetDebtor(ctx context.Context, id string) (billing.DebtorAccount, error) {
	if _, err := uuid.Parse(id); err != nil {
		return billing.DebtorAccount{}, billing.ErrNotFound
	}

	var row debtorRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM debtor_account WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return billing.DebtorAccount{}, billing.ErrNotFound
		}
		return billing.DebtorAccount{}, errors.Wrap(err, "finding debtor")
	}
	return row.domain(), nil
}

func (repo billingRepository) UpdateDebtorBalance(ctx context.Context, id string, balanceCents int64) error {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE debtor_account SET balance_cents = $1, updated_at = $2 WHERE id = $3`,
		balanceCents, time.Now().UTC(), id,
	)
	if err != nil {
		return errors.Wrap(err, "updating debtor balance")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return billing.ErrNotFound
	}
	return nil
}

func (repo billingRepository) SetDebtorStatus(ctx context.Context, id, status string) error {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE debtor_account SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return errors.Wrap(err, "updating debtor status")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return billing.ErrNotFound
	}
	return nil
}

func (repo billingRepository) CreatePayment(ctx context.Context, p billing.Payment) (billing.Payment, error) {
	p.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO payment (id, debtor_id, amount_cents, method, external_id, status, created_at, settled_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.DebtorID, p.AmountCents, p.Method, p.ExternalID, p.Status, p.CreatedAt, p.SettledAt,
	)
	if err != nil {
		return billing.Payment{}, errors.Wrap(err, "inserting payment")
	}
	return p, nil
}

func (repo billingRepository) GetPayment(ctx context.Context, id string) (billing.Payment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return billing.Payment{}, billing.ErrPaymentNotFound
	}

	var row paymentRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM payment WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return billing.Payment{}, billing.ErrPaymentNotFound
		}
		return billing.Payment{}, errors.Wrap(err, "finding payment")
	}
	return row.domain(), nil
}

func (repo billingRepository) GetPaymentByExternalID(ctx context.Context, externalID string) (billing.Payment, error) {
	var row paymentRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM payment WHERE external_id = $1`, externalID)
	if err != nil {
		if err == sql.ErrNoRows {
			return billing.Payment{}, billing.ErrPaymentNotFound
		}
		return billing.Payment{}, errors.Wrap(err, "finding payment by external id")
	}
	return row.domain(), nil
}

func (repo billingRepository) UpdatePayment(ctx context.Context, p billing.Payment) (billing.Payment, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE payment SET status = $1, external_id = $2, settled_at = $3 WHERE id = $4`,
		p.Status, p.ExternalID, p.SettledAt, p.ID,
	)
	if err != nil {
		return billing.Payment{}, errors.Wrap(err, "updating payment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return billing.Payment{}, billing.ErrPaymentNotFound
	}
	return p, nil
}

func (repo billingRepository) QueryPaymentsByDebtor(ctx context.Context, debtorID string) ([]billing.Payment, error) {
	var rows []paymentRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT * FROM payment WHERE debtor_id = $1 ORDER BY created_at DESC`, debtorID)
	if err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}

	payments := make([]billing.Payment, 0, len(rows))
	for _, r := range rows {
		payments = append(payments, r.domain())
	}
	return payments, nil
}
