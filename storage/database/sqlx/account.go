package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core/account"
)

type accountRow struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	Email        string    `db:"email"`
	Role         string    `db:"role"`
	IsActive     bool      `db:"is_active"`
	PasswordHash []byte    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	LastLogin    null.Time `db:"last_login"`
}

func (r accountRow) domain() account.Account {
	return account.Account{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		Role:         r.Role,
		IsActive:     r.IsActive,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		LastLogin:    r.LastLogin.Time,
	}
}

type accountRepository struct {
	db *sqlx.DB
}

var _ account.Repository = (*accountRepository)(nil) // interface compliance check

func NewAccountRepository(db *sqlx.DB) *accountRepository {
	return &accountRepository{db: db}
}

// trapNoRowsErr maps psql "no rows" err to account.ErrNotFound
func (repo accountRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return account.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo accountRepository) CheckEmailUniqueness(ctx context.Context, email string) error {
	var exists bool
	err := repo.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM account WHERE email = $1)`, email)
	if err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if exists {
		return account.ErrEmailExists
	}
	return nil
}

func (repo accountRepository) CreateAccount(ctx context.Context, acct account.Account) (account.Account, error) {
	acct.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO account (id, name, email, role, is_active, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		acct.ID, acct.Name, acct.Email, acct.Role, acct.IsActive, acct.PasswordHash,
		acct.CreatedAt, acct.UpdatedAt,
	)
	if err != nil {
		return account.Account{}, errors.Wrap(err, "inserting account")
	}
	return acct, nil
}

func (repo accountRepository) GetAccount(ctx context.Context, filter account.GetFilter) (account.Account, error) {
	var row accountRow
	var err error

	if filter.ID != "" {
		if _, err = uuid.Parse(filter.ID); err != nil {
			return account.Account{}, account.ErrNotFound
		}
		err = repo.db.GetContext(ctx, &row,
			`SELECT * FROM account WHERE id = $1`, filter.ID)
	} else {
		err = repo.db.GetContext(ctx, &row,
			`SELECT * FROM account WHERE email = $1`, filter.Email)
	}
	if err != nil {
		return account.Account{}, repo.trapNoRowsErr(err, "finding account")
	}
	return row.domain(), nil
}

func (repo accountRepository) UpdateAccount(ctx context.Context, acct account.Account) (account.Account, error) {
	acct.UpdatedAt = time.Now().UTC()
	res, err := repo.db.ExecContext(ctx,
		`UPDATE account SET name = $1, email = $2, role = $3, is_active = $4, password_hash = $5, updated_at = $6
		 WHERE id = $7`,
		acct.Name, acct.Email, acct.Role, acct.IsActive, acct.PasswordHash, acct.UpdatedAt, acct.ID,
	)
	if err != nil {
		return account.Account{}, errors.Wrap(err, "updating account")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return account.Account{}, account.ErrNotFound
	}
	return acct, nil
}

func (repo accountRepository) QueryAccounts(ctx context.Context, role string) ([]account.Account, error) {
	var rows []accountRow
	var err error
	if role != "" {
		err = repo.db.SelectContext(ctx, &rows,
			`SELECT * FROM account WHERE role = $1 ORDER BY created_at`, role)
	} else {
		err = repo.db.SelectContext(ctx, &rows,
			`SELECT * FROM account ORDER BY created_at`)
	}
	if err != nil {
		return nil, errors.Wrap(err, "querying accounts")
	}

	accts := make([]account.Account, 0, len(rows))
	for _, r := range rows {
		accts = append(accts, r.domain())
	}
	return accts, nil
}

func (repo accountRepository) SetLastLogin(ctx context.Context, acct account.Account) (account.Account, error) {
	_, err := repo.db.ExecContext(ctx,
		`UPDATE account SET last_login = $1 WHERE id = $2`, acct.LastLogin, acct.ID)
	if err != nil {
		return account.Account{}, errors.Wrap(err, "setting last login")
	}
	return acct, nil
}
