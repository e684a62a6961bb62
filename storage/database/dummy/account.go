package dummydb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core/account"
)

type accountRepository struct {
	db *accountTable
}

var _ account.Repository = (*accountRepository)(nil) // interface compliance check

func NewAccountRepository(db *DB) *accountRepository {
	return &accountRepository{db: db.account}
}

func (repo *accountRepository) CheckEmailUniqueness(_ context.Context, email string) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, acct := range repo.db.table {
		if acct.Email == email {
			return account.ErrEmailExists
		}
	}
	return nil
}

func (repo *accountRepository) CreateAccount(_ context.Context, acct account.Account) (account.Account, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	acct.ID = uuid.New().String()
	repo.db.table[acct.ID] = &acct
	return acct, nil
}

func (repo *accountRepository) GetAccount(_ context.Context, filter account.GetFilter) (account.Account, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.ID != "" {
		if acct, ok := repo.db.table[filter.ID]; ok {
			return *acct, nil
		}
		return account.Account{}, account.ErrNotFound
	}
	for _, acct := range repo.db.table {
		if acct.Email == filter.Email {
			return *acct, nil
		}
	}
	return account.Account{}, account.ErrNotFound
}

func (repo *accountRepository) UpdateAccount(_ context.Context, acct account.Account) (account.Account, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[acct.ID]; !ok {
		return account.Account{}, account.ErrNotFound
	}
	acctCopy := acct
	repo.db.table[acct.ID] = &acctCopy
	return acct, nil
}

func (repo *accountRepository) QueryAccounts(_ context.Context, role string) ([]account.Account, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	accts := make([]account.Account, 0, len(repo.db.table))
	for _, acct := range repo.db.table {
		if role == "" || acct.Role == role {
			accts = append(accts, *acct)
		}
	}
	return accts, nil
}

func (repo *accountRepository) SetLastLogin(_ context.Context, acct account.Account) (account.Account, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[acct.ID]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	orig.LastLogin = acct.LastLogin
	return *orig, nil
}
