package dummydb

import (
	"sync"

	"github.com/trezcool/shule/core/access"
	"github.com/trezcool/shule/core/account"
	"github.com/trezcool/shule/core/billing"
	"github.com/trezcool/shule/core/school"
)

// DB is an in-memory stand-in for the real store, for tests and DEV.
type (
	DB struct {
		account *accountTable
		school  *schoolTable
		access  *accessTable
		billing *billingTables
	}

	accountTable struct {
		sync.RWMutex
		table map[string]*account.Account
	}

	schoolTable struct {
		sync.RWMutex
		table map[string]*school.School
	}

	accessTable struct {
		sync.RWMutex
		table map[string]*access.Request // by id
	}

	billingTables struct {
		sync.RWMutex
		debtors  map[string]*billing.DebtorAccount
		payments map[string]*billing.Payment
	}
)

func Open() (*DB, error) {
	db := &DB{
		account: &accountTable{table: make(map[string]*account.Account)},
		school:  &schoolTable{table: make(map[string]*school.School)},
		access:  &accessTable{table: make(map[string]*access.Request)},
		billing: &billingTables{
			debtors:  make(map[string]*billing.DebtorAccount),
			payments: make(map[string]*billing.Payment),
		},
	}
	return db, nil
}
