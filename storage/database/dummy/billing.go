package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core/billing"
)

type billingRepository struct {
	db *billingTables
}

var _ billing.Repository = (*billingRepository)(nil) // interface compliance check

func NewBillingRepository(db *DB) *billingRepository {
	return &billingRepository{db: db.billing}
}

func (repo *billingRepository) CreateDebtor(_ context.Context, d billing.DebtorAccount) (billing.DebtorAccount, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	d.ID = uuid.New().String()
	repo.db.debtors[d.ID] = &d
	return d, nil
}

func (repo *billingRepository) GetDebtor(_ context.Context, id string) (billing.DebtorAccount, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if d, ok := repo.db.debtors[id]; ok {
		return *d, nil
	}
	return billing.DebtorAccount{}, billing.ErrNotFound
}

func (repo *billingRepository) UpdateDebtorBalance(_ context.Context, id string, balanceCents int64) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	d, ok := repo.db.debtors[id]
	if !ok {
		return billing.ErrNotFound
	}
	d.BalanceCents = balanceCents
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (repo *billingRepository) SetDebtorStatus(_ context.Context, id, status string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	d, ok := repo.db.debtors[id]
	if !ok {
		return billing.ErrNotFound
	}
	d.Status = status
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (repo *billingRepository) CreatePayment(_ context.Context, p billing.Payment) (billing.Payment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	p.ID = uuid.New().String()
	repo.db.payments[p.ID] = &p
	return p, nil
}

func (repo *billingRepository) GetPayment(_ context.Context, id string) (billing.Payment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if p, ok := repo.db.payments[id]; ok {
		return *p, nil
	}
	return billing.Payment{}, billing.ErrPaymentNotFound
}

func (repo *billingRepository) GetPaymentByExternalID(_ context.Context, externalID string) (billing.Payment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, p := range repo.db.payments {
		if p.ExternalID.Valid && p.ExternalID.String == externalID {
			return *p, nil
		}
	}
	return billing.Payment{}, billing.ErrPaymentNotFound
}

func (repo *billingRepository) UpdatePayment(_ context.Context, p billing.Payment) (billing.Payment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.payments[p.ID]
	if !ok {
		return billing.Payment{}, billing.ErrPaymentNotFound
	}
	orig.Status = p.Status
	orig.ExternalID = p.ExternalID
	orig.SettledAt = p.SettledAt
	return *orig, nil
}

func (repo *billingRepository) QueryPaymentsByDebtor(_ context.Context, debtorID string) ([]billing.Payment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	payments := make([]billing.Payment, 0)
	for _, p := range repo.db.payments {
		if p.DebtorID == debtorID {
			payments = append(payments, *p)
		}
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].CreatedAt.After(payments[j].CreatedAt) })
	return payments, nil
}
