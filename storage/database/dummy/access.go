package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core/access"
)

type accessRepository struct {
	db *accessTable
}

var _ access.Repository = (*accessRepository)(nil) // interface compliance check

func NewAccessRepository(db *DB) *accessRepository {
	return &accessRepository{db: db.access}
}

func (repo *accessRepository) GetRequest(_ context.Context, id string) (access.Request, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if req, ok := repo.db.table[id]; ok {
		return *req, nil
	}
	return access.Request{}, access.ErrNotFound
}

func (repo *accessRepository) GetRequestByKey(_ context.Context, email, schoolID string) (access.Request, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.getByKey(email, schoolID)
}

func (repo *accessRepository) getByKey(email, schoolID string) (access.Request, error) {
	for _, req := range repo.db.table {
		if req.AccountEmail == email && req.SchoolID == schoolID {
			return *req, nil
		}
	}
	return access.Request{}, access.ErrNotFound
}

func (repo *accessRepository) UpsertRequest(_ context.Context, req access.Request) (access.Request, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	// replace a previous record for the same pair, keeping its id
	if prev, err := repo.getByKey(req.AccountEmail, req.SchoolID); err == nil {
		req.ID = prev.ID
	} else if req.ID == "" {
		req.ID = uuid.New().String()
	}
	repo.db.table[req.ID] = &req
	return req, nil
}

func (repo *accessRepository) UpdateRequest(_ context.Context, req access.Request) (access.Request, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[req.ID]
	if !ok {
		return access.Request{}, access.ErrNotFound
	}
	orig.Status = req.Status
	orig.DecidedAt = req.DecidedAt
	orig.DecidedBy = req.DecidedBy
	return *orig, nil
}

func (repo *accessRepository) FilterRequests(_ context.Context, filter *access.QueryFilter) ([]access.Request, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	reqs := make([]access.Request, 0, len(repo.db.table))
	for _, req := range repo.db.table {
		if filter != nil {
			if filter.SchoolID != "" && req.SchoolID != filter.SchoolID {
				continue
			}
			if filter.AccountEmail != "" && req.AccountEmail != filter.AccountEmail {
				continue
			}
			if filter.Status != "" && req.Status != filter.Status {
				continue
			}
		}
		reqs = append(reqs, *req)
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].RequestedAt.Before(reqs[j].RequestedAt) })
	return reqs, nil
}
