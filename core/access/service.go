package access

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/account"
	"github.com/trezcool/shule/core/school"
)

var (
	ErrNotFound        = errors.New("access request not found")
	ErrUnauthenticated = errors.New("account not authenticated")
	ErrNotAuthorized   = errors.New("account not authorized")
	ErrNotPending      = errors.New("access request already decided")
)

type (
	Repository interface {
		GetRequest(ctx context.Context, id string) (Request, error)
		// GetRequestByKey returns ErrNotFound when the pair has no record.
		GetRequestByKey(ctx context.Context, email, schoolID string) (Request, error)
		// UpsertRequest writes req as the single record for its
		// (email, school) pair, replacing any previous one.
		UpsertRequest(ctx context.Context, req Request) (Request, error)
		UpdateRequest(ctx context.Context, req Request) (Request, error)
		FilterRequests(ctx context.Context, filter *QueryFilter) ([]Request, error)
	}

	ServiceInterface interface {
		Evaluate(ctx context.Context, acct *account.Account, schoolID string) (Decision, error)
		Submit(ctx context.Context, acct *account.Account, schoolID string) (Request, error)
		Decide(ctx context.Context, admin *account.Account, requestID string, outcome Outcome) (Request, error)
		Filter(ctx context.Context, filter *QueryFilter) ([]Request, error)
	}

	service struct {
		repo    Repository
		schools school.ServiceInterface
		mailSvc core.EmailService
		logger  core.Logger
		locks   *core.KeyedMutex
	}
)

var _ ServiceInterface = (*service)(nil)

func NewService(repo Repository, schools school.ServiceInterface, mailSvc core.EmailService, logger core.Logger) *service {
	return &service{
		repo:    repo,
		schools: schools,
		mailSvc: mailSvc,
		logger:  logger,
		locks:   core.NewKeyedMutex(),
	}
}

func requestKey(email, schoolID string) string { return email + "|" + schoolID }

// Evaluate decides whether acct may act on the school's resources.
// Callers must invoke it immediately before every gated action; a cached
// decision can go stale the moment an admin decision lands.
func (svc *service) Evaluate(ctx context.Context, acct *account.Account, schoolID string) (Decision, error) {
	if acct == nil || !acct.IsActive {
		return DecisionUnauthenticated, nil
	}

	if _, err := svc.schools.GetByID(ctx, schoolID); err != nil {
		return "", errors.Wrap(err, "finding school")
	}

	req, err := svc.repo.GetRequestByKey(ctx, acct.Email, schoolID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return DecisionMustRequest, nil
		}
		return "", errors.Wrap(err, "finding access request")
	}

	switch req.Status {
	case StatusPending:
		return DecisionPendingApproval, nil
	case StatusAccepted:
		return DecisionGranted, nil
	case StatusRejected:
		return DecisionMustRequest, nil
	}
	return "", core.NewShutdownError(fmt.Sprintf("access request %s has unknown status %q", req.ID, req.Status))
}

// Submit creates a pending request for (acct, school), or re-opens a
// rejected one. Submitting while already pending or accepted is a no-op
// returning the existing record; two concurrent submits can never
// produce two pending rows.
func (svc *service) Submit(ctx context.Context, acct *account.Account, schoolID string) (Request, error) {
	if acct == nil || !acct.IsActive {
		return Request{}, ErrUnauthenticated
	}
	if _, err := svc.schools.GetByID(ctx, schoolID); err != nil {
		return Request{}, errors.Wrap(err, "finding school")
	}

	key := requestKey(acct.Email, schoolID)
	svc.locks.Lock(key)
	defer svc.locks.Unlock(key)

	req, err := svc.repo.GetRequestByKey(ctx, acct.Email, schoolID)
	switch {
	case err == nil:
		if req.IsPending() || req.IsAccepted() {
			return req, nil
		}
		// rejected: a fresh request is allowed
	case errors.Cause(err) == ErrNotFound:
	default:
		return Request{}, errors.Wrap(err, "finding access request")
	}

	req = Request{
		AccountEmail: acct.Email,
		SchoolID:     schoolID,
		Status:       StatusPending,
		RequestedAt:  time.Now().UTC(),
	}
	req, err = svc.repo.UpsertRequest(ctx, req)
	if err != nil {
		return Request{}, errors.Wrap(err, "saving access request")
	}
	return req, nil
}

// Decide applies an admin's accept/reject to a pending request.
// Deciding an already-decided request fails with ErrNotPending and
// leaves it untouched.
func (svc *service) Decide(ctx context.Context, admin *account.Account, requestID string, outcome Outcome) (Request, error) {
	if admin == nil || !admin.IsActive {
		return Request{}, ErrUnauthenticated
	}
	if !admin.IsAdmin() {
		return Request{}, ErrNotAuthorized
	}
	if !outcome.Valid() {
		return Request{}, core.NewValidationError(nil, core.FieldError{Field: "outcome", Error: "must be accept or reject"})
	}

	req, err := svc.repo.GetRequest(ctx, requestID)
	if err != nil {
		return Request{}, errors.Wrap(err, "finding access request")
	}

	key := requestKey(req.AccountEmail, req.SchoolID)
	svc.locks.Lock(key)
	defer svc.locks.Unlock(key)

	// re-read under the lock: a concurrent decision may have landed
	req, err = svc.repo.GetRequest(ctx, requestID)
	if err != nil {
		return Request{}, errors.Wrap(err, "finding access request")
	}
	if !req.IsPending() {
		return Request{}, ErrNotPending
	}

	req.Status = StatusAccepted
	if outcome == OutcomeReject {
		req.Status = StatusRejected
	}
	req.DecidedAt = null.TimeFrom(time.Now().UTC())
	req.DecidedBy = null.StringFrom(admin.Email)

	req, err = svc.repo.UpdateRequest(ctx, req)
	if err != nil {
		return Request{}, errors.Wrap(err, "updating access request")
	}

	svc.notifyDecision(ctx, req)
	return req, nil
}

func (svc *service) Filter(ctx context.Context, filter *QueryFilter) ([]Request, error) {
	return svc.repo.FilterRequests(ctx, filter)
}

// notifyDecision emails the requester; delivery is a courtesy, never part
// of the state machine.
func (svc *service) notifyDecision(ctx context.Context, req Request) {
	sch, err := svc.schools.GetByID(ctx, req.SchoolID)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("notifying decision on request %s: %v", req.ID, err), err)
		return
	}

	verdict := "approved"
	if req.IsRejected() {
		verdict = "declined"
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Address: req.AccountEmail}},
		Subject: fmt.Sprintf("Your access request for %s was %s", sch.Name, verdict),
		Body: fmt.Sprintf(
			"Hello,\n\nYour request to access %s on the portal has been %s.\n", sch.Name, verdict),
	})
}
