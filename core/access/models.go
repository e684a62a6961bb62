package access

import (
	"time"

	"github.com/volatiletech/null/v8"
)

// Status of a stored access request. The absence of a record is never
// stored as a status; it simply means the account has not requested access.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Decision is the outcome of evaluating an (account, school) pair right
// before a gated action.
type Decision string

const (
	DecisionGranted         Decision = "granted"
	DecisionPendingApproval Decision = "pending_approval"
	DecisionMustRequest     Decision = "must_request"
	DecisionUnauthenticated Decision = "unauthenticated"
)

// Outcome of an admin decision on a pending request.
type Outcome string

const (
	OutcomeAccept Outcome = "accept"
	OutcomeReject Outcome = "reject"
)

func (o Outcome) Valid() bool { return o == OutcomeAccept || o == OutcomeReject }

// Request tracks whether an account may view a school's protected
// resources. At most one live record exists per (account email, school).
type Request struct {
	ID           string      `json:"id"`
	AccountEmail string      `json:"account_email"`
	SchoolID     string      `json:"school_id"`
	Status       Status      `json:"status"`
	RequestedAt  time.Time   `json:"requested_at"` // UTC
	DecidedAt    null.Time   `json:"decided_at"`
	DecidedBy    null.String `json:"decided_by"` // deciding admin's email
}

func (r *Request) IsPending() bool  { return r.Status == StatusPending }
func (r *Request) IsAccepted() bool { return r.Status == StatusAccepted }
func (r *Request) IsRejected() bool { return r.Status == StatusRejected }

// QueryFilter applies AND on the set fields.
type QueryFilter struct {
	SchoolID     string `query:"school"`
	AccountEmail string `query:"email"`
	Status       Status `query:"status"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.SchoolID == "" && qf.AccountEmail == "" && qf.Status == ""
}
