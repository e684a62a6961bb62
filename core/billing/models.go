package billing

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
)

// Debtor account statuses
const (
	DebtorActive    = "active"
	DebtorSuspended = "suspended"
)

// Payment methods. Cash and EFT are the staff-recorded ("manual")
// settlement methods; gateway payments are confirmed asynchronously.
const (
	MethodGateway = "gateway"
	MethodCash    = "cash"
	MethodEFT     = "eft"
)

// Payment statuses. Pending may transition to exactly one of the
// terminal statuses, exactly once.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentRejected  PaymentStatus = "rejected"
	PaymentFailed    PaymentStatus = "failed"
)

func (s PaymentStatus) Terminal() bool { return s != PaymentPending && s != "" }

// DebtorAccount tracks how much a guardian owes a school for a student.
// Balance is in integer cents and never goes below zero. Accounts are
// suspended, never deleted.
type DebtorAccount struct {
	ID            string    `json:"id"`
	SchoolID      string    `json:"school_id"`
	GuardianEmail string    `json:"guardian_email"`
	StudentRef    string    `json:"student_ref"`
	BalanceCents  int64     `json:"balance_cents"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"` // UTC
	UpdatedAt     time.Time `json:"updated_at"` // UTC
}

func (d *DebtorAccount) IsSuspended() bool { return d.Status == DebtorSuspended }

// Payment is a single settlement attempt against a debtor account.
// ExternalID is the gateway's transaction id, set when the gateway first
// confirms; it stays null for manual settlements.
type Payment struct {
	ID          string        `json:"id"`
	DebtorID    string        `json:"debtor_id"`
	AmountCents int64         `json:"amount_cents"`
	Method      string        `json:"method"`
	ExternalID  null.String   `json:"external_id"`
	Status      PaymentStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"` // UTC
	SettledAt   null.Time     `json:"settled_at"`
}

func (p *Payment) IsGateway() bool { return p.Method == MethodGateway }

// Redirect is the opaque handle the frontend uses to send the payer to
// the gateway's hosted payment page.
type Redirect struct {
	PaymentID string            `json:"payment_id"`
	URL       string            `json:"url"`
	Fields    map[string]string `json:"fields"`
}

// Statement is the portal's financial view of a debtor account.
type Statement struct {
	Debtor   DebtorAccount `json:"debtor"`
	Payments []Payment     `json:"payments"`
}

// NewDebtor contains information needed to open a debtor account.
type NewDebtor struct {
	SchoolID      string `json:"school_id" validate:"required"`
	GuardianEmail string `json:"guardian_email" validate:"required,email"`
	StudentRef    string `json:"student_ref" validate:"required"`
	OpeningCents  int64  `json:"opening_cents" validate:"min=0"`
}

func (nd *NewDebtor) Validate(validate Validator) error {
	nd.GuardianEmail = core.CleanString(nd.GuardianEmail, true /* lower */)
	nd.StudentRef = core.CleanString(nd.StudentRef)
	return validate.Struct(nd)
}

// Validator is the subset of validator.Validate used by this package.
type Validator interface {
	Struct(s interface{}) error
}
