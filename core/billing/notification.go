package billing

import (
	"net/url"
	"sort"
	"strings"

	"github.com/trezcool/shule/core"
)

// Gateway notification field names. The gateway posts form-encoded
// key/value pairs; these are the ones the engine reads.
const (
	fieldPaymentRef    = "m_payment_id"   // our Payment.ID, echoed back
	fieldExternalID    = "pf_payment_id"  // the gateway's transaction id
	fieldPaymentStatus = "payment_status" // COMPLETE | FAILED | CANCELLED
	fieldAmountGross   = "amount_gross"
	fieldSignature     = "signature" // supplied by the gateway, never signed over
)

// Gateway payment_status values.
const (
	notifyComplete  = "COMPLETE"
	notifyFailed    = "FAILED"
	notifyCancelled = "CANCELLED"
)

// Notification is an inbound gateway webhook (ITN) payload.
type Notification struct {
	fields url.Values
}

func NewNotification(fields url.Values) Notification {
	return Notification{fields: fields}
}

func (n Notification) Get(key string) string  { return n.fields.Get(key) }
func (n Notification) PaymentRef() string     { return n.fields.Get(fieldPaymentRef) }
func (n Notification) ExternalID() string     { return n.fields.Get(fieldExternalID) }
func (n Notification) PaymentStatus() string  { return n.fields.Get(fieldPaymentStatus) }
func (n Notification) IsEmpty() bool          { return len(n.fields) == 0 }

// AmountCents parses the gross amount field; 0 when absent or malformed.
func (n Notification) AmountCents() int64 {
	cents, err := core.ParseAmount(n.fields.Get(fieldAmountGross))
	if err != nil {
		return 0
	}
	return cents
}

// SigningString builds the canonical string the gateway signed over:
// field names sorted lexicographically, joined as key=value pairs with
// "&", excluding the gateway's own signature field. This must reproduce
// the gateway's documented validation string bit-exactly.
func (n Notification) SigningString() string {
	keys := make([]string, 0, len(n.fields))
	for k := range n.fields {
		if k == fieldSignature {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(n.fields.Get(k))
	}
	return b.String()
}

// Result classifies a processed notification for the webhook response.
type Result string

const (
	// ResultProcessed: a pending payment transitioned to a terminal state.
	ResultProcessed Result = "processed"
	// ResultDuplicate: re-delivery of an already-settled notification;
	// acked without re-applying any state.
	ResultDuplicate Result = "duplicate"
	// ResultRejected: unverified, unresolvable or malformed; nothing touched.
	ResultRejected Result = "rejected"
)
