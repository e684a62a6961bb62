package billing

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
)

var (
	ErrNotFound        = errors.New("debtor account not found")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrInvalidMethod   = errors.New("unknown settlement method")
	ErrDebtorSuspended = errors.New("debtor account is suspended")

	// ErrVerificationFailed: the gateway answered and the answer was "not
	// ours". Permanent; the notification is presumed forged or malformed.
	ErrVerificationFailed = errors.New("notification verification failed")
	// ErrGatewayUnavailable: transport/timeout talking to the gateway's
	// validation endpoint. Retryable; never conflate with a failed
	// verification or legitimate payments get dropped.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

type (
	Repository interface {
		CreateDebtor(ctx context.Context, d DebtorAccount) (DebtorAccount, error)
		GetDebtor(ctx context.Context, id string) (DebtorAccount, error)
		// UpdateDebtorBalance persists a new balance; callers hold the
		// per-debtor lock for the whole read-modify-write.
		UpdateDebtorBalance(ctx context.Context, id string, balanceCents int64) error
		SetDebtorStatus(ctx context.Context, id, status string) error

		CreatePayment(ctx context.Context, p Payment) (Payment, error)
		GetPayment(ctx context.Context, id string) (Payment, error)
		// GetPaymentByExternalID returns ErrPaymentNotFound when no payment
		// carries the gateway transaction id.
		GetPaymentByExternalID(ctx context.Context, externalID string) (Payment, error)
		UpdatePayment(ctx context.Context, p Payment) (Payment, error)
		QueryPaymentsByDebtor(ctx context.Context, debtorID string) ([]Payment, error)
	}

	// Gateway is the outbound side of the payment processor: building the
	// hosted-page redirect and validating inbound notifications.
	Gateway interface {
		Redirect(p Payment) Redirect
		// Verify round-trips the canonical signing string to the gateway's
		// validation endpoint. nil means verified; ErrVerificationFailed
		// means rejected; ErrGatewayUnavailable means try again later.
		Verify(ctx context.Context, signingString string) error
	}

	ServiceInterface interface {
		CreateDebtor(ctx context.Context, nd NewDebtor) (DebtorAccount, error)
		GetDebtor(ctx context.Context, debtorID string) (DebtorAccount, error)
		SuspendDebtor(ctx context.Context, debtorID string) error
		Statement(ctx context.Context, debtorID string) (Statement, error)
		InitiateGatewayPayment(ctx context.Context, debtorID string, amountCents int64) (Redirect, error)
		RecordManualPayment(ctx context.Context, debtorID string, amountCents int64, method string) (Payment, error)
		HandleNotification(ctx context.Context, n Notification) (Result, error)
	}

	service struct {
		repo    Repository
		gateway Gateway
		mailSvc core.EmailService
		logger  core.Logger
		locks   *core.KeyedMutex
	}
)

var _ ServiceInterface = (*service)(nil)

func NewService(repo Repository, gateway Gateway, mailSvc core.EmailService, logger core.Logger) *service {
	return &service{
		repo:    repo,
		gateway: gateway,
		mailSvc: mailSvc,
		logger:  logger,
		locks:   core.NewKeyedMutex(),
	}
}

func (svc *service) CreateDebtor(ctx context.Context, nd NewDebtor) (DebtorAccount, error) {
	now := time.Now().UTC()
	return svc.repo.CreateDebtor(ctx, DebtorAccount{
		SchoolID:      nd.SchoolID,
		GuardianEmail: nd.GuardianEmail,
		StudentRef:    nd.StudentRef,
		BalanceCents:  nd.OpeningCents,
		Status:        DebtorActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

func (svc *service) GetDebtor(ctx context.Context, debtorID string) (DebtorAccount, error) {
	return svc.repo.GetDebtor(ctx, debtorID)
}

// SuspendDebtor takes the account out of settlement; it is never deleted.
func (svc *service) SuspendDebtor(ctx context.Context, debtorID string) error {
	if _, err := svc.repo.GetDebtor(ctx, debtorID); err != nil {
		return errors.Wrap(err, "finding debtor")
	}
	return svc.repo.SetDebtorStatus(ctx, debtorID, DebtorSuspended)
}

func (svc *service) Statement(ctx context.Context, debtorID string) (Statement, error) {
	debtor, err := svc.repo.GetDebtor(ctx, debtorID)
	if err != nil {
		return Statement{}, errors.Wrap(err, "finding debtor")
	}
	payments, err := svc.repo.QueryPaymentsByDebtor(ctx, debtorID)
	if err != nil {
		return Statement{}, errors.Wrap(err, "querying payments")
	}
	return Statement{Debtor: debtor, Payments: payments}, nil
}

// checkSettleable validates the common preconditions of a new settlement.
func (svc *service) checkSettleable(ctx context.Context, debtorID string, amountCents int64) (DebtorAccount, error) {
	if amountCents <= 0 {
		return DebtorAccount{}, ErrInvalidAmount
	}
	debtor, err := svc.repo.GetDebtor(ctx, debtorID)
	if err != nil {
		return DebtorAccount{}, errors.Wrap(err, "finding debtor")
	}
	if debtor.IsSuspended() {
		return DebtorAccount{}, ErrDebtorSuspended
	}
	return debtor, nil
}

// InitiateGatewayPayment opens a pending gateway payment and returns the
// redirect handle. The gateway's transaction id stays null until its
// notification confirms the payment.
func (svc *service) InitiateGatewayPayment(ctx context.Context, debtorID string, amountCents int64) (Redirect, error) {
	if _, err := svc.checkSettleable(ctx, debtorID, amountCents); err != nil {
		return Redirect{}, err
	}

	p, err := svc.repo.CreatePayment(ctx, Payment{
		DebtorID:    debtorID,
		AmountCents: amountCents,
		Method:      MethodGateway,
		Status:      PaymentPending,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return Redirect{}, errors.Wrap(err, "creating payment")
	}
	return svc.gateway.Redirect(p), nil
}

// RecordManualPayment settles a staff-entered cash/EFT payment: the
// Payment is created completed and the balance applied in the same
// critical section.
func (svc *service) RecordManualPayment(ctx context.Context, debtorID string, amountCents int64, method string) (Payment, error) {
	if method != MethodCash && method != MethodEFT {
		return Payment{}, ErrInvalidMethod
	}

	svc.locks.Lock(debtorID)
	defer svc.locks.Unlock(debtorID)

	debtor, err := svc.checkSettleable(ctx, debtorID, amountCents)
	if err != nil {
		return Payment{}, err
	}

	now := time.Now().UTC()
	p, err := svc.repo.CreatePayment(ctx, Payment{
		DebtorID:    debtorID,
		AmountCents: amountCents,
		Method:      method,
		Status:      PaymentCompleted,
		CreatedAt:   now,
		SettledAt:   null.TimeFrom(now),
	})
	if err != nil {
		return Payment{}, errors.Wrap(err, "creating payment")
	}

	if err = svc.applyToBalance(ctx, debtor, p.AmountCents); err != nil {
		return Payment{}, err
	}

	settledCentsTotal.Add(float64(p.AmountCents))
	svc.sendReceipt(debtor, p)
	return p, nil
}

// HandleNotification is the webhook entry point. Verification happens
// before any lock is taken; state changes happen under the per-debtor
// lock and are idempotent under gateway re-delivery.
func (svc *service) HandleNotification(ctx context.Context, n Notification) (Result, error) {
	if n.IsEmpty() {
		notificationsTotal.WithLabelValues(string(ResultRejected)).Inc()
		return ResultRejected, nil
	}

	if err := svc.gateway.Verify(ctx, n.SigningString()); err != nil {
		if errors.Cause(err) == ErrVerificationFailed {
			svc.logger.Warn(fmt.Sprintf("rejecting unverified notification (ref=%q ext=%q)", n.PaymentRef(), n.ExternalID()), err)
			notificationsTotal.WithLabelValues(string(ResultRejected)).Inc()
			return ResultRejected, nil
		}
		// transport failure: surface it so the gateway retries
		return "", errors.Wrap(err, "verifying notification")
	}

	p, res, err := svc.resolvePayment(ctx, n)
	if err != nil {
		return "", err
	}
	if res != "" {
		notificationsTotal.WithLabelValues(string(res)).Inc()
		return res, nil
	}

	res, err = svc.settle(ctx, p, n)
	if err != nil {
		return "", err
	}
	notificationsTotal.WithLabelValues(string(res)).Inc()
	return res, nil
}

// resolvePayment maps a verified notification to a locally-initiated
// payment. A notification whose ids match nothing is rejected, never
// turned into a fabricated Payment.
func (svc *service) resolvePayment(ctx context.Context, n Notification) (Payment, Result, error) {
	if extID := n.ExternalID(); extID != "" {
		p, err := svc.repo.GetPaymentByExternalID(ctx, extID)
		switch {
		case err == nil:
			return p, "", nil
		case errors.Cause(err) != ErrPaymentNotFound:
			return Payment{}, "", errors.Wrap(err, "finding payment by external id")
		}
	}

	// first delivery: the transaction id is not recorded yet; fall back to
	// the merchant payment reference the gateway echoes back
	ref := n.PaymentRef()
	if ref == "" {
		svc.logger.Warn("rejecting notification without payment reference")
		return Payment{}, ResultRejected, nil
	}
	p, err := svc.repo.GetPayment(ctx, ref)
	if err != nil {
		if errors.Cause(err) == ErrPaymentNotFound {
			svc.logger.Warn(fmt.Sprintf("rejecting notification for unknown payment %q", ref))
			return Payment{}, ResultRejected, nil
		}
		return Payment{}, "", errors.Wrap(err, "finding payment")
	}
	if !p.IsGateway() {
		svc.logger.Warn(fmt.Sprintf("rejecting notification targeting non-gateway payment %s", p.ID))
		return Payment{}, ResultRejected, nil
	}
	return p, "", nil
}

// settle transitions a gateway payment to its terminal state and, on
// completion, applies the amount to the debtor balance. Runs entirely
// under the per-debtor lock.
func (svc *service) settle(ctx context.Context, p Payment, n Notification) (Result, error) {
	svc.locks.Lock(p.DebtorID)
	defer svc.locks.Unlock(p.DebtorID)

	// re-read under the lock: a concurrent delivery may have settled it
	p, err := svc.repo.GetPayment(ctx, p.ID)
	if err != nil {
		return "", errors.Wrap(err, "finding payment")
	}
	if p.Status.Terminal() {
		return ResultDuplicate, nil
	}

	var status PaymentStatus
	switch n.PaymentStatus() {
	case notifyComplete:
		status = PaymentCompleted
	case notifyCancelled:
		status = PaymentRejected
	case notifyFailed:
		status = PaymentFailed
	default:
		svc.logger.Warn(fmt.Sprintf("rejecting notification with unknown status %q for payment %s", n.PaymentStatus(), p.ID))
		return ResultRejected, nil
	}

	if got := n.AmountCents(); got != 0 && got != p.AmountCents {
		// the Payment keeps its requested amount; flag the discrepancy
		svc.logger.Warn(fmt.Sprintf("notification amount %d differs from payment %s amount %d", got, p.ID, p.AmountCents))
	}

	p.Status = status
	p.SettledAt = null.TimeFrom(time.Now().UTC())
	if extID := n.ExternalID(); extID != "" {
		p.ExternalID = null.StringFrom(extID)
	}
	p, err = svc.repo.UpdatePayment(ctx, p)
	if err != nil {
		return "", errors.Wrap(err, "updating payment")
	}

	if status != PaymentCompleted {
		return ResultProcessed, nil
	}

	debtor, err := svc.repo.GetDebtor(ctx, p.DebtorID)
	if err != nil {
		return "", errors.Wrap(err, "finding debtor")
	}
	if err = svc.applyToBalance(ctx, debtor, p.AmountCents); err != nil {
		return "", err
	}

	settledCentsTotal.Add(float64(p.AmountCents))
	svc.sendReceipt(debtor, p)
	return ResultProcessed, nil
}

// applyToBalance decrements the balance by amountCents, clamped at the
// zero floor: an overpayment leaves the balance at 0 while the Payment
// keeps the full amount on record.
func (svc *service) applyToBalance(ctx context.Context, debtor DebtorAccount, amountCents int64) error {
	balance := debtor.BalanceCents - amountCents
	if balance < 0 {
		svc.logger.Info(fmt.Sprintf("debtor %s overpaid by %d cents; clamping balance at 0", debtor.ID, -balance))
		balance = 0
	}
	if err := svc.repo.UpdateDebtorBalance(ctx, debtor.ID, balance); err != nil {
		return errors.Wrap(err, "updating debtor balance")
	}
	return nil
}

func (svc *service) sendReceipt(debtor DebtorAccount, p Payment) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Address: debtor.GuardianEmail}},
		Subject: fmt.Sprintf("Payment received for %s", debtor.StudentRef),
		Body: fmt.Sprintf(
			"Hello,\n\nWe received your payment of %s (ref %s).\nThank you.\n",
			core.FormatAmount(p.AmountCents), p.ID),
	})
}
