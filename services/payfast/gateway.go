package payfast

import (
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/billing"
)

// validResponse is the gateway's affirmative answer to a validation
// round-trip; anything else means the notification was not issued by it.
const validResponse = "VALID"

type gateway struct {
	conf   core.GatewayConfig
	client *http.Client
	logger core.Logger
}

var _ billing.Gateway = (*gateway)(nil)

func NewGateway(conf *core.Config, logger core.Logger) *gateway {
	return &gateway{
		conf: conf.Gateway,
		// bounded: the webhook handler blocks on this call and must not
		// hang on a wedged gateway
		client: &http.Client{Timeout: conf.Gateway.VerifyTimeout},
		logger: logger,
	}
}

// Redirect builds the hosted-payment-page handle for a pending payment.
// The gateway assigns its own transaction id later; m_payment_id ties its
// notification back to our Payment.
func (g *gateway) Redirect(p billing.Payment) billing.Redirect {
	fields := map[string]string{
		"merchant_id":  g.conf.MerchantID,
		"merchant_key": g.conf.MerchantKey,
		"return_url":   g.conf.ReturnURL,
		"cancel_url":   g.conf.CancelURL,
		"notify_url":   g.conf.NotifyURL,
		"m_payment_id": p.ID,
		"amount":       core.FormatAmount(p.AmountCents),
		"item_name":    fmt.Sprintf("School fees (%s)", p.ID),
	}

	q := make(url.Values, len(fields))
	for k, v := range fields {
		q.Set(k, v)
	}
	return billing.Redirect{
		PaymentID: p.ID,
		URL:       g.conf.ProcessURL + "?" + q.Encode(),
		Fields:    fields,
	}
}

// Verify re-submits the canonical signing string to the gateway's
// validation endpoint. A negative answer is permanent rejection; a
// transport problem is retryable and must never be mistaken for one.
func (g *gateway) Verify(ctx context.Context, signingString string) error {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, g.conf.ValidateURL, strings.NewReader(signingString))
	if err != nil {
		return errors.Wrap(err, "building validation request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := g.client.Do(req)
	if err != nil {
		return errors.Wrap(billing.ErrGatewayUnavailable, err.Error())
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode >= http.StatusInternalServerError {
		return errors.Wrapf(billing.ErrGatewayUnavailable, "validation endpoint returned %d", res.StatusCode)
	}
	if res.StatusCode != http.StatusOK {
		return errors.Wrapf(billing.ErrVerificationFailed, "validation endpoint returned %d", res.StatusCode)
	}

	body, err := ioutil.ReadAll(res.Body)
	if err != nil {
		return errors.Wrap(billing.ErrGatewayUnavailable, err.Error())
	}
	if strings.TrimSpace(string(body)) != validResponse {
		return billing.ErrVerificationFailed
	}
	return nil
}
