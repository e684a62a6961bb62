package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/account"
	"github.com/trezcool/shule/core/billing"
)

type billingApi struct {
	svc      billing.ServiceInterface
	validate *validator.Validate
}

func registerBillingAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := billingApi{
		svc:      deps.BillingSvc,
		validate: deps.Validate,
	}

	dg := g.Group("/debtors", jwt)
	dg.POST("", api.create, adminMiddleware())
	dg.POST("/:id/suspend", api.suspend, adminMiddleware())

	// detail endpoints: owning guardian, staff or admin
	og := dg.Group("/:id", api.debtorOwnerMiddleware())
	og.GET("", api.statement)
	og.POST("/payments", api.initiatePayment)
	og.POST("/payments/manual", api.recordManualPayment, staffMiddleware())

	// gateway server-to-server notification; no auth, form-encoded
	g.POST("/payments/notify", api.notify)
}

// debtorOwnerMiddleware loads the debtor account and admits its guardian,
// staff members and admins. Anyone else gets a 404 so debtor ids do not leak.
func (api *billingApi) debtorOwnerMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}

			debtor, err := api.svc.GetDebtor(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == billing.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding debtor")
			}

			if claims.IsAdmin || claims.Role == account.RoleStaff || claims.Email == debtor.GuardianEmail {
				ctx.Set("object", debtor)
				return next(ctx)
			}
			return errHttpNotFound
		}
	}
}

// Handlers

func (api *billingApi) create(ctx echo.Context) error {
	var data billing.NewDebtor
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDebtor")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	debtor, err := api.svc.CreateDebtor(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating debtor")
	}
	return ctx.JSON(http.StatusCreated, debtor)
}

func (api *billingApi) suspend(ctx echo.Context) error {
	if err := api.svc.SuspendDebtor(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "suspending debtor")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *billingApi) statement(ctx echo.Context) error {
	stmt, err := api.svc.Statement(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "building statement")
	}
	if stmt.Payments == nil {
		stmt.Payments = []billing.Payment{}
	}
	return ctx.JSON(http.StatusOK, stmt)
}

func (api *billingApi) initiatePayment(ctx echo.Context) error {
	var data PaymentRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PaymentRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	cents, err := data.Cents()
	if err != nil {
		return err
	}

	redirect, err := api.svc.InitiateGatewayPayment(ctx.Request().Context(), ctx.Param("id"), cents)
	if err != nil {
		return errors.Wrap(err, "initiating gateway payment")
	}
	return ctx.JSON(http.StatusOK, redirect)
}

func (api *billingApi) recordManualPayment(ctx echo.Context) error {
	var data ManualPaymentRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ManualPaymentRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	cents, err := data.Cents()
	if err != nil {
		return err
	}

	pmt, err := api.svc.RecordManualPayment(ctx.Request().Context(), ctx.Param("id"), cents, data.Method)
	if err != nil {
		return errors.Wrap(err, "recording manual payment")
	}
	return ctx.JSON(http.StatusCreated, pmt)
}

// notify handles the gateway's server-to-server payment notification.
// Every handled notification acks 200 so the gateway stops retrying;
// only a transport failure reaching the validation endpoint returns 5xx.
func (api *billingApi) notify(ctx echo.Context) error {
	params, err := ctx.FormParams()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed notification")
	}

	result, err := api.svc.HandleNotification(ctx.Request().Context(), billing.NewNotification(params))
	if err != nil {
		if errors.Cause(err) == billing.ErrGatewayUnavailable {
			return echo.NewHTTPError(http.StatusBadGateway, billing.ErrGatewayUnavailable.Error())
		}
		return errors.Wrap(err, "handling payment notification")
	}
	return ctx.JSON(http.StatusOK, NotifyResponse{Result: result})
}

type (
	PaymentRequest struct {
		Amount string `json:"amount" validate:"required"`
	}

	ManualPaymentRequest struct {
		Amount string `json:"amount" validate:"required"`
		Method string `json:"method" validate:"required,oneof=cash eft"`
	}

	NotifyResponse struct {
		Result billing.Result `json:"result"`
	}
)

func (pr *PaymentRequest) Validate(validate *validator.Validate) error {
	pr.Amount = core.CleanString(pr.Amount)
	return validate.Struct(pr)
}

func (pr *PaymentRequest) Cents() (int64, error) {
	cents, err := core.ParseAmount(pr.Amount)
	if err != nil {
		return 0, core.NewValidationError(err, core.FieldError{Field: "amount", Error: err.Error()})
	}
	return cents, nil
}

func (mr *ManualPaymentRequest) Validate(validate *validator.Validate) error {
	mr.Amount = core.CleanString(mr.Amount)
	mr.Method = core.CleanString(mr.Method, true /* lower */)
	return validate.Struct(mr)
}

func (mr *ManualPaymentRequest) Cents() (int64, error) {
	cents, err := core.ParseAmount(mr.Amount)
	if err != nil {
		return 0, core.NewValidationError(err, core.FieldError{Field: "amount", Error: err.Error()})
	}
	return cents, nil
}
