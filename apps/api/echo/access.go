package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/access"
	"github.com/trezcool/shule/core/account"
	"github.com/trezcool/shule/core/school"
)

type accessApi struct {
	svc        access.ServiceInterface
	schoolSvc  school.ServiceInterface
	accountSvc account.ServiceInterface
	validate   *validator.Validate
}

func registerAccessAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := accessApi{
		svc:        deps.AccessSvc,
		schoolSvc:  deps.SchoolSvc,
		accountSvc: deps.AccountSvc,
		validate:   deps.Validate,
	}

	sg := g.Group("/schools", jwt)
	sg.GET("", api.querySchools)
	sg.GET("/:id/access", api.evaluate)
	sg.POST("/:id/access-requests", api.submit)

	rg := g.Group("/access-requests", jwt, adminMiddleware())
	rg.GET("", api.query)
	rg.POST("/:id/decision", api.decide)
}

// Handlers

func (api *accessApi) querySchools(ctx echo.Context) error {
	schools, err := api.schoolSvc.QueryAll(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying schools")
	}
	if schools == nil {
		schools = []school.School{}
	}
	return ctx.JSON(http.StatusOK, schools)
}

func (api *accessApi) evaluate(ctx echo.Context) error {
	acct, err := getContextAccount(ctx, api.accountSvc)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}

	decision, err := api.svc.Evaluate(ctx.Request().Context(), &acct, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "evaluating access")
	}
	return ctx.JSON(http.StatusOK, DecisionResponse{Decision: decision})
}

func (api *accessApi) submit(ctx echo.Context) error {
	acct, err := getContextAccount(ctx, api.accountSvc)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}

	req, err := api.svc.Submit(ctx.Request().Context(), &acct, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "submitting access request")
	}
	return ctx.JSON(http.StatusCreated, req)
}

func (api *accessApi) query(ctx echo.Context) error {
	filter := new(access.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []access.Request{})
	}
	filter.AccountEmail = core.CleanString(filter.AccountEmail, true /* lower */)

	reqs, err := api.svc.Filter(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying access requests")
	}
	if reqs == nil {
		reqs = []access.Request{}
	}
	return ctx.JSON(http.StatusOK, reqs)
}

func (api *accessApi) decide(ctx echo.Context) error {
	acct, err := getContextAccount(ctx, api.accountSvc)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}

	var data DecisionRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DecisionRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	req, err := api.svc.Decide(ctx.Request().Context(), &acct, ctx.Param("id"), access.Outcome(data.Outcome))
	if err != nil {
		return errors.Wrap(err, "deciding access request")
	}
	return ctx.JSON(http.StatusOK, req)
}

type (
	DecisionResponse struct {
		Decision access.Decision `json:"decision"`
	}

	DecisionRequest struct {
		Outcome string `json:"outcome" validate:"required,oneof=accept reject"`
	}
)

func (dr *DecisionRequest) Validate(validate *validator.Validate) error {
	dr.Outcome = core.CleanString(dr.Outcome, true /* lower */)
	return validate.Struct(dr)
}
