package pendingchange

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	pkgcontext "github.com/Ramsey-B/aster/pkg/context"
	"github.com/Ramsey-B/aster/pkg/review"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

var validate = validator.New()

// Register registers pending change routes
func Register(g *echo.Group) {
	g.GET("", List)
	g.GET("/:id", Get)
	g.POST("/:id/decisions", SubmitDecisions)
	g.POST("/:id/apply", Apply)
	g.POST("/:id/accept-all", AcceptAll)
	g.POST("/:id/reject-all", RejectAll)
	g.POST("/:id/auto-apply-safe", AutoApplySafe)
}

// List returns a page of pending changes for the advisor
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "pendingchange_handler.List")
	defer span.End()

	advisorID := pkgcontext.GetAdvisorID(ctx)
	if advisorID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "advisor_id is required")
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))

	ctx, svc, err := ectoinject.GetContext[*review.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get review service")
	}

	result, err := svc.List(ctx, advisorID, c.QueryParam("status"), page, pageSize)
	if err != nil {
		return review.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// Get returns a single pending change by ID
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "pendingchange_handler.Get")
	defer span.End()

	advisorID := pkgcontext.GetAdvisorID(ctx)
	if advisorID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "advisor_id is required")
	}

	ctx, svc, err := ectoinject.GetContext[*review.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get review service")
	}

	session, err := svc.Get(ctx, advisorID, c.Param("id"))
	if err != nil {
		return review.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, session)
}

// DecisionsRequest carries partial decisions for a pending change.
type DecisionsRequest struct {
	Decisions map[string]string `json:"decisions" validate:"required"`
	Overrides map[string]any    `json:"overrides,omitempty"`
}

// SubmitDecisions stores decisions on a pending change without applying it
func SubmitDecisions(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "pendingchange_handler.SubmitDecisions")
	defer span.End()

	advisorID := pkgcontext.GetAdvisorID(ctx)
	if advisorID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "advisor_id is required")
	}

	var req DecisionsRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, svc, err := ectoinject.GetContext[*review.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get review service")
	}

	session, err := svc.SubmitDecisions(ctx, advisorID, c.Param("id"), req.Decisions, req.Overrides)
	if err != nil {
		return review.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, session)
}

// Apply resolves a pending change, committing accepted fields
func Apply(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "pendingchange_handler.Apply")
	defer span.End()

	advisorID := pkgcontext.GetAdvisorID(ctx)
	if advisorID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "advisor_id is required")
	}

	var req review.ApplyInput
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ResolvedBy == "" {
		req.ResolvedBy = pkgcontext.GetUserID(ctx)
	}

	ctx, svc, err := ectoinject.GetContext[*review.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get review service")
	}

	result, err := svc.Apply(ctx, advisorID, c.Param("id"), req)
	if err != nil {
		return review.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// AcceptAll applies a pending change accepting every proposed field
func AcceptAll(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "pendingchange_handler.AcceptAll")
	defer span.End()

	advisorID := pkgcontext.GetAdvisorID(ctx)
	if advisorID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "advisor_id is required")
	}

	ctx, svc, err := ectoinject.GetContext[*review.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get review service")
	}

	result, err := svc.AcceptAll(ctx, advisorID, c.Param("id"), pkgcontext.GetUserID(ctx))
	if err != nil {
		return review.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// RejectRequest carries an optional rejection reason.
type RejectRequest struct {
	Reason *string `json:"reason,omitempty"`
}

// RejectAll resolves a pending change as rejected
func RejectAll(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "pendingchange_handler.RejectAll")
	defer span.End()

	advisorID := pkgcontext.GetAdvisorID(ctx)
	if advisorID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "advisor_id is required")
	}

	var req RejectRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx, svc, err := ectoinject.GetContext[*review.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get review service")
	}

	session, err := svc.RejectAll(ctx, advisorID, c.Param("id"), req.Reason, pkgcontext.GetUserID(ctx))
	if err != nil {
		return review.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, session)
}

// AutoApplySafe applies the non-conflicting subset of a pending change
func AutoApplySafe(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "pendingchange_handler.AutoApplySafe")
	defer span.End()

	advisorID := pkgcontext.GetAdvisorID(ctx)
	if advisorID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "advisor_id is required")
	}

	ctx, svc, err := ectoinject.GetContext[*review.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get review service")
	}

	result, err := svc.AutoApplySafe(ctx, advisorID, c.Param("id"), pkgcontext.GetUserID(ctx))
	if err != nil {
		return review.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, result)
}
