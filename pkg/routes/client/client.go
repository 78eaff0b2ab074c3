package client

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	pkgcontext "github.com/Ramsey-B/aster/pkg/context"
	"github.com/Ramsey-B/aster/pkg/review"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

var validate = validator.New()

// Register registers client routes
func Register(g *echo.Group) {
	g.GET("/:id", Get)
	g.GET("/:id/pending-changes", ListPendingChanges)
	g.GET("/:id/pending-changes/count", CountPendingChanges)
	g.POST("/:id/extractions", SubmitExtraction)
}

// Get returns the client's golden record with its sub entities
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "client_handler.Get")
	defer span.End()

	advisorID := pkgcontext.GetAdvisorID(ctx)
	if advisorID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "advisor_id is required")
	}

	ctx, svc, err := ectoinject.GetContext[*review.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get review service")
	}

	view, err := svc.GetClientView(ctx, advisorID, c.Param("id"))
	if err != nil {
		return review.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, view)
}

// ListPendingChanges returns every review session attached to the client
func ListPendingChanges(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "client_handler.ListPendingChanges")
	defer span.End()

	advisorID := pkgcontext.GetAdvisorID(ctx)
	if advisorID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "advisor_id is required")
	}

	ctx, svc, err := ectoinject.GetContext[*review.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get review service")
	}

	sessions, err := svc.ListByClient(ctx, advisorID, c.Param("id"))
	if err != nil {
		return review.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": sessions})
}

// CountPendingChanges returns how many sessions still await review
func CountPendingChanges(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "client_handler.CountPendingChanges")
	defer span.End()

	advisorID := pkgcontext.GetAdvisorID(ctx)
	if advisorID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "advisor_id is required")
	}

	ctx, svc, err := ectoinject.GetContext[*review.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get review service")
	}

	count, err := svc.CountPendingByClient(ctx, advisorID, c.Param("id"))
	if err != nil {
		return review.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"count": count})
}

// ExtractionRequest carries an extracted payload submitted over HTTP instead
// of the Kafka pipeline, used by the import flow and manual entry.
type ExtractionRequest struct {
	Source      string         `json:"source" validate:"required,oneof=audio import manual"`
	RecordingID *string        `json:"recording_id,omitempty"`
	Data        map[string]any `json:"data" validate:"required"`
}

// SubmitExtraction stages an extracted payload as a pending change
func SubmitExtraction(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "client_handler.SubmitExtraction")
	defer span.End()

	advisorID := pkgcontext.GetAdvisorID(ctx)
	if advisorID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "advisor_id is required")
	}

	var req ExtractionRequest
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

	session, err := svc.CreateFromSnapshot(ctx, advisorID, review.CreateInput{
		ClientID:    c.Param("id"),
		Source:      req.Source,
		RecordingID: req.RecordingID,
		Data:        req.Data,
	})
	if err != nil {
		return review.ToHTTPError(err)
	}
	if session == nil {
		return c.JSON(http.StatusOK, map[string]any{"pending_change": nil, "message": "no changes detected"})
	}
	return c.JSON(http.StatusCreated, session)
}
