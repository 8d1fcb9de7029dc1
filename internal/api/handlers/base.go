package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/receipts-reconciler/internal/adapters/qrscan"
	"github.com/eshaffer321/receipts-reconciler/internal/adapters/salyk"
	"github.com/eshaffer321/receipts-reconciler/internal/adapters/statement"
	"github.com/eshaffer321/receipts-reconciler/internal/api/dto"
	"github.com/eshaffer321/receipts-reconciler/internal/application/receipts"
	"github.com/eshaffer321/receipts-reconciler/internal/application/reconcile"
	"github.com/eshaffer321/receipts-reconciler/internal/domain/receipt"
)

// Base provides shared functionality for all handlers.
type Base struct {
	logger *slog.Logger
}

// NewBase creates a new base handler.
func NewBase(logger *slog.Logger) *Base {
	if logger == nil {
		logger = slog.Default()
	}
	return &Base{logger: logger}
}

// WriteError writes an error response with the given status code.
func (b *Base) WriteError(c *gin.Context, status int, err dto.APIError) {
	c.AbortWithStatusJSON(status, err)
}

// WriteServiceError maps a service error onto a status code and error body.
// Unrecognized errors are logged and reported as internal errors.
func (b *Base) WriteServiceError(c *gin.Context, err error) {
	var fetchErr *salyk.FetchError
	switch {
	case errors.Is(err, receipts.ErrNotFound), errors.Is(err, reconcile.ErrUnknownReceipt):
		b.WriteError(c, http.StatusNotFound, dto.NotFoundError("receipt"))
	case errors.Is(err, salyk.ErrNotReceipt), errors.Is(err, receipts.ErrNoPhoto), errors.Is(err, qrscan.ErrNoCode):
		b.WriteError(c, http.StatusUnprocessableEntity, dto.ValidationError(err.Error()))
	case errors.Is(err, receipt.ErrIdentityConflict):
		b.WriteError(c, http.StatusConflict, dto.ConflictError(err.Error()))
	case errors.As(err, &fetchErr):
		b.WriteError(c, http.StatusBadGateway, dto.UpstreamError(fetchErr.Error()))
	case errors.Is(err, statement.ErrInvalidStatement), errors.Is(err, statement.ErrNoHeader):
		b.WriteError(c, http.StatusBadRequest, dto.BadRequestError(err.Error()))
	default:
		b.logger.Error("request failed", "path", c.FullPath(), "error", err)
		b.WriteError(c, http.StatusInternalServerError, dto.InternalError())
	}
}

// ParseIntParam parses an integer query parameter with a default value.
func ParseIntParam(c *gin.Context, name string, defaultVal int) int {
	val := c.Query(name)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}
