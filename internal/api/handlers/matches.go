package handlers

import (
	"log/slog"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eshaffer321/receipts-reconciler/internal/api/dto"
	"github.com/eshaffer321/receipts-reconciler/internal/application/reconcile"
)

// MatchesHandler exposes the match cache.
type MatchesHandler struct {
	*Base
	service *reconcile.Service
}

// NewMatchesHandler creates a new matches handler.
func NewMatchesHandler(service *reconcile.Service, logger *slog.Logger) *MatchesHandler {
	return &MatchesHandler{
		Base:    NewBase(logger),
		service: service,
	}
}

// List handles GET /api/matches - returns every stored match.
func (h *MatchesHandler) List(c *gin.Context) {
	all := h.service.Matches()
	out := make([]dto.MatchResponse, 0, len(all))
	for txID, m := range all {
		out = append(out, dto.ToMatchResponse(txID.String(), m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TransactionID < out[j].TransactionID })
	c.JSON(http.StatusOK, out)
}

// Get handles GET /api/matches/:txid.
func (h *MatchesHandler) Get(c *gin.Context) {
	txID, ok := h.txID(c)
	if !ok {
		return
	}
	m, found := h.service.Match(txID)
	if !found {
		h.WriteError(c, http.StatusNotFound, dto.NotFoundError("match"))
		return
	}
	c.JSON(http.StatusOK, dto.ToMatchResponse(txID.String(), m))
}

// Link handles PUT /api/matches/:txid - sets a user match.
func (h *MatchesHandler) Link(c *gin.Context) {
	txID, ok := h.txID(c)
	if !ok {
		return
	}
	var req dto.LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.WriteError(c, http.StatusBadRequest, dto.BadRequestError("receipt_id is required"))
		return
	}
	m, err := h.service.Link(c.Request.Context(), txID, req.ReceiptID)
	if err != nil {
		h.WriteServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToMatchResponse(txID.String(), m))
}

// Unlink handles DELETE /api/matches/:txid.
func (h *MatchesHandler) Unlink(c *gin.Context) {
	txID, ok := h.txID(c)
	if !ok {
		return
	}
	if err := h.service.Unlink(txID); err != nil {
		h.WriteServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *MatchesHandler) txID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("txid"))
	if err != nil {
		h.WriteError(c, http.StatusBadRequest, dto.BadRequestError("transaction id must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}
