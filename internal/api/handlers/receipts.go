package handlers

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/receipts-reconciler/internal/api/dto"
	"github.com/eshaffer321/receipts-reconciler/internal/application/receipts"
	"github.com/eshaffer321/receipts-reconciler/internal/infrastructure/storage"
)

const maxListLimit = 500

// ReceiptsHandler handles receipt-related HTTP requests.
type ReceiptsHandler struct {
	*Base
	service *receipts.Service
}

// NewReceiptsHandler creates a new receipts handler.
func NewReceiptsHandler(service *receipts.Service, logger *slog.Logger) *ReceiptsHandler {
	return &ReceiptsHandler{
		Base:    NewBase(logger),
		service: service,
	}
}

// Scan handles POST /api/receipts/scan - fetches the receipt behind a
// scanned payload and upserts it.
func (h *ReceiptsHandler) Scan(c *gin.Context) {
	var req dto.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.WriteError(c, http.StatusBadRequest, dto.BadRequestError("payload is required"))
		return
	}

	var photo []byte
	if req.Photo != "" {
		data, err := base64.StdEncoding.DecodeString(req.Photo)
		if err != nil {
			h.WriteError(c, http.StatusBadRequest, dto.BadRequestError("photo must be base64"))
			return
		}
		photo = data
	}

	res, err := h.service.Scan(c.Request.Context(), req.Payload, photo)
	if err != nil {
		h.WriteServiceError(c, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	c.JSON(status, dto.ScanResponse{
		Receipt: dto.ToReceiptResponse(res.Receipt),
		Created: res.Created,
		Changed: res.Changed,
	})
}

// List handles GET /api/receipts - returns receipts filtered by tax id,
// merchant and issue time range.
func (h *ReceiptsHandler) List(c *gin.Context) {
	params := dto.DefaultReceiptListParams()
	if err := c.ShouldBindQuery(&params); err != nil {
		h.WriteError(c, http.StatusBadRequest, dto.BadRequestError("invalid query parameters"))
		return
	}
	if params.Limit <= 0 || params.Limit > maxListLimit {
		params.Limit = dto.DefaultReceiptListParams().Limit
	}

	filter := storage.ReceiptFilter{
		TaxID:    params.TaxID,
		Merchant: params.Merchant,
		Limit:    params.Limit,
		Offset:   params.Offset,
	}
	var err error
	if filter.From, err = parseTimeParam(params.From); err != nil {
		h.WriteError(c, http.StatusBadRequest, dto.ValidationError("from must be RFC 3339 or YYYY-MM-DD"))
		return
	}
	if filter.To, err = parseTimeParam(params.To); err != nil {
		h.WriteError(c, http.StatusBadRequest, dto.ValidationError("to must be RFC 3339 or YYYY-MM-DD"))
		return
	}

	list, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.WriteServiceError(c, err)
		return
	}

	response := dto.ReceiptListResponse{
		Receipts: make([]dto.ReceiptResponse, 0, len(list)),
		Count:    len(list),
		Limit:    params.Limit,
		Offset:   params.Offset,
	}
	for _, r := range list {
		response.Receipts = append(response.Receipts, dto.ToReceiptResponse(r))
	}
	c.JSON(http.StatusOK, response)
}

// Get handles GET /api/receipts/:id - returns a single receipt.
func (h *ReceiptsHandler) Get(c *gin.Context) {
	r, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.WriteServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToReceiptResponse(r))
}

// Recover handles POST /api/receipts/:id/recover - re-derives the source URL
// from the stored photo.
func (h *ReceiptsHandler) Recover(c *gin.Context) {
	r, err := h.service.Recover(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.WriteServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToReceiptResponse(r))
}

// parseTimeParam accepts RFC 3339 timestamps and plain dates (UTC midnight).
// An empty value yields the zero time.
func parseTimeParam(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}
