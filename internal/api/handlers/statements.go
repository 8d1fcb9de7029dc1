package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/receipts-reconciler/internal/adapters/statement"
	"github.com/eshaffer321/receipts-reconciler/internal/api/dto"
	"github.com/eshaffer321/receipts-reconciler/internal/application/reconcile"
	"github.com/eshaffer321/receipts-reconciler/internal/domain/transaction"
)

const (
	xlsxContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	maxStatementSize = 16 << 20
)

// StatementsHandler reconciles uploaded bank statements.
type StatementsHandler struct {
	*Base
	service *reconcile.Service
	decoder *statement.Decoder
}

// NewStatementsHandler creates a new statements handler.
func NewStatementsHandler(service *reconcile.Service, decoder *statement.Decoder, logger *slog.Logger) *StatementsHandler {
	return &StatementsHandler{
		Base:    NewBase(logger),
		service: service,
		decoder: decoder,
	}
}

// Reconcile handles POST /api/statements/reconcile. The body is either the
// statement service's JSON result or an XLSX export. With ?format=xlsx the
// match report is returned as a workbook.
func (h *StatementsHandler) Reconcile(c *gin.Context) {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxStatementSize)
	defer func() { _ = body.Close() }()

	var (
		rows    []transaction.Row
		rowErrs []statement.RowError
		err     error
	)
	if strings.HasPrefix(c.ContentType(), xlsxContentType) {
		rows, rowErrs, err = h.decoder.DecodeXLSX(body)
	} else {
		rows, rowErrs, err = h.decoder.DecodeJSON(body)
	}
	if err != nil {
		h.WriteServiceError(c, err)
		return
	}

	ctx := c.Request.Context()
	report, err := h.service.Reconcile(ctx, rows)
	if err != nil {
		h.WriteServiceError(c, err)
		return
	}

	if c.Query("format") == "xlsx" {
		data, err := h.service.ExportXLSX(ctx, report)
		if err != nil {
			h.WriteServiceError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="matches.xlsx"`)
		c.Data(http.StatusOK, xlsxContentType, data)
		return
	}

	c.JSON(http.StatusOK, toReconcileResponse(report, rowErrs))
}

func toReconcileResponse(report reconcile.Report, rowErrs []statement.RowError) dto.ReconcileResponse {
	resp := dto.ReconcileResponse{
		Transactions: make([]dto.ReconcileRowResponse, 0, len(report.Results)),
		Matched:      report.Matched,
		Skipped:      report.Skipped + len(rowErrs),
	}
	for _, res := range report.Results {
		tx := res.Transaction
		row := dto.ReconcileRowResponse{
			TransactionID: tx.ID.String(),
			PostedAt:      tx.PostedAt.Format(time.RFC3339),
			Amount:        tx.Amount.StringFixed(2),
			Cached:        res.Cached,
		}
		if tx.Merchant != nil {
			row.Description = *tx.Merchant
		}
		if res.Match != nil {
			m := dto.ToMatchResponse(row.TransactionID, *res.Match)
			row.Match = &m
		}
		resp.Transactions = append(resp.Transactions, row)
	}
	for _, re := range rowErrs {
		resp.RowErrors = append(resp.RowErrors, re.Error())
	}
	return resp
}

