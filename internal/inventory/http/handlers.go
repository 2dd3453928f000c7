package inventoryhttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-inventory/internal/inventory"
	"github.com/odyssey-erp/odyssey-inventory/internal/inventory/report"
	"github.com/odyssey-erp/odyssey-inventory/internal/platform/httpx"
)

type balanceService interface {
	GetBalance(ctx context.Context, productID uuid.UUID) (inventory.Balance, error)
}

type reportBuilder interface {
	Build(ctx context.Context, rng report.Range) (report.Report, error)
}

// Exporter encodes a built report.
type Exporter interface {
	Export(ctx context.Context, w io.Writer, rep report.Report, format report.Format) error
}

var errorRules = []httpx.Rule{
	{Target: inventory.ErrNotFound, Status: http.StatusNotFound, Title: "Not Found", Detail: true},
	{Target: inventory.ErrInsufficientStock, Status: http.StatusConflict, Title: "Insufficient Stock", Detail: true},
	{Target: inventory.ErrDuplicateConsignmentNote, Status: http.StatusConflict, Title: "Conflict", Detail: true},
	{Target: inventory.ErrValidation, Status: http.StatusBadRequest, Title: "Bad Request", Detail: true},
	{Target: inventory.ErrInvalidQuantity, Status: http.StatusBadRequest, Title: "Bad Request", Detail: true},
	{Target: report.ErrInvalidRange, Status: http.StatusBadRequest, Title: "Bad Request", Detail: true},
	{Target: report.ErrUnsupportedFormat, Status: http.StatusBadRequest, Title: "Unsupported Format", Detail: true},
	{Target: inventory.ErrConsistencyViolation, Status: http.StatusInternalServerError, Title: "Consistency Violation"},
}

// Handler serves read-only inventory endpoints.
type Handler struct {
	logger   *slog.Logger
	balances balanceService
	reports  reportBuilder
	exporter Exporter
	now      func() time.Time
}

// NewHandler constructs the inventory HTTP handler.
func NewHandler(logger *slog.Logger, balances balanceService, reports reportBuilder, exporter Exporter) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		balances: balances,
		reports:  reports,
		exporter: exporter,
		now:      time.Now,
	}
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: product id must be a uuid", httpx.ErrBadRequest))
		return
	}
	balance, err := h.balances.GetBalance(r.Context(), productID)
	if err != nil {
		h.logFailure(r, "get balance", err, slog.String("product_id", productID.String()))
		httpx.RespondError(w, err, errorRules...)
		return
	}
	httpx.JSON(w, http.StatusOK, balance)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	format, err := report.ParseFormat(query.Get("format"))
	if err != nil {
		httpx.RespondError(w, err, errorRules...)
		return
	}
	from, err := report.ParseDate(query.Get("from"))
	if err != nil {
		httpx.RespondError(w, err, errorRules...)
		return
	}
	to, err := report.ParseDate(query.Get("to"))
	if err != nil {
		httpx.RespondError(w, err, errorRules...)
		return
	}

	rep, err := h.reports.Build(r.Context(), report.Range{From: from, To: to})
	if err != nil {
		h.logFailure(r, "build report", err)
		httpx.RespondError(w, err, errorRules...)
		return
	}
	var buf bytes.Buffer
	if err := h.exporter.Export(r.Context(), &buf, rep, format); err != nil {
		h.logFailure(r, "export report", err, slog.String("format", string(format)))
		httpx.RespondError(w, err, errorRules...)
		return
	}

	filename := ""
	if format != report.FormatJSON {
		filename = fmt.Sprintf("warehouse-report-%s.%s", h.now().UTC().Format("20060102"), format)
	}
	httpx.Document(w, format.ContentType(), filename, buf.Bytes())
}

func (h *Handler) logFailure(r *http.Request, msg string, err error, attrs ...any) {
	level := slog.LevelWarn
	if !errors.Is(err, inventory.ErrNotFound) && !errors.Is(err, inventory.ErrValidation) &&
		!errors.Is(err, report.ErrInvalidRange) && !errors.Is(err, report.ErrUnsupportedFormat) {
		level = slog.LevelError
	}
	attrs = append(attrs, slog.Any("error", err))
	h.logger.Log(r.Context(), level, msg, attrs...)
}
