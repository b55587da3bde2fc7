package apihttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	catalog "carbon-inventory/internal/catalog/domain"
	inventory "carbon-inventory/internal/inventory/domain"
	inventoryexport "carbon-inventory/internal/inventory/interfaces"
	mapping "carbon-inventory/internal/mapping/domain"
	"carbon-inventory/internal/observability/metrics"
	sessionapp "carbon-inventory/internal/session/application"
	session "carbon-inventory/internal/session/domain"
	"carbon-inventory/internal/sessiontoken"
)

// SessionsPath is the root of the form session API.
const SessionsPath = "/api/v1/sessions"

const (
	contentTypeJSON = "application/json"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypePDF  = "application/pdf"
)

// Handler serves form session endpoints.
type Handler struct {
	service  *sessionapp.Service
	issuer   *sessiontoken.Issuer
	logger   *logrus.Logger
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(service *sessionapp.Service, issuer *sessiontoken.Issuer, logger *logrus.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("session handler: nil service")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		service:  service,
		issuer:   issuer,
		logger:   logger,
		validate: validator.New(),
	}, nil
}

// ServeHTTP routes session requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, SessionsPath) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, SessionsPath), "/")
	if path == "" {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleCreate(w, r)
		return
	}

	parts := strings.Split(path, "/")
	sessionID := parts[0]
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			h.handleGet(w, r, sessionID)
		case http.MethodDelete:
			h.handleClose(w, r, sessionID)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	switch parts[1] {
	case "catalog":
		if len(parts) == 2 && r.Method == http.MethodGet {
			h.handleCatalog(w, r, sessionID)
			return
		}
		if len(parts) == 3 && parts[2] == "refresh" && r.Method == http.MethodPost {
			h.handleRefreshCatalog(w, r, sessionID)
			return
		}
	case "ledgers":
		if len(parts) >= 3 {
			h.routeLedger(w, r, sessionID, parts[2:])
			return
		}
	case "mapping":
		h.routeMapping(w, r, sessionID, parts[2:])
		return
	}
	writeError(w, http.StatusNotFound, "not found")
}

func (h *Handler) routeLedger(w http.ResponseWriter, r *http.Request, sessionID string, parts []string) {
	category, err := inventory.ParseCategory(parts[0])
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown category")
		return
	}
	rest := parts[1:]

	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		h.handleLedger(w, r, sessionID, category)
	case len(rest) == 1 && rest[0] == "items" && r.Method == http.MethodPost:
		h.handleAddItem(w, r, sessionID, category)
	case len(rest) == 1 && rest[0] == "method" && r.Method == http.MethodPut:
		h.handleMethod(w, r, sessionID, category)
	case len(rest) == 1 && rest[0] == "ratios" && r.Method == http.MethodPut:
		h.handleRatio(w, r, sessionID, category)
	case len(rest) == 1 && rest[0] == "save" && r.Method == http.MethodPost:
		h.handleSaveLedger(w, r, sessionID, category)
	case len(rest) == 1 && rest[0] == "export.xlsx" && r.Method == http.MethodGet:
		h.handleExport(w, r, sessionID, category, "xlsx")
	case len(rest) == 1 && rest[0] == "export.pdf" && r.Method == http.MethodGet:
		h.handleExport(w, r, sessionID, category, "pdf")
	case len(rest) == 2 && rest[0] == "items" && r.Method == http.MethodDelete:
		h.handleDeleteItem(w, r, sessionID, category, rest[1])
	case len(rest) == 3 && rest[0] == "items" && rest[2] == "unit-processes" && r.Method == http.MethodPut:
		h.handleLinks(w, r, sessionID, category, rest[1])
	case len(rest) == 3 && rest[0] == "items" && rest[2] == "resource-type" && r.Method == http.MethodPut:
		h.handleResourceType(w, r, sessionID, category, rest[1])
	case len(rest) == 3 && rest[0] == "items" && rest[2] == "dqi" && r.Method == http.MethodPut:
		h.handleDQI(w, r, sessionID, category, rest[1])
	case len(rest) == 4 && rest[0] == "items" && rest[2] == "months" && r.Method == http.MethodPut:
		h.handleAmount(w, r, sessionID, category, rest[1], rest[3])
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (h *Handler) routeMapping(w http.ResponseWriter, r *http.Request, sessionID string, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		h.handleMapping(w, r, sessionID)
	case len(rest) == 1 && rest[0] == "process" && r.Method == http.MethodPut:
		h.handleSelectProcess(w, r, sessionID)
	case len(rest) == 1 && rest[0] == "toggle" && r.Method == http.MethodPost:
		h.handleToggle(w, r, sessionID)
	case len(rest) == 1 && rest[0] == "reset" && r.Method == http.MethodPost:
		h.handleResetMapping(w, r, sessionID)
	case len(rest) == 1 && rest[0] == "save" && r.Method == http.MethodPost:
		h.handleSaveMapping(w, r, sessionID)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

type createSessionRequest struct {
	SiteID string `json:"site_id" validate:"required"`
}

type createSessionResponse struct {
	sessionapp.SessionView
	Token string `json:"token,omitempty"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.service.Create(r.Context(), req.SiteID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	token, err := h.issuer.Issue(view.ID, view.SiteID)
	if err != nil {
		_ = h.service.Close(view.ID)
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createSessionResponse{SessionView: view, Token: token})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, sessionID string) {
	view, err := h.service.Get(sessionID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request, sessionID string) {
	if err := h.service.Close(sessionID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCatalog(w http.ResponseWriter, r *http.Request, sessionID string) {
	snapshot, err := h.service.Catalog(sessionID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) handleRefreshCatalog(w http.ResponseWriter, r *http.Request, sessionID string) {
	result, err := h.service.RefreshCatalog(r.Context(), sessionID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleLedger(w http.ResponseWriter, r *http.Request, sessionID string, category inventory.Category) {
	h.respondLedger(w, sessionID, category, http.StatusOK)
}

type addItemRequest struct {
	ResourceTypeID string   `json:"resource_type_id"`
	UnitProcessIDs []string `json:"unit_process_ids" validate:"dive,required"`
	DQI            string   `json:"dqi" validate:"omitempty,oneof=M C E"`
}

func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request, sessionID string, category inventory.Category) {
	var req addItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.service.AddItem(sessionID, category, inventory.ItemDefaults{
		ResourceTypeID:       req.ResourceTypeID,
		LinkedUnitProcessIDs: req.UnitProcessIDs,
		DQI:                  inventory.DQI(req.DQI),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *Handler) handleDeleteItem(w http.ResponseWriter, r *http.Request, sessionID string, category inventory.Category, itemID string) {
	if err := h.service.DeleteItem(sessionID, category, itemID); err != nil {
		h.respondError(w, err)
		return
	}
	h.respondLedger(w, sessionID, category, http.StatusOK)
}

type amountRequest struct {
	Amount json.RawMessage `json:"amount" validate:"required"`
}

func (h *Handler) handleAmount(w http.ResponseWriter, r *http.Request, sessionID string, category inventory.Category, itemID, rawMonth string) {
	month, err := strconv.Atoi(rawMonth)
	if err != nil {
		writeError(w, http.StatusBadRequest, "month must be a number")
		return
	}
	var req amountRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.SetMonthlyAmountInput(sessionID, category, itemID, month, amountInput(req.Amount)); err != nil {
		h.respondError(w, err)
		return
	}
	h.respondLedger(w, sessionID, category, http.StatusOK)
}

type linksRequest struct {
	UnitProcessIDs []string `json:"unit_process_ids" validate:"required,dive,required"`
}

func (h *Handler) handleLinks(w http.ResponseWriter, r *http.Request, sessionID string, category inventory.Category, itemID string) {
	var req linksRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.SetLinkedUnitProcesses(sessionID, category, itemID, req.UnitProcessIDs); err != nil {
		h.respondError(w, err)
		return
	}
	h.respondLedger(w, sessionID, category, http.StatusOK)
}

type resourceTypeRequest struct {
	ResourceTypeID string `json:"resource_type_id" validate:"required"`
}

func (h *Handler) handleResourceType(w http.ResponseWriter, r *http.Request, sessionID string, category inventory.Category, itemID string) {
	var req resourceTypeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.SetResourceType(sessionID, category, itemID, req.ResourceTypeID); err != nil {
		h.respondError(w, err)
		return
	}
	h.respondLedger(w, sessionID, category, http.StatusOK)
}

type dqiRequest struct {
	DQI string `json:"dqi" validate:"omitempty,oneof=M C E"`
}

func (h *Handler) handleDQI(w http.ResponseWriter, r *http.Request, sessionID string, category inventory.Category, itemID string) {
	var req dqiRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.SetDQI(sessionID, category, itemID, inventory.DQI(req.DQI)); err != nil {
		h.respondError(w, err)
		return
	}
	h.respondLedger(w, sessionID, category, http.StatusOK)
}

type methodRequest struct {
	Method string `json:"method" validate:"required"`
}

func (h *Handler) handleMethod(w http.ResponseWriter, r *http.Request, sessionID string, category inventory.Category) {
	var req methodRequest
	if !h.decode(w, r, &req) {
		return
	}
	method, err := inventory.ParseAllocationMethod(req.Method)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.service.SetMethod(sessionID, category, method); err != nil {
		h.respondError(w, err)
		return
	}
	h.respondLedger(w, sessionID, category, http.StatusOK)
}

type ratioRequest struct {
	ItemID        string           `json:"item_id" validate:"required"`
	UnitProcessID string           `json:"unit_process_id" validate:"required"`
	Ratio         *decimal.Decimal `json:"ratio" validate:"required"`
}

func (h *Handler) handleRatio(w http.ResponseWriter, r *http.Request, sessionID string, category inventory.Category) {
	var req ratioRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.SetManualRatio(sessionID, category, req.ItemID, req.UnitProcessID, *req.Ratio); err != nil {
		h.respondError(w, err)
		return
	}
	h.respondLedger(w, sessionID, category, http.StatusOK)
}

func (h *Handler) handleSaveLedger(w http.ResponseWriter, r *http.Request, sessionID string, category inventory.Category) {
	result, err := h.service.SaveLedger(r.Context(), sessionID, category)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request, sessionID string, category inventory.Category, format string) {
	start := time.Now()
	snapshot, err := h.service.LedgerSnapshot(sessionID, category)
	if err != nil {
		h.respondError(w, err)
		return
	}
	names := make(map[string]string)
	if ref, err := h.service.Catalog(sessionID); err == nil && ref != nil {
		for _, up := range ref.UnitProcesses {
			names[up.ID] = up.Name
		}
	}
	header := inventoryexport.ExportHeader{
		SiteID:           snapshot.SiteID,
		SessionID:        snapshot.SessionID,
		GeneratedAt:      snapshot.SavedAt,
		UnitProcessNames: names,
	}

	var (
		data        []byte
		contentType string
	)
	switch format {
	case "pdf":
		data, err = inventoryexport.BuildLedgerPDF(header, snapshot.Ledger)
		contentType = contentTypePDF
	default:
		data, err = inventoryexport.BuildLedgerXLSX(header, snapshot.Ledger)
		contentType = contentTypeXLSX
	}
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(start))
		h.logger.WithFields(logrus.Fields{"session_id": sessionID, "category": category, "format": format}).WithError(err).Error("export error")
		writeError(w, http.StatusInternalServerError, "export error")
		return
	}
	metrics.ObserveExport(format, metrics.ResultSuccess, time.Since(start))

	filename := fmt.Sprintf("%s-%s.%s", snapshot.SiteID, category, format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) handleMapping(w http.ResponseWriter, r *http.Request, sessionID string) {
	view, err := h.service.Mapping(sessionID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type selectProcessRequest struct {
	ProcessID string `json:"process_id" validate:"required"`
}

func (h *Handler) handleSelectProcess(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req selectProcessRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.service.SelectProcess(sessionID, req.ProcessID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type toggleRequest struct {
	ItemID       string `json:"item_id" validate:"required"`
	ItemType     string `json:"item_type" validate:"required,oneof=product product_group"`
	SubProcessID string `json:"sub_process_id" validate:"required"`
}

func (h *Handler) handleToggle(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req toggleRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.Toggle(sessionID, req.ItemID, mapping.ItemType(req.ItemType), req.SubProcessID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleResetMapping(w http.ResponseWriter, r *http.Request, sessionID string) {
	if err := h.service.ResetMapping(sessionID); err != nil {
		h.respondError(w, err)
		return
	}
	h.handleMapping(w, r, sessionID)
}

func (h *Handler) handleSaveMapping(w http.ResponseWriter, r *http.Request, sessionID string) {
	result, err := h.service.SaveMapping(r.Context(), sessionID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

func (h *Handler) respondLedger(w http.ResponseWriter, sessionID string, category inventory.Category, status int) {
	view, err := h.service.Ledger(sessionID, category)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, status, view)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) {
			fields := make(map[string]string, len(fieldErrors))
			for _, fe := range fieldErrors {
				fields[fe.Field()] = fe.Tag()
			}
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request", "fields": fields})
			return false
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.WithError(err).Error("session request error")
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, inventory.ErrItemNotFound),
		errors.Is(err, sessionapp.ErrProcessNotFound),
		errors.Is(err, catalog.ErrSiteNotFound):
		return http.StatusNotFound
	case inventory.IsValidation(err), mapping.IsValidation(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrEmptySiteID),
		errors.Is(err, catalog.ErrEmptySiteID),
		errors.Is(err, mapping.ErrEmptyProcessID),
		errors.Is(err, inventory.ErrEmptyCategory):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// amountInput turns a JSON string or number into raw form input.
func amountInput(raw json.RawMessage) string {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "null" {
		return ""
	}
	return trimmed
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
