// Package stockapi exposes the stock ledger and tag lifecycle operations over
// HTTP.
package stockapi

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"grovecore/internal/core"
	"grovecore/pkg/domain"
)

// Handler provides HTTP access to the stock service and snapshot archiver.
type Handler struct {
	Service  *core.Service
	Archiver *core.Archiver
}

// NewHandler constructs a stock HTTP handler.
func NewHandler(service *core.Service) *Handler {
	return &Handler{Service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		writeError(w, http.StatusInternalServerError, "stock service not configured")
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/api/v1/ledger":
		h.handleLedger(w, r)
	case path == "/api/v1/alerts":
		h.handleAlerts(w, r)
	case path == "/api/v1/snapshots" || strings.HasPrefix(path, "/api/v1/snapshots/"):
		h.handleSnapshots(w, r, path)
	case path == "/api/v1/zones":
		h.handleCreateZone(w, r)
	case path == "/api/v1/deals":
		h.handleCreateDeal(w, r)
	case path == "/api/v1/dig-orders":
		h.handleCreateDigOrder(w, r)
	case path == "/api/v1/shipments":
		h.handleCreateShipment(w, r)
	case path == "/api/v1/plantings":
		h.handlePlantings(w, r)
	case strings.HasPrefix(path, "/api/v1/tags"):
		h.handleTags(w, r, strings.TrimPrefix(path, "/api/v1/tags"))
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleLedger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	query := r.URL.Query()
	filter := core.LedgerFilter{
		ZoneID:    query.Get("zone_id"),
		SpeciesID: query.Get("species_id"),
		SizeLabel: query.Get("size_label"),
		GradeID:   query.Get("grade_id"),
	}
	rows, err := h.Service.Ledger(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if wantsCSV(r) {
		streamLedgerCSV(w, rows)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (h *Handler) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	query := r.URL.Query()
	filter := core.LedgerFilter{
		ZoneID:    query.Get("zone_id"),
		SpeciesID: query.Get("species_id"),
		SizeLabel: query.Get("size_label"),
		GradeID:   query.Get("grade_id"),
	}
	alerts, err := h.Service.Alerts(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (h *Handler) handleSnapshots(w http.ResponseWriter, r *http.Request, path string) {
	if path == "/api/v1/snapshots" {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"periods": h.Service.SnapshotPeriods(r.Context())})
		return
	}

	remainder := strings.TrimPrefix(path, "/api/v1/snapshots/")
	segments := strings.Split(remainder, "/")
	period := segments[0]
	if period == "" {
		http.NotFound(w, r)
		return
	}

	if len(segments) == 2 && segments[1] == "archive" {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if h.Archiver == nil {
			writeError(w, http.StatusNotFound, "snapshot archiver not configured")
			return
		}
		result, err := h.Archiver.Archive(r.Context(), period)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"snapshot": result})
		return
	}

	if len(segments) != 1 {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rows, err := h.Service.MonthlySnapshot(r.Context(), period)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"period": period, "rows": rows})
}

func (h *Handler) handleCreateZone(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var zone core.Zone
	if err := json.NewDecoder(r.Body).Decode(&zone); err != nil {
		writeError(w, http.StatusBadRequest, "invalid zone payload")
		return
	}
	created, _, err := h.Service.CreateZone(r.Context(), zone)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"zone": created})
}

func (h *Handler) handleCreateDeal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var deal core.Deal
	if err := json.NewDecoder(r.Body).Decode(&deal); err != nil {
		writeError(w, http.StatusBadRequest, "invalid deal payload")
		return
	}
	created, _, err := h.Service.CreateDeal(r.Context(), deal)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"deal": created})
}

func (h *Handler) handleCreateDigOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var order core.DigOrder
	if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
		writeError(w, http.StatusBadRequest, "invalid dig order payload")
		return
	}
	created, _, err := h.Service.CreateDigOrder(r.Context(), order)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"dig_order": created})
}

func (h *Handler) handleCreateShipment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var shipment core.Shipment
	if err := json.NewDecoder(r.Body).Decode(&shipment); err != nil {
		writeError(w, http.StatusBadRequest, "invalid shipment payload")
		return
	}
	created, _, err := h.Service.CreateShipment(r.Context(), shipment)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"shipment": created})
}

func (h *Handler) handlePlantings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var input core.PlantingInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid planting payload")
		return
	}
	tags, err := h.Service.RegisterPlanting(r.Context(), input)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"tags": tags})
}

type batchRequest struct {
	TagIDs     []string `json:"tag_ids"`
	DealID     string   `json:"deal_id"`
	DigOrderID string   `json:"dig_order_id"`
	ShipmentID string   `json:"shipment_id"`
	Status     string   `json:"status"`
	Reason     string   `json:"reason"`
	Note       string   `json:"note"`
}

type regradeRequest struct {
	SizeLabel string `json:"size_label"`
	GradeID   string `json:"grade_id"`
}

func (h *Handler) handleTags(w http.ResponseWriter, r *http.Request, remainder string) {
	remainder = strings.TrimPrefix(remainder, "/")
	if remainder == "" {
		http.NotFound(w, r)
		return
	}
	segments := strings.Split(remainder, "/")

	// Batch lifecycle verbs live under /api/v1/tags/<verb>.
	if len(segments) == 1 {
		switch segments[0] {
		case "reserve", "unreserve", "dig-order", "dug", "ship", "plant", "cancel", "status":
			h.handleBatchOp(w, r, segments[0])
			return
		}
	}

	tagID := segments[0]
	switch {
	case len(segments) == 1:
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		tag, ok := h.Service.GetTag(r.Context(), tagID)
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("tag %s not found", tagID))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tag": tag})
	case len(segments) == 2 && segments[1] == "regrade":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var req regradeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid regrade payload")
			return
		}
		tag, err := h.Service.Regrade(r.Context(), tagID, req.SizeLabel, req.GradeID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tag": tag})
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleBatchOp(w http.ResponseWriter, r *http.Request, verb string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid batch payload")
		return
	}
	if len(req.TagIDs) == 0 {
		writeError(w, http.StatusBadRequest, "tag_ids required")
		return
	}

	ctx := r.Context()
	var (
		count int
		err   error
	)
	switch verb {
	case "reserve":
		count, err = h.Service.Reserve(ctx, req.TagIDs, req.DealID)
	case "unreserve":
		count, err = h.Service.Unreserve(ctx, req.TagIDs)
	case "dig-order":
		count, err = h.Service.SetDigOrdered(ctx, req.TagIDs, req.DigOrderID)
	case "dug":
		count, err = h.Service.MarkDug(ctx, req.TagIDs, req.DigOrderID)
	case "ship":
		count, err = h.Service.MarkShipped(ctx, req.TagIDs, req.ShipmentID)
	case "plant":
		count, err = h.Service.MarkPlanted(ctx, req.TagIDs, req.DealID)
	case "cancel":
		count, err = h.Service.Cancel(ctx, req.TagIDs, req.Reason)
	case "status":
		count, err = h.Service.SetStatus(ctx, req.TagIDs, core.TagStatus(req.Status), req.Note)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	updated := make([]core.Tag, 0, len(req.TagIDs))
	for _, id := range req.TagIDs {
		if tag, ok := h.Service.GetTag(ctx, id); ok {
			updated = append(updated, tag)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transitioned": count, "tags": updated})
}

func wantsCSV(r *http.Request) bool {
	if strings.EqualFold(r.URL.Query().Get("format"), "csv") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/csv")
}

var ledgerCSVHeader = []string{
	"zone_id", "species_id", "size_label", "height_label", "grade_id",
	"total", "available", "prep", "reserved", "dig_ordered", "dug",
	"shipped", "planted", "rehab", "dead", "cancelled",
}

func streamLedgerCSV(w http.ResponseWriter, rows []core.LedgerRow) {
	filename := fmt.Sprintf("ledger-%s.csv", time.Now().UTC().Format("20060102T150405Z"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write(ledgerCSVHeader); err != nil {
		return
	}
	for _, row := range rows {
		c := row.Counts
		record := []string{
			row.Group.ZoneID, row.Group.SpeciesID, row.Group.SizeLabel, row.Group.HeightLabel, row.Group.GradeID,
			strconv.Itoa(c.Total), strconv.Itoa(c.Available), strconv.Itoa(c.Prep), strconv.Itoa(c.Reserved),
			strconv.Itoa(c.DigOrdered), strconv.Itoa(c.Dug), strconv.Itoa(c.Shipped), strconv.Itoa(c.Planted),
			strconv.Itoa(c.Rehab), strconv.Itoa(c.Dead), strconv.Itoa(c.Cancelled),
		}
		if err := writer.Write(record); err != nil {
			return
		}
	}
}

// writeDomainError maps domain error types to HTTP statuses: unknown
// references are 404, transition and capacity conflicts are 409, everything
// else is treated as a bad request.
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		unknown     domain.UnknownReferenceError
		illegal     domain.IllegalTransitionError
		oversell    domain.OversellError
		mismatch    domain.AssociationMismatchError
		ruleBlocked domain.RuleViolationError
	)
	switch {
	case errors.As(err, &unknown):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &illegal), errors.As(err, &oversell), errors.As(err, &mismatch):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &ruleBlocked):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
