package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-maintenance/internal/audit"
	"github.com/ukydev/fleet-maintenance/internal/codegen"
	"github.com/ukydev/fleet-maintenance/internal/db"
	"github.com/ukydev/fleet-maintenance/internal/events"
	"github.com/ukydev/fleet-maintenance/internal/lock"
	"github.com/ukydev/fleet-maintenance/internal/models"
)

// RepairHandler handles tool or tyre repair requests, depending on kind.
type RepairHandler struct {
	kind      models.RepairKind
	repairs   db.RepairCollection
	assets    db.AssetCollection
	expenses  db.ExpenseCollection
	codes     *codegen.Generator
	locker    lock.Locker
	publisher events.Publisher
}

// NewRepairHandler creates a repair handler for kind.
func NewRepairHandler(kind models.RepairKind, repairs db.RepairCollection, assets db.AssetCollection, expenses db.ExpenseCollection, locker lock.Locker, publisher events.Publisher) *RepairHandler {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &RepairHandler{
		kind:      kind,
		repairs:   repairs,
		assets:    assets,
		expenses:  expenses,
		codes:     codegen.New(repairs.RepairCodeExists),
		locker:    locker,
		publisher: publisher,
	}
}

type createRepairRequest struct {
	OrganisationID string `json:"organisationId" validate:"required"`
	ToolID         string `json:"toolId"`
	SerialNo       string `json:"serialNo"`
	Date           string `json:"date" validate:"required"`
	RepairType     string `json:"repairType" validate:"required"`
	UserID         string `json:"userId" validate:"required"`
	Description    string `json:"description"`
	ExpenseID      string `json:"expenseId"`
}

func (r *createRepairRequest) organisation() string { return r.OrganisationID }
func (r *createRepairRequest) actor() string        { return r.UserID }

type updateRepairRequest struct {
	ID             string  `json:"_id" validate:"required"`
	OrganisationID string  `json:"organisationId" validate:"required"`
	UserID         string  `json:"userId" validate:"required"`
	Reason         string  `json:"reason"`
	Date           *string `json:"date" validate:"omitempty,min=1"`
	ExpenseID      *string `json:"expenseId"`
	Description    *string `json:"description"`
	RepairType     *string `json:"repairType" validate:"omitempty,min=1"`
}

func (r *updateRepairRequest) organisation() string { return r.OrganisationID }
func (r *updateRepairRequest) actor() string        { return r.UserID }

type deleteRepairRequest struct {
	ID             string `json:"_id" validate:"required"`
	OrganisationID string `json:"organisationId" validate:"required"`
	UserID         string `json:"userId" validate:"required"`
	Reason         string `json:"reason"`
}

func (r *deleteRepairRequest) organisation() string { return r.OrganisationID }
func (r *deleteRepairRequest) actor() string        { return r.UserID }

type repairListQuery struct {
	OrganisationID string `json:"organisationId" validate:"required"`
}

func (q *repairListQuery) organisation() string { return q.OrganisationID }

// CreateRepair handles POST /api/<kind>repairs
func (h *RepairHandler) CreateRepair(w http.ResponseWriter, r *http.Request) {
	var req createRepairRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ref := req.ToolID
	if h.kind.AssetField == models.TyreRepairs.AssetField {
		ref = req.SerialNo
	}
	if ref == "" {
		writeMessage(w, http.StatusBadRequest, h.kind.AssetField+" is required")
		return
	}
	date, err := models.ParseDate(req.Date)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "date is invalid")
		return
	}

	ctx := r.Context()
	exists, err := h.assets.AssetExists(ctx, req.OrganisationID, ref)
	if err != nil {
		serverError(w, r, err, log.Fields{h.kind.AssetField: ref})
		return
	}
	if !exists {
		writeMessage(w, http.StatusBadRequest, h.assetLabel()+" not found")
		return
	}
	if !h.expenseExists(w, r, req.OrganisationID, req.ExpenseID) {
		return
	}

	repair := &models.Repair{
		OrganisationID: req.OrganisationID,
		Date:           date,
		ExpenseID:      req.ExpenseID,
		Description:    req.Description,
		RepairType:     req.RepairType,
		UserID:         req.UserID,
		Remarks:        []models.Remark{},
		Logs: []models.AuditLog{
			models.NewAuditLog(req.UserID, models.ActionCreate, h.assetLabel()+" repair created", ""),
		},
	}
	repair.SetAssetRef(h.kind, ref)

	err = insertWithCode(ctx, h.locker, h.codes, h.kind.Collection, req.OrganisationID, func(code string) error {
		repair.RepairID = code
		return h.repairs.InsertRepair(ctx, repair)
	})
	if isSaveError(err) {
		log.WithFields(log.Fields{"organisationId": req.OrganisationID, "kind": h.kind.Name}).WithError(err).Error("Failed to save repair")
		writeMessage(w, http.StatusUnauthorized, "Repair could not be saved")
		return
	}
	if err != nil {
		serverError(w, r, err, log.Fields{"organisationId": req.OrganisationID})
		return
	}
	h.emit(ctx, repair, repair.Logs[0])

	// The repair is recorded even if the asset history cannot be extended.
	assetEntry := models.NewAuditLog(req.UserID, models.ActionRepair,
		fmt.Sprintf("Repair %s recorded", repair.RepairID), req.RepairType)
	if err := h.assets.AppendAssetLog(ctx, req.OrganisationID, ref, assetEntry); err != nil {
		log.WithFields(log.Fields{
			"organisationId":  req.OrganisationID,
			h.kind.AssetField: ref,
			"repairId":        repair.RepairID,
		}).WithError(err).Error("Failed to append repair log to asset")
	}

	writeData(w, h.assetLabel()+" repair created successfully", repair)
}

// GetRepairs handles GET /api/<kind>repairs
func (h *RepairHandler) GetRepairs(w http.ResponseWriter, r *http.Request) {
	query := repairListQuery{OrganisationID: r.URL.Query().Get("organisationId")}
	if !checkRequest(w, r, &query) {
		return
	}
	repairs, err := h.repairs.FindRepairs(r.Context(), query.OrganisationID, r.URL.Query().Get(h.kind.AssetField))
	if err != nil {
		serverError(w, r, err, nil)
		return
	}
	writeData(w, h.assetLabel()+" repairs fetched successfully", repairs)
}

// GetRepair handles GET /api/<kind>repairs/one
func (h *RepairHandler) GetRepair(w http.ResponseWriter, r *http.Request) {
	query := expenseQuery{
		ID:             r.URL.Query().Get("_id"),
		OrganisationID: r.URL.Query().Get("organisationId"),
	}
	if !checkRequest(w, r, &query) {
		return
	}
	repair, err := h.repairs.FindRepairByID(r.Context(), query.OrganisationID, query.ID)
	if err != nil {
		storeError(w, r, err, "Repair not found")
		return
	}
	models.SortRemarksNewestFirst(repair.Remarks)
	models.SortLogsNewestFirst(repair.Logs)
	writeData(w, "", repair)
}

// UpdateRepair handles PUT /api/<kind>repairs
func (h *RepairHandler) UpdateRepair(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var req updateRepairRequest
	if !unmarshalRequest(w, r, body, &req) {
		return
	}
	payload, err := audit.DecodePayload(body)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	patch := models.RepairPatch{
		ExpenseID:   req.ExpenseID,
		Description: req.Description,
		RepairType:  req.RepairType,
	}
	if req.Date != nil {
		date, err := models.ParseDate(*req.Date)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "date is invalid")
			return
		}
		patch.Date = &date
	}

	ctx := r.Context()
	existing, err := h.repairs.FindRepairByID(ctx, req.OrganisationID, req.ID)
	if err != nil {
		storeError(w, r, err, "Repair not found")
		return
	}
	if !h.expenseExists(w, r, req.OrganisationID, deref(req.ExpenseID)) {
		return
	}

	entry := models.NewAuditLog(req.UserID, models.ActionUpdate, h.assetLabel()+" repair updated", req.Reason)
	entry.Changes = audit.Diff(existing.Fields(), audit.Restrict(payload, patch.Fields()), nil)

	updated, err := h.repairs.UpdateRepair(ctx, req.OrganisationID, req.ID, patch, entry)
	if err != nil {
		storeError(w, r, err, "Repair could not be updated")
		return
	}
	h.emit(ctx, updated, entry)
	writeData(w, h.assetLabel()+" repair updated successfully", updated)
}

// DeleteRepair handles POST /api/<kind>repairs/delete. Repairs are removed
// permanently; the delete entry survives only in the published event.
func (h *RepairHandler) DeleteRepair(w http.ResponseWriter, r *http.Request) {
	var req deleteRepairRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	repair, err := h.repairs.FindRepairByID(ctx, req.OrganisationID, req.ID)
	if err != nil {
		storeError(w, r, err, "Repair not found")
		return
	}
	if err := h.repairs.DeleteRepair(ctx, req.OrganisationID, req.ID); err != nil {
		storeError(w, r, err, "Repair not found")
		return
	}
	entry := models.NewAuditLog(req.UserID, models.ActionDelete, h.assetLabel()+" repair deleted", req.Reason)
	h.emit(ctx, repair, entry)
	writeData(w, h.assetLabel()+" repair deleted successfully", repair)
}

func (h *RepairHandler) expenseExists(w http.ResponseWriter, r *http.Request, organisationID, code string) bool {
	if code == "" {
		return true
	}
	if _, err := h.expenses.FindExpenseByCode(r.Context(), organisationID, code); err != nil {
		storeError(w, r, err, "Expense not found")
		return false
	}
	return true
}

func (h *RepairHandler) assetLabel() string {
	if h.kind.Name == "" {
		return "Asset"
	}
	return strings.ToUpper(h.kind.Name[:1]) + h.kind.Name[1:]
}

func (h *RepairHandler) emit(ctx context.Context, repair *models.Repair, entry models.AuditLog) {
	events.Emit(ctx, h.publisher, events.Event{
		Resource:       h.kind.Collection,
		OrganisationID: repair.OrganisationID,
		RecordID:       repair.ID.Hex(),
		Code:           repair.RepairID,
		Entry:          entry,
	})
}
