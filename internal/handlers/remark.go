package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/ukydev/fleet-maintenance/internal/auth"
	"github.com/ukydev/fleet-maintenance/internal/db"
	"github.com/ukydev/fleet-maintenance/internal/events"
	"github.com/ukydev/fleet-maintenance/internal/models"
)

// RemarkHandler serves the remark sub-resource of one record kind.
type RemarkHandler struct {
	resource    string
	store       db.RemarkStore
	users       db.DirectoryCollection
	permissions auth.RemarkPermissionChecker
	publisher   events.Publisher
}

// NewRemarkHandler creates a remark handler for the records held by store.
// resource names the record kind in events ("expenses", "tyrerepairs", ...).
func NewRemarkHandler(resource string, store db.RemarkStore, users db.DirectoryCollection, permissions auth.RemarkPermissionChecker, publisher events.Publisher) *RemarkHandler {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &RemarkHandler{
		resource:    resource,
		store:       store,
		users:       users,
		permissions: permissions,
		publisher:   publisher,
	}
}

type addRemarkRequest struct {
	ID             string `json:"_id" validate:"required"`
	OrganisationID string `json:"organisationId" validate:"required"`
	UserID         string `json:"userId" validate:"required"`
	Remark         string `json:"remark" validate:"required"`
}

func (r *addRemarkRequest) organisation() string { return r.OrganisationID }
func (r *addRemarkRequest) actor() string        { return r.UserID }

type editRemarkRequest struct {
	ID             string `json:"_id" validate:"required"`
	OrganisationID string `json:"organisationId" validate:"required"`
	UserID         string `json:"userId" validate:"required"`
	RemarkID       string `json:"remarkId" validate:"required"`
	Remark         string `json:"remark" validate:"required"`
}

func (r *editRemarkRequest) organisation() string { return r.OrganisationID }
func (r *editRemarkRequest) actor() string        { return r.UserID }

type deleteRemarkRequest struct {
	ID             string `json:"_id" validate:"required"`
	OrganisationID string `json:"organisationId" validate:"required"`
	UserID         string `json:"userId" validate:"required"`
	RemarkID       string `json:"remarkId" validate:"required"`
	Reason         string `json:"reason"`
}

func (r *deleteRemarkRequest) organisation() string { return r.OrganisationID }
func (r *deleteRemarkRequest) actor() string        { return r.UserID }

type remarkQuery struct {
	ID             string `json:"_id" validate:"required"`
	OrganisationID string `json:"organisationId" validate:"required"`
}

func (q *remarkQuery) organisation() string { return q.OrganisationID }

// remarkView is a remark joined with its author's profile.
type remarkView struct {
	ID     string      `json:"_id"`
	Remark string      `json:"remark"`
	Date   time.Time   `json:"date"`
	UserID string      `json:"userId"`
	User   *authorView `json:"user"`
}

type authorView struct {
	ID        string      `json:"_id"`
	FirstName string      `json:"firstName"`
	LastName  string      `json:"lastName"`
	Email     string      `json:"email"`
	Role      models.Role `json:"role"`
}

// AddRemark handles POST .../remarks
func (h *RemarkHandler) AddRemark(w http.ResponseWriter, r *http.Request) {
	var req addRemarkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	remark := models.NewRemark(req.UserID, req.Remark)
	entry := models.NewAuditLog(req.UserID, models.ActionRemark, "Remark added", "")

	remarks, err := h.store.PushRemark(r.Context(), req.OrganisationID, req.ID, remark, entry)
	if err != nil {
		storeError(w, r, err, "Record not found")
		return
	}
	h.emit(r.Context(), req.OrganisationID, req.ID, entry)
	writeData(w, "Remark added successfully", newestFirst(remarks))
}

// EditRemark handles PUT .../remarks
func (h *RemarkHandler) EditRemark(w http.ResponseWriter, r *http.Request) {
	var req editRemarkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	current, ok := h.authorize(w, r, req.OrganisationID, req.ID, req.RemarkID, req.UserID)
	if !ok {
		return
	}

	entry := models.NewAuditLog(req.UserID, models.ActionEdit, "Remark edited", "")
	if current.Remark != req.Remark {
		entry.Changes = []models.FieldChange{{Field: "remark", Old: current.Remark, New: req.Remark}}
	}
	remarks, err := h.store.SetRemarkText(ctx, req.OrganisationID, req.ID, req.RemarkID, req.Remark, entry)
	if err != nil {
		storeError(w, r, err, "Remark not found")
		return
	}
	h.emit(ctx, req.OrganisationID, req.ID, entry)
	writeData(w, "Remark updated successfully", newestFirst(remarks))
}

// DeleteRemark handles POST .../remarks/delete
func (h *RemarkHandler) DeleteRemark(w http.ResponseWriter, r *http.Request) {
	var req deleteRemarkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	if _, ok := h.authorize(w, r, req.OrganisationID, req.ID, req.RemarkID, req.UserID); !ok {
		return
	}

	entry := models.NewAuditLog(req.UserID, models.ActionDelete, "Remark deleted", req.Reason)
	remarks, err := h.store.PullRemark(ctx, req.OrganisationID, req.ID, req.RemarkID, entry)
	if err != nil {
		storeError(w, r, err, "Remark not found")
		return
	}
	h.emit(ctx, req.OrganisationID, req.ID, entry)
	writeData(w, "Remark deleted successfully", newestFirst(remarks))
}

// GetRemarks handles GET .../remarks
func (h *RemarkHandler) GetRemarks(w http.ResponseWriter, r *http.Request) {
	query := remarkQuery{
		ID:             r.URL.Query().Get("_id"),
		OrganisationID: r.URL.Query().Get("organisationId"),
	}
	if !checkRequest(w, r, &query) {
		return
	}
	ctx := r.Context()
	remarks, err := h.store.FindRemarks(ctx, query.OrganisationID, query.ID)
	if err != nil {
		storeError(w, r, err, "Record not found")
		return
	}

	ids := make([]string, 0, len(remarks))
	seen := make(map[string]bool)
	for _, remark := range remarks {
		if !seen[remark.UserID] {
			seen[remark.UserID] = true
			ids = append(ids, remark.UserID)
		}
	}
	users, err := h.users.FindUsers(ctx, query.OrganisationID, ids)
	if err != nil {
		serverError(w, r, err, nil)
		return
	}

	models.SortRemarksNewestFirst(remarks)
	views := make([]remarkView, 0, len(remarks))
	for _, remark := range remarks {
		view := remarkView{
			ID:     remark.ID.Hex(),
			Remark: remark.Remark,
			Date:   remark.Date,
			UserID: remark.UserID,
		}
		if u, ok := users[remark.UserID]; ok {
			view.User = &authorView{
				ID:        u.ID.Hex(),
				FirstName: u.FirstName,
				LastName:  u.LastName,
				Email:     u.Email,
				Role:      u.Role,
			}
		}
		views = append(views, view)
	}
	writeData(w, "", views)
}

// authorize loads the remark and asks the permission checker whether userID
// may change it. Denial is reported as a 400.
func (h *RemarkHandler) authorize(w http.ResponseWriter, r *http.Request, organisationID, parentID, remarkID, userID string) (*models.Remark, bool) {
	remark, err := h.store.FindRemark(r.Context(), organisationID, parentID, remarkID)
	if err != nil {
		storeError(w, r, err, "Remark not found")
		return nil, false
	}
	allowed, err := h.permissions.CanModifyRemark(r.Context(), organisationID, remark, userID)
	if err != nil {
		serverError(w, r, err, nil)
		return nil, false
	}
	if !allowed {
		writeMessage(w, http.StatusBadRequest, "You do not have permission to modify this remark")
		return nil, false
	}
	return remark, true
}

func (h *RemarkHandler) emit(ctx context.Context, organisationID, parentID string, entry models.AuditLog) {
	events.Emit(ctx, h.publisher, events.Event{
		Resource:       h.resource,
		OrganisationID: organisationID,
		RecordID:       parentID,
		Entry:          entry,
	})
}

func newestFirst(remarks []models.Remark) []models.Remark {
	if remarks == nil {
		return []models.Remark{}
	}
	models.SortRemarksNewestFirst(remarks)
	return remarks
}
