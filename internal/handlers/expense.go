package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-maintenance/internal/audit"
	"github.com/ukydev/fleet-maintenance/internal/codegen"
	"github.com/ukydev/fleet-maintenance/internal/db"
	"github.com/ukydev/fleet-maintenance/internal/events"
	"github.com/ukydev/fleet-maintenance/internal/lock"
	"github.com/ukydev/fleet-maintenance/internal/models"
)

const expensesResource = "expenses"

// ExpenseHandler handles expense requests
type ExpenseHandler struct {
	expenses  db.ExpenseCollection
	directory db.DirectoryCollection
	codes     *codegen.Generator
	locker    lock.Locker
	changes   *audit.Builder
	publisher events.Publisher
}

// NewExpenseHandler creates a new expense handler
func NewExpenseHandler(expenses db.ExpenseCollection, directory db.DirectoryCollection, locker lock.Locker, publisher events.Publisher) *ExpenseHandler {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &ExpenseHandler{
		expenses:  expenses,
		directory: directory,
		codes:     codegen.New(expenses.ExpenseCodeExists),
		locker:    locker,
		changes:   audit.NewBuilder(directory),
		publisher: publisher,
	}
}

type createExpenseRequest struct {
	OrganisationID string   `json:"organisationId" validate:"required"`
	Amount         *float64 `json:"amount" validate:"required,gte=0"`
	ExpenseType    string   `json:"expenseType" validate:"required"`
	Date           string   `json:"date" validate:"required"`
	UserID         string   `json:"userId" validate:"required"`
	VehicleID      string   `json:"vehicleId"`
	TripID         string   `json:"tripId"`
	VendorID       string   `json:"vendorId"`
}

func (r *createExpenseRequest) organisation() string { return r.OrganisationID }
func (r *createExpenseRequest) actor() string        { return r.UserID }

type updateExpenseRequest struct {
	ID             string   `json:"_id" validate:"required"`
	OrganisationID string   `json:"organisationId" validate:"required"`
	UserID         string   `json:"userId" validate:"required"`
	Reason         string   `json:"reason"`
	Date           *string  `json:"date" validate:"omitempty,min=1"`
	VehicleID      *string  `json:"vehicleId"`
	TripID         *string  `json:"tripId"`
	VendorID       *string  `json:"vendorId"`
	ExpenseType    *string  `json:"expenseType" validate:"omitempty,min=1"`
	Amount         *float64 `json:"amount" validate:"omitempty,gte=0"`
}

func (r *updateExpenseRequest) organisation() string { return r.OrganisationID }
func (r *updateExpenseRequest) actor() string        { return r.UserID }

type expenseStateRequest struct {
	ExpensesID     string `json:"expensesId" validate:"required"`
	UserID         string `json:"userId" validate:"required"`
	OrganisationID string `json:"organisationId" validate:"required"`
	Reason         string `json:"reason"`
}

func (r *expenseStateRequest) organisation() string { return r.OrganisationID }
func (r *expenseStateRequest) actor() string        { return r.UserID }

type expenseQuery struct {
	ID             string `json:"_id" validate:"required"`
	OrganisationID string `json:"organisationId" validate:"required"`
}

func (q *expenseQuery) organisation() string { return q.OrganisationID }

type expenseListQuery struct {
	OrganisationID string `json:"organisationId" validate:"required"`
	Disabled       string `json:"disabled" validate:"omitempty,oneof=true false"`
	From           string `json:"from"`
	To             string `json:"to"`
}

func (q *expenseListQuery) organisation() string { return q.OrganisationID }

// CreateExpense handles POST /api/expenses
func (h *ExpenseHandler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	date, err := models.ParseDate(req.Date)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "date is invalid")
		return
	}
	ctx := r.Context()
	if msg, err := h.missingReference(ctx, req.OrganisationID, req.VehicleID, req.TripID, req.VendorID); err != nil {
		serverError(w, r, err, nil)
		return
	} else if msg != "" {
		writeMessage(w, http.StatusBadRequest, msg)
		return
	}

	expense := &models.Expense{
		OrganisationID: req.OrganisationID,
		Date:           date,
		VehicleID:      req.VehicleID,
		TripID:         req.TripID,
		VendorID:       req.VendorID,
		UserID:         req.UserID,
		ExpenseType:    req.ExpenseType,
		Amount:         *req.Amount,
		Documents:      []models.Attachment{},
		Pictures:       []models.Attachment{},
		Remarks:        []models.Remark{},
		Logs: []models.AuditLog{
			models.NewAuditLog(req.UserID, models.ActionCreate, "Expense created", ""),
		},
	}

	err = insertWithCode(ctx, h.locker, h.codes, "expense", req.OrganisationID, func(code string) error {
		expense.ExpensesID = code
		return h.expenses.InsertExpense(ctx, expense)
	})
	if isSaveError(err) {
		log.WithFields(log.Fields{"organisationId": req.OrganisationID}).WithError(err).Error("Failed to save expense")
		writeMessage(w, http.StatusUnauthorized, "Expense could not be saved")
		return
	}
	if err != nil {
		serverError(w, r, err, log.Fields{"organisationId": req.OrganisationID})
		return
	}

	h.emit(ctx, expense, expense.Logs[0])
	writeData(w, "Expense created successfully", expense)
}

// GetExpenses handles GET /api/expenses
func (h *ExpenseHandler) GetExpenses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := expenseListQuery{
		OrganisationID: q.Get("organisationId"),
		Disabled:       q.Get("disabled"),
		From:           q.Get("from"),
		To:             q.Get("to"),
	}
	if !checkRequest(w, r, &query) {
		return
	}
	filter := db.ExpenseFilter{OrganisationID: query.OrganisationID}
	if query.Disabled != "" {
		disabled, _ := strconv.ParseBool(query.Disabled)
		filter.Disabled = &disabled
	}
	var ok bool
	if filter.From, filter.To, ok = parseRange(w, query.From, query.To); !ok {
		return
	}

	expenses, err := h.expenses.FindExpenses(r.Context(), filter)
	if err != nil {
		serverError(w, r, err, log.Fields{"organisationId": query.OrganisationID})
		return
	}
	writeData(w, "Expenses fetched successfully", expenses)
}

// GetExpense handles GET /api/expenses/one
func (h *ExpenseHandler) GetExpense(w http.ResponseWriter, r *http.Request) {
	query := expenseQuery{
		ID:             r.URL.Query().Get("_id"),
		OrganisationID: r.URL.Query().Get("organisationId"),
	}
	if !checkRequest(w, r, &query) {
		return
	}
	expense, err := h.expenses.FindExpenseByID(r.Context(), query.OrganisationID, query.ID)
	if err != nil {
		storeError(w, r, err, "Expense not found")
		return
	}
	models.SortRemarksNewestFirst(expense.Remarks)
	models.SortLogsNewestFirst(expense.Logs)
	writeData(w, "", expense)
}

// UpdateExpense handles PUT /api/expenses
func (h *ExpenseHandler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var req updateExpenseRequest
	if !unmarshalRequest(w, r, body, &req) {
		return
	}
	payload, err := audit.DecodePayload(body)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	patch := models.ExpensePatch{
		VehicleID:   req.VehicleID,
		TripID:      req.TripID,
		VendorID:    req.VendorID,
		ExpenseType: req.ExpenseType,
		Amount:      req.Amount,
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
	existing, err := h.expenses.FindExpenseByID(ctx, req.OrganisationID, req.ID)
	if err != nil {
		storeError(w, r, err, "Expense not found")
		return
	}
	if msg, err := h.missingReference(ctx, req.OrganisationID, deref(req.VehicleID), deref(req.TripID), deref(req.VendorID)); err != nil {
		serverError(w, r, err, nil)
		return
	} else if msg != "" {
		writeMessage(w, http.StatusBadRequest, msg)
		return
	}

	changes, err := h.changes.Changes(ctx, req.OrganisationID, existing.Fields(), audit.Restrict(payload, patch.Fields()))
	if err != nil {
		serverError(w, r, err, log.Fields{"expenseId": req.ID})
		return
	}
	entry := models.NewAuditLog(req.UserID, models.ActionUpdate, "Expense updated", req.Reason)
	entry.Changes = changes

	updated, err := h.expenses.UpdateExpense(ctx, req.OrganisationID, req.ID, patch, entry)
	if err != nil {
		storeError(w, r, err, "Expense could not be updated")
		return
	}
	h.emit(ctx, updated, entry)
	writeData(w, "Expense updated successfully", updated)
}

// DeleteExpense handles POST /api/expenses/delete
func (h *ExpenseHandler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	h.setDisabled(w, r, true)
}

// RestoreExpense handles POST /api/expenses/restore
func (h *ExpenseHandler) RestoreExpense(w http.ResponseWriter, r *http.Request) {
	h.setDisabled(w, r, false)
}

func (h *ExpenseHandler) setDisabled(w http.ResponseWriter, r *http.Request, disabled bool) {
	var req expenseStateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	action, detail, notFound, done := models.ActionRestore, "Expense restored", "Expense not found or not deleted", "Expense restored successfully"
	if disabled {
		action, detail, notFound, done = models.ActionDelete, "Expense deleted", "Expense not found or already deleted", "Expense deleted successfully"
	}
	entry := models.NewAuditLog(req.UserID, action, detail, req.Reason)

	expense, err := h.expenses.SetExpenseDisabled(r.Context(), req.OrganisationID, req.ExpensesID, disabled, entry)
	if err != nil {
		storeError(w, r, err, notFound)
		return
	}
	h.emit(r.Context(), expense, entry)
	writeData(w, done, expense)
}

// missingReference returns a message naming the first optional reference
// that does not exist in the organisation.
func (h *ExpenseHandler) missingReference(ctx context.Context, organisationID, vehicleID, tripID, vendorID string) (string, error) {
	if vehicleID != "" {
		if _, err := h.directory.FindVehicle(ctx, organisationID, vehicleID); err != nil {
			if isNotFound(err) {
				return "Vehicle not found", nil
			}
			return "", err
		}
	}
	if tripID != "" {
		if _, err := h.directory.FindTrip(ctx, organisationID, tripID); err != nil {
			if isNotFound(err) {
				return "Trip not found", nil
			}
			return "", err
		}
	}
	if vendorID != "" {
		if _, err := h.directory.FindVendor(ctx, organisationID, vendorID); err != nil {
			if isNotFound(err) {
				return "Vendor not found", nil
			}
			return "", err
		}
	}
	return "", nil
}

func (h *ExpenseHandler) emit(ctx context.Context, expense *models.Expense, entry models.AuditLog) {
	events.Emit(ctx, h.publisher, events.Event{
		Resource:       expensesResource,
		OrganisationID: expense.OrganisationID,
		RecordID:       expense.ID.Hex(),
		Code:           expense.ExpensesID,
		Entry:          entry,
	})
}

// parseRange reads optional from/to bounds. to is inclusive of its whole day
// when given as a bare date.
func parseRange(w http.ResponseWriter, from, to string) (*time.Time, *time.Time, bool) {
	var fromT, toT *time.Time
	if from != "" {
		t, err := models.ParseDate(from)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "from is invalid")
			return nil, nil, false
		}
		fromT = &t
	}
	if to != "" {
		t, err := models.ParseDate(to)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "to is invalid")
			return nil, nil, false
		}
		if len(to) == len("2006-01-02") {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		toT = &t
	}
	return fromT, toT, true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
