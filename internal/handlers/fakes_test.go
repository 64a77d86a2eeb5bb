package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/fleet-maintenance/internal/db"
	"github.com/ukydev/fleet-maintenance/internal/events"
	"github.com/ukydev/fleet-maintenance/internal/models"
)

// remarkTarget resolves the remark and log lists of one parent record.
type remarkTarget func(organisationID, id string) (*[]models.Remark, *[]models.AuditLog, error)

// memRemarks implements db.RemarkStore over in-memory records.
type memRemarks struct {
	mu     *sync.Mutex
	target remarkTarget
}

func (m memRemarks) FindRemarks(ctx context.Context, organisationID, parentID string) ([]models.Remark, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	remarks, _, err := m.target(organisationID, parentID)
	if err != nil {
		return nil, err
	}
	return append([]models.Remark{}, (*remarks)...), nil
}

func (m memRemarks) FindRemark(ctx context.Context, organisationID, parentID, remarkID string) (*models.Remark, error) {
	remarks, err := m.FindRemarks(ctx, organisationID, parentID)
	if err != nil {
		return nil, err
	}
	for i := range remarks {
		if remarks[i].ID.Hex() == remarkID {
			return &remarks[i], nil
		}
	}
	return nil, db.ErrNotFound
}

func (m memRemarks) PushRemark(ctx context.Context, organisationID, parentID string, remark models.Remark, entry models.AuditLog) ([]models.Remark, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	remarks, logs, err := m.target(organisationID, parentID)
	if err != nil {
		return nil, err
	}
	*remarks = append(*remarks, remark)
	*logs = append(*logs, entry)
	return append([]models.Remark{}, (*remarks)...), nil
}

func (m memRemarks) SetRemarkText(ctx context.Context, organisationID, parentID, remarkID, text string, entry models.AuditLog) ([]models.Remark, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	remarks, logs, err := m.target(organisationID, parentID)
	if err != nil {
		return nil, err
	}
	for i := range *remarks {
		if (*remarks)[i].ID.Hex() == remarkID {
			(*remarks)[i].Remark = text
			*logs = append(*logs, entry)
			return append([]models.Remark{}, (*remarks)...), nil
		}
	}
	return nil, db.ErrNotFound
}

func (m memRemarks) PullRemark(ctx context.Context, organisationID, parentID, remarkID string, entry models.AuditLog) ([]models.Remark, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	remarks, logs, err := m.target(organisationID, parentID)
	if err != nil {
		return nil, err
	}
	for i := range *remarks {
		if (*remarks)[i].ID.Hex() == remarkID {
			*remarks = append((*remarks)[:i], (*remarks)[i+1:]...)
			*logs = append(*logs, entry)
			return append([]models.Remark{}, (*remarks)...), nil
		}
	}
	return nil, db.ErrNotFound
}

type memExpenses struct {
	memRemarks
	mu        sync.Mutex
	items     map[string]*models.Expense
	insertErr error
}

func newMemExpenses() *memExpenses {
	m := &memExpenses{items: make(map[string]*models.Expense)}
	m.memRemarks = memRemarks{mu: &m.mu, target: func(org, id string) (*[]models.Remark, *[]models.AuditLog, error) {
		e, err := m.lookup(org, id)
		if err != nil {
			return nil, nil, err
		}
		return &e.Remarks, &e.Logs, nil
	}}
	return m
}

func (m *memExpenses) lookup(organisationID, id string) (*models.Expense, error) {
	if _, err := primitive.ObjectIDFromHex(id); err != nil {
		return nil, db.ErrInvalidID
	}
	e, ok := m.items[id]
	if !ok || e.OrganisationID != organisationID {
		return nil, db.ErrNotFound
	}
	return e, nil
}

func cloneExpense(e *models.Expense) *models.Expense {
	c := *e
	c.Documents = append([]models.Attachment{}, e.Documents...)
	c.Pictures = append([]models.Attachment{}, e.Pictures...)
	c.Remarks = append([]models.Remark{}, e.Remarks...)
	c.Logs = append([]models.AuditLog{}, e.Logs...)
	return &c
}

// seed stores e as is and returns its id.
func (m *memExpenses) seed(e models.Expense) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	m.items[e.ID.Hex()] = cloneExpense(&e)
	return e.ID.Hex()
}

func (m *memExpenses) get(id string) *models.Expense {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.items[id]; ok {
		return cloneExpense(e)
	}
	return nil
}

func (m *memExpenses) InsertExpense(ctx context.Context, expense *models.Expense) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	expense.ID = primitive.NewObjectID()
	expense.CreatedAt = time.Now().UTC()
	expense.UpdatedAt = expense.CreatedAt
	m.items[expense.ID.Hex()] = cloneExpense(expense)
	return nil
}

func (m *memExpenses) ExpenseCodeExists(ctx context.Context, organisationID, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.items {
		if e.OrganisationID == organisationID && e.ExpensesID == code {
			return true, nil
		}
	}
	return false, nil
}

func (m *memExpenses) FindExpenses(ctx context.Context, filter db.ExpenseFilter) ([]models.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Expense{}
	for _, e := range m.items {
		if e.OrganisationID != filter.OrganisationID {
			continue
		}
		if filter.Disabled != nil && e.Disabled != *filter.Disabled {
			continue
		}
		if filter.From != nil && e.Date.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.Date.After(*filter.To) {
			continue
		}
		out = append(out, *cloneExpense(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (m *memExpenses) FindExpenseByID(ctx context.Context, organisationID, id string) (*models.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.lookup(organisationID, id)
	if err != nil {
		return nil, err
	}
	return cloneExpense(e), nil
}

func (m *memExpenses) FindExpenseByCode(ctx context.Context, organisationID, code string) (*models.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.items {
		if e.OrganisationID == organisationID && e.ExpensesID == code {
			return cloneExpense(e), nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *memExpenses) UpdateExpense(ctx context.Context, organisationID, id string, patch models.ExpensePatch, entry models.AuditLog) (*models.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.lookup(organisationID, id)
	if err != nil {
		return nil, err
	}
	applyExpensePatch(e, patch)
	e.Logs = append(e.Logs, entry)
	return cloneExpense(e), nil
}

func (m *memExpenses) SetExpenseDisabled(ctx context.Context, organisationID, code string, disabled bool, entry models.AuditLog) (*models.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.items {
		if e.OrganisationID == organisationID && e.ExpensesID == code && e.Disabled != disabled {
			e.Disabled = disabled
			e.Logs = append(e.Logs, entry)
			return cloneExpense(e), nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *memExpenses) PushAttachments(ctx context.Context, organisationID, id string, attachments map[models.AttachmentKind][]models.Attachment, entry models.AuditLog) (*models.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.lookup(organisationID, id)
	if err != nil {
		return nil, err
	}
	e.Documents = append(e.Documents, attachments[models.AttachmentDocuments]...)
	e.Pictures = append(e.Pictures, attachments[models.AttachmentPictures]...)
	e.Logs = append(e.Logs, entry)
	return cloneExpense(e), nil
}

func (m *memExpenses) PullAttachment(ctx context.Context, organisationID, id string, kind models.AttachmentKind, attachmentID string, entry models.AuditLog) (*models.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.lookup(organisationID, id)
	if err != nil {
		return nil, err
	}
	list := &e.Documents
	if kind == models.AttachmentPictures {
		list = &e.Pictures
	}
	for i, a := range *list {
		if a.ID.Hex() == attachmentID {
			*list = append((*list)[:i], (*list)[i+1:]...)
			e.Logs = append(e.Logs, entry)
			return cloneExpense(e), nil
		}
	}
	return nil, db.ErrNotFound
}

type memRepairs struct {
	memRemarks
	mu    sync.Mutex
	kind  models.RepairKind
	items map[string]*models.Repair
}

func newMemRepairs(kind models.RepairKind) *memRepairs {
	m := &memRepairs{kind: kind, items: make(map[string]*models.Repair)}
	m.memRemarks = memRemarks{mu: &m.mu, target: func(org, id string) (*[]models.Remark, *[]models.AuditLog, error) {
		r, err := m.lookup(org, id)
		if err != nil {
			return nil, nil, err
		}
		return &r.Remarks, &r.Logs, nil
	}}
	return m
}

func (m *memRepairs) lookup(organisationID, id string) (*models.Repair, error) {
	if _, err := primitive.ObjectIDFromHex(id); err != nil {
		return nil, db.ErrInvalidID
	}
	r, ok := m.items[id]
	if !ok || r.OrganisationID != organisationID {
		return nil, db.ErrNotFound
	}
	return r, nil
}

func cloneRepair(r *models.Repair) *models.Repair {
	c := *r
	c.Remarks = append([]models.Remark{}, r.Remarks...)
	c.Logs = append([]models.AuditLog{}, r.Logs...)
	return &c
}

func (m *memRepairs) InsertRepair(ctx context.Context, repair *models.Repair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	repair.ID = primitive.NewObjectID()
	m.items[repair.ID.Hex()] = cloneRepair(repair)
	return nil
}

func (m *memRepairs) RepairCodeExists(ctx context.Context, organisationID, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.items {
		if r.OrganisationID == organisationID && r.RepairID == code {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepairs) FindRepairs(ctx context.Context, organisationID, assetRef string) ([]models.Repair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Repair{}
	for _, r := range m.items {
		if r.OrganisationID == organisationID && (assetRef == "" || r.AssetRef(m.kind) == assetRef) {
			out = append(out, *cloneRepair(r))
		}
	}
	return out, nil
}

func (m *memRepairs) FindRepairByID(ctx context.Context, organisationID, id string) (*models.Repair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.lookup(organisationID, id)
	if err != nil {
		return nil, err
	}
	return cloneRepair(r), nil
}

func (m *memRepairs) UpdateRepair(ctx context.Context, organisationID, id string, patch models.RepairPatch, entry models.AuditLog) (*models.Repair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.lookup(organisationID, id)
	if err != nil {
		return nil, err
	}
	applyRepairPatch(r, patch)
	r.Logs = append(r.Logs, entry)
	return cloneRepair(r), nil
}

func (m *memRepairs) DeleteRepair(ctx context.Context, organisationID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.lookup(organisationID, id); err != nil {
		return err
	}
	delete(m.items, id)
	return nil
}

type memAssets struct {
	mu   sync.Mutex
	logs map[string][]models.AuditLog // organisationId/ref -> history
}

func newMemAssets(organisationID string, refs ...string) *memAssets {
	m := &memAssets{logs: make(map[string][]models.AuditLog)}
	for _, ref := range refs {
		m.logs[organisationID+"/"+ref] = []models.AuditLog{}
	}
	return m
}

func (m *memAssets) AssetExists(ctx context.Context, organisationID, ref string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.logs[organisationID+"/"+ref]
	return ok, nil
}

func (m *memAssets) AppendAssetLog(ctx context.Context, organisationID, ref string, entry models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := organisationID + "/" + ref
	if _, ok := m.logs[key]; !ok {
		return db.ErrNotFound
	}
	m.logs[key] = append(m.logs[key], entry)
	return nil
}

func (m *memAssets) history(organisationID, ref string) []models.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.AuditLog{}, m.logs[organisationID+"/"+ref]...)
}

type memDirectory struct {
	users    map[string]models.OrgUser
	vehicles map[string]models.Vehicle
	vendors  map[string]models.Vendor
	trips    map[string]models.Trip
}

func newMemDirectory() *memDirectory {
	return &memDirectory{
		users:    make(map[string]models.OrgUser),
		vehicles: make(map[string]models.Vehicle),
		vendors:  make(map[string]models.Vendor),
		trips:    make(map[string]models.Trip),
	}
}

func (d *memDirectory) addUser(u models.OrgUser) string {
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	d.users[u.ID.Hex()] = u
	return u.ID.Hex()
}

func (d *memDirectory) addVehicle(v models.Vehicle) string {
	v.ID = primitive.NewObjectID()
	d.vehicles[v.ID.Hex()] = v
	return v.ID.Hex()
}

func (d *memDirectory) addVendor(v models.Vendor) string {
	v.ID = primitive.NewObjectID()
	d.vendors[v.ID.Hex()] = v
	return v.ID.Hex()
}

func (d *memDirectory) FindUser(ctx context.Context, organisationID, id string) (*models.OrgUser, error) {
	if u, ok := d.users[id]; ok && u.OrganisationID == organisationID {
		return &u, nil
	}
	return nil, db.ErrNotFound
}

func (d *memDirectory) FindUsers(ctx context.Context, organisationID string, ids []string) (map[string]models.OrgUser, error) {
	out := make(map[string]models.OrgUser)
	for _, id := range ids {
		if u, ok := d.users[id]; ok && u.OrganisationID == organisationID {
			out[id] = u
		}
	}
	return out, nil
}

func (d *memDirectory) FindVehicle(ctx context.Context, organisationID, id string) (*models.Vehicle, error) {
	if v, ok := d.vehicles[id]; ok && v.OrganisationID == organisationID {
		return &v, nil
	}
	return nil, db.ErrNotFound
}

func (d *memDirectory) FindVendor(ctx context.Context, organisationID, id string) (*models.Vendor, error) {
	if v, ok := d.vendors[id]; ok && v.OrganisationID == organisationID {
		return &v, nil
	}
	return nil, db.ErrNotFound
}

func (d *memDirectory) FindTrip(ctx context.Context, organisationID, id string) (*models.Trip, error) {
	if t, ok := d.trips[id]; ok && t.OrganisationID == organisationID {
		return &t, nil
	}
	return nil, db.ErrNotFound
}

// MockPublisher is a mock implementation of events.Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, ev events.Event) error {
	return m.Called(ctx, ev).Error(0)
}

type envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func doJSON(t *testing.T, handler http.HandlerFunc, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if out != nil {
		require.NoError(t, json.Unmarshal(env.Data, out), string(env.Data))
	}
	return env
}

func applyExpensePatch(e *models.Expense, p models.ExpensePatch) {
	if p.Date != nil {
		e.Date = *p.Date
	}
	if p.VehicleID != nil {
		e.VehicleID = *p.VehicleID
	}
	if p.TripID != nil {
		e.TripID = *p.TripID
	}
	if p.VendorID != nil {
		e.VendorID = *p.VendorID
	}
	if p.ExpenseType != nil {
		e.ExpenseType = *p.ExpenseType
	}
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
}

func applyRepairPatch(r *models.Repair, p models.RepairPatch) {
	if p.Date != nil {
		r.Date = *p.Date
	}
	if p.ExpenseID != nil {
		r.ExpenseID = *p.ExpenseID
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.RepairType != nil {
		r.RepairType = *p.RepairType
	}
}
