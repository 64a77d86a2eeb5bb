package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/fleet-maintenance/internal/db"
	"github.com/ukydev/fleet-maintenance/internal/events"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"github.com/ukydev/fleet-maintenance/internal/storage"
)

// AttachmentHandler uploads and removes expense documents and pictures.
type AttachmentHandler struct {
	expenses  db.ExpenseCollection
	store     storage.ObjectStore
	processor *storage.Processor
	publisher events.Publisher
	maxBytes  int64

	cleanup sync.WaitGroup
}

// NewAttachmentHandler creates an attachment handler. maxBytes bounds one
// multipart request.
func NewAttachmentHandler(expenses db.ExpenseCollection, store storage.ObjectStore, processor *storage.Processor, publisher events.Publisher, maxBytes int64) *AttachmentHandler {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if maxBytes <= 0 {
		maxBytes = 20 << 20
	}
	return &AttachmentHandler{
		expenses:  expenses,
		store:     store,
		processor: processor,
		publisher: publisher,
		maxBytes:  maxBytes,
	}
}

type uploadRequest struct {
	ID             string `json:"_id" validate:"required"`
	OrganisationID string `json:"organisationId" validate:"required"`
	UserID         string `json:"userId" validate:"required"`
}

func (r *uploadRequest) organisation() string { return r.OrganisationID }
func (r *uploadRequest) actor() string        { return r.UserID }

type deleteAttachmentRequest struct {
	ID             string `json:"_id" validate:"required"`
	OrganisationID string `json:"organisationId" validate:"required"`
	UserID         string `json:"userId" validate:"required"`
	ImageID        string `json:"imageId" validate:"required"`
	ImageType      string `json:"imageType" validate:"required,oneof=documents pictures"`
	Reason         string `json:"reason"`
}

func (r *deleteAttachmentRequest) organisation() string { return r.OrganisationID }
func (r *deleteAttachmentRequest) actor() string        { return r.UserID }

type pendingUpload struct {
	kind     models.AttachmentKind
	name     string
	prepared *storage.Prepared
}

// UploadAttachments handles POST /api/expenses/attachments
func (h *AttachmentHandler) UploadAttachments(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	req := uploadRequest{
		ID:             r.FormValue("_id"),
		OrganisationID: r.FormValue("organisationId"),
		UserID:         r.FormValue("userId"),
	}
	if !checkRequest(w, r, &req) {
		return
	}

	ctx := r.Context()
	if _, err := h.expenses.FindExpenseByID(ctx, req.OrganisationID, req.ID); err != nil {
		storeError(w, r, err, "Expense not found")
		return
	}

	// Every file is checked before anything is written to the bucket.
	var pending []pendingUpload
	for _, kind := range []models.AttachmentKind{models.AttachmentDocuments, models.AttachmentPictures} {
		for _, fh := range r.MultipartForm.File[string(kind)] {
			prepared, err := h.prepare(fh, kind)
			if errors.Is(err, storage.ErrUnsupportedType) {
				writeMessage(w, http.StatusBadRequest, fmt.Sprintf("Unsupported file type for %s: %s", kind, fh.Filename))
				return
			}
			if err != nil {
				serverError(w, r, err, log.Fields{"file": fh.Filename})
				return
			}
			pending = append(pending, pendingUpload{kind: kind, name: fh.Filename, prepared: prepared})
		}
	}
	if len(pending) == 0 {
		writeMessage(w, http.StatusBadRequest, "No files uploaded")
		return
	}

	added := make(map[models.AttachmentKind][]models.Attachment)
	for _, p := range pending {
		key, err := storage.ObjectKey(req.OrganisationID, expensesResource, p.prepared.Ext)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "organisationId is invalid")
			return
		}
		if err := h.store.Put(ctx, key, p.prepared.ContentType, p.prepared.Data); err != nil {
			serverError(w, r, err, log.Fields{"key": key})
			return
		}
		added[p.kind] = append(added[p.kind], models.Attachment{
			ID:   primitive.NewObjectID(),
			Link: h.store.PublicURL(key),
			Name: p.name,
			Key:  key,
		})
	}

	entry := models.NewAuditLog(req.UserID, models.ActionUpdate,
		fmt.Sprintf("%d attachment(s) added", len(pending)), "")
	expense, err := h.expenses.PushAttachments(ctx, req.OrganisationID, req.ID, added, entry)
	if err != nil {
		storeError(w, r, err, "Expense not found")
		return
	}
	h.emit(ctx, expense, entry)
	writeData(w, "Attachments uploaded successfully", expense)
}

// DeleteAttachment handles POST /api/expenses/attachments/delete
func (h *AttachmentHandler) DeleteAttachment(w http.ResponseWriter, r *http.Request) {
	var req deleteAttachmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	kind := models.AttachmentKind(req.ImageType)
	ctx := r.Context()

	expense, err := h.expenses.FindExpenseByID(ctx, req.OrganisationID, req.ID)
	if err != nil {
		storeError(w, r, err, "Expense not found")
		return
	}
	var target *models.Attachment
	for _, a := range expense.Attachments(kind) {
		if a.ID.Hex() == req.ImageID {
			a := a
			target = &a
			break
		}
	}
	if target == nil {
		writeMessage(w, http.StatusBadRequest, "Attachment not found")
		return
	}

	entry := models.NewAuditLog(req.UserID, models.ActionDelete,
		fmt.Sprintf("Attachment %s deleted", target.Name), req.Reason)
	updated, err := h.expenses.PullAttachment(ctx, req.OrganisationID, req.ID, kind, req.ImageID, entry)
	if err != nil {
		storeError(w, r, err, "Attachment not found")
		return
	}
	h.emit(ctx, updated, entry)
	h.removeObject(target.Key)
	writeData(w, "Attachment deleted successfully", updated)
}

// Wait blocks until background object removals have finished.
func (h *AttachmentHandler) Wait() {
	h.cleanup.Wait()
}

// removeObject deletes the stored file in the background. The record is
// already updated, so failures are only logged.
func (h *AttachmentHandler) removeObject(key string) {
	if key == "" {
		return
	}
	h.cleanup.Add(1)
	go func() {
		defer h.cleanup.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := h.store.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			log.WithField("key", key).WithError(err).Warn("Failed to delete attachment object")
		}
	}()
}

func (h *AttachmentHandler) prepare(fh *multipart.FileHeader, kind models.AttachmentKind) (*storage.Prepared, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return h.processor.Prepare(fh.Filename, data, kind == models.AttachmentPictures)
}

func (h *AttachmentHandler) emit(ctx context.Context, expense *models.Expense, entry models.AuditLog) {
	events.Emit(ctx, h.publisher, events.Event{
		Resource:       expensesResource,
		OrganisationID: expense.OrganisationID,
		RecordID:       expense.ID.Hex(),
		Code:           expense.ExpensesID,
		Entry:          entry,
	})
}
