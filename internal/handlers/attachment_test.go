package handlers

import (
	"bytes"
	"image"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/fleet-maintenance/internal/models"
	"github.com/ukydev/fleet-maintenance/internal/storage"
)

type attachmentFixture struct {
	handler   *AttachmentHandler
	expenses  *memExpenses
	store     *storage.MemoryStore
	expenseID string
}

func newAttachmentFixture() *attachmentFixture {
	f := &attachmentFixture{expenses: newMemExpenses(), store: storage.NewMemoryStore("https://files.fleet.test")}
	f.expenseID = f.expenses.seed(models.Expense{
		OrganisationID: "o1",
		ExpensesID:     "1234567",
		Documents:      []models.Attachment{},
		Pictures:       []models.Attachment{},
		Logs:           []models.AuditLog{},
	})
	f.handler = NewAttachmentHandler(f.expenses, f.store, storage.NewProcessor(1600), nil, 0)
	return f
}

type upload struct {
	field, name string
	data        []byte
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := imaging.New(width, height, color.NRGBA{R: 200, G: 30, B: 30, A: 255})
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

var pdfBytes = []byte("%PDF-1.4\n1 0 obj << /Type /Catalog >> endobj\ntrailer << /Root 1 0 R >>\n%%EOF\n")

func multipartRequest(t *testing.T, fields map[string]string, files ...upload) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		part, err := mw.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/expenses/attachments", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func (f *attachmentFixture) upload(t *testing.T, files ...upload) *httptest.ResponseRecorder {
	t.Helper()
	req := multipartRequest(t, map[string]string{"_id": f.expenseID, "organisationId": "o1", "userId": "u1"}, files...)
	w := httptest.NewRecorder()
	f.handler.UploadAttachments(w, req)
	return w
}

func TestAttachmentHandler_Upload(t *testing.T) {
	f := newAttachmentFixture()

	w := f.upload(t,
		upload{"pictures", "dashcam.png", pngBytes(t, 3200, 1000)},
		upload{"documents", "invoice.pdf", pdfBytes},
	)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var expense models.Expense
	decode(t, w, &expense)
	require.Len(t, expense.Pictures, 1)
	require.Len(t, expense.Documents, 1)
	require.Len(t, expense.Logs, 1)
	assert.Equal(t, models.ActionUpdate, expense.Logs[0].Action)
	assert.Equal(t, "2 attachment(s) added", expense.Logs[0].Detail)

	picture := expense.Pictures[0]
	assert.Equal(t, "dashcam.png", picture.Name)
	assert.True(t, strings.HasPrefix(picture.Key, "o1/expenses/"))
	assert.True(t, strings.HasSuffix(picture.Key, ".jpg"))
	assert.Equal(t, "https://files.fleet.test/"+picture.Key, picture.Link)

	obj, ok := f.store.Get(picture.Key)
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", obj.ContentType)
	img, _, err := image.Decode(bytes.NewReader(obj.Data))
	require.NoError(t, err)
	assert.Equal(t, 1600, img.Bounds().Dx())
	assert.Equal(t, 500, img.Bounds().Dy())

	doc := expense.Documents[0]
	assert.True(t, strings.HasSuffix(doc.Key, ".pdf"))
	obj, ok = f.store.Get(doc.Key)
	require.True(t, ok)
	assert.Equal(t, "application/pdf", obj.ContentType)
	assert.Equal(t, pdfBytes, obj.Data)
}

func TestAttachmentHandler_Upload_Rejected(t *testing.T) {
	t.Run("document in pictures", func(t *testing.T) {
		f := newAttachmentFixture()
		w := f.upload(t,
			upload{"pictures", "ok.png", pngBytes(t, 10, 10)},
			upload{"pictures", "invoice.pdf", pdfBytes},
		)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Unsupported file type for pictures: invoice.pdf", decode(t, w, nil).Message)
		assert.Zero(t, f.store.Len())
		assert.Empty(t, f.expenses.get(f.expenseID).Logs)
	})

	t.Run("unknown document", func(t *testing.T) {
		f := newAttachmentFixture()
		w := f.upload(t, upload{"documents", "notes.txt", []byte("plain text notes")})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Zero(t, f.store.Len())
	})

	t.Run("organisation outside its prefix", func(t *testing.T) {
		f := newAttachmentFixture()
		id := f.expenses.seed(models.Expense{OrganisationID: "../o1", ExpensesID: "7654321"})
		req := multipartRequest(t, map[string]string{"_id": id, "organisationId": "../o1", "userId": "u1"},
			upload{"documents", "invoice.pdf", pdfBytes})
		w := httptest.NewRecorder()
		f.handler.UploadAttachments(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "organisationId is invalid", decode(t, w, nil).Message)
		assert.Zero(t, f.store.Len())
	})

	t.Run("no files", func(t *testing.T) {
		f := newAttachmentFixture()
		w := f.upload(t)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "No files uploaded", decode(t, w, nil).Message)
	})

	t.Run("missing user", func(t *testing.T) {
		f := newAttachmentFixture()
		req := multipartRequest(t, map[string]string{"_id": f.expenseID, "organisationId": "o1"},
			upload{"documents", "invoice.pdf", pdfBytes})
		w := httptest.NewRecorder()
		f.handler.UploadAttachments(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "userId is required", decode(t, w, nil).Message)
	})

	t.Run("unknown expense", func(t *testing.T) {
		f := newAttachmentFixture()
		req := multipartRequest(t, map[string]string{"_id": "65a000000000000000000001", "organisationId": "o1", "userId": "u1"},
			upload{"documents", "invoice.pdf", pdfBytes})
		w := httptest.NewRecorder()
		f.handler.UploadAttachments(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Expense not found", decode(t, w, nil).Message)
	})
}

func TestAttachmentHandler_Delete(t *testing.T) {
	f := newAttachmentFixture()
	w := f.upload(t, upload{"documents", "invoice.pdf", pdfBytes})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var uploaded models.Expense
	decode(t, w, &uploaded)
	doc := uploaded.Documents[0]

	req := map[string]string{
		"_id": f.expenseID, "organisationId": "o1", "userId": "u1",
		"imageId": doc.ID.Hex(), "imageType": "documents",
	}
	w = doJSON(t, f.handler.DeleteAttachment, http.MethodPost, "/api/expenses/attachments/delete", req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	f.handler.Wait()

	var updated models.Expense
	decode(t, w, &updated)
	assert.Empty(t, updated.Documents)
	require.Len(t, updated.Logs, 2)
	assert.Equal(t, models.ActionDelete, updated.Logs[1].Action)
	_, ok := f.store.Get(doc.Key)
	assert.False(t, ok)
	assert.Zero(t, f.store.Len())

	w = doJSON(t, f.handler.DeleteAttachment, http.MethodPost, "/api/expenses/attachments/delete", req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Attachment not found", decode(t, w, nil).Message)
}

func TestAttachmentHandler_Delete_BadType(t *testing.T) {
	f := newAttachmentFixture()
	w := doJSON(t, f.handler.DeleteAttachment, http.MethodPost, "/api/expenses/attachments/delete", map[string]string{
		"_id": f.expenseID, "organisationId": "o1", "userId": "u1",
		"imageId": "65a000000000000000000001", "imageType": "videos",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "imageType must be one of: documents pictures", decode(t, w, nil).Message)
}
