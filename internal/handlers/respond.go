package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-maintenance/internal/db"
	"github.com/ukydev/fleet-maintenance/internal/middleware"
)

const maxJSONBody = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Warn("Failed to write response")
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"message": message})
}

func writeData(w http.ResponseWriter, message string, data interface{}) {
	body := map[string]interface{}{"data": data}
	if message != "" {
		body["message"] = message
	}
	writeJSON(w, http.StatusOK, body)
}

// serverError logs err and answers with the generic 500 body.
func serverError(w http.ResponseWriter, r *http.Request, err error, fields log.Fields) {
	entry := log.WithFields(log.Fields{
		"request_id": chimw.GetReqID(r.Context()),
		"method":     r.Method,
		"path":       r.URL.Path,
	})
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	entry.WithError(err).Error("Request failed")
	writeMessage(w, http.StatusInternalServerError, "Internal server error")
}

// storeError maps a data-access failure: a missing record or malformed id is
// a 400 with notFound as the message, anything else is a 500.
func storeError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	if errors.Is(err, db.ErrNotFound) || errors.Is(err, db.ErrInvalidID) {
		writeMessage(w, http.StatusBadRequest, notFound)
		return
	}
	serverError(w, r, err, nil)
}

// readBody reads a bounded JSON body.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Failed to read request body")
		return nil, false
	}
	return body, true
}

// decodeJSON reads the body into req and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, req scoped) bool {
	body, ok := readBody(w, r)
	if !ok {
		return false
	}
	return unmarshalRequest(w, r, body, req)
}

func unmarshalRequest(w http.ResponseWriter, r *http.Request, body []byte, req scoped) bool {
	if err := json.Unmarshal(body, req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid JSON")
		return false
	}
	return checkRequest(w, r, req)
}

// scoped is implemented by every request that names its organisation.
type scoped interface {
	organisation() string
}

// acting is implemented by requests that name the user performing them.
type acting interface {
	actor() string
}

// checkRequest validates req and, when the caller is authenticated, rejects
// requests for another organisation or made on behalf of another user.
func checkRequest(w http.ResponseWriter, r *http.Request, req scoped) bool {
	if err := validate.Struct(req); err != nil {
		writeMessage(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		return true
	}
	if claims.OrganisationID != req.organisation() {
		writeMessage(w, http.StatusForbidden, "Organisation mismatch")
		return false
	}
	if a, ok := req.(acting); ok && a.actor() != claims.UserID {
		writeMessage(w, http.StatusForbidden, "User mismatch")
		return false
	}
	return true
}

func validationMessage(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return "Invalid request"
	}
	fe := errs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
