// Package audit builds the field-level change lists stored in audit logs.
package audit

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ukydev/fleet-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// bookkeeping fields never reported as business changes
var excluded = map[string]bool{
	"_id":            true,
	"__v":            true,
	"logs":           true,
	"remarks":        true,
	"createdAt":      true,
	"updatedAt":      true,
	"disabled":       true,
	"organisationId": true,
	"userId":         true,
	"reason":         true,
	"expensesId":     true,
	"repairId":       true,
	"documents":      true,
	"pictures":       true,
}

var dateFields = map[string]bool{"date": true}

// IsExcluded reports whether key is a bookkeeping field.
func IsExcluded(key string) bool {
	return excluded[key]
}

// DecodePayload reads a JSON object keeping its key order.
func DecodePayload(body []byte) (bson.D, error) {
	var doc bson.D
	if err := bson.UnmarshalExtJSON(body, false, &doc); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return doc, nil
}

// Restrict keeps the non-null payload fields that are keys of applied.
func Restrict(incoming bson.D, applied map[string]interface{}) bson.D {
	kept := bson.D{}
	for _, elem := range incoming {
		if _, ok := applied[elem.Key]; ok && elem.Value != nil {
			kept = append(kept, elem)
		}
	}
	return kept
}

// Diff lists every field of incoming whose value differs from old, in the
// order the fields appear in incoming. Keys in skip are ignored along with
// the bookkeeping fields and null values. A key missing from old is
// reported with models.NotProvided as its old value.
func Diff(old map[string]interface{}, incoming bson.D, skip map[string]bool) []models.FieldChange {
	changes := []models.FieldChange{}
	for _, elem := range incoming {
		if excluded[elem.Key] || skip[elem.Key] || elem.Value == nil {
			continue
		}
		if change, ok := compare(elem.Key, old, elem.Value); ok {
			changes = append(changes, change)
		}
	}
	return changes
}

func compare(key string, old map[string]interface{}, value interface{}) (models.FieldChange, bool) {
	newValue := renderField(key, value)
	oldRaw, present := old[key]
	if !present {
		if newValue == "" {
			return models.FieldChange{}, false
		}
		return models.FieldChange{Field: key, Old: models.NotProvided, New: newValue}, true
	}
	oldValue := renderField(key, oldRaw)
	if oldValue == newValue {
		return models.FieldChange{}, false
	}
	return models.FieldChange{Field: key, Old: oldValue, New: newValue}, true
}

func renderField(key string, value interface{}) string {
	if s, ok := value.(string); ok && dateFields[key] {
		if t, err := models.ParseDate(s); err == nil {
			return renderTime(t)
		}
	}
	return Render(value)
}

// Render formats a stored or incoming value for display in a change entry.
func Render(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return renderTime(v)
	case primitive.DateTime:
		return renderTime(v.Time())
	case primitive.ObjectID:
		return v.Hex()
	default:
		return fmt.Sprint(v)
	}
}

func renderTime(t time.Time) string {
	t = t.UTC()
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format(time.RFC3339)
}
