package models

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Action tags an audit log entry.
type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionRestore Action = "restore"
	ActionRemark  Action = "remark"
	ActionEdit    Action = "edit"
	ActionRepair  Action = "repair"
)

// NotProvided is rendered in place of a missing old value.
const NotProvided = "not provided"

// FieldChange records one changed field.
type FieldChange struct {
	Field string `json:"field" bson:"field"`
	Old   string `json:"old" bson:"old"`
	New   string `json:"new" bson:"new"`
}

// AuditLog is an immutable record of one action taken on a parent record.
type AuditLog struct {
	ID      primitive.ObjectID `json:"_id" bson:"_id"`
	Date    time.Time          `json:"date" bson:"date"`
	UserID  string             `json:"userId" bson:"userId"`
	Action  Action             `json:"action" bson:"action"`
	Detail  string             `json:"detail" bson:"detail"`
	Reason  string             `json:"reason" bson:"reason"`
	Changes []FieldChange      `json:"changes,omitempty" bson:"changes,omitempty"`
}

// NewAuditLog builds a log entry stamped with a fresh id and the current time.
func NewAuditLog(userID string, action Action, detail, reason string) AuditLog {
	return AuditLog{
		ID:     primitive.NewObjectID(),
		Date:   time.Now().UTC(),
		UserID: userID,
		Action: action,
		Detail: detail,
		Reason: reason,
	}
}

// Remark is a free-text note attached to a record by a user.
type Remark struct {
	ID     primitive.ObjectID `json:"_id" bson:"_id"`
	UserID string             `json:"userId" bson:"userId"`
	Remark string             `json:"remark" bson:"remark"`
	Date   time.Time          `json:"date" bson:"date"`
}

// NewRemark builds a remark stamped with a fresh id and the current time.
func NewRemark(userID, text string) Remark {
	return Remark{
		ID:     primitive.NewObjectID(),
		UserID: userID,
		Remark: text,
		Date:   time.Now().UTC(),
	}
}

// AttachmentKind names the list an attachment belongs to.
type AttachmentKind string

const (
	AttachmentDocuments AttachmentKind = "documents"
	AttachmentPictures  AttachmentKind = "pictures"
)

// IsValid reports whether k names a known attachment list.
func (k AttachmentKind) IsValid() bool {
	return k == AttachmentDocuments || k == AttachmentPictures
}

// Attachment is a stored file linked from a record.
type Attachment struct {
	ID   primitive.ObjectID `json:"_id" bson:"_id"`
	Link string             `json:"link" bson:"link"`
	Name string             `json:"name" bson:"name"`
	Key  string             `json:"key" bson:"key"`
}

// SortRemarksNewestFirst orders remarks by date, most recent first.
func SortRemarksNewestFirst(remarks []Remark) {
	sort.SliceStable(remarks, func(i, j int) bool {
		return remarks[i].Date.After(remarks[j].Date)
	})
}

// SortLogsNewestFirst orders log entries by date, most recent first.
func SortLogsNewestFirst(logs []AuditLog) {
	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].Date.After(logs[j].Date)
	})
}

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// ParseDate accepts a calendar date or an RFC 3339 timestamp.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", value)
}
