package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Expense represents a fleet expense record.
type Expense struct {
	ID             primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	OrganisationID string             `json:"organisationId" bson:"organisationId"`
	ExpensesID     string             `json:"expensesId" bson:"expensesId"`
	Date           time.Time          `json:"date" bson:"date"`
	VehicleID      string             `json:"vehicleId,omitempty" bson:"vehicleId,omitempty"`
	TripID         string             `json:"tripId,omitempty" bson:"tripId,omitempty"`
	VendorID       string             `json:"vendorId,omitempty" bson:"vendorId,omitempty"`
	UserID         string             `json:"userId" bson:"userId"`
	ExpenseType    string             `json:"expenseType" bson:"expenseType"` // "fuel", "maintenance", "tolls", "parking", ...
	Amount         float64            `json:"amount" bson:"amount"`
	Documents      []Attachment       `json:"documents" bson:"documents"`
	Pictures       []Attachment       `json:"pictures" bson:"pictures"`
	Remarks        []Remark           `json:"remarks" bson:"remarks"`
	Logs           []AuditLog         `json:"logs" bson:"logs"`
	Disabled       bool               `json:"disabled" bson:"disabled"`
	CreatedAt      time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// Fields returns the business fields of the expense keyed by JSON name.
// Optional references that are unset are left out.
func (e Expense) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		"date":        e.Date,
		"expenseType": e.ExpenseType,
		"amount":      e.Amount,
	}
	putString(fields, "vehicleId", e.VehicleID)
	putString(fields, "tripId", e.TripID)
	putString(fields, "vendorId", e.VendorID)
	return fields
}

// Attachments returns the attachment list of the given kind.
func (e Expense) Attachments(kind AttachmentKind) []Attachment {
	if kind == AttachmentPictures {
		return e.Pictures
	}
	return e.Documents
}

func putString(fields map[string]interface{}, key, value string) {
	if value != "" {
		fields[key] = value
	}
}
