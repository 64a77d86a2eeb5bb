package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RepairKind describes where a family of repair records and the assets they
// refer to are stored.
type RepairKind struct {
	Name            string
	Collection      string
	AssetField      string
	AssetCollection string
}

var (
	ToolRepairs = RepairKind{Name: "tool", Collection: "toolrepairs", AssetField: "toolId", AssetCollection: "tools"}
	TyreRepairs = RepairKind{Name: "tyre", Collection: "tyrerepairs", AssetField: "serialNo", AssetCollection: "tyres"}
)

// Repair represents a tool or tyre repair record.
type Repair struct {
	ID             primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	OrganisationID string             `json:"organisationId" bson:"organisationId"`
	RepairID       string             `json:"repairId" bson:"repairId"`
	ToolID         string             `json:"toolId,omitempty" bson:"toolId,omitempty"`
	SerialNo       string             `json:"serialNo,omitempty" bson:"serialNo,omitempty"`
	Date           time.Time          `json:"date" bson:"date"`
	ExpenseID      string             `json:"expenseId,omitempty" bson:"expenseId,omitempty"`
	Description    string             `json:"description" bson:"description"`
	RepairType     string             `json:"repairType" bson:"repairType"` // "puncture", "retread", "calibration", ...
	UserID         string             `json:"userId" bson:"userId"`
	Remarks        []Remark           `json:"remarks" bson:"remarks"`
	Logs           []AuditLog         `json:"logs" bson:"logs"`
	CreatedAt      time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// AssetRef returns the reference to the repaired asset.
func (r Repair) AssetRef(kind RepairKind) string {
	if kind.AssetField == TyreRepairs.AssetField {
		return r.SerialNo
	}
	return r.ToolID
}

// SetAssetRef stores the reference to the repaired asset.
func (r *Repair) SetAssetRef(kind RepairKind, ref string) {
	if kind.AssetField == TyreRepairs.AssetField {
		r.SerialNo = ref
		return
	}
	r.ToolID = ref
}

// Fields returns the business fields of the repair keyed by JSON name.
func (r Repair) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		"date":        r.Date,
		"description": r.Description,
		"repairType":  r.RepairType,
	}
	putString(fields, "expenseId", r.ExpenseID)
	return fields
}
