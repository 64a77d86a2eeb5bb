package models

import "time"

// ExpensePatch holds the mutable expense fields present in an update.
// A nil field is left untouched.
type ExpensePatch struct {
	Date        *time.Time
	VehicleID   *string
	TripID      *string
	VendorID    *string
	ExpenseType *string
	Amount      *float64
}

// Fields returns the set fields keyed by their stored name.
func (p ExpensePatch) Fields() map[string]interface{} {
	fields := map[string]interface{}{}
	if p.Date != nil {
		fields["date"] = *p.Date
	}
	if p.VehicleID != nil {
		fields["vehicleId"] = *p.VehicleID
	}
	if p.TripID != nil {
		fields["tripId"] = *p.TripID
	}
	if p.VendorID != nil {
		fields["vendorId"] = *p.VendorID
	}
	if p.ExpenseType != nil {
		fields["expenseType"] = *p.ExpenseType
	}
	if p.Amount != nil {
		fields["amount"] = *p.Amount
	}
	return fields
}

// RepairPatch holds the mutable repair fields present in an update.
type RepairPatch struct {
	Date        *time.Time
	ExpenseID   *string
	Description *string
	RepairType  *string
}

// Fields returns the set fields keyed by their stored name.
func (p RepairPatch) Fields() map[string]interface{} {
	fields := map[string]interface{}{}
	if p.Date != nil {
		fields["date"] = *p.Date
	}
	if p.ExpenseID != nil {
		fields["expenseId"] = *p.ExpenseID
	}
	if p.Description != nil {
		fields["description"] = *p.Description
	}
	if p.RepairType != nil {
		fields["repairType"] = *p.RepairType
	}
	return fields
}
