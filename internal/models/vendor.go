package models

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Vendor is a supplier or agent an expense is paid to.
type Vendor struct {
	ID             primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	OrganisationID string             `json:"organisationId" bson:"organisationId"`
	CompanyName    string             `json:"companyName" bson:"companyName"`
	FirstName      string             `json:"firstName" bson:"firstName"`
	LastName       string             `json:"lastName" bson:"lastName"`
	Phone          string             `json:"phone" bson:"phone"`
}

// DisplayName returns the company name, falling back to the contact's name.
func (v Vendor) DisplayName() string {
	if v.CompanyName != "" {
		return v.CompanyName
	}
	return strings.TrimSpace(v.FirstName + " " + v.LastName)
}
