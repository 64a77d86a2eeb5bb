package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
	"time"
)

// Location represents a geographical location with latitude and longitude coordinates.
type Location struct {
	Lat float64 `bson:"lat" json:"lat"`
	Lon float64 `bson:"lon" json:"lon"`
}

// Vehicle represents a fleet vehicle.
type Vehicle struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	OrganisationID     string             `bson:"organisationId" json:"organisationId"`
	RegistrationNumber string             `bson:"registrationNumber" json:"registrationNumber"`
	Type               string             `bson:"type" json:"type"` // "ICE" or "EV"
	Make               string             `bson:"make" json:"make"`
	Model              string             `bson:"model" json:"model"`
	Year               int                `bson:"year" json:"year"`
	CurrentLocation    Location           `bson:"currentLocation" json:"currentLocation"`
	Status             string             `bson:"status" json:"status"` // "active" or "inactive"
	CreatedAt          time.Time          `bson:"createdAt" json:"createdAt"`
}

// DisplayName is the label used for the vehicle in audit logs.
func (v Vehicle) DisplayName() string {
	return v.RegistrationNumber
}
