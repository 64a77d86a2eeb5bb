package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
	"time"
)

// Trip represents a vehicle trip an expense can be booked against.
type Trip struct {
	ID             primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	OrganisationID string             `json:"organisationId" bson:"organisationId"`
	VehicleID      string             `json:"vehicleId" bson:"vehicleId"`
	DriverID       string             `json:"driverId" bson:"driverId"`
	StartLocation  Location           `json:"startLocation" bson:"startLocation"`
	EndLocation    Location           `json:"endLocation" bson:"endLocation"`
	StartTime      time.Time          `json:"startTime" bson:"startTime"`
	EndTime        time.Time          `json:"endTime" bson:"endTime"`
	Distance       float64            `json:"distance" bson:"distance"` // in kilometers
	Purpose        string             `json:"purpose" bson:"purpose"`   // "business", "delivery"
	Status         string             `json:"status" bson:"status"`     // "planned", "in_progress", "completed", "cancelled"
}
