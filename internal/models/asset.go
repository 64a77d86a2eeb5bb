package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Tool is a workshop tool that can be sent for repair.
type Tool struct {
	ID             primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	OrganisationID string             `json:"organisationId" bson:"organisationId"`
	ToolID         string             `json:"toolId" bson:"toolId"`
	Name           string             `json:"name" bson:"name"`
	Logs           []AuditLog         `json:"logs" bson:"logs"`
}

// Tyre is a tracked tyre identified by its serial number.
type Tyre struct {
	ID             primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	OrganisationID string             `json:"organisationId" bson:"organisationId"`
	SerialNo       string             `json:"serialNo" bson:"serialNo"`
	Brand          string             `json:"brand" bson:"brand"`
	Size           string             `json:"size" bson:"size"`
	VehicleID      string             `json:"vehicleId,omitempty" bson:"vehicleId,omitempty"`
	Logs           []AuditLog         `json:"logs" bson:"logs"`
}
