package audit

import (
	"context"
	"errors"

	"github.com/ukydev/fleet-maintenance/internal/db"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson"
)

// Directory resolves references to their display names.
type Directory interface {
	FindVendor(ctx context.Context, organisationID, id string) (*models.Vendor, error)
	FindVehicle(ctx context.Context, organisationID, id string) (*models.Vehicle, error)
}

// Builder computes expense change lists, resolving vendor and vehicle ids to
// names before they are compared.
type Builder struct {
	directory Directory
}

// NewBuilder creates a change-list builder.
func NewBuilder(directory Directory) *Builder {
	return &Builder{directory: directory}
}

// Changes diffs an expense against an update payload. vendorId and vehicleId
// are reported as "vendor" and "vehicle" with display names.
func (b *Builder) Changes(ctx context.Context, organisationID string, old map[string]interface{}, incoming bson.D) ([]models.FieldChange, error) {
	changes := []models.FieldChange{}
	for _, elem := range incoming {
		if elem.Value == nil {
			continue
		}
		switch elem.Key {
		case "vendorId", "vehicleId":
			change, ok, err := b.referenceChange(ctx, organisationID, elem.Key, old, elem.Value)
			if err != nil {
				return nil, err
			}
			if ok {
				changes = append(changes, change)
			}
		default:
			if excluded[elem.Key] {
				continue
			}
			if change, ok := compare(elem.Key, old, elem.Value); ok {
				changes = append(changes, change)
			}
		}
	}
	return changes, nil
}

func (b *Builder) referenceChange(ctx context.Context, organisationID, key string, old map[string]interface{}, value interface{}) (models.FieldChange, bool, error) {
	newID := Render(value)
	oldID, present := old[key].(string)
	if oldID == newID || (!present && newID == "") {
		return models.FieldChange{}, false, nil
	}

	field := "vendor"
	if key == "vehicleId" {
		field = "vehicle"
	}
	change := models.FieldChange{Field: field, Old: models.NotProvided}
	if present && oldID != "" {
		name, err := b.displayName(ctx, organisationID, key, oldID)
		if err != nil {
			return models.FieldChange{}, false, err
		}
		change.Old = name
	}
	if newID != "" {
		name, err := b.displayName(ctx, organisationID, key, newID)
		if err != nil {
			return models.FieldChange{}, false, err
		}
		change.New = name
	}
	return change, true, nil
}

// displayName falls back to the raw id when the referenced record is gone.
func (b *Builder) displayName(ctx context.Context, organisationID, key, id string) (string, error) {
	var (
		name string
		err  error
	)
	if key == "vehicleId" {
		var vehicle *models.Vehicle
		if vehicle, err = b.directory.FindVehicle(ctx, organisationID, id); err == nil {
			name = vehicle.DisplayName()
		}
	} else {
		var vendor *models.Vendor
		if vendor, err = b.directory.FindVendor(ctx, organisationID, id); err == nil {
			name = vendor.DisplayName()
		}
	}
	if errors.Is(err, db.ErrNotFound) {
		return id, nil
	}
	if err != nil {
		return "", err
	}
	if name == "" {
		return id, nil
	}
	return name, nil
}
