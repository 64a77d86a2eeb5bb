package db

import (
	"context"
	"time"

	"github.com/ukydev/fleet-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepairCollection implements RepairCollection for one repair kind.
type MongoRepairCollection struct {
	MongoRecordCollection
	Kind models.RepairKind
}

// NewRepairCollection wraps the collection holding repairs of kind.
func NewRepairCollection(database *mongo.Database, kind models.RepairKind) *MongoRepairCollection {
	return &MongoRepairCollection{
		MongoRecordCollection: MongoRecordCollection{Collection: database.Collection(kind.Collection), CodeField: "repairId"},
		Kind:                  kind,
	}
}

// InsertRepair inserts a repair and sets its ID.
func (c *MongoRepairCollection) InsertRepair(ctx context.Context, repair *models.Repair) error {
	now := time.Now().UTC()
	repair.CreatedAt = now
	repair.UpdatedAt = now
	id, err := c.insert(ctx, repair)
	if err != nil {
		return err
	}
	if oid, ok := id.(primitive.ObjectID); ok {
		repair.ID = oid
	}
	return nil
}

// RepairCodeExists reports whether the organisation already uses code.
func (c *MongoRepairCollection) RepairCodeExists(ctx context.Context, organisationID, code string) (bool, error) {
	return c.codeExists(ctx, organisationID, code)
}

// FindRepairs lists repairs, optionally for a single asset, most recent first.
func (c *MongoRepairCollection) FindRepairs(ctx context.Context, organisationID, assetRef string) ([]models.Repair, error) {
	query := bson.M{"organisationId": organisationID}
	if assetRef != "" {
		query[c.Kind.AssetField] = assetRef
	}
	repairs := []models.Repair{}
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: -1}, {Key: "_id", Value: -1}})
	if err := c.findAll(ctx, query, &repairs, opts); err != nil {
		return nil, err
	}
	return repairs, nil
}

// FindRepairByID finds a repair by its document ID.
func (c *MongoRepairCollection) FindRepairByID(ctx context.Context, organisationID, id string) (*models.Repair, error) {
	filter, err := scopedByID(organisationID, id)
	if err != nil {
		return nil, err
	}
	var repair models.Repair
	if err := c.findOne(ctx, filter, &repair); err != nil {
		return nil, err
	}
	return &repair, nil
}

// UpdateRepair sets the patched fields and appends the log entry in one write.
func (c *MongoRepairCollection) UpdateRepair(ctx context.Context, organisationID, id string, patch models.RepairPatch, entry models.AuditLog) (*models.Repair, error) {
	filter, err := scopedByID(organisationID, id)
	if err != nil {
		return nil, err
	}
	set := bson.M{"updatedAt": time.Now().UTC()}
	for key, value := range patch.Fields() {
		set[key] = value
	}

	var repair models.Repair
	if err := c.apply(ctx, filter, bson.M{"$set": set, "$push": bson.M{"logs": entry}}, &repair); err != nil {
		return nil, err
	}
	return &repair, nil
}

// DeleteRepair removes a repair permanently.
func (c *MongoRepairCollection) DeleteRepair(ctx context.Context, organisationID, id string) error {
	filter, err := scopedByID(organisationID, id)
	if err != nil {
		return err
	}
	result, err := c.Collection.DeleteOne(ctx, filter)
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// MongoAssetCollection implements AssetCollection for tools or tyres.
type MongoAssetCollection struct {
	Collection *mongo.Collection
	KeyField   string
}

// NewAssetCollection wraps the asset collection repairs of kind refer to.
func NewAssetCollection(database *mongo.Database, kind models.RepairKind) *MongoAssetCollection {
	return &MongoAssetCollection{Collection: database.Collection(kind.AssetCollection), KeyField: kind.AssetField}
}

// AssetExists reports whether the organisation has an asset with ref.
func (c *MongoAssetCollection) AssetExists(ctx context.Context, organisationID, ref string) (bool, error) {
	n, err := c.Collection.CountDocuments(ctx,
		bson.M{"organisationId": organisationID, c.KeyField: ref},
		options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AppendAssetLog pushes one log entry onto the asset's history.
func (c *MongoAssetCollection) AppendAssetLog(ctx context.Context, organisationID, ref string, entry models.AuditLog) error {
	result, err := c.Collection.UpdateOne(ctx,
		bson.M{"organisationId": organisationID, c.KeyField: ref},
		bson.M{"$push": bson.M{"logs": entry}})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
