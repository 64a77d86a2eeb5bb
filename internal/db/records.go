package db

import (
	"context"
	"fmt"
	"time"

	"github.com/ukydev/fleet-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRecordCollection holds the operations shared by expenses and repairs:
// code lookups and the remarks/logs sub-lists. Sub-lists are only changed
// with $push, $pull and positional $set so concurrent writers never replace
// each other's entries.
type MongoRecordCollection struct {
	Collection *mongo.Collection
	CodeField  string
}

type remarksDoc struct {
	Remarks []models.Remark `bson:"remarks"`
}

func (c *MongoRecordCollection) codeExists(ctx context.Context, organisationID, code string) (bool, error) {
	if c.Collection == nil {
		return false, fmt.Errorf("mongo collection is nil")
	}
	n, err := c.Collection.CountDocuments(ctx,
		bson.M{"organisationId": organisationID, c.CodeField: code},
		options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *MongoRecordCollection) insert(ctx context.Context, doc interface{}) (interface{}, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	result, err := c.Collection.InsertOne(ctx, doc)
	if err != nil {
		return nil, err
	}
	return result.InsertedID, nil
}

func (c *MongoRecordCollection) findOne(ctx context.Context, filter bson.M, out interface{}, opts ...*options.FindOneOptions) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	return translate(c.Collection.FindOne(ctx, filter, opts...).Decode(out))
}

func (c *MongoRecordCollection) findAll(ctx context.Context, filter bson.M, out interface{}, opts ...*options.FindOptions) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	cursor, err := c.Collection.Find(ctx, filter, opts...)
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)
	return cursor.All(ctx, out)
}

// apply runs update against the single document matching filter and decodes
// the document as it is after the update.
func (c *MongoRecordCollection) apply(ctx context.Context, filter, update bson.M, out interface{}) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	return translate(c.Collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(out))
}

// FindRemarks returns the remarks of one record.
func (c *MongoRecordCollection) FindRemarks(ctx context.Context, organisationID, parentID string) ([]models.Remark, error) {
	filter, err := scopedByID(organisationID, parentID)
	if err != nil {
		return nil, err
	}
	var doc remarksDoc
	if err := c.findOne(ctx, filter, &doc, options.FindOne().SetProjection(bson.M{"remarks": 1})); err != nil {
		return nil, err
	}
	return doc.Remarks, nil
}

// FindRemark returns a single remark of one record.
func (c *MongoRecordCollection) FindRemark(ctx context.Context, organisationID, parentID, remarkID string) (*models.Remark, error) {
	remarks, err := c.FindRemarks(ctx, organisationID, parentID)
	if err != nil {
		return nil, err
	}
	for i := range remarks {
		if remarks[i].ID.Hex() == remarkID {
			return &remarks[i], nil
		}
	}
	return nil, ErrNotFound
}

// PushRemark appends a remark and its log entry.
func (c *MongoRecordCollection) PushRemark(ctx context.Context, organisationID, parentID string, remark models.Remark, entry models.AuditLog) ([]models.Remark, error) {
	filter, err := scopedByID(organisationID, parentID)
	if err != nil {
		return nil, err
	}
	update := bson.M{
		"$push": bson.M{"remarks": remark, "logs": entry},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}
	var doc remarksDoc
	if err := c.apply(ctx, filter, update, &doc); err != nil {
		return nil, err
	}
	return doc.Remarks, nil
}

// SetRemarkText replaces the text of one remark and appends its log entry.
func (c *MongoRecordCollection) SetRemarkText(ctx context.Context, organisationID, parentID, remarkID, text string, entry models.AuditLog) ([]models.Remark, error) {
	filter, err := c.remarkFilter(organisationID, parentID, remarkID)
	if err != nil {
		return nil, err
	}
	update := bson.M{
		"$set":  bson.M{"remarks.$.remark": text, "updatedAt": time.Now().UTC()},
		"$push": bson.M{"logs": entry},
	}
	var doc remarksDoc
	if err := c.apply(ctx, filter, update, &doc); err != nil {
		return nil, err
	}
	return doc.Remarks, nil
}

// PullRemark removes one remark and appends its log entry.
func (c *MongoRecordCollection) PullRemark(ctx context.Context, organisationID, parentID, remarkID string, entry models.AuditLog) ([]models.Remark, error) {
	filter, err := c.remarkFilter(organisationID, parentID, remarkID)
	if err != nil {
		return nil, err
	}
	rid := filter["remarks._id"]
	update := bson.M{
		"$pull": bson.M{"remarks": bson.M{"_id": rid}},
		"$push": bson.M{"logs": entry},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}
	var doc remarksDoc
	if err := c.apply(ctx, filter, update, &doc); err != nil {
		return nil, err
	}
	return doc.Remarks, nil
}

func (c *MongoRecordCollection) remarkFilter(organisationID, parentID, remarkID string) (bson.M, error) {
	filter, err := scopedByID(organisationID, parentID)
	if err != nil {
		return nil, err
	}
	rid, err := objectID(remarkID)
	if err != nil {
		return nil, err
	}
	filter["remarks._id"] = rid
	return filter, nil
}
