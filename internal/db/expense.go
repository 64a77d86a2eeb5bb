package db

import (
	"context"
	"fmt"
	"time"

	"github.com/ukydev/fleet-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoExpenseCollection implements ExpenseCollection for MongoDB.
type MongoExpenseCollection struct {
	MongoRecordCollection
}

// NewExpenseCollection wraps the expenses collection.
func NewExpenseCollection(collection *mongo.Collection) *MongoExpenseCollection {
	return &MongoExpenseCollection{MongoRecordCollection{Collection: collection, CodeField: "expensesId"}}
}

// InsertExpense inserts an expense and sets its ID.
func (c *MongoExpenseCollection) InsertExpense(ctx context.Context, expense *models.Expense) error {
	now := time.Now().UTC()
	expense.CreatedAt = now
	expense.UpdatedAt = now
	id, err := c.insert(ctx, expense)
	if err != nil {
		return err
	}
	if oid, ok := id.(primitive.ObjectID); ok {
		expense.ID = oid
	}
	return nil
}

// ExpenseCodeExists reports whether the organisation already uses code.
func (c *MongoExpenseCollection) ExpenseCodeExists(ctx context.Context, organisationID, code string) (bool, error) {
	return c.codeExists(ctx, organisationID, code)
}

// FindExpenses lists expenses, most recent date first.
func (c *MongoExpenseCollection) FindExpenses(ctx context.Context, filter ExpenseFilter) ([]models.Expense, error) {
	query := bson.M{"organisationId": filter.OrganisationID}
	if filter.Disabled != nil {
		if *filter.Disabled {
			query["disabled"] = true
		} else {
			query["disabled"] = bson.M{"$ne": true}
		}
	}
	dateRange := bson.M{}
	if filter.From != nil {
		dateRange["$gte"] = *filter.From
	}
	if filter.To != nil {
		dateRange["$lte"] = *filter.To
	}
	if len(dateRange) > 0 {
		query["date"] = dateRange
	}

	expenses := []models.Expense{}
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: -1}, {Key: "_id", Value: -1}})
	if err := c.findAll(ctx, query, &expenses, opts); err != nil {
		return nil, err
	}
	return expenses, nil
}

// FindExpenseByID finds an expense by its document ID.
func (c *MongoExpenseCollection) FindExpenseByID(ctx context.Context, organisationID, id string) (*models.Expense, error) {
	filter, err := scopedByID(organisationID, id)
	if err != nil {
		return nil, err
	}
	var expense models.Expense
	if err := c.findOne(ctx, filter, &expense); err != nil {
		return nil, err
	}
	return &expense, nil
}

// FindExpenseByCode finds an expense by its generated expensesId.
func (c *MongoExpenseCollection) FindExpenseByCode(ctx context.Context, organisationID, code string) (*models.Expense, error) {
	var expense models.Expense
	if err := c.findOne(ctx, bson.M{"organisationId": organisationID, "expensesId": code}, &expense); err != nil {
		return nil, err
	}
	return &expense, nil
}

// UpdateExpense sets the patched fields and appends the log entry in one write.
func (c *MongoExpenseCollection) UpdateExpense(ctx context.Context, organisationID, id string, patch models.ExpensePatch, entry models.AuditLog) (*models.Expense, error) {
	filter, err := scopedByID(organisationID, id)
	if err != nil {
		return nil, err
	}
	set := bson.M{"updatedAt": time.Now().UTC()}
	for key, value := range patch.Fields() {
		set[key] = value
	}

	var expense models.Expense
	if err := c.apply(ctx, filter, bson.M{"$set": set, "$push": bson.M{"logs": entry}}, &expense); err != nil {
		return nil, err
	}
	return &expense, nil
}

// SetExpenseDisabled soft-deletes or restores an expense. The filter only
// matches when the flag actually changes.
func (c *MongoExpenseCollection) SetExpenseDisabled(ctx context.Context, organisationID, code string, disabled bool, entry models.AuditLog) (*models.Expense, error) {
	filter := bson.M{
		"organisationId": organisationID,
		"expensesId":     code,
		"disabled":       bson.M{"$ne": disabled},
	}
	update := bson.M{
		"$set":  bson.M{"disabled": disabled, "updatedAt": time.Now().UTC()},
		"$push": bson.M{"logs": entry},
	}
	var expense models.Expense
	if err := c.apply(ctx, filter, update, &expense); err != nil {
		return nil, err
	}
	return &expense, nil
}

// PushAttachments appends attachments to the document and picture lists.
func (c *MongoExpenseCollection) PushAttachments(ctx context.Context, organisationID, id string, attachments map[models.AttachmentKind][]models.Attachment, entry models.AuditLog) (*models.Expense, error) {
	filter, err := scopedByID(organisationID, id)
	if err != nil {
		return nil, err
	}
	push := bson.M{"logs": entry}
	for kind, list := range attachments {
		if len(list) > 0 {
			push[string(kind)] = bson.M{"$each": list}
		}
	}
	update := bson.M{"$push": push, "$set": bson.M{"updatedAt": time.Now().UTC()}}

	var expense models.Expense
	if err := c.apply(ctx, filter, update, &expense); err != nil {
		return nil, err
	}
	return &expense, nil
}

// PullAttachment removes one attachment from the given list.
func (c *MongoExpenseCollection) PullAttachment(ctx context.Context, organisationID, id string, kind models.AttachmentKind, attachmentID string, entry models.AuditLog) (*models.Expense, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("unknown attachment list %q", kind)
	}
	filter, err := scopedByID(organisationID, id)
	if err != nil {
		return nil, err
	}
	aid, err := objectID(attachmentID)
	if err != nil {
		return nil, err
	}
	filter[string(kind)+"._id"] = aid
	update := bson.M{
		"$pull": bson.M{string(kind): bson.M{"_id": aid}},
		"$push": bson.M{"logs": entry},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}

	var expense models.Expense
	if err := c.apply(ctx, filter, update, &expense); err != nil {
		return nil, err
	}
	return &expense, nil
}
