package db

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestConnectMongo_BadURI(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := ConnectMongo(ctx, "mongodb://bad:uri")
	if err == nil {
		t.Error("expected error for bad URI, got nil")
	}
	if client != nil {
		t.Error("expected nil client on error")
	}
}

func TestInsertExpense_NilCollection(t *testing.T) {
	coll := NewExpenseCollection(nil)
	err := coll.InsertExpense(context.Background(), &models.Expense{})
	if err == nil {
		t.Error("expected error when collection is nil")
	}
}

func TestScopedByID_InvalidHex(t *testing.T) {
	_, err := scopedByID("o1", "not-an-object-id")
	assert.True(t, errors.Is(err, ErrInvalidID))
}

func TestTranslate(t *testing.T) {
	assert.Equal(t, ErrNotFound, translate(mongo.ErrNoDocuments))
	other := errors.New("boom")
	assert.Equal(t, other, translate(other))
}

// testDatabase connects to the database named by MONGO_URI/MONGO_DB or skips.
func testDatabase(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if uri == "" || uri == "uri" {
		t.Skip("MONGO_URI not set or invalid, skipping integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := ConnectMongo(ctx, uri)
	if err != nil {
		t.Skipf("failed to connect: %v, skipping integration test", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	dbName := os.Getenv("MONGO_DB")
	if dbName == "" {
		dbName = "test_fleet_maintenance"
	}
	database := client.Database(dbName)
	require.NoError(t, database.Drop(context.Background()))
	return database
}

func TestExpenseLifecycle_Integration(t *testing.T) {
	database := testDatabase(t)
	ctx := context.Background()
	require.NoError(t, EnsureIndexes(ctx, database))

	coll := NewExpenseCollection(database.Collection(CollectionExpenses))
	expense := &models.Expense{
		OrganisationID: "o1",
		ExpensesID:     "1234567",
		Date:           time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		UserID:         "u1",
		ExpenseType:    "fuel",
		Amount:         100,
		Documents:      []models.Attachment{},
		Pictures:       []models.Attachment{},
		Remarks:        []models.Remark{},
		Logs:           []models.AuditLog{models.NewAuditLog("u1", models.ActionCreate, "expense created", "")},
	}
	require.NoError(t, coll.InsertExpense(ctx, expense))
	assert.False(t, expense.ID.IsZero())

	exists, err := coll.ExpenseCodeExists(ctx, "o1", "1234567")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = coll.ExpenseCodeExists(ctx, "o2", "1234567")
	require.NoError(t, err)
	assert.False(t, exists)

	// duplicate code in the same organisation is rejected by the unique index
	dup := *expense
	dup.ID = primitive.NilObjectID
	assert.Error(t, coll.InsertExpense(ctx, &dup))

	deleted, err := coll.SetExpenseDisabled(ctx, "o1", "1234567", true, models.NewAuditLog("u1", models.ActionDelete, "expense deleted", ""))
	require.NoError(t, err)
	assert.True(t, deleted.Disabled)
	assert.Len(t, deleted.Logs, 2)

	_, err = coll.SetExpenseDisabled(ctx, "o1", "1234567", true, models.NewAuditLog("u1", models.ActionDelete, "expense deleted", ""))
	assert.ErrorIs(t, err, ErrNotFound)

	remark := models.NewRemark("u1", "receipt missing")
	remarks, err := coll.PushRemark(ctx, "o1", expense.ID.Hex(), remark, models.NewAuditLog("u1", models.ActionRemark, "remark added", ""))
	require.NoError(t, err)
	assert.Len(t, remarks, 1)

	remarks, err = coll.PullRemark(ctx, "o1", expense.ID.Hex(), remark.ID.Hex(), models.NewAuditLog("u1", models.ActionDelete, "remark deleted", ""))
	require.NoError(t, err)
	assert.Empty(t, remarks)

	var stored models.Expense
	require.NoError(t, database.Collection(CollectionExpenses).FindOne(ctx, bson.M{"_id": expense.ID}).Decode(&stored))
	assert.Len(t, stored.Logs, 4)
}

func TestAssetLog_Integration(t *testing.T) {
	database := testDatabase(t)
	ctx := context.Background()

	_, err := database.Collection("tyres").InsertOne(ctx, models.Tyre{OrganisationID: "o1", SerialNo: "S1", Logs: []models.AuditLog{}})
	require.NoError(t, err)

	assets := NewAssetCollection(database, models.TyreRepairs)
	ok, err := assets.AssetExists(ctx, "o1", "S1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, assets.AppendAssetLog(ctx, "o1", "S1", models.NewAuditLog("u1", models.ActionRepair, "tyre repaired", "puncture")))
	assert.ErrorIs(t, assets.AppendAssetLog(ctx, "o1", "S2", models.NewAuditLog("u1", models.ActionRepair, "", "")), ErrNotFound)

	var tyre models.Tyre
	require.NoError(t, database.Collection("tyres").FindOne(ctx, bson.M{"serialNo": "S1"}).Decode(&tyre))
	require.Len(t, tyre.Logs, 1)
	assert.Equal(t, models.ActionRepair, tyre.Logs[0].Action)
	assert.Equal(t, "puncture", tyre.Logs[0].Reason)
}

func TestDirectory_Integration(t *testing.T) {
	database := testDatabase(t)
	ctx := context.Background()
	dir := NewDirectory(database)

	res, err := dir.Users.InsertOne(ctx, models.OrgUser{OrganisationID: "o1", FirstName: "Test", LastName: "User", Role: models.RoleAdmin, IsActive: true})
	require.NoError(t, err)
	id := res.InsertedID.(primitive.ObjectID).Hex()

	user, err := dir.FindUser(ctx, "o1", id)
	require.NoError(t, err)
	assert.Equal(t, "Test User", user.FullName())

	_, err = dir.FindUser(ctx, "o2", id)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = dir.FindUser(ctx, "o1", "invalid-id")
	assert.ErrorIs(t, err, ErrInvalidID)

	users, err := dir.FindUsers(ctx, "o1", []string{id, "junk"})
	require.NoError(t, err)
	assert.Len(t, users, 1)
}
