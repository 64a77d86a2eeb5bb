package db

import (
	"context"

	"github.com/ukydev/fleet-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoDirectory implements DirectoryCollection over the organisation's
// users, vehicles, vendors and trips.
type MongoDirectory struct {
	Users    *mongo.Collection
	Vehicles *mongo.Collection
	Vendors  *mongo.Collection
	Trips    *mongo.Collection
}

// NewDirectory wires the sibling collections of database.
func NewDirectory(database *mongo.Database) *MongoDirectory {
	return &MongoDirectory{
		Users:    database.Collection(CollectionUsers),
		Vehicles: database.Collection(CollectionVehicles),
		Vendors:  database.Collection(CollectionVendors),
		Trips:    database.Collection(CollectionTrips),
	}
}

func findScoped(ctx context.Context, collection *mongo.Collection, organisationID, id string, out interface{}) error {
	filter, err := scopedByID(organisationID, id)
	if err != nil {
		return err
	}
	return translate(collection.FindOne(ctx, filter).Decode(out))
}

// FindUser finds an organisation user by ID
func (d *MongoDirectory) FindUser(ctx context.Context, organisationID, id string) (*models.OrgUser, error) {
	var user models.OrgUser
	if err := findScoped(ctx, d.Users, organisationID, id, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindUsers finds the users with the given IDs, keyed by hex ID. Unknown or
// malformed IDs are skipped.
func (d *MongoDirectory) FindUsers(ctx context.Context, organisationID string, ids []string) (map[string]models.OrgUser, error) {
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			oids = append(oids, oid)
		}
	}
	users := make(map[string]models.OrgUser, len(oids))
	if len(oids) == 0 {
		return users, nil
	}

	cursor, err := d.Users.Find(ctx, bson.M{"_id": bson.M{"$in": oids}, "organisationId": organisationID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var found []models.OrgUser
	if err := cursor.All(ctx, &found); err != nil {
		return nil, err
	}
	for _, user := range found {
		users[user.ID.Hex()] = user
	}
	return users, nil
}

// FindVehicle finds a vehicle by ID
func (d *MongoDirectory) FindVehicle(ctx context.Context, organisationID, id string) (*models.Vehicle, error) {
	var vehicle models.Vehicle
	if err := findScoped(ctx, d.Vehicles, organisationID, id, &vehicle); err != nil {
		return nil, err
	}
	return &vehicle, nil
}

// FindVendor finds a vendor or agent by ID
func (d *MongoDirectory) FindVendor(ctx context.Context, organisationID, id string) (*models.Vendor, error) {
	var vendor models.Vendor
	if err := findScoped(ctx, d.Vendors, organisationID, id, &vendor); err != nil {
		return nil, err
	}
	return &vendor, nil
}

// FindTrip finds a trip by ID
func (d *MongoDirectory) FindTrip(ctx context.Context, organisationID, id string) (*models.Trip, error) {
	var trip models.Trip
	if err := findScoped(ctx, d.Trips, organisationID, id, &trip); err != nil {
		return nil, err
	}
	return &trip, nil
}
