package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	ServerConfigCollection = "server_configurations"
	ClientConfigCollection = "client_configurations"
	AuthRequestsCollection = "authorization_requests"
	AuthCodesCollection    = "authorization_codes"
	TokensCollection       = "oauth_tokens"
	CibaGrantsCollection   = "ciba_grants"
	UsersCollection        = "users"
)

// EnsureIndexes creates the lookup and expiry indexes the repositories rely
// on. Expired credentials are reaped server side through TTL indexes.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	ttl := int32(0)

	indexes := map[string][]mongo.IndexModel{
		ClientConfigCollection: {
			{
				Keys:    bson.D{{Key: "issuer", Value: 1}, {Key: "client_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		AuthRequestsCollection: {
			{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(ttl)},
		},
		AuthCodesCollection: {
			{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(ttl)},
		},
		TokensCollection: {
			{Keys: bson.D{{Key: "issuer", Value: 1}, {Key: "access_token.value", Value: 1}}},
			{
				Keys: bson.D{{Key: "issuer", Value: 1}, {Key: "refresh_token.value", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"refresh_token": bson.M{"$exists": true}}),
			},
		},
		CibaGrantsCollection: {
			{Keys: bson.D{{Key: "issuer", Value: 1}, {Key: "client_id", Value: 1}}},
		},
		UsersCollection: {
			{Keys: bson.D{{Key: "issuer", Value: 1}, {Key: "email", Value: 1}}},
			{Keys: bson.D{{Key: "issuer", Value: 1}, {Key: "phone_number", Value: 1}}},
		},
	}

	for coll, models := range indexes {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return err
		}
	}
	return nil
}
