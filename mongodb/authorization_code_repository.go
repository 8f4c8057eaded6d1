package mongodb

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/domain"
)

type AuthorizationCodeRepository struct {
	coll *mongo.Collection
}

func NewAuthorizationCodeRepository(db *mongo.Database) domain.AuthorizationCodeRepository {
	return &AuthorizationCodeRepository{
		coll: db.Collection(AuthCodesCollection),
	}
}

func (r *AuthorizationCodeRepository) Register(ctx context.Context, code *domain.AuthorizationCode) error {
	_, err := r.coll.InsertOne(ctx, code)
	return err
}

// Consume flips the consumed flag in a single conditional update, so two
// concurrent exchanges of the same code cannot both succeed. The loser is
// distinguished from an unknown code so it can be treated as a replay.
func (r *AuthorizationCodeRepository) Consume(ctx context.Context, issuer, code string) (*domain.AuthorizationCode, error) {
	filter := bson.M{"_id": code, "issuer": issuer, "consumed": false}
	update := bson.M{"$set": bson.M{"consumed": true}}

	var consumed domain.AuthorizationCode
	err := r.coll.FindOneAndUpdate(ctx, filter, update).Decode(&consumed)
	if errors.Is(err, mongo.ErrNoDocuments) {
		count, countErr := r.coll.CountDocuments(ctx, bson.M{"_id": code, "issuer": issuer})
		if countErr == nil && count > 0 {
			return nil, domain.ErrAlreadyConsumed
		}
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &consumed, nil
}
