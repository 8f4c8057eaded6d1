package mongodb

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/domain"
)

type AuthorizationRequestRepository struct {
	coll *mongo.Collection
}

func NewAuthorizationRequestRepository(db *mongo.Database) domain.AuthorizationRequestRepository {
	return &AuthorizationRequestRepository{
		coll: db.Collection(AuthRequestsCollection),
	}
}

func (r *AuthorizationRequestRepository) Register(ctx context.Context, request *domain.AuthorizationRequest) error {
	_, err := r.coll.InsertOne(ctx, request)
	return err
}

func (r *AuthorizationRequestRepository) Find(ctx context.Context, issuer, id string) (*domain.AuthorizationRequest, error) {
	var request domain.AuthorizationRequest
	err := r.coll.FindOne(ctx, bson.M{"_id": id, "issuer": issuer}).Decode(&request)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *AuthorizationRequestRepository) Delete(ctx context.Context, issuer, id string) error {
	result, err := r.coll.DeleteOne(ctx, bson.M{"_id": id, "issuer": issuer})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		log.Debug().Str("request_id", id).Msg("Authorization request already gone")
	}
	return nil
}
