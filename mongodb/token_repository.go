package mongodb

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/domain"
)

type TokenRepository struct {
	coll *mongo.Collection
}

func NewTokenRepository(db *mongo.Database) domain.TokenRepository {
	return &TokenRepository{
		coll: db.Collection(TokensCollection),
	}
}

func (r *TokenRepository) Register(ctx context.Context, token *domain.OAuthToken) error {
	_, err := r.coll.InsertOne(ctx, token)
	return err
}

func (r *TokenRepository) FindByAccessToken(ctx context.Context, issuer, accessToken string) (*domain.OAuthToken, error) {
	var token domain.OAuthToken
	err := r.coll.FindOne(ctx, bson.M{"issuer": issuer, "access_token.value": accessToken}).Decode(&token)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// ConsumeByRefreshToken removes the aggregate owning the refresh token and
// returns it in one operation. Concurrent redemptions of the same token race
// on the delete, and the loser sees ErrRecordNotFound.
func (r *TokenRepository) ConsumeByRefreshToken(ctx context.Context, issuer, refreshToken string) (*domain.OAuthToken, error) {
	var token domain.OAuthToken
	err := r.coll.FindOneAndDelete(ctx, bson.M{"issuer": issuer, "refresh_token.value": refreshToken}).Decode(&token)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *TokenRepository) Delete(ctx context.Context, issuer, id string) error {
	result, err := r.coll.DeleteOne(ctx, bson.M{"_id": id, "issuer": issuer})
	if err != nil {
		log.Error().Err(err).Str("token_id", id).Msg("Error deleting token aggregate")
		return err
	}
	if result.DeletedCount == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}
