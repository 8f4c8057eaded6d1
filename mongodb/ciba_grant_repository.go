package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/domain"
)

type CibaGrantRepository struct {
	coll *mongo.Collection
}

func NewCibaGrantRepository(db *mongo.Database) domain.CibaGrantRepository {
	return &CibaGrantRepository{
		coll: db.Collection(CibaGrantsCollection),
	}
}

func (r *CibaGrantRepository) Register(ctx context.Context, grant *domain.CibaGrant) error {
	_, err := r.coll.InsertOne(ctx, grant)
	return err
}

func (r *CibaGrantRepository) Find(ctx context.Context, issuer, authReqID string) (*domain.CibaGrant, error) {
	var grant domain.CibaGrant
	err := r.coll.FindOne(ctx, bson.M{"_id": authReqID, "issuer": issuer}).Decode(&grant)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &grant, nil
}

func (r *CibaGrantRepository) Update(ctx context.Context, grant *domain.CibaGrant) error {
	result, err := r.coll.ReplaceOne(ctx, bson.M{"_id": grant.AuthReqID, "issuer": grant.Issuer}, grant)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

func (r *CibaGrantRepository) UpdateStatus(ctx context.Context, issuer, authReqID string, status domain.CibaGrantStatus) error {
	result, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": authReqID, "issuer": issuer},
		bson.M{"$set": bson.M{"status": status}})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

func (r *CibaGrantRepository) UpdateLastPolledAt(ctx context.Context, issuer, authReqID string) error {
	result, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": authReqID, "issuer": issuer},
		bson.M{"$set": bson.M{"last_polled_at": time.Now()}})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

// Consume transitions AUTHORIZED to CONSUMED with a conditional update, so
// exactly one exchange per auth_req_id can mint tokens.
func (r *CibaGrantRepository) Consume(ctx context.Context, issuer, authReqID string) (*domain.CibaGrant, error) {
	filter := bson.M{"_id": authReqID, "issuer": issuer, "status": domain.CibaGrantStatusAuthorized}
	update := bson.M{"$set": bson.M{"status": domain.CibaGrantStatusConsumed}}

	var grant domain.CibaGrant
	err := r.coll.FindOneAndUpdate(ctx, filter, update).Decode(&grant)
	if errors.Is(err, mongo.ErrNoDocuments) {
		count, countErr := r.coll.CountDocuments(ctx, bson.M{"_id": authReqID, "issuer": issuer})
		if countErr == nil && count > 0 {
			return nil, domain.ErrAlreadyConsumed
		}
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &grant, nil
}

func (r *CibaGrantRepository) Delete(ctx context.Context, issuer, authReqID string) error {
	result, err := r.coll.DeleteOne(ctx, bson.M{"_id": authReqID, "issuer": issuer})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}
