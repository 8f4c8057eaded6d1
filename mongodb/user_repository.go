package mongodb

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/domain"
)

type UserRepository struct {
	coll *mongo.Collection
}

func NewUserRepository(db *mongo.Database) domain.UserRepository {
	return &UserRepository{
		coll: db.Collection(UsersCollection),
	}
}

func (r *UserRepository) FindBySubject(ctx context.Context, issuer, subject string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": subject, "issuer": issuer})
}

func (r *UserRepository) FindByEmail(ctx context.Context, issuer, email, provider string) (*domain.User, error) {
	filter := bson.M{"issuer": issuer, "email": email}
	if provider != "" {
		filter["provider"] = provider
	}
	return r.findOne(ctx, filter)
}

func (r *UserRepository) FindByPhone(ctx context.Context, issuer, phone, provider string) (*domain.User, error) {
	filter := bson.M{"issuer": issuer, "phone_number": phone}
	if provider != "" {
		filter["provider"] = provider
	}
	return r.findOne(ctx, filter)
}

// Register inserts a user, used by bootstrap and admin tooling.
func (r *UserRepository) Register(ctx context.Context, user *domain.User) error {
	_, err := r.coll.InsertOne(ctx, user)
	return err
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var user domain.User
	err := r.coll.FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
