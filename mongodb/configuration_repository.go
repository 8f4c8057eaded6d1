package mongodb

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/domain"
)

type ConfigurationRepository struct {
	servers *mongo.Collection
	clients *mongo.Collection
}

func NewConfigurationRepository(db *mongo.Database) domain.ConfigurationRepository {
	return &ConfigurationRepository{
		servers: db.Collection(ServerConfigCollection),
		clients: db.Collection(ClientConfigCollection),
	}
}

func (r *ConfigurationRepository) GetServerConfiguration(ctx context.Context, issuer string) (*domain.ServerConfiguration, error) {
	var config domain.ServerConfiguration
	err := r.servers.FindOne(ctx, bson.M{"_id": issuer}).Decode(&config)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &config, nil
}

func (r *ConfigurationRepository) GetClientConfiguration(ctx context.Context, issuer, clientID string) (*domain.ClientConfiguration, error) {
	var config domain.ClientConfiguration
	err := r.clients.FindOne(ctx, bson.M{"issuer": issuer, "client_id": clientID}).Decode(&config)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &config, nil
}

// RegisterServerConfiguration upserts tenant policy, used by bootstrap and
// admin tooling rather than the request path.
func (r *ConfigurationRepository) RegisterServerConfiguration(ctx context.Context, config *domain.ServerConfiguration) error {
	_, err := r.servers.ReplaceOne(ctx, bson.M{"_id": config.Issuer}, config, replaceUpsert())
	return err
}

// RegisterClientConfiguration upserts a client registration.
func (r *ConfigurationRepository) RegisterClientConfiguration(ctx context.Context, config *domain.ClientConfiguration) error {
	_, err := r.clients.ReplaceOne(ctx, bson.M{"issuer": config.Issuer, "client_id": config.ClientID}, config, replaceUpsert())
	return err
}
