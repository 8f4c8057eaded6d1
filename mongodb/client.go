package mongodb

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/v2/mongo/otelmongo"
)

// Connect opens an instrumented MongoDB connection and verifies it with a
// primary ping. The caller owns the returned client and must Disconnect it.
func Connect(ctx context.Context, uri, dbName string) (*mongo.Client, *mongo.Database, error) {
	log.Info().Str("db", dbName).Msg("Connecting to MongoDB")

	clientOptions := options.Client().ApplyURI(uri)
	clientOptions.SetConnectTimeout(10 * time.Second)
	clientOptions.SetMonitor(otelmongo.NewMonitor())

	client, err := mongo.Connect(clientOptions)
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to MongoDB")
		return nil, nil, err
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		log.Error().Err(err).Msg("Failed to ping MongoDB primary")
		_ = client.Disconnect(ctx)
		return nil, nil, err
	}

	log.Info().Msg("MongoDB connection established")
	return client, client.Database(dbName), nil
}
