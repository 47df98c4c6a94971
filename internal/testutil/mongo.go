package testutil

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// GetTestMongoURI returns the MongoDB URI used by integration tests.
// Defaults to port 57017 (local test instance from docker-compose test profile).
func GetTestMongoURI() string {
	return getEnvOrDefault("TEST_MONGO_URI", "mongodb://localhost:57017/?directConnection=true")
}

// SetupTestMongo connects to the test MongoDB and returns a uniquely named database that
// is dropped when the test completes. Tests are skipped if MongoDB is not available.
func SetupTestMongo(t TestingTB) *mongo.Database {
	t.Helper()

	uri := GetTestMongoURI()
	client, err := mongo.Connect(options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(2 * time.Second).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true}))
	if err != nil {
		if requireMongo() {
			t.Fatal("MongoDB not available for testing:", err)
		}
		t.Skip("MongoDB not available for testing:", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if pingErr := client.Ping(ctx, nil); pingErr != nil {
		_ = client.Disconnect(context.Background())
		if requireMongo() {
			t.Fatalf("MongoDB not available for testing at %s: %v", uri, pingErr)
		}
		t.Skipf("MongoDB not available for testing at %s: %v", uri, pingErr)
	}

	db := client.Database("docauth_" + generateSchemaName())
	t.Logf("Using ephemeral MongoDB database: %s", db.Name())

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if dropErr := db.Drop(ctx); dropErr != nil {
			t.Logf("Warning: failed to drop database %s: %v", db.Name(), dropErr)
		}
		if discErr := client.Disconnect(ctx); discErr != nil {
			t.Logf("warning: failed to disconnect mongo client: %v", discErr)
		}
	}
	t.Cleanup(cleanup)
	return db
}
