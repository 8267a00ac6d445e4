//go:build integration

// Package storagetest starts throwaway PostgreSQL and MongoDB containers for
// integration tests of the cache store and price tables.
package storagetest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"flavorwise/internal/storage"
)

// Containers holds the running databases and storage connections to them.
type Containers struct {
	Postgres storage.Storage
	Mongo    storage.Storage

	pgContainer    *postgres.PostgresContainer
	mongoContainer *mongodb.MongoDBContainer
}

// Start launches both containers in parallel and connects to them.
func Start(ctx context.Context) (*Containers, error) {
	c := &Containers{}
	errCh := make(chan error, 2)

	go func() { errCh <- c.startPostgreSQL(ctx) }()
	go func() { errCh <- c.startMongoDB(ctx) }()

	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil {
			c.Terminate(context.Background())
			return nil, err
		}
	}
	log.Println("All containers started successfully")
	return c, nil
}

func (c *Containers) startPostgreSQL(ctx context.Context) error {
	var err error

	log.Println("Starting PostgreSQL container...")
	c.pgContainer, err = postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("flavorwise_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to start PostgreSQL container: %w", err)
	}

	url, err := c.pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return fmt.Errorf("failed to get PostgreSQL connection string: %w", err)
	}

	c.Postgres, err = storage.NewPostgreSQL(ctx, storage.PostgreSQLConfig{URL: url, MaxConns: 5})
	if err != nil {
		return err
	}
	log.Println("PostgreSQL container ready")
	return nil
}

func (c *Containers) startMongoDB(ctx context.Context) error {
	var err error

	log.Println("Starting MongoDB container...")
	c.mongoContainer, err = mongodb.Run(ctx, "mongo:7")
	if err != nil {
		return fmt.Errorf("failed to start MongoDB container: %w", err)
	}

	url, err := c.mongoContainer.ConnectionString(ctx)
	if err != nil {
		return fmt.Errorf("failed to get MongoDB connection string: %w", err)
	}

	c.Mongo, err = storage.NewMongoDB(ctx, storage.MongoDBConfig{URL: url, Database: "flavorwise_test"})
	if err != nil {
		return err
	}
	log.Println("MongoDB container ready")
	return nil
}

// Terminate closes connections and stops the containers.
func (c *Containers) Terminate(ctx context.Context) {
	if c.Postgres != nil {
		_ = c.Postgres.Close()
	}
	if c.Mongo != nil {
		_ = c.Mongo.Close()
	}
	if c.pgContainer != nil {
		if err := c.pgContainer.Terminate(ctx); err != nil {
			log.Printf("Failed to terminate PostgreSQL container: %v", err)
		}
	}
	if c.mongoContainer != nil {
		if err := c.mongoContainer.Terminate(ctx); err != nil {
			log.Printf("Failed to terminate MongoDB container: %v", err)
		}
	}
}
