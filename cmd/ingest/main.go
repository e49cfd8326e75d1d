// Command ingest replaces a property's knowledge base from a JSON or YAML file.
//
//	go run ./cmd/ingest -property grand-harbor -file ./kb/grand-harbor.json
//	go run ./cmd/ingest -property grand-harbor -file s3://concierge-kb/grand-harbor.json
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joho/godotenv"

	"github.com/wolfman30/hotel-concierge-ai/internal/app/bootstrap"
	appconfig "github.com/wolfman30/hotel-concierge-ai/internal/config"
	"github.com/wolfman30/hotel-concierge-ai/internal/knowledge"
	"github.com/wolfman30/hotel-concierge-ai/pkg/logging"
)

func main() {
	propertyID := flag.String("property", "", "property id to replace")
	file := flag.String("file", "", "documents file (JSON or YAML): local path or s3://bucket/key")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}
	if strings.TrimSpace(*propertyID) == "" || strings.TrimSpace(*file) == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	ctx := context.Background()

	if err := run(ctx, cfg, *propertyID, *file, logger); err != nil {
		logger.Error("ingest failed", "property_id", *propertyID, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *appconfig.Config, propertyID, location string, logger *logging.Logger) error {
	var awsCfg *aws.Config
	var objects knowledge.S3GetObjectAPI
	if strings.HasPrefix(location, "s3://") || cfg.BedrockEmbeddingModelID != "" {
		loaded, err := bootstrap.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return err
		}
		awsCfg = &loaded
		objects = s3.NewFromConfig(loaded)
	}

	pool, err := bootstrap.BuildPostgresPool(ctx, cfg)
	if err != nil {
		return err
	}
	if pool == nil {
		return fmt.Errorf("DATABASE_URL is required")
	}
	defer pool.Close()

	breakers := bootstrap.NewBreakers(cfg, nil, logger)
	kb := bootstrap.BuildKnowledge(ctx, cfg, awsCfg, pool, breakers, nil, logger)

	docs, err := knowledge.LoadDocuments(ctx, location, objects)
	if err != nil {
		return err
	}
	stored, err := kb.Ingestor.Replace(ctx, propertyID, docs)
	if err != nil {
		return err
	}
	logger.Info("knowledge base replaced", "property_id", propertyID, "documents", stored)
	return nil
}
