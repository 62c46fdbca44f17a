package database

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func createIndexes() {
	createBlocksIndexes()
	createKalmanErrorIndexes()
}

func createBlocksIndexes() {
	blocksCollection := GetCollection("blocks")
	blocksIndex := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "primaryidentifier", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "starttime", Value: 1}, {Key: "endtime", Value: 1}},
		},
	}

	opts := options.CreateIndexes()
	_, err := blocksCollection.Indexes().CreateMany(context.Background(), blocksIndex, opts)
	if err != nil {
		log.Error().Err(err).Msg("Creating Index")
	}
}

func createKalmanErrorIndexes() {
	kalmanErrorsCollection := GetCollection("kalman_errors")
	kalmanErrorsIndex := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	opts := options.CreateIndexes()
	_, err := kalmanErrorsCollection.Indexes().CreateMany(context.Background(), kalmanErrorsIndex, opts)
	if err != nil {
		log.Error().Err(err).Msg("Creating Index")
	}
}
