package blocks

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/assigner/pkg/ctdf"
	"github.com/travigo/assigner/pkg/database"
	"go.mongodb.org/mongo-driver/bson"
	"gopkg.in/yaml.v3"
)

// LoadFromDatabase loads every block whose service window overlaps [from, to]
func (r *Registry) LoadFromDatabase(ctx context.Context, from time.Time, to time.Time) error {
	blocksCollection := database.GetCollection("blocks")

	cursor, err := blocksCollection.Find(ctx, bson.M{
		"$and": bson.A{
			bson.M{"starttime": bson.M{"$lte": to}},
			bson.M{"endtime": bson.M{"$gte": from}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to query blocks: %w", err)
	}
	defer cursor.Close(ctx)

	var blocks []*ctdf.Block
	for cursor.Next(ctx) {
		var block *ctdf.Block
		if err := cursor.Decode(&block); err != nil {
			log.Error().Err(err).Msg("Failed to decode Block")
			continue
		}

		blocks = append(blocks, block)
	}

	if err := cursor.Err(); err != nil {
		return fmt.Errorf("failed to read blocks: %w", err)
	}

	r.Replace(blocks)

	log.Info().Int("blocks", len(blocks)).Time("from", from).Time("to", to).Msg("Loaded blocks from database")

	return nil
}

type blockFile struct {
	Blocks []*ctdf.Block `yaml:"blocks"`
}

// LoadFromFile loads blocks from a YAML fixture
func (r *Registry) LoadFromFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var file blockFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return fmt.Errorf("failed to parse block file %s: %w", path, err)
	}

	for _, block := range file.Blocks {
		block.ResolveTracks()
	}

	r.Replace(file.Blocks)

	return nil
}
