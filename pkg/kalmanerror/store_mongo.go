package kalmanerror

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/assigner/pkg/ctdf"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type kalmanErrorRecord struct {
	Key string `bson:"key"`

	TripPatternRef string `bson:"trippatternref"`
	StopPathIndex  int    `bson:"stoppathindex"`
	SegmentIndex   int    `bson:"segmentindex"`

	ErrorValue float64 `bson:"errorvalue"`

	ModificationDateTime time.Time `bson:"modificationdatetime"`
}

// MongoStore keeps one document per segment in the kalman_errors collection
type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(collection *mongo.Collection) *MongoStore {
	return &MongoStore{collection: collection}
}

func (s *MongoStore) Load(ctx context.Context) (map[ctdf.Indices]float64, error) {
	cursor, err := s.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	values := map[ctdf.Indices]float64{}
	for cursor.Next(ctx) {
		var record kalmanErrorRecord
		if err := cursor.Decode(&record); err != nil {
			log.Error().Err(err).Msg("Failed to decode kalman error")
			continue
		}

		values[ctdf.Indices{
			TripPatternRef: record.TripPatternRef,
			StopPathIndex:  record.StopPathIndex,
			SegmentIndex:   record.SegmentIndex,
		}] = record.ErrorValue
	}

	return values, cursor.Err()
}

func (s *MongoStore) Save(ctx context.Context, key ctdf.Indices, value float64) error {
	record := kalmanErrorRecord{
		Key:                  key.String(),
		TripPatternRef:       key.TripPatternRef,
		StopPathIndex:        key.StopPathIndex,
		SegmentIndex:         key.SegmentIndex,
		ErrorValue:           value,
		ModificationDateTime: time.Now(),
	}

	opts := options.Update().SetUpsert(true)
	_, err := s.collection.UpdateOne(ctx, bson.M{"key": record.Key}, bson.M{"$set": record}, opts)

	return err
}

// Close leaves the shared client open
func (s *MongoStore) Close() error {
	return nil
}
