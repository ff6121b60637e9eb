package history

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/maraxen/praxisbridge/pkg/api"
)

// MongoStore is a Store backed by MongoDB.
type MongoStore struct {
	coll *mongo.Collection
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore creates a Mongo-backed record store.
// dbName defaults to "praxisbridge" if empty, collName to "execution_records".
func NewMongoStore(client *mongo.Client, dbName, collName string) *MongoStore {
	if dbName == "" {
		dbName = "praxisbridge"
	}
	if collName == "" {
		collName = "execution_records"
	}
	return &MongoStore{
		coll: client.Database(dbName).Collection(collName),
	}
}

type mongoRecordDoc struct {
	ExecutionID string `bson:"execution_id"`
	At          int64  `bson:"at"`
	Kind        string `bson:"kind"`
	Request     string `bson:"request,omitempty"`
	Detail      string `bson:"detail,omitempty"`
}

func (s *MongoStore) AppendRecord(ctx context.Context, rec api.Record) error {
	at := rec.At
	if at.IsZero() {
		at = time.Now()
	}
	doc := mongoRecordDoc{
		ExecutionID: rec.ExecutionID,
		At:          at.UnixNano(),
		Kind:        string(rec.Kind),
		Request:     string(rec.Request),
		Detail:      rec.Detail,
	}
	_, err := s.coll.InsertOne(ctx, doc)
	return err
}

func (s *MongoStore) ListRecords(ctx context.Context, executionID string) ([]api.Record, error) {
	// _id breaks ties between records appended within the same nanosecond.
	opts := options.Find().SetSort(bson.D{
		{Key: "at", Value: 1},
		{Key: "_id", Value: 1},
	})
	cur, err := s.coll.Find(ctx, bson.M{"execution_id": executionID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []api.Record
	for cur.Next(ctx) {
		var doc mongoRecordDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, api.Record{
			ExecutionID: doc.ExecutionID,
			At:          time.Unix(0, doc.At),
			Kind:        api.RecordKind(doc.Kind),
			Request:     api.MessageKind(doc.Request),
			Detail:      doc.Detail,
		})
	}
	return out, cur.Err()
}
