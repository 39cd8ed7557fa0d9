package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rei-strategy/bots/internal/types"
)

// MongoSink stores committed leads in a MongoDB collection. A monotonic
// sequence field carries the append order; ObjectID timestamps only have
// second resolution.
type MongoSink struct {
	client     *mongo.Client
	collection *mongo.Collection
	seq        int64
	count      int
	logger     *slog.Logger
}

// NewMongoSink connects and resumes the append sequence from the collection.
func NewMongoSink(uri, database, collection string, logger *slog.Logger) (*MongoSink, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, &types.SinkError{Backend: "mongodb", Err: fmt.Errorf("connect: %w", err)}
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, &types.SinkError{Backend: "mongodb", Err: fmt.Errorf("ping: %w", err)}
	}

	s := &MongoSink{
		client:     client,
		collection: client.Database(database).Collection(collection),
		logger:     logger.With("component", "mongo_sink", "collection", collection),
	}

	var last struct {
		Seq int64 `bson:"seq"`
	}
	err = s.collection.FindOne(ctx, bson.M{}, options.FindOne().SetSort(bson.M{"seq": -1})).Decode(&last)
	switch {
	case err == mongo.ErrNoDocuments:
	case err != nil:
		client.Disconnect(ctx)
		return nil, &types.SinkError{Backend: "mongodb", Err: fmt.Errorf("read sequence: %w", err)}
	default:
		s.seq = last.Seq
	}
	return s, nil
}

func (s *MongoSink) doc(seq int64, rec Record) bson.M {
	return bson.M{
		"seq":        seq,
		"saleDate":   rec.SaleDate,
		"fileNumber": rec.FileNumber,
		"property":   rec.Property,
		"city":       rec.City,
		"zip":        rec.Zip,
		"county":     rec.County,
		"bid":        rec.Bid,
		"equity":     rec.EstEquity,
		"ownerFirst": rec.OwnerFirst,
		"ownerLast":  rec.OwnerLast,
		"source":     rec.Source,
		"error":      rec.LookupError,
		"status":     rec.Status,
	}
}

func (s *MongoSink) Append(ctx context.Context, rec Record) error {
	wctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	s.seq++
	if _, err := s.collection.InsertOne(wctx, s.doc(s.seq, rec)); err != nil {
		s.seq--
		return &types.SinkError{Backend: "mongodb", Err: fmt.Errorf("insert: %w", err)}
	}

	s.count++
	s.logger.Debug("record appended", "source", rec.Source, "property", rec.Property, "total", s.count)
	return nil
}

func (s *MongoSink) Rows(ctx context.Context) ([]Record, error) {
	cur, err := s.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.M{"seq": 1}))
	if err != nil {
		return nil, &types.SinkError{Backend: "mongodb", Err: err}
	}
	defer cur.Close(ctx)

	var records []Record
	for cur.Next(ctx) {
		rec, err := decodeRecord(cur.Current)
		if err != nil {
			return nil, &types.SinkError{Backend: "mongodb", Err: err}
		}
		records = append(records, rec)
	}
	if err := cur.Err(); err != nil {
		return nil, &types.SinkError{Backend: "mongodb", Err: err}
	}
	return records, nil
}

func (s *MongoSink) LastForSource(ctx context.Context, source string) (Record, bool, error) {
	res := s.collection.FindOne(ctx, bson.M{"source": source}, options.FindOne().SetSort(bson.M{"seq": -1}))
	raw, err := res.Raw()
	if err == mongo.ErrNoDocuments {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, &types.SinkError{Backend: "mongodb", Err: err}
	}
	rec, err := decodeRecord(bson.Raw(raw))
	if err != nil {
		return Record{}, false, &types.SinkError{Backend: "mongodb", Err: err}
	}
	return rec, true, nil
}

func (s *MongoSink) Update(ctx context.Context, match, updated Record) error {
	// The row is located with the same normalized identity the other
	// backends use; a raw bson filter would miss case or whitespace
	// variants of the stored property.
	cur, err := s.collection.Find(ctx, bson.M{"source": match.Source}, options.Find().SetSort(bson.M{"seq": 1}))
	if err != nil {
		return &types.SinkError{Backend: "mongodb", Err: err}
	}
	defer cur.Close(ctx)

	var seq int64
	found := false
	for cur.Next(ctx) {
		rec, err := decodeRecord(cur.Current)
		if err != nil {
			return &types.SinkError{Backend: "mongodb", Err: err}
		}
		if !sameIdentity(rec, match) {
			continue
		}
		var meta struct {
			Seq int64 `bson:"seq"`
		}
		if err := bson.Unmarshal(cur.Current, &meta); err != nil {
			return &types.SinkError{Backend: "mongodb", Err: err}
		}
		seq, found = meta.Seq, true
		break
	}
	if err := cur.Err(); err != nil {
		return &types.SinkError{Backend: "mongodb", Err: err}
	}
	if !found {
		return &types.SinkError{Backend: "mongodb", Err: fmt.Errorf("no row matches %s/%s", match.Source, match.Property)}
	}

	set := s.doc(seq, updated)
	if _, err := s.collection.UpdateOne(ctx, bson.M{"seq": seq}, bson.M{"$set": set}); err != nil {
		return &types.SinkError{Backend: "mongodb", Err: err}
	}
	return nil
}

func (s *MongoSink) Close() error {
	s.logger.Info("mongo sink closing", "appended", s.count)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func decodeRecord(raw bson.Raw) (Record, error) {
	var doc struct {
		SaleDate   string  `bson:"saleDate"`
		FileNumber string  `bson:"fileNumber"`
		Property   string  `bson:"property"`
		City       string  `bson:"city"`
		Zip        string  `bson:"zip"`
		County     string  `bson:"county"`
		Bid        string  `bson:"bid"`
		Equity     float64 `bson:"equity"`
		OwnerFirst string  `bson:"ownerFirst"`
		OwnerLast  string  `bson:"ownerLast"`
		Source     string  `bson:"source"`
		Error      string  `bson:"error"`
		Status     string  `bson:"status"`
	}
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return Record{}, err
	}
	return Record{
		SaleDate:    doc.SaleDate,
		FileNumber:  doc.FileNumber,
		Property:    doc.Property,
		City:        doc.City,
		Zip:         doc.Zip,
		County:      doc.County,
		Bid:         doc.Bid,
		EstEquity:   doc.Equity,
		OwnerFirst:  doc.OwnerFirst,
		OwnerLast:   doc.OwnerLast,
		Source:      doc.Source,
		LookupError: doc.Error,
		Status:      doc.Status,
	}, nil
}
