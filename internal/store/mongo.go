package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"innomatch/api/internal/util"
)

const mongoCreatedField = "_created_at_ms"

// MongoStore maps each collection onto a MongoDB collection. Document ids are
// stored as the string _id.
type MongoStore struct {
	client  *mongo.Client
	db      *mongo.Database
	indexes Indexes
	now     func() time.Time
}

// NewMongoStore connects to uri and uses database.
func NewMongoStore(ctx context.Context, uri, database string, idx Indexes) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &MongoStore{client: client, db: client.Database(database), indexes: idx, now: time.Now}, nil
}

func (s *MongoStore) Create(ctx context.Context, collection string, doc Document) (string, error) {
	id := util.NewID("")
	prepared, err := prepare(merge(doc, Document{"id": id}), s.now())
	if err != nil {
		return "", err
	}
	record := toBSON(prepared)
	record["_id"] = id
	record[mongoCreatedField] = SortKey(prepared[CreatedAtField])
	if _, err := s.db.Collection(collection).InsertOne(ctx, record); err != nil {
		return "", fmt.Errorf("insert %s: %w", collection, err)
	}
	return id, nil
}

func (s *MongoStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return fromBSON(raw)
}

func (s *MongoStore) Update(ctx context.Context, collection, id string, patch Document) error {
	return s.update(ctx, collection, id, nil, patch)
}

func (s *MongoStore) UpdateIf(ctx context.Context, collection, id string, cond Filter, patch Document) error {
	return s.update(ctx, collection, id, &cond, patch)
}

func (s *MongoStore) update(ctx context.Context, collection, id string, cond *Filter, patch Document) error {
	prepared, err := prepare(patch, s.now())
	if err != nil {
		return err
	}
	delete(prepared, "id")

	coll := s.db.Collection(collection)
	set := toBSON(prepared)
	if value, ok := prepared[CreatedAtField]; ok {
		set[mongoCreatedField] = SortKey(value)
	}
	selector := bson.M{"_id": id}
	if cond != nil {
		selector[cond.Field] = plainValue(cond.Value)
	}

	matched := int64(0)
	if len(set) == 0 {
		matched, err = coll.CountDocuments(ctx, selector)
	} else {
		var res *mongo.UpdateResult
		res, err = coll.UpdateOne(ctx, selector, bson.M{"$set": set})
		if res != nil {
			matched = res.MatchedCount
		}
	}
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if matched > 0 {
		return nil
	}

	exists, err := coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if exists == 0 || cond == nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	return fmt.Errorf("update %s/%s where %s: %w", collection, id, cond.Field, ErrConflict)
}

func (s *MongoStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *MongoStore) Query(ctx context.Context, collection string, filter *Filter, order *Order) ([]Document, error) {
	if err := checkQuery(s.indexes, collection, filter, order); err != nil {
		return nil, err
	}
	opts := options.Find()
	if sort := mongoSort(order); sort != nil {
		opts.SetSort(sort)
	}
	cursor, err := s.db.Collection(collection).Find(ctx, mongoFilter(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	var raws []bson.M
	if err := cursor.All(ctx, &raws); err != nil {
		return nil, fmt.Errorf("read %s: %w", collection, err)
	}
	items := make([]Document, 0, len(raws))
	for _, raw := range raws {
		doc, err := fromBSON(raw)
		if err != nil {
			return nil, err
		}
		items = append(items, doc)
	}
	return items, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func mongoFilter(filter *Filter) bson.M {
	if filter == nil {
		return bson.M{}
	}
	return bson.M{filter.Field: plainValue(filter.Value)}
}

func mongoSort(order *Order) bson.D {
	if order == nil {
		return nil
	}
	field := order.Field
	if field == CreatedAtField {
		field = mongoCreatedField
	}
	direction := 1
	if order.Descending {
		direction = -1
	}
	return bson.D{{Key: field, Value: direction}, {Key: "_id", Value: direction}}
}

func toBSON(doc Document) bson.M {
	out := make(bson.M, len(doc))
	for k, v := range doc {
		out[k] = plainValue(v)
	}
	return out
}

// plainValue rewrites json.Number and nested documents into types the BSON
// encoder stores natively.
func plainValue(v any) any {
	switch value := v.(type) {
	case json.Number:
		if i, err := value.Int64(); err == nil {
			return i
		}
		f, _ := value.Float64()
		return f
	case Document:
		return toBSON(value)
	case map[string]any:
		return toBSON(Document(value))
	case []any:
		out := make(bson.A, len(value))
		for i, item := range value {
			out[i] = plainValue(item)
		}
		return out
	default:
		return v
	}
}

func fromBSON(raw bson.M) (Document, error) {
	delete(raw, "_id")
	delete(raw, mongoCreatedField)
	encoded, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return nil, fmt.Errorf("decode mongo document: %w", err)
	}
	return decodeDocument(encoded)
}
