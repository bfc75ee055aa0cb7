package datasource

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/simon020286/go-transforms/codec"
	"github.com/simon020286/go-transforms/models"
)

// MongoDataSource runs find queries written as JSON documents:
//
//	{"collection": "products", "filter": {"owner": "?"}, "projection": {"name": 1}, "limit": 10}
//
// Every string equal to "?" is replaced by the next parameter. Extended JSON
// ($oid, $date, ...) is accepted.
type MongoDataSource struct {
	client *mongo.Client
	dbName string
}

var _ models.QueryStepDataSource = (*MongoDataSource)(nil)

type mongoQuery struct {
	Collection string `bson:"collection"`
	Filter     bson.D `bson:"filter,omitempty"`
	Projection bson.D `bson:"projection,omitempty"`
	Sort       bson.D `bson:"sort,omitempty"`
	Limit      int64  `bson:"limit,omitempty"`
}

func OpenMongo(ctx context.Context, uri, dbName string) (*MongoDataSource, error) {
	if dbName == "" {
		return nil, &models.ConfigError{Msg: "datasource: 'database' is required for mongodb"}
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &MongoDataSource{client: client, dbName: dbName}, nil
}

func (m *MongoDataSource) FetchData(ctx context.Context, query string, params []any) ([]*models.Tree, error) {
	mq, err := parseMongoQuery(query, params)
	if err != nil {
		return nil, err
	}

	opts := options.Find()
	if mq.Projection != nil {
		opts.SetProjection(mq.Projection)
	}
	if mq.Sort != nil {
		opts.SetSort(mq.Sort)
	}
	if mq.Limit > 0 {
		opts.SetLimit(mq.Limit)
	}
	filter := mq.Filter
	if filter == nil {
		filter = bson.D{}
	}

	cursor, err := m.client.Database(m.dbName).Collection(mq.Collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	var docs []bson.D
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("read cursor: %w", err)
	}

	result := make([]*models.Tree, 0, len(docs))
	for _, doc := range docs {
		tree, err := documentTree(doc)
		if err != nil {
			return nil, err
		}
		result = append(result, tree)
	}
	return result, nil
}

// parseMongoQuery binds params and decodes the query as Extended JSON
func parseMongoQuery(query string, params []any) (*mongoQuery, error) {
	var raw any
	if err := json.Unmarshal([]byte(query), &raw); err != nil {
		return nil, fmt.Errorf("invalid query JSON: %w", err)
	}
	next := 0
	bound, err := bindParams(raw, params, &next)
	if err != nil {
		return nil, err
	}
	if next != len(params) {
		return nil, fmt.Errorf("query has %d placeholders, got %d parameters", next, len(params))
	}
	data, err := json.Marshal(bound)
	if err != nil {
		return nil, fmt.Errorf("invalid query parameters: %w", err)
	}

	var mq mongoQuery
	if err := bson.UnmarshalExtJSON(data, false, &mq); err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}
	if mq.Collection == "" {
		return nil, fmt.Errorf("query must specify 'collection'")
	}
	return &mq, nil
}

func bindParams(v any, params []any, next *int) (any, error) {
	switch x := v.(type) {
	case string:
		if x != "?" {
			return x, nil
		}
		if *next >= len(params) {
			return nil, fmt.Errorf("not enough parameters for the query placeholders")
		}
		p := params[*next]
		*next++
		return p, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			b, err := bindParams(e, params, next)
			if err != nil {
				return nil, err
			}
			out[k] = b
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			b, err := bindParams(e, params, next)
			if err != nil {
				return nil, err
			}
			out[i] = b
		}
		return out, nil
	}
	return v, nil
}

func documentTree(doc bson.D) (*models.Tree, error) {
	tree := models.NewTree()
	for _, e := range doc {
		v, err := bsonValue(e.Value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", e.Key, err)
		}
		tree.Set(e.Key, v)
	}
	return tree, nil
}

func bsonValue(v any) (models.Value, error) {
	switch x := v.(type) {
	case bson.D:
		return documentTree(x)
	case bson.A:
		list := make(models.List, 0, len(x))
		for _, e := range x {
			ev, err := bsonValue(e)
			if err != nil {
				return nil, err
			}
			list = append(list, ev)
		}
		return list, nil
	case bson.ObjectID:
		return models.String(x.Hex()), nil
	case bson.DateTime:
		return models.Int(int64(x)), nil
	case bson.Decimal128:
		return models.String(x.String()), nil
	case bson.Binary:
		return models.Bytes(x.Data), nil
	case bson.Null, bson.Undefined:
		return models.Null{}, nil
	}
	return codec.Natural(v)
}

func (m *MongoDataSource) Close() error {
	return m.client.Disconnect(context.Background())
}
