package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"torrentstream/catalog/internal/domain"
	"torrentstream/catalog/internal/repository/document"
	"torrentstream/catalog/internal/search"
)

const backendName = "mongo"

// Executor serves plans from a collection of denormalised torrent documents
// with a text index on display_name.
type Executor struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewExecutor(client *mongo.Client, dbName, collectionName string) *Executor {
	return &Executor{
		client:     client,
		collection: client.Database(dbName).Collection(collectionName),
	}
}

func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	client, err := mongo.Connect(ctx, opts...)
	if err != nil {
		return nil, domain.BackendUnavailable(backendName, err)
	}
	return client, nil
}

func (e *Executor) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: document.FieldDisplayName, Value: "text"}},
			Options: options.Index().SetDefaultLanguage("none").SetName("display_name_text"),
		},
		{Keys: bson.D{{Key: document.FieldInfoHash, Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: document.FieldUploaderID, Value: 1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: document.FieldMainCategory, Value: 1}, {Key: document.FieldSubCategory, Value: 1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: document.FieldFilesize, Value: -1}}},
		{Keys: bson.D{{Key: document.FieldSeedCount, Value: -1}}},
		{Keys: bson.D{{Key: document.FieldLeechCount, Value: -1}}},
		{Keys: bson.D{{Key: document.FieldDownloadCount, Value: -1}}},
		{Keys: bson.D{{Key: document.FieldCommentCount, Value: -1}}},
	}
	if _, err := e.collection.Indexes().CreateMany(ctx, models); err != nil {
		return domain.BackendUnavailable(backendName, err)
	}
	return nil
}

func (e *Executor) Name() string {
	return backendName
}

func (e *Executor) Count(ctx context.Context, plan search.Plan) (int64, error) {
	n, err := e.collection.CountDocuments(ctx, buildFilter(plan))
	if err != nil {
		return 0, domain.BackendUnavailable(backendName, err)
	}
	return n, nil
}

func (e *Executor) Fetch(ctx context.Context, plan search.Plan, offset, limit int) ([]domain.TorrentView, error) {
	items, _, err := e.FetchCounted(ctx, plan, offset, limit)
	return items, err
}

type facetResult struct {
	Items []document.Torrent `bson:"items"`
	Total []struct {
		N int64 `bson:"n"`
	} `bson:"total"`
}

// FetchCounted returns one page and the total match count in a single
// aggregation round trip.
func (e *Executor) FetchCounted(ctx context.Context, plan search.Plan, offset, limit int) ([]domain.TorrentView, int64, error) {
	if limit <= 0 {
		n, err := e.Count(ctx, plan)
		return []domain.TorrentView{}, n, err
	}

	cursor, err := e.collection.Aggregate(ctx, buildPipeline(plan, offset, limit))
	if err != nil {
		return nil, 0, domain.BackendUnavailable(backendName, err)
	}
	defer cursor.Close(ctx)

	var results []facetResult
	if err := cursor.All(ctx, &results); err != nil {
		return nil, 0, domain.BackendUnavailable(backendName, err)
	}

	items := make([]domain.TorrentView, 0, limit)
	if len(results) == 0 {
		return items, 0, nil
	}
	var hl *highlighter
	if plan.Highlight && plan.HasTerm() {
		hl = newHighlighter(plan.Document)
	}
	for _, doc := range results[0].Items {
		view := doc.View()
		if hl != nil {
			view.Highlight = hl.apply(view.DisplayName)
		}
		items = append(items, view)
	}
	var total int64
	if len(results[0].Total) > 0 {
		total = results[0].Total[0].N
	}
	return items, total, nil
}

func buildPipeline(plan search.Plan, offset, limit int) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: buildFilter(plan)}},
		{{Key: "$facet", Value: bson.D{
			{Key: "items", Value: bson.A{
				bson.D{{Key: "$sort", Value: sortDoc(plan)}},
				bson.D{{Key: "$skip", Value: int64(offset)}},
				bson.D{{Key: "$limit", Value: int64(limit)}},
			}},
			{Key: "total", Value: bson.A{
				bson.D{{Key: "$count", Value: "n"}},
			}},
		}}},
	}
}

func (e *Executor) Ping(ctx context.Context) error {
	if err := e.client.Ping(ctx, readpref.Primary()); err != nil {
		return domain.BackendUnavailable(backendName, err)
	}
	return nil
}

// Index upserts docs by id.
func (e *Executor) Index(ctx context.Context, docs []document.Torrent) error {
	if len(docs) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(docs))
	for _, doc := range docs {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": doc.ID}).
			SetReplacement(doc).
			SetUpsert(true))
	}
	if _, err := e.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return domain.BackendUnavailable(backendName, fmt.Errorf("upsert %d documents: %w", len(docs), err))
	}
	return nil
}

func (e *Executor) Delete(ctx context.Context, id domain.TorrentID) error {
	if _, err := e.collection.DeleteOne(ctx, bson.M{"_id": int64(id)}); err != nil {
		return domain.BackendUnavailable(backendName, err)
	}
	return nil
}
