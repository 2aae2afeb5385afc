package elasticsearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/olivere/elastic/v7"

	"torrentstream/catalog/internal/domain"
	"torrentstream/catalog/internal/repository/document"
	"torrentstream/catalog/internal/search"
)

const backendName = "elasticsearch"

type Config struct {
	URLs  []string
	Index string
	Sniff bool
}

func Connect(cfg Config, extra ...elastic.ClientOptionFunc) (*elastic.Client, error) {
	opts := append([]elastic.ClientOptionFunc{
		elastic.SetURL(cfg.URLs...),
		elastic.SetSniff(cfg.Sniff),
	}, extra...)
	client, err := elastic.NewClient(opts...)
	if err != nil {
		return nil, domain.BackendUnavailable(backendName, err)
	}
	return client, nil
}

// Executor runs plans against one torrents index. It reports the total hit
// count together with each page.
type Executor struct {
	client *elastic.Client
	index  string
}

func NewExecutor(client *elastic.Client, index string) *Executor {
	return &Executor{client: client, index: index}
}

func (e *Executor) Name() string {
	return backendName
}

func (e *Executor) Count(ctx context.Context, plan search.Plan) (int64, error) {
	n, err := e.client.Count(e.index).Query(buildQuery(plan)).Do(ctx)
	if err != nil {
		return 0, domain.BackendUnavailable(backendName, err)
	}
	return n, nil
}

func (e *Executor) Fetch(ctx context.Context, plan search.Plan, offset, limit int) ([]domain.TorrentView, error) {
	items, _, err := e.FetchCounted(ctx, plan, offset, limit)
	return items, err
}

func (e *Executor) FetchCounted(ctx context.Context, plan search.Plan, offset, limit int) ([]domain.TorrentView, int64, error) {
	res, err := e.client.Search(e.index).
		SearchSource(buildSource(plan, offset, limit)).
		Do(ctx)
	if err != nil {
		return nil, 0, domain.BackendUnavailable(backendName, err)
	}

	items := make([]domain.TorrentView, 0, limit)
	if res.Hits == nil {
		return items, 0, nil
	}
	for _, hit := range res.Hits.Hits {
		var doc document.Torrent
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			return nil, 0, domain.BackendUnavailable(backendName, fmt.Errorf("decode hit %s: %w", hit.Id, err))
		}
		view := doc.View()
		if fragments := hit.Highlight[document.FieldDisplayName]; len(fragments) > 0 {
			view.Highlight = fragments[0]
		}
		items = append(items, view)
	}
	return items, res.TotalHits(), nil
}

func (e *Executor) Ping(ctx context.Context) error {
	exists, err := e.client.IndexExists(e.index).Do(ctx)
	if err != nil {
		return domain.BackendUnavailable(backendName, err)
	}
	if !exists {
		return domain.BackendUnavailable(backendName, fmt.Errorf("index %q does not exist", e.index))
	}
	return nil
}

const indexMapping = `{
  "settings": {
    "analysis": {
      "analyzer": {
        "torrent_name": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase", "asciifolding"]
        }
      }
    }
  },
  "mappings": {
    "properties": {
      "id":                 {"type": "long"},
      "info_hash":          {"type": "keyword"},
      "display_name":       {"type": "text", "analyzer": "torrent_name"},
      "filesize":           {"type": "long"},
      "created_time":       {"type": "long"},
      "uploader_id":        {"type": "long"},
      "main_category_id":   {"type": "integer"},
      "sub_category_id":    {"type": "integer"},
      "comment_count":      {"type": "integer"},
      "anonymous":          {"type": "boolean"},
      "hidden":             {"type": "boolean"},
      "trusted":            {"type": "boolean"},
      "remake":             {"type": "boolean"},
      "complete":           {"type": "boolean"},
      "deleted":            {"type": "boolean"},
      "banned":             {"type": "boolean"},
      "comment_locked":     {"type": "boolean"},
      "seed_count":         {"type": "integer"},
      "leech_count":        {"type": "integer"},
      "download_count":     {"type": "integer"},
      "stats_last_updated": {"type": "long"}
    }
  }
}`

// Indexer maintains the documents an Executor reads.
type Indexer struct {
	client  *elastic.Client
	index   string
	refresh string
}

// NewIndexer returns an indexer for index. With waitForRefresh each bulk
// request returns only once its documents are searchable.
func NewIndexer(client *elastic.Client, index string, waitForRefresh bool) *Indexer {
	ix := &Indexer{client: client, index: index}
	if waitForRefresh {
		ix.refresh = "wait_for"
	}
	return ix
}

func (ix *Indexer) EnsureIndex(ctx context.Context) error {
	exists, err := ix.client.IndexExists(ix.index).Do(ctx)
	if err != nil {
		return domain.BackendUnavailable(backendName, err)
	}
	if exists {
		return nil
	}
	if _, err := ix.client.CreateIndex(ix.index).BodyString(indexMapping).Do(ctx); err != nil {
		return domain.BackendUnavailable(backendName, err)
	}
	return nil
}

func (ix *Indexer) Index(ctx context.Context, docs []document.Torrent) error {
	if len(docs) == 0 {
		return nil
	}
	bulk := ix.client.Bulk().Index(ix.index)
	if ix.refresh != "" {
		bulk = bulk.Refresh(ix.refresh)
	}
	for _, doc := range docs {
		bulk.Add(elastic.NewBulkIndexRequest().Id(strconv.FormatInt(doc.ID, 10)).Doc(doc))
	}
	res, err := bulk.Do(ctx)
	if err != nil {
		return domain.BackendUnavailable(backendName, err)
	}
	if failed := res.Failed(); len(failed) > 0 {
		errs := make([]error, 0, len(failed))
		for _, item := range failed {
			reason := "unknown"
			if item.Error != nil {
				reason = item.Error.Reason
			}
			errs = append(errs, fmt.Errorf("document %s: %s", item.Id, reason))
		}
		return domain.BackendUnavailable(backendName, errors.Join(errs...))
	}
	return nil
}

// Delete removes one document; document.Prune calls it for purged torrents.
func (ix *Indexer) Delete(ctx context.Context, id domain.TorrentID) error {
	svc := ix.client.Delete().Index(ix.index).Id(strconv.FormatInt(int64(id), 10))
	if ix.refresh != "" {
		svc = svc.Refresh(ix.refresh)
	}
	_, err := svc.Do(ctx)
	if err != nil && !elastic.IsNotFound(err) {
		return domain.BackendUnavailable(backendName, err)
	}
	return nil
}

func (ix *Indexer) DropIndex(ctx context.Context) error {
	_, err := ix.client.DeleteIndex(ix.index).Do(ctx)
	if err != nil && !elastic.IsNotFound(err) {
		return domain.BackendUnavailable(backendName, err)
	}
	return nil
}
