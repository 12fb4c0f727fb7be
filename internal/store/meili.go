package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/meilisearch/meilisearch-go"
)

const (
	meiliPageSize     = 1000
	meiliPollInterval = 100 * time.Millisecond
	meiliMaxUIDLength = 400
)

// MeiliStore implements Store using MeiliSearch as the backend. There is
// no database concept in MeiliSearch, so a collection maps to the index
// "<database>-<collection>".
type MeiliStore struct {
	client   meilisearch.ServiceManager
	database string
}

// NewMeiliStore creates a MeiliStore connected to the given MeiliSearch
// instance and selects database when it is not empty. Unlike the Mongo
// backend it verifies connectivity up front with a health check.
func NewMeiliStore(endpoint, apiKey, database string) (*MeiliStore, error) {
	client := meilisearch.New(endpoint, meilisearch.WithAPIKey(apiKey))

	if !client.IsHealthy() {
		return nil, fmt.Errorf("meilisearch at %s is not healthy", endpoint)
	}

	s := &MeiliStore{client: client}
	if database != "" {
		if err := s.SelectDatabase(database); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// SelectDatabase sets the index name prefix for later collections.
func (s *MeiliStore) SelectDatabase(name string) error {
	if name == "" {
		return fmt.Errorf("select database: empty name")
	}
	s.database = name
	return nil
}

// Database returns the selected database name.
func (s *MeiliStore) Database() string {
	return s.database
}

// Collection ensures the backing index exists with filterable prefix and
// suffix attributes, waiting for each settings task before returning.
// CreateIndex is idempotent, so repeated calls are safe.
func (s *MeiliStore) Collection(ctx context.Context, name string) (Collection, error) {
	if s.database == "" {
		return nil, ErrNoDatabase
	}
	uid := IndexUID(s.database, name)
	if len(uid) > meiliMaxUIDLength {
		return nil, fmt.Errorf("collection %q: index uid longer than %d bytes", name, meiliMaxUIDLength)
	}

	_, err := s.client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        uid,
		PrimaryKey: "id",
	})
	if err != nil {
		return nil, fmt.Errorf("create index %q: %w", uid, err)
	}
	index := s.client.Index(uid)

	// FilterableAttributes uses []interface{} per the SDK's API.
	filterAttrs := []interface{}{"prefix", "suffix", "prefix_token_count", "suffix_token_count"}
	taskInfo, err := index.UpdateFilterableAttributes(&filterAttrs)
	if err != nil {
		return nil, fmt.Errorf("update filterable attributes: %w", err)
	}
	if err := waitForTask(s.client, taskInfo, "filterable attributes"); err != nil {
		return nil, err
	}

	taskInfo, err = index.UpdateSortableAttributes(&[]string{"date_unix"})
	if err != nil {
		return nil, fmt.Errorf("update sortable attributes: %w", err)
	}
	if err := waitForTask(s.client, taskInfo, "sortable attributes"); err != nil {
		return nil, err
	}

	return &meiliCollection{client: s.client, index: index, uid: uid, name: name}, nil
}

// Close is a no-op; the SDK's HTTP client holds nothing to release.
func (s *MeiliStore) Close(context.Context) error {
	return nil
}

// IndexUID builds the MeiliSearch index uid for a database/collection pair
// as "<database>-<collection>". Bytes other than ASCII letters and digits
// are written as "_xx" (lowercase hex) in both parts, so distinct pairs
// never share an index.
func IndexUID(database, collection string) string {
	return escapeUID(database) + "-" + escapeUID(collection)
}

func escapeUID(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "_%02x", c)
	}
	return b.String()
}

// waitForTask waits for an asynchronous task to complete.
func waitForTask(client meilisearch.ServiceManager, taskInfo *meilisearch.TaskInfo, name string) error {
	task, err := client.WaitForTask(taskInfo.TaskUID, meiliPollInterval)
	if err != nil {
		return fmt.Errorf("wait for %s: %w", name, err)
	}
	if task.Status == meilisearch.TaskStatusFailed {
		return fmt.Errorf("%s task failed: %s", name, task.Error.Message)
	}
	return nil
}

type meiliCollection struct {
	client meilisearch.ServiceManager
	index  meilisearch.IndexManager
	uid    string
	name   string
}

// Name returns the collection name, not the index uid.
func (c *meiliCollection) Name() string { return c.name }

// InsertOne adds a single document and waits until MeiliSearch has indexed
// it, so a following FindAll observes the record.
func (c *meiliCollection) InsertOne(ctx context.Context, rec Record) (string, error) {
	ids, err := c.InsertMany(ctx, []Record{rec})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// InsertMany adds recs as one batch and waits for the indexing task.
func (c *meiliCollection) InsertMany(ctx context.Context, recs []Record) ([]string, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	docs := make([]Document, len(recs))
	ids := make([]string, len(recs))
	for i, rec := range recs {
		docs[i] = RecordToDocument(rec)
		ids[i] = docs[i].ID
	}

	pk := "id"
	taskInfo, err := c.index.AddDocumentsWithContext(ctx, docs, &meilisearch.DocumentOptions{
		PrimaryKey: &pk,
	})
	if err != nil {
		return nil, fmt.Errorf("add documents to %s: %w", c.uid, err)
	}
	if err := waitForTask(c.client, taskInfo, "add documents"); err != nil {
		return nil, err
	}
	return ids, nil
}

// FindAll reads every document of the index in pages of meiliPageSize.
func (c *meiliCollection) FindAll(ctx context.Context) ([]Record, error) {
	var recs []Record
	offset := int64(0)

	for {
		var result meilisearch.DocumentsResult
		err := c.index.GetDocumentsWithContext(ctx, &meilisearch.DocumentsQuery{
			Offset: offset,
			Limit:  meiliPageSize,
		}, &result)
		if err != nil {
			return nil, fmt.Errorf("get documents at offset %d: %w", offset, err)
		}

		for _, hit := range result.Results {
			rec, err := hitToRecord(hit)
			if err != nil {
				return nil, fmt.Errorf("decode document at offset %d: %w", offset, err)
			}
			recs = append(recs, rec)
		}

		offset += int64(len(result.Results))
		if len(result.Results) == 0 || offset >= result.Total {
			break
		}
	}

	return recs, nil
}

// DeleteMany deletes the documents q selects, by id. Selection is
// Query.Matches (exact, case-sensitive), so the count returned is the
// number of documents removed. An empty query deletes every document.
func (c *meiliCollection) DeleteMany(ctx context.Context, q Query) (int64, error) {
	if err := q.Validate(); err != nil {
		return 0, err
	}

	all, err := c.FindAll(ctx)
	if err != nil {
		return 0, err
	}
	ids := matchingIDs(all, q)
	if len(ids) == 0 {
		return 0, nil
	}

	taskInfo, err := c.index.DeleteDocumentsWithContext(ctx, ids, nil)
	if err != nil {
		return 0, fmt.Errorf("delete documents from %s: %w", c.uid, err)
	}
	if err := waitForTask(c.client, taskInfo, "delete documents"); err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}
