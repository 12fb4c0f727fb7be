package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/meilisearch/meilisearch-go"
)

const dateLayout = "2006-01-02T15:04:05.000Z"

// Document is the MeiliSearch-ready representation of a prompt record.
// DateUnix duplicates Date so the index can sort on it.
type Document struct {
	ID               string `json:"id"`
	Prefix           string `json:"prefix"`
	Suffix           string `json:"suffix"`
	PrefixTokenCount int    `json:"prefix_token_count"`
	SuffixTokenCount int    `json:"suffix_token_count"`
	Date             string `json:"date"`
	DateUnix         int64  `json:"date_unix"`
}

// RecordToDocument transforms a Record into a Document, generating a UUID
// when the record has no identifier yet.
func RecordToDocument(rec Record) Document {
	id := rec.ID
	if id == "" {
		id = uuid.New().String()
	}
	return Document{
		ID:               id,
		Prefix:           rec.Prefix,
		Suffix:           rec.Suffix,
		PrefixTokenCount: rec.PrefixTokenCount,
		SuffixTokenCount: rec.SuffixTokenCount,
		Date:             rec.Date.UTC().Format(dateLayout),
		DateUnix:         rec.Date.Unix(),
	}
}

// DocumentToRecord is the inverse of RecordToDocument. A date that fails to
// parse falls back to DateUnix.
func DocumentToRecord(doc Document) Record {
	date, err := time.Parse(dateLayout, doc.Date)
	if err != nil {
		date = time.Unix(doc.DateUnix, 0).UTC()
	}
	return Record{
		ID:               doc.ID,
		Prefix:           doc.Prefix,
		Suffix:           doc.Suffix,
		PrefixTokenCount: doc.PrefixTokenCount,
		SuffixTokenCount: doc.SuffixTokenCount,
		Date:             date,
	}
}

// hitToRecord decodes a raw MeiliSearch hit into a Record.
func hitToRecord(hit meilisearch.Hit) (Record, error) {
	raw, err := json.Marshal(hit)
	if err != nil {
		return Record{}, fmt.Errorf("marshal hit: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Record{}, fmt.Errorf("unmarshal hit: %w", err)
	}
	if doc.ID == "" {
		return Record{}, fmt.Errorf("document missing id field")
	}
	return DocumentToRecord(doc), nil
}

// queryFields lists the persisted field names a Query may constrain.
var queryFields = map[string]bool{
	"id":                 true,
	"prefix":             true,
	"suffix":             true,
	"prefix_token_count": true,
	"suffix_token_count": true,
}

// Validate reports an error for unknown fields or values of the wrong kind.
func (q Query) Validate() error {
	for k, v := range q {
		if !queryFields[k] {
			return fmt.Errorf("unknown query field %q", k)
		}
		switch k {
		case "prefix_token_count", "suffix_token_count":
			if _, ok := toInt64(v); !ok {
				return fmt.Errorf("query field %q: want integer, got %T", k, v)
			}
		default:
			if _, ok := v.(string); !ok {
				return fmt.Errorf("query field %q: want string, got %T", k, v)
			}
		}
	}
	return nil
}

// Matches reports whether rec satisfies every condition of q.
// The query must be valid.
func (q Query) Matches(rec Record) bool {
	for k, v := range q {
		switch k {
		case "id":
			if s, _ := v.(string); s != rec.ID {
				return false
			}
		case "prefix":
			if s, _ := v.(string); s != rec.Prefix {
				return false
			}
		case "suffix":
			if s, _ := v.(string); s != rec.Suffix {
				return false
			}
		case "prefix_token_count":
			if n, _ := toInt64(v); n != int64(rec.PrefixTokenCount) {
				return false
			}
		case "suffix_token_count":
			if n, _ := toInt64(v); n != int64(rec.SuffixTokenCount) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// matchingIDs returns the ids of the records q selects, in input order.
// The query must be valid.
func matchingIDs(recs []Record, q Query) []string {
	var ids []string
	for _, rec := range recs {
		if q.Matches(rec) {
			ids = append(ids, rec.ID)
		}
	}
	return ids
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}
