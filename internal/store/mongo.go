package store

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig holds the connection settings for MongoStore.
type MongoConfig struct {
	// Host is either a bare host name, combined with Port, or a full
	// mongodb:// / mongodb+srv:// URI, in which case Port is ignored.
	Host     string
	Port     int
	Username string
	Password string
	// Database is selected right away when set.
	Database string
}

// mongoRecord is the write shape of a prompt record. _id is left to the
// driver.
type mongoRecord struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	Prefix           string             `bson:"prefix"`
	Suffix           string             `bson:"suffix"`
	PrefixTokenCount int                `bson:"prefix_token_count"`
	SuffixTokenCount int                `bson:"suffix_token_count"`
	Date             time.Time          `bson:"date"`
}

func toMongoRecord(rec Record) mongoRecord {
	return mongoRecord{
		Prefix:           rec.Prefix,
		Suffix:           rec.Suffix,
		PrefixTokenCount: rec.PrefixTokenCount,
		SuffixTokenCount: rec.SuffixTokenCount,
		Date:             rec.Date,
	}
}

// storedRecord is the read shape of a prompt record. Fields are decoded
// loosely so a document written by another tool, with a string _id or a
// numeric prefix, does not abort a scan.
type storedRecord struct {
	ID               interface{}   `bson:"_id"`
	Prefix           bson.RawValue `bson:"prefix"`
	Suffix           bson.RawValue `bson:"suffix"`
	PrefixTokenCount bson.RawValue `bson:"prefix_token_count"`
	SuffixTokenCount bson.RawValue `bson:"suffix_token_count"`
	Date             bson.RawValue `bson:"date"`
}

func (m storedRecord) record() Record {
	return Record{
		ID:               idString(m.ID),
		Prefix:           rawString(m.Prefix),
		Suffix:           rawString(m.Suffix),
		PrefixTokenCount: rawInt(m.PrefixTokenCount),
		SuffixTokenCount: rawInt(m.SuffixTokenCount),
		Date:             rawTime(m.Date),
	}
}

// rawString returns string values as is and renders any other value as
// extended JSON, which never equals plain prompt text.
func rawString(v bson.RawValue) string {
	switch v.Type {
	case 0, bson.TypeNull:
		return ""
	case bson.TypeString:
		return v.StringValue()
	}
	return v.String()
}

func rawInt(v bson.RawValue) int {
	switch v.Type {
	case bson.TypeInt32:
		return int(v.Int32())
	case bson.TypeInt64:
		return int(v.Int64())
	case bson.TypeDouble:
		return int(v.Double())
	}
	return 0
}

func rawTime(v bson.RawValue) time.Time {
	if v.Type != bson.TypeDateTime {
		return time.Time{}
	}
	return time.UnixMilli(v.DateTime()).UTC()
}

// MongoStore implements Store on top of a MongoDB deployment.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// ClientOptions translates cfg into driver client options.
func ClientOptions(cfg MongoConfig) *options.ClientOptions {
	var opts *options.ClientOptions
	if strings.HasPrefix(cfg.Host, "mongodb://") || strings.HasPrefix(cfg.Host, "mongodb+srv://") {
		opts = options.Client().ApplyURI(cfg.Host)
	} else {
		opts = options.Client().SetHosts([]string{net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))})
	}
	if cfg.Username != "" {
		opts.SetAuth(options.Credential{
			Username: cfg.Username,
			Password: cfg.Password,
		})
	}
	return opts
}

// NewMongoStore creates a client for the configured deployment. The
// connection is deferred: no server round trip happens here, so an
// unreachable or misconfigured server surfaces at the first operation.
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, ClientOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	s := NewMongoStoreFromClient(client, "")
	if cfg.Database != "" {
		if err := s.SelectDatabase(cfg.Database); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
	}
	return s, nil
}

// NewMongoStoreFromClient wraps an existing client. database may be empty.
func NewMongoStoreFromClient(client *mongo.Client, database string) *MongoStore {
	s := &MongoStore{client: client}
	if database != "" {
		s.db = client.Database(database)
	}
	return s
}

// SelectDatabase makes name the database later collections belong to.
func (s *MongoStore) SelectDatabase(name string) error {
	if name == "" {
		return fmt.Errorf("select database: empty name")
	}
	s.db = s.client.Database(name)
	return nil
}

// Database returns the selected database name, or "" before selection.
func (s *MongoStore) Database() string {
	if s.db == nil {
		return ""
	}
	return s.db.Name()
}

// Collection returns a handle to the named collection. MongoDB creates the
// collection on first write, so this never talks to the server.
func (s *MongoStore) Collection(_ context.Context, name string) (Collection, error) {
	if s.db == nil {
		return nil, ErrNoDatabase
	}
	return &mongoCollection{coll: s.db.Collection(name)}, nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

type mongoCollection struct {
	coll *mongo.Collection
}

// Name returns the collection name.
func (c *mongoCollection) Name() string { return c.coll.Name() }

// InsertOne stores rec and returns the hex ObjectID the driver assigned.
func (c *mongoCollection) InsertOne(ctx context.Context, rec Record) (string, error) {
	res, err := c.coll.InsertOne(ctx, toMongoRecord(rec))
	if err != nil {
		return "", fmt.Errorf("insert into %s: %w", c.coll.Name(), err)
	}
	return idString(res.InsertedID), nil
}

// InsertMany stores recs in one request and returns their ids in input
// order. An empty slice sends nothing.
func (c *mongoCollection) InsertMany(ctx context.Context, recs []Record) ([]string, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	docs := make([]interface{}, len(recs))
	for i, rec := range recs {
		docs[i] = toMongoRecord(rec)
	}
	res, err := c.coll.InsertMany(ctx, docs)
	if err != nil {
		return nil, fmt.Errorf("insert many into %s: %w", c.coll.Name(), err)
	}
	ids := make([]string, len(res.InsertedIDs))
	for i, id := range res.InsertedIDs {
		ids[i] = idString(id)
	}
	return ids, nil
}

// FindAll reads the whole collection in natural order.
func (c *mongoCollection) FindAll(ctx context.Context) ([]Record, error) {
	cur, err := c.coll.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", c.coll.Name(), err)
	}
	var rows []storedRecord
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("read cursor of %s: %w", c.coll.Name(), err)
	}
	recs := make([]Record, len(rows))
	for i, row := range rows {
		recs[i] = row.record()
	}
	return recs, nil
}

// DeleteMany removes the documents q selects and returns how many went.
func (c *mongoCollection) DeleteMany(ctx context.Context, q Query) (int64, error) {
	if err := q.Validate(); err != nil {
		return 0, err
	}
	filter := bson.M{}
	for k, v := range q {
		if k == "id" {
			filter["_id"] = idFilter(v.(string))
			continue
		}
		filter[k] = v
	}
	res, err := c.coll.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", c.coll.Name(), err)
	}
	return res.DeletedCount, nil
}

// idFilter matches an id as printed by idString: an ObjectID for hex ids,
// or the plain string for documents with string ids.
func idFilter(id string) interface{} {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return id
	}
	return bson.M{"$in": bson.A{oid, id}}
}

func idString(id interface{}) string {
	if oid, ok := id.(primitive.ObjectID); ok {
		return oid.Hex()
	}
	return fmt.Sprint(id)
}
