// Package batch implements the prompt sync job: it walks the prompts tree
// one namespace at a time and inserts the prompts the store does not have
// yet.
package batch

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"prompt-sync/internal/promptfile"
	"prompt-sync/internal/store"
	"prompt-sync/internal/tokenizer"
)

// Options controls a run.
type Options struct {
	// Root is the prompts directory holding one subdirectory per namespace.
	Root string

	Dedup DedupMode

	// TrackInserted adds each inserted prompt to the namespace snapshot, so
	// two identical files in one run produce one record. By default the
	// snapshot is taken once per namespace and never refreshed.
	TrackInserted bool

	// Batch inserts a namespace's new records with a single InsertMany
	// after all of its files have been read.
	Batch bool

	// Now stamps inserted records. Defaults to time.Now.
	Now func() time.Time

	// Out receives one line per inserted record. Defaults to io.Discard.
	Out io.Writer
}

// NamespaceSummary counts what happened in one namespace.
type NamespaceSummary struct {
	Namespace string
	Existing  int
	Files     int
	Inserted  int
	Skipped   int
}

// Summary is the outcome of a run. After an error it covers the work done
// up to the failure.
type Summary struct {
	Namespaces []NamespaceSummary
}

// Inserted is the total number of records inserted.
func (s Summary) Inserted() int {
	n := 0
	for _, ns := range s.Namespaces {
		n += ns.Inserted
	}
	return n
}

// Skipped is the total number of files skipped as duplicates.
func (s Summary) Skipped() int {
	n := 0
	for _, ns := range s.Namespaces {
		n += ns.Skipped
	}
	return n
}

// Files is the total number of files read.
func (s Summary) Files() int {
	n := 0
	for _, ns := range s.Namespaces {
		n += ns.Files
	}
	return n
}

// Driver runs the sync job against a store and a tokenizer.
type Driver struct {
	store store.Store
	enc   tokenizer.Encoder
	log   *zap.Logger
	opts  Options
}

// New creates a Driver. A nil logger disables logging.
func New(s store.Store, enc tokenizer.Encoder, log *zap.Logger, opts Options) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.Dedup == "" {
		opts.Dedup = DedupFields
	}
	return &Driver{store: s, enc: enc, log: log, opts: opts}
}

// Run processes every namespace under Root in lexicographic order. The
// first error aborts the run.
func (d *Driver) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	namespaces, err := Namespaces(d.opts.Root)
	if err != nil {
		return sum, err
	}

	for _, ns := range namespaces {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		nsSum, err := d.syncNamespace(ctx, ns)
		sum.Namespaces = append(sum.Namespaces, nsSum)
		if err != nil {
			return sum, fmt.Errorf("namespace %s: %w", ns, err)
		}
	}
	return sum, nil
}

// pending is a record waiting for a batched insert, with its source file.
type pending struct {
	path string
	rec  store.Record
}

func (d *Driver) syncNamespace(ctx context.Context, ns string) (NamespaceSummary, error) {
	sum := NamespaceSummary{Namespace: ns}

	coll, err := d.store.Collection(ctx, ns)
	if err != nil {
		return sum, err
	}
	existing, err := coll.FindAll(ctx)
	if err != nil {
		return sum, err
	}
	sum.Existing = len(existing)
	snap := NewSnapshot(d.opts.Dedup, existing)

	d.log.Info("Syncing namespace",
		zap.String("namespace", ns),
		zap.String("collection", d.target(coll)),
		zap.Int("existing", sum.Existing),
	)

	files, err := Files(filepath.Join(d.opts.Root, ns))
	if err != nil {
		return sum, err
	}

	var batch []pending
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		src, err := promptfile.Parse(path)
		if err != nil {
			return sum, err
		}
		sum.Files++

		if snap.Contains(src.Prefix, src.Suffix) {
			sum.Skipped++
			d.log.Debug("Skipping known prompt", zap.String("file", path))
			continue
		}

		rec := d.newRecord(src)
		if d.opts.TrackInserted {
			snap.Add(rec.Prefix, rec.Suffix)
		}

		if d.opts.Batch {
			batch = append(batch, pending{path: path, rec: rec})
			continue
		}

		id, err := coll.InsertOne(ctx, rec)
		if err != nil {
			return sum, fmt.Errorf("%s: %w", path, err)
		}
		sum.Inserted++
		d.reportInsert(coll, path, id)
	}

	if len(batch) > 0 {
		recs := make([]store.Record, len(batch))
		for i, p := range batch {
			recs[i] = p.rec
		}
		ids, err := coll.InsertMany(ctx, recs)
		if err != nil {
			return sum, err
		}
		if len(ids) != len(batch) {
			return sum, fmt.Errorf("insert many: got %d ids for %d records", len(ids), len(batch))
		}
		for i, p := range batch {
			sum.Inserted++
			d.reportInsert(coll, p.path, ids[i])
		}
	}

	d.log.Info("Namespace done",
		zap.String("namespace", ns),
		zap.Int("files", sum.Files),
		zap.Int("inserted", sum.Inserted),
		zap.Int("skipped", sum.Skipped),
	)
	return sum, nil
}

// newRecord derives the token counts and stamps the insertion time.
func (d *Driver) newRecord(src promptfile.Source) store.Record {
	return store.Record{
		Prefix:           src.Prefix,
		Suffix:           src.Suffix,
		PrefixTokenCount: tokenizer.Count(d.enc, src.Prefix),
		SuffixTokenCount: tokenizer.Count(d.enc, src.Suffix),
		Date:             d.opts.Now(),
	}
}

func (d *Driver) reportInsert(coll store.Collection, path, id string) {
	fmt.Fprintf(d.opts.Out, "Inserted %s into %s: %s\n", path, d.target(coll), id)
	d.log.Debug("Inserted prompt",
		zap.String("file", path),
		zap.String("collection", d.target(coll)),
		zap.String("id", id),
	)
}

// target names a collection as <database>.<collection>.
func (d *Driver) target(coll store.Collection) string {
	return d.store.Database() + "." + coll.Name()
}

// Purge deletes the records of one namespace that match q and returns how
// many were removed. An empty query removes every record.
func (d *Driver) Purge(ctx context.Context, ns string, q store.Query) (int64, error) {
	coll, err := d.store.Collection(ctx, ns)
	if err != nil {
		return 0, err
	}
	n, err := coll.DeleteMany(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("namespace %s: %w", ns, err)
	}
	d.log.Info("Purged namespace",
		zap.String("collection", d.target(coll)),
		zap.Int64("deleted", n),
	)
	return n, nil
}
