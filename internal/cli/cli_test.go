package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prompt-sync/internal/config"
	"prompt-sync/internal/store"
	"prompt-sync/internal/tokenizer"
)

var settingKeys = []string{
	"MONGODB_URL", "MONGODB_PORT", "MONGODB_USER", "MONGODB_PASSWORD",
	"MEILI_URL", "MEILI_KEY", "STORE_BACKEND",
	"TOKENIZER", "TOKENIZER_ENCODING", "PROMPTS_DIR", "LOG_LEVEL", "LOG_ENCODING",
}

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, k := range settingKeys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

// memStore is an in-memory store.Store keyed by database and collection.
type memStore struct {
	db     string
	data   map[string][]store.Record
	closed bool
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]store.Record{}}
}

func (s *memStore) SelectDatabase(name string) error {
	s.db = name
	return nil
}

func (s *memStore) Database() string { return s.db }

func (s *memStore) Collection(_ context.Context, name string) (store.Collection, error) {
	if s.db == "" {
		return nil, store.ErrNoDatabase
	}
	return &memCollection{s: s, key: s.db + "." + name, name: name}, nil
}

func (s *memStore) Close(context.Context) error {
	s.closed = true
	return nil
}

type memCollection struct {
	s    *memStore
	key  string
	name string
}

func (c *memCollection) Name() string { return c.name }

func (c *memCollection) InsertOne(_ context.Context, rec store.Record) (string, error) {
	rec.ID = fmt.Sprintf("id-%d", len(c.s.data[c.key])+1)
	c.s.data[c.key] = append(c.s.data[c.key], rec)
	return rec.ID, nil
}

func (c *memCollection) InsertMany(ctx context.Context, recs []store.Record) ([]string, error) {
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		id, _ := c.InsertOne(ctx, rec)
		ids = append(ids, id)
	}
	return ids, nil
}

func (c *memCollection) FindAll(context.Context) ([]store.Record, error) {
	return append([]store.Record(nil), c.s.data[c.key]...), nil
}

func (c *memCollection) DeleteMany(_ context.Context, q store.Query) (int64, error) {
	if err := q.Validate(); err != nil {
		return 0, err
	}
	var kept []store.Record
	var n int64
	for _, rec := range c.s.data[c.key] {
		if q.Matches(rec) {
			n++
			continue
		}
		kept = append(kept, rec)
	}
	c.s.data[c.key] = kept
	return n, nil
}

// runeEncoder yields one token per rune.
type runeEncoder struct{}

func (runeEncoder) Encode(text string) []int {
	ids := make([]int, 0, len(text))
	for _, r := range text {
		ids = append(ids, int(r))
	}
	return ids
}

type fixture struct {
	dir     string
	prompts string
	store   *memStore
	deps    deps
	opened  *config.Config
}

// newFixture writes a settings file for env "test" whose prompts root is a
// fresh directory, and injects an in-memory store and tokenizer.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	isolateEnv(t)

	f := &fixture{dir: t.TempDir(), store: newMemStore()}
	f.prompts = filepath.Join(f.dir, "prompts")
	require.NoError(t, os.MkdirAll(f.prompts, 0o755))

	settings := fmt.Sprintf(`MONGODB_URL=localhost
MONGODB_PORT=27017
MONGODB_USER=sync
MONGODB_PASSWORD=s3cret
TOKENIZER=/models/test.tiktoken
PROMPTS_DIR=%s
LOG_LEVEL=error
`, f.prompts)
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, ".env.test"), []byte(settings), 0o600))

	f.deps = deps{
		openStore: func(_ context.Context, cfg *config.Config) (store.Store, error) {
			f.opened = cfg
			return f.store, nil
		},
		loadTokenizer: func(path, encoding string) (tokenizer.Encoder, error) {
			return runeEncoder{}, nil
		},
	}
	return f
}

func (f *fixture) writePrompt(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(f.prompts, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func (f *fixture) execute(args ...string) (stdout, stderr string, err error) {
	cmd := newRootCommand("test", f.deps)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--env", "test", "--config-dir", f.dir}, args...))
	err = cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand("v0.1.0")
	require.NotNil(t, cmd)
	assert.Equal(t, "prompt-sync", cmd.Use)
	assert.Equal(t, "v0.1.0", cmd.Version)

	purge, _, err := cmd.Find([]string{"purge"})
	require.NoError(t, err)
	assert.Equal(t, "purge", purge.Name())
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand("dev")

	env := cmd.PersistentFlags().Lookup("env")
	require.NotNil(t, env)
	assert.Equal(t, "development", env.DefValue)

	dir := cmd.PersistentFlags().Lookup("config-dir")
	require.NotNil(t, dir)
	assert.Equal(t, ".", dir.DefValue)

	for _, name := range []string{"root", "dedup", "track-inserted", "batch"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
}

func TestSync_InsertsAndPrintsOneLinePerRecord(t *testing.T) {
	f := newFixture(t)
	f.writePrompt(t, "acme/a.yaml", "prefix: Hello\nsuffix: World\n")
	f.writePrompt(t, "acme/b.yaml", "prefix: Good\nsuffix: night\n")

	stdout, stderr, err := f.execute()
	require.NoError(t, err)

	assert.Equal(t, "mongo", f.opened.StoreBackend)
	assert.Equal(t, "test_prompts", f.store.Database())
	assert.True(t, f.store.closed)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, fmt.Sprintf("Inserted %s into test_prompts.acme: id-1", filepath.Join(f.prompts, "acme", "a.yaml")), lines[0])
	assert.Equal(t, fmt.Sprintf("Inserted %s into test_prompts.acme: id-2", filepath.Join(f.prompts, "acme", "b.yaml")), lines[1])

	recs := f.store.data["test_prompts.acme"]
	require.Len(t, recs, 2)
	assert.Equal(t, 5, recs[0].PrefixTokenCount)
	assert.Equal(t, 5, recs[0].SuffixTokenCount)

	assert.Contains(t, stderr, "prompt-sync test")
	assert.Contains(t, stderr, "test_prompts")

	// A second run finds everything stored.
	stdout, _, err = f.execute()
	require.NoError(t, err)
	assert.Empty(t, stdout)
	assert.Len(t, f.store.data["test_prompts.acme"], 2)
}

func TestSync_RootFlagOverridesSettings(t *testing.T) {
	f := newFixture(t)
	other := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(other, "beta"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(other, "beta", "p.yaml"), []byte("prefix: a\nsuffix: b\n"), 0o644))
	f.writePrompt(t, "acme/a.yaml", "prefix: Hello\nsuffix: World\n")

	stdout, _, err := f.execute("--root", other)
	require.NoError(t, err)

	assert.Contains(t, stdout, "test_prompts.beta")
	assert.NotContains(t, stdout, "acme")
}

func TestSync_MalformedFileFails(t *testing.T) {
	f := newFixture(t)
	f.writePrompt(t, "acme/a.yaml", "prefix: only\n")

	stdout, stderr, err := f.execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "suffix")
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "Stopped")
}

func TestSync_InvalidDedupMode(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.execute("--dedup", "exact")
	require.Error(t, err)
	assert.Nil(t, f.opened, "no store is opened for bad flags")
}

func TestSync_MissingSettingsFile(t *testing.T) {
	f := newFixture(t)

	cmd := newRootCommand("test", f.deps)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--env", "staging", "--config-dir", f.dir})

	err := cmd.ExecuteContext(context.Background())
	assert.ErrorIs(t, err, config.ErrSettingsNotFound)
}

func TestSync_StoreOpenFailure(t *testing.T) {
	f := newFixture(t)
	errDown := errors.New("server selection timeout")
	f.deps.openStore = func(context.Context, *config.Config) (store.Store, error) {
		return nil, errDown
	}

	_, _, err := f.execute()
	assert.ErrorIs(t, err, errDown)
}

func TestSync_TokenizerFailure(t *testing.T) {
	f := newFixture(t)
	f.deps.loadTokenizer = func(string, string) (tokenizer.Encoder, error) {
		return nil, os.ErrNotExist
	}

	_, _, err := f.execute()
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.True(t, f.store.closed)
}

func TestPurge_RequiresConfirmation(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.execute("purge", "acme")
	assert.ErrorIs(t, err, errNotConfirmed)
	assert.Nil(t, f.opened)
}

func TestPurge_DeletesMatchingRecords(t *testing.T) {
	f := newFixture(t)
	f.store.data["test_prompts.acme"] = []store.Record{
		{ID: "1", Prefix: "X", Suffix: "Y"},
		{ID: "2", Prefix: "X", Suffix: "Z"},
		{ID: "3", Prefix: "W", Suffix: "Y"},
	}

	_, stderr, err := f.execute("purge", "acme", "--prefix", "X", "--suffix", "Z", "--yes")
	require.NoError(t, err)
	assert.Len(t, f.store.data["test_prompts.acme"], 2)
	assert.Contains(t, stderr, "test_prompts.acme")

	_, _, err = f.execute("purge", "acme", "--yes")
	require.NoError(t, err)
	assert.Empty(t, f.store.data["test_prompts.acme"])
}
