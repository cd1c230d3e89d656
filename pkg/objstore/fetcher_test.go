package objstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/eunmann/shopsight/pkg/model"
)

// memStore is an in-memory Store. Keys listed in fail return an error on
// download.
type memStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	fail      map[string]bool
	listErr   error
	downloads int
}

func (m *memStore) List(_ context.Context, prefix string) ([]Object, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []Object
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, Object{Key: k, Size: int64(len(v))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memStore) Download(_ context.Context, key, dest string) (int64, error) {
	m.mu.Lock()
	m.downloads++
	m.mu.Unlock()
	if m.fail[key] {
		return 0, fmt.Errorf("get %s: connection reset", key)
	}
	data := m.objects[key]
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

func newFetcher(t *testing.T, store Store) (*Fetcher, string) {
	t.Helper()
	dir := t.TempDir()
	return NewFetcher(store, FetchConfig{
		ArticlesPrefix:     "hm/articles/",
		TransactionsPrefix: "hm/transactions/",
		DownloadDir:        dir,
		Concurrency:        2,
	}), dir
}

func TestFetchCatalog(t *testing.T) {
	store := &memStore{objects: map[string][]byte{
		"hm/articles/README.md":      []byte("docs"),
		"hm/articles/part-1.parquet": []byte("one"),
		"hm/articles/part-2.parquet": []byte("two"),
		"hm/transactions/tx.parquet": []byte("tx"),
	}}
	f, dir := newFetcher(t, store)

	path, err := f.FetchCatalog(context.Background())
	if err != nil {
		t.Fatalf("FetchCatalog() error = %v", err)
	}
	if want := filepath.Join(dir, "articles", "part-1.parquet"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "one" {
		t.Errorf("content = %q", data)
	}

	// Second fetch hits the size-matched local copy.
	if _, err := f.FetchCatalog(context.Background()); err != nil {
		t.Fatal(err)
	}
	if store.downloads != 1 {
		t.Errorf("downloads = %d, want 1", store.downloads)
	}
}

func TestFetchCatalog_Unavailable(t *testing.T) {
	tests := []struct {
		name  string
		store *memStore
	}{
		{"list error", &memStore{listErr: errors.New("no route to host")}},
		{"no parquet", &memStore{objects: map[string][]byte{"hm/articles/a.csv": []byte("x")}}},
		{"download error", &memStore{
			objects: map[string][]byte{"hm/articles/a.parquet": []byte("x")},
			fail:    map[string]bool{"hm/articles/a.parquet": true},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, _ := newFetcher(t, tt.store)
			_, err := f.FetchCatalog(context.Background())
			if !errors.Is(err, model.ErrSourceUnavailable) {
				t.Fatalf("error = %v, want ErrSourceUnavailable", err)
			}
		})
	}
}

func TestFetchTransactions_PartialFailure(t *testing.T) {
	store := &memStore{
		objects: map[string][]byte{
			"hm/transactions/a.parquet": []byte("a"),
			"hm/transactions/b.parquet": []byte("bb"),
			"hm/transactions/c.csv.gz":  []byte("ccc"),
			"hm/transactions/notes.txt": []byte("skip"),
		},
		fail: map[string]bool{"hm/transactions/b.parquet": true},
	}
	f, dir := newFetcher(t, store)

	res, err := f.FetchTransactions(context.Background())
	if err != nil {
		t.Fatalf("FetchTransactions() error = %v", err)
	}
	want := []string{
		filepath.Join(dir, "transactions", "a.parquet"),
		filepath.Join(dir, "transactions", "c.csv.gz"),
	}
	if len(res.Paths) != len(want) || res.Paths[0] != want[0] || res.Paths[1] != want[1] {
		t.Errorf("Paths = %v, want %v", res.Paths, want)
	}
	if len(res.Failed) != 1 || res.Failed[0] != "hm/transactions/b.parquet" {
		t.Errorf("Failed = %v", res.Failed)
	}
	if res.Bytes != 4 {
		t.Errorf("Bytes = %d, want 4", res.Bytes)
	}
}

func TestFetchTransactions_AllFailed(t *testing.T) {
	store := &memStore{
		objects: map[string][]byte{"hm/transactions/a.parquet": []byte("a")},
		fail:    map[string]bool{"hm/transactions/a.parquet": true},
	}
	f, _ := newFetcher(t, store)
	if _, err := f.FetchTransactions(context.Background()); !errors.Is(err, model.ErrSourceUnavailable) {
		t.Fatalf("error = %v, want ErrSourceUnavailable", err)
	}
}

func TestFetchTransactions_MaxFiles(t *testing.T) {
	store := &memStore{objects: map[string][]byte{}}
	for i := range 5 {
		store.objects[fmt.Sprintf("hm/transactions/part-%d.parquet", i)] = []byte("x")
	}
	f, _ := newFetcher(t, store)
	f.cfg.MaxFiles = 3

	res, err := f.FetchTransactions(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Paths) != 3 {
		t.Errorf("fetched %d files, want 3", len(res.Paths))
	}
}
