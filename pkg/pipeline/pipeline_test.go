package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/eunmann/shopsight/pkg/model"
	"github.com/eunmann/shopsight/pkg/synth"
	"github.com/eunmann/shopsight/pkg/sysmem"
	"github.com/eunmann/shopsight/pkg/tablestore"
	"github.com/shopspring/decimal"
)

const catalogCSV = `article_id,prod_name,product_type_name,department_name
108775001,Strap top,Vest top,Jersey Basic
108775044,Strap top (1),Vest top,Jersey Basic
110065001,OP T-shirt,Bra,Clean Lingerie
999999999,Never sold,Socks,Socks
`

const transactionsCSV = `t_dat,customer_id,article_id,price
2024-01-01,c1,0108775001,10.00
2024-01-01,c2,0108775001,10.00
2024-01-02,c3,0110065001,5.50
2024-01-01,c4,0108775001,12.00
2024-01-01,c5,0108775001,abc
2024-01-02,c6,0110065001,4.50
2024-01-03,c7,0108775001,11.00
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testConfig() Config {
	return Config{
		BatchSize:         2,
		MemoryFraction:    0.25,
		TargetCount:       150,
		PerCategoryQuota:  10,
		SyntheticProducts: 2,
		SyntheticDays:     14,
		SyntheticEnd:      model.NewDate(2024, 3, 31),
		Seed:              42,
	}
}

func newStore(t *testing.T) *tablestore.Store {
	t.Helper()
	s, err := tablestore.Open(filepath.Join(t.TempDir(), "data"), tablestore.Options{KeepGenerations: 5})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func localFixture(t *testing.T) LocalSources {
	dir := t.TempDir()
	return LocalSources{
		ArticlesPath:      writeFile(t, dir, "articles.csv", catalogCSV),
		TransactionsPaths: []string{writeFile(t, dir, "transactions.csv", transactionsCSV)},
	}
}

func TestRun_Aggregated(t *testing.T) {
	store := newStore(t)
	rep, err := New(testConfig(), localFixture(t), store).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rep.Method != model.ProvenanceAggregated || rep.Note != "" {
		t.Errorf("method = %s (%q), want aggregated", rep.Method, rep.Note)
	}
	if rep.CatalogProducts != 4 || rep.Rows != 6 || rep.SkippedRows != 1 {
		t.Errorf("report = %+v", rep)
	}
	if rep.Selected != 2 || rep.KeptRows != 6 {
		t.Errorf("selected = %d, kept = %d", rep.Selected, rep.KeptRows)
	}

	g, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if g.Manifest.Provenance != model.ProvenanceAggregated || g.Manifest.RunID != rep.RunID {
		t.Errorf("manifest = %+v", g.Manifest)
	}

	// Products without transactions are filtered out.
	if len(g.Products) != 2 || g.Products[0].ArticleID != "0108775001" || g.Products[1].ArticleID != "0110065001" {
		t.Fatalf("products = %+v", g.Products)
	}

	want := []model.SalesRow{
		{ArticleID: "0108775001", Date: model.NewDate(2024, 1, 1), TotalRevenue: decimal.RequireFromString("32"), AvgPrice: decimal.RequireFromString("10.66666667"), UnitsSold: 3},
		{ArticleID: "0108775001", Date: model.NewDate(2024, 1, 3), TotalRevenue: decimal.RequireFromString("11"), AvgPrice: decimal.RequireFromString("11"), UnitsSold: 1},
		{ArticleID: "0110065001", Date: model.NewDate(2024, 1, 2), TotalRevenue: decimal.RequireFromString("10"), AvgPrice: decimal.RequireFromString("5"), UnitsSold: 2},
	}
	if len(g.Sales) != len(want) {
		t.Fatalf("sales = %+v", g.Sales)
	}
	var units int64
	for i, w := range want {
		got := g.Sales[i]
		if got.Key() != w.Key() || got.UnitsSold != w.UnitsSold ||
			!got.TotalRevenue.Equal(w.TotalRevenue) || !got.AvgPrice.Equal(w.AvgPrice) {
			t.Errorf("sales[%d] = %+v, want %+v", i, got, w)
		}
		units += got.UnitsSold
	}
	if units != rep.KeptRows {
		t.Errorf("units sold %d != kept rows %d", units, rep.KeptRows)
	}
}

func TestRun_TargetCountBoundsSelection(t *testing.T) {
	store := newStore(t)
	cfg := testConfig()
	cfg.TargetCount = 1
	rep, err := New(cfg, localFixture(t), store).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Selected != 1 || rep.Products != 1 {
		t.Fatalf("selected = %d, products = %d", rep.Selected, rep.Products)
	}
	products, err := store.LoadProducts()
	if err != nil {
		t.Fatal(err)
	}
	if products[0].ArticleID != "0108775001" {
		t.Errorf("selected %s, want the top Vest top product", products[0].ArticleID)
	}
}

func TestRun_Idempotent(t *testing.T) {
	store := newStore(t)
	src := localFixture(t)
	for range 2 {
		if _, err := New(testConfig(), src, store).Run(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	ids, err := store.Generations()
	if err != nil || len(ids) != 2 {
		t.Fatalf("generations = %v, %v", ids, err)
	}
	a, err := store.LoadGeneration(ids[0])
	if err != nil {
		t.Fatal(err)
	}
	b, err := store.LoadGeneration(ids[1])
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"products.parquet", "sales.parquet"} {
		if a.Manifest.Files[name].Checksum != b.Manifest.Files[name].Checksum {
			t.Errorf("%s differs between runs on identical input", name)
		}
	}
}

func TestRun_SyntheticWhenTransactionsMissing(t *testing.T) {
	store := newStore(t)
	src := localFixture(t)
	src.TransactionsPaths = []string{filepath.Join(t.TempDir(), "missing.csv")}

	rep, err := New(testConfig(), src, store).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Method != model.ProvenanceSynthetic || rep.Note == "" {
		t.Errorf("method = %s (%q), want synthetic with a note", rep.Method, rep.Note)
	}
	g, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if g.Manifest.Provenance != model.ProvenanceSynthetic {
		t.Errorf("provenance = %s", g.Manifest.Provenance)
	}
	allowed := map[string]bool{"0108775001": true, "0108775044": true}
	for _, r := range g.Sales {
		if !allowed[r.ArticleID] {
			t.Fatalf("synthetic row for %s outside the first %d catalog products", r.ArticleID, testConfig().SyntheticProducts)
		}
		if r.Date > testConfig().SyntheticEnd {
			t.Fatalf("row dated %s after end date", r.Date)
		}
	}
	if len(g.Products) == 0 || len(g.Products) > 2 {
		t.Errorf("products = %d", len(g.Products))
	}
}

func TestRun_DemoWhenNothingAvailable(t *testing.T) {
	store := newStore(t)
	rep, err := New(testConfig(), LocalSources{}, store).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Method != model.ProvenanceSyntheticDemo {
		t.Fatalf("method = %s, want synthetic_demo", rep.Method)
	}
	demo := make(map[string]bool)
	for _, p := range synth.DemoCatalog() {
		demo[p.ArticleID] = true
	}
	products, err := store.LoadProducts()
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range products {
		if !demo[p.ArticleID] {
			t.Errorf("unexpected product %s", p.ArticleID)
		}
	}
}

func TestRun_SchemaMismatchAborts(t *testing.T) {
	store := newStore(t)
	src := localFixture(t)
	src.TransactionsPaths = []string{writeFile(t, t.TempDir(), "tx.csv", "t_dat,article_id\n2024-01-01,0108775001\n")}

	_, err := New(testConfig(), src, store).Run(context.Background())
	if !errors.Is(err, model.ErrSchemaMismatch) {
		t.Fatalf("Run() error = %v, want ErrSchemaMismatch", err)
	}
	if _, err := store.Current(); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("a generation was written after an aborted run: %v", err)
	}
}

func TestRun_NoRevenuePersistsEmptyTables(t *testing.T) {
	store := newStore(t)
	src := localFixture(t)
	src.TransactionsPaths = []string{writeFile(t, t.TempDir(), "tx.csv", "t_dat,article_id,price\n2024-01-01,0555555555,3.00\n")}

	rep, err := New(testConfig(), src, store).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Method != model.ProvenanceAggregated || rep.Products != 0 || rep.Sales != 0 {
		t.Errorf("report = %+v", rep)
	}
}

func TestBatchSize_CappedByMemory(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 100_000
	cfg.MemoryFraction = 1
	p := New(cfg, LocalSources{}, nil)
	p.memory = func() sysmem.Result { return sysmem.Result{TotalBytes: bytesPerRow * 5_000, Detected: true} }

	if got := p.batchSize(context.Background()); got != 5_000 {
		t.Errorf("batchSize() = %d, want 5000", got)
	}

	p.memory = func() sysmem.Result { return sysmem.Result{TotalBytes: 1 << 40, Detected: true} }
	if got := p.batchSize(context.Background()); got != 100_000 {
		t.Errorf("batchSize() = %d, want configured 100000", got)
	}
}

// cancelingSources cancels the run while one of its lookups is in flight and
// reports the failure the way a remote download does.
type cancelingSources struct {
	LocalSources
	stage  string
	cancel context.CancelFunc
}

func (c cancelingSources) Catalog(ctx context.Context) (string, error) {
	if c.stage == "catalog" {
		c.cancel()
		return "", fmt.Errorf("%w: download articles: %w", model.ErrSourceUnavailable, ctx.Err())
	}
	return c.LocalSources.Catalog(ctx)
}

func (c cancelingSources) Transactions(ctx context.Context) ([]string, error) {
	if c.stage == "transactions" {
		c.cancel()
		return nil, fmt.Errorf("%w: download transactions: %w", model.ErrSourceUnavailable, ctx.Err())
	}
	return c.LocalSources.Transactions(ctx)
}

func TestRun_CanceledKeepsPreviousGeneration(t *testing.T) {
	for _, stage := range []string{"catalog", "transactions"} {
		t.Run(stage, func(t *testing.T) {
			store := newStore(t)
			src := localFixture(t)
			first, err := New(testConfig(), src, store).Run(context.Background())
			if err != nil {
				t.Fatal(err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			rep, err := New(testConfig(), cancelingSources{LocalSources: src, stage: stage, cancel: cancel}, store).Run(ctx)
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("Run() error = %v, want context.Canceled", err)
			}
			if rep.Method != "" {
				t.Errorf("method = %s after cancellation", rep.Method)
			}
			m, err := store.Manifest()
			if err != nil {
				t.Fatal(err)
			}
			if m.Provenance != model.ProvenanceAggregated || m.RunID != first.RunID {
				t.Errorf("current manifest = %s/%s, want the earlier aggregated run %s", m.Provenance, m.RunID, first.RunID)
			}
		})
	}
}

func TestRun_SyntheticWhenNoTransactionFileReadable(t *testing.T) {
	store := newStore(t)
	cfg := testConfig()
	cfg.TolerateMissing = true
	src := localFixture(t)
	src.TransactionsPaths = []string{writeFile(t, t.TempDir(), "tx.parquet", "not a parquet file")}

	rep, err := New(cfg, src, store).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Method != model.ProvenanceSynthetic || rep.FilesSkipped != 1 {
		t.Errorf("method = %s, files skipped = %d, want synthetic after skipping 1", rep.Method, rep.FilesSkipped)
	}
	if rep.Products == 0 || rep.Sales == 0 {
		t.Errorf("synthetic run persisted %d products, %d sales rows", rep.Products, rep.Sales)
	}
}

func TestLocalSources_MissingTransactionPaths(t *testing.T) {
	dir := t.TempDir()
	present := writeFile(t, dir, "transactions.csv", transactionsCSV)
	missing := filepath.Join(dir, "gone.csv")

	tests := []struct {
		name            string
		paths           []string
		tolerate        bool
		want            []string
		wantUnavailable bool
		wantErr         bool
	}{
		{name: "all present", paths: []string{present}, want: []string{present}},
		{name: "some missing", paths: []string{present, missing}, wantErr: true},
		{name: "some missing tolerated", paths: []string{present, missing}, tolerate: true, want: []string{present}},
		{name: "all missing", paths: []string{missing}, wantErr: true, wantUnavailable: true},
		{name: "all missing tolerated", paths: []string{missing}, tolerate: true, wantErr: true, wantUnavailable: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := LocalSources{TransactionsPaths: tt.paths, TolerateMissing: tt.tolerate}
			got, err := l.Transactions(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Transactions() error = %v, wantErr %v", err, tt.wantErr)
			}
			if errors.Is(err, model.ErrSourceUnavailable) != tt.wantUnavailable {
				t.Errorf("Transactions() error = %v, want unavailable = %v", err, tt.wantUnavailable)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("Transactions() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRun_MissingTransactionPathAborts(t *testing.T) {
	store := newStore(t)
	src := localFixture(t)
	src.TransactionsPaths = append(src.TransactionsPaths, filepath.Join(t.TempDir(), "gone.csv"))

	_, err := New(testConfig(), src, store).Run(context.Background())
	if err == nil || errors.Is(err, model.ErrSourceUnavailable) {
		t.Fatalf("Run() error = %v, want a hard failure", err)
	}
	if _, err := store.Current(); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("a generation was written after an aborted run: %v", err)
	}
}
