package ranker

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/eunmann/shopsight/pkg/dataset"
	"github.com/eunmann/shopsight/pkg/model"
	"github.com/shopspring/decimal"
)

// sliceSource replays prepared batches.
type sliceSource struct {
	batches []*dataset.Batch
	pos     int
}

func (s *sliceSource) Next(context.Context) (*dataset.Batch, error) {
	if s.pos >= len(s.batches) {
		return nil, io.EOF
	}
	b := s.batches[s.pos]
	s.pos++
	return b, nil
}

func batch(t *testing.T, pairs ...string) *dataset.Batch {
	t.Helper()
	if len(pairs)%2 != 0 {
		t.Fatal("batch wants id/price pairs")
	}
	var ids []string
	var prices []decimal.Decimal
	for i := 0; i < len(pairs); i += 2 {
		ids = append(ids, pairs[i])
		prices = append(prices, decimal.RequireFromString(pairs[i+1]))
	}
	return dataset.NewBatch(ids, nil, prices)
}

func product(id, category string) model.Product {
	return model.Product{ArticleID: id, Name: model.OptStr("name " + id), ProductType: model.OptStr(category)}
}

func TestAccumulate_MergesAcrossBatches(t *testing.T) {
	src := &sliceSource{batches: []*dataset.Batch{
		batch(t, "a", "10.00", "b", "1.10", "a", "10.00"),
		batch(t, "a", "12.00", "c", "0.01"),
	}}
	rev, err := Accumulate(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"a": "32", "b": "1.1", "c": "0.01"}
	if len(rev) != len(want) {
		t.Fatalf("revenue has %d products, want %d", len(rev), len(want))
	}
	for id, w := range want {
		if !rev[id].Equal(decimal.RequireFromString(w)) {
			t.Errorf("revenue[%s] = %s, want %s", id, rev[id], w)
		}
	}
}

func TestSelect_QuotaThenTopUp(t *testing.T) {
	catalog := []model.Product{
		product("t1", "Trousers"),
		product("s1", "Sweater"),
		product("t2", "Trousers"),
		product("t3", "Trousers"),
		product("s2", "Sweater"),
		{ArticleID: "x1"}, // no category
		product("nosales", "Sweater"),
	}
	rev := Revenue{
		"t1":    decimal.NewFromInt(50),
		"t2":    decimal.NewFromInt(70),
		"t3":    decimal.NewFromInt(10),
		"s1":    decimal.NewFromInt(5),
		"s2":    decimal.NewFromInt(5),
		"x1":    decimal.NewFromInt(100),
		"ghost": decimal.NewFromInt(1000), // not in catalog
	}

	sel := Select(rev, catalog, Options{TargetCount: 5, PerCategoryQuota: 1})
	want := []string{"t2", "s1", "x1", "t1", "t3"}
	if fmt.Sprint(sel.IDs) != fmt.Sprint(want) {
		t.Errorf("IDs = %v, want %v", sel.IDs, want)
	}
	if sel.FromQuota != 2 || sel.FromTopUp != 3 {
		t.Errorf("quota/topup = %d/%d, want 2/3", sel.FromQuota, sel.FromTopUp)
	}
	if sel.Candidates != 6 || sel.Categories != 2 {
		t.Errorf("candidates/categories = %d/%d", sel.Candidates, sel.Categories)
	}
}

func TestSelect_TruncatesQuotaPicks(t *testing.T) {
	var catalog []model.Product
	rev := Revenue{}
	for c := range 3 {
		for i := range 4 {
			id := fmt.Sprintf("c%d-p%d", c, i)
			catalog = append(catalog, product(id, fmt.Sprintf("cat%d", c)))
			rev[id] = decimal.NewFromInt(int64(10 - i))
		}
	}
	sel := Select(rev, catalog, Options{TargetCount: 5, PerCategoryQuota: 2})
	want := []string{"c0-p0", "c0-p1", "c1-p0", "c1-p1", "c2-p0"}
	if fmt.Sprint(sel.IDs) != fmt.Sprint(want) {
		t.Errorf("IDs = %v, want %v", sel.IDs, want)
	}
}

func TestSelect_ExcludesNonPositiveRevenue(t *testing.T) {
	catalog := []model.Product{product("free", "Socks"), product("paid", "Socks")}
	rev := Revenue{"free": decimal.Zero, "paid": decimal.RequireFromString("0.01")}
	sel := Select(rev, catalog, Options{TargetCount: 10, PerCategoryQuota: 10})
	if fmt.Sprint(sel.IDs) != "[paid]" {
		t.Errorf("IDs = %v, want [paid]", sel.IDs)
	}
}

func TestSelect_TieBreakByID(t *testing.T) {
	catalog := []model.Product{product("b", "X"), product("a", "X"), product("c", "X")}
	rev := Revenue{"a": decimal.NewFromInt(1), "b": decimal.NewFromInt(1), "c": decimal.NewFromInt(1)}
	sel := Select(rev, catalog, Options{TargetCount: 2, PerCategoryQuota: 2})
	if fmt.Sprint(sel.IDs) != "[a b]" {
		t.Errorf("IDs = %v, want [a b]", sel.IDs)
	}
}

// Five categories with quota ten and target 150: fifty quota picks, the rest
// topped up by global revenue.
func TestSelect_FiveCategoriesScenario(t *testing.T) {
	var catalog []model.Product
	rev := Revenue{}
	for c := range 5 {
		for i := range 40 {
			id := fmt.Sprintf("%02d%03d", c, i)
			catalog = append(catalog, product(id, fmt.Sprintf("cat%d", c)))
			rev[id] = decimal.NewFromInt(int64(1000*(5-c) + 40 - i))
		}
	}
	sel := Select(rev, catalog, Options{TargetCount: 150, PerCategoryQuota: 10})
	if len(sel.IDs) != 150 {
		t.Fatalf("selected %d, want 150", len(sel.IDs))
	}
	if sel.FromQuota != 50 || sel.FromTopUp != 100 {
		t.Errorf("quota/topup = %d/%d, want 50/100", sel.FromQuota, sel.FromTopUp)
	}
	perCat := map[byte]int{}
	for _, id := range sel.IDs[:50] {
		perCat[id[1]]++
	}
	for c, n := range perCat {
		if n != 10 {
			t.Errorf("category %c has %d quota picks, want 10", c, n)
		}
	}
	set := sel.Set()
	if len(set) != 150 {
		t.Errorf("duplicate ids in selection")
	}
	for id := range set {
		if !rev[id].IsPositive() {
			t.Errorf("selected %s without positive revenue", id)
		}
	}
}

func TestRank(t *testing.T) {
	src := &sliceSource{batches: []*dataset.Batch{batch(t, "0108775001", "10", "0108775002", "3")}}
	catalog := []model.Product{product("0108775001", "Vest top"), product("0108775002", "Vest top"), product("0108775003", "Bra")}
	sel, err := Rank(context.Background(), src, catalog, Options{TargetCount: 150, PerCategoryQuota: 10})
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(sel.IDs) != "[0108775001 0108775002]" {
		t.Errorf("IDs = %v", sel.IDs)
	}
}

func TestSelect_ZeroTarget(t *testing.T) {
	sel := Select(Revenue{"a": decimal.NewFromInt(1)}, []model.Product{product("a", "X")}, Options{})
	if len(sel.IDs) != 0 {
		t.Errorf("IDs = %v, want none", sel.IDs)
	}
}
