package synth

import (
	"testing"

	"github.com/eunmann/shopsight/pkg/model"
)

func TestGenerate_Deterministic(t *testing.T) {
	g := Generator{Days: 120, End: model.NewDate(2024, 6, 30), Seed: 42}
	a := g.Generate([]string{"0108775001", "0108775002"})
	b := g.Generate([]string{"0108775001", "0108775002"})
	if len(a) == 0 || len(a) != len(b) {
		t.Fatalf("len = %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Key() != b[i].Key() || !a[i].TotalRevenue.Equal(b[i].TotalRevenue) || a[i].UnitsSold != b[i].UnitsSold {
			t.Fatalf("row %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}

	// A product's series does not depend on its neighbours.
	solo := g.Generate([]string{"0108775002"})
	var fromPair []model.SalesRow
	for _, r := range a {
		if r.ArticleID == "0108775002" {
			fromPair = append(fromPair, r)
		}
	}
	if len(solo) != len(fromPair) || !solo[0].AvgPrice.Equal(fromPair[0].AvgPrice) {
		t.Error("per-product stream depends on input order")
	}
}

func TestGenerate_RowsSatisfyInvariants(t *testing.T) {
	end := model.NewDate(2024, 6, 30)
	g := Generator{Days: 120, End: end, Seed: 7}
	rows := g.Generate(IDs(DemoCatalog(), 0))

	start := end.AddDays(-119)
	seen := map[model.SalesKey]bool{}
	for _, r := range rows {
		if err := r.Validate(); err != nil {
			t.Fatalf("invalid row: %v", err)
		}
		if r.Date < start || r.Date > end {
			t.Fatalf("date %s outside [%s, %s]", r.Date, start, end)
		}
		if seen[r.Key()] {
			t.Fatalf("duplicate key %v", r.Key())
		}
		seen[r.Key()] = true
		if !r.AvgPrice.Equal(r.AvgPrice.Round(2)) {
			t.Fatalf("price %s not rounded to cents", r.AvgPrice)
		}
	}
	if len(rows) < 10*100 {
		t.Errorf("only %d rows for 10 products over 120 days", len(rows))
	}
}

func TestGenerate_ZeroDays(t *testing.T) {
	if rows := (Generator{}).Generate([]string{"a"}); rows != nil {
		t.Errorf("rows = %v, want nil", rows)
	}
}

func TestIDs(t *testing.T) {
	catalog := DemoCatalog()
	if got := IDs(catalog, 3); len(got) != 3 || got[0] != "0108775001" {
		t.Errorf("IDs(3) = %v", got)
	}
	if got := IDs(catalog, 200); len(got) != 10 {
		t.Errorf("IDs(200) = %d ids, want 10", len(got))
	}
}

func TestDemoCatalog(t *testing.T) {
	catalog := DemoCatalog()
	if len(catalog) != 10 {
		t.Fatalf("len = %d", len(catalog))
	}
	if catalog[9].ArticleID != "0108775010" || model.Str(catalog[9].Name) != "Baseball Cap" {
		t.Errorf("last product = %+v", catalog[9])
	}
}
