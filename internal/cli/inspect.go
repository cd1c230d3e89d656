package cli

import (
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/eunmann/shopsight/pkg/humanfmt"
	"github.com/eunmann/shopsight/pkg/model"
	"github.com/eunmann/shopsight/pkg/tablestore"
	"github.com/shopspring/decimal"
)

func runInspect(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	sample := fs.Int("sample", 5, "number of sample rows to print from each table")

	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	g, err := store.Load()
	if err != nil {
		return err
	}
	return printStats(stdout, g, *sample)
}

func printStats(w io.Writer, g *tablestore.Generation, sample int) error {
	m := g.Manifest
	var revenue decimal.Decimal
	var units int64
	withSales := make(map[string]struct{})
	for _, r := range g.Sales {
		revenue = revenue.Add(r.TotalRevenue)
		units += r.UnitsSold
		withSales[r.ArticleID] = struct{}{}
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "generation:\t%s\n", m.Generation)
	fmt.Fprintf(tw, "created:\t%s\n", m.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(tw, "provenance:\t%s\n", m.Provenance)
	if m.Note != "" {
		fmt.Fprintf(tw, "note:\t%s\n", m.Note)
	}
	fmt.Fprintf(tw, "products:\t%d\n", len(g.Products))
	fmt.Fprintf(tw, "sales rows:\t%d (%d products)\n", len(g.Sales), len(withSales))
	if m.FirstDate != nil && m.LastDate != nil {
		fmt.Fprintf(tw, "date range:\t%s to %s\n", m.FirstDate, m.LastDate)
	}
	fmt.Fprintf(tw, "total revenue:\t%s\n", humanfmt.Money(revenue))
	fmt.Fprintf(tw, "total units:\t%s\n", humanfmt.Count(units))
	if err := tw.Flush(); err != nil {
		return err
	}

	if sample <= 0 {
		return nil
	}
	fmt.Fprintln(w, "\nproducts:")
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ARTICLE_ID\tNAME\tTYPE\tDEPARTMENT")
	for _, p := range g.Products[:min(sample, len(g.Products))] {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ArticleID, model.Str(p.Name), model.Str(p.ProductType), model.Str(p.Department))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w, "\nsales:")
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ARTICLE_ID\tDATE\tREVENUE\tAVG_PRICE\tUNITS")
	for _, r := range g.Sales[:min(sample, len(g.Sales))] {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", r.ArticleID, r.Date, r.TotalRevenue.StringFixed(2), r.AvgPrice.StringFixed(2), r.UnitsSold)
	}
	return tw.Flush()
}
