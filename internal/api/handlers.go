package api

import (
	"net/http"
	"strconv"

	"github.com/eunmann/shopsight/internal/logctx"
	"github.com/eunmann/shopsight/pkg/forecast"
	"github.com/eunmann/shopsight/pkg/llm"
	"github.com/eunmann/shopsight/pkg/model"
	"github.com/eunmann/shopsight/pkg/query"
	"github.com/eunmann/shopsight/pkg/segments"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
)

const maxBodyBytes = 64 << 10

func (h *handler) root(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "ShopSight Analytics API",
		"version": h.opts.Version,
	})
}

type healthResponse struct {
	Status        string           `json:"status"`
	LLMConfigured bool             `json:"llm_configured"`
	DataLoaded    bool             `json:"data_loaded"`
	Generation    string           `json:"generation,omitempty"`
	Provenance    model.Provenance `json:"provenance,omitempty"`
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	res := healthResponse{Status: "healthy", LLMConfigured: h.opts.Assistant.Configured()}
	if snap, err := h.opts.Query.Current(); err == nil {
		res.DataLoaded = true
		res.Generation = snap.Manifest().Generation
		res.Provenance = snap.Manifest().Provenance
	}
	respondJSON(w, http.StatusOK, res)
}

type searchRequest struct {
	Query string `json:"query" validate:"required,min=1,max=500"`
	Limit int    `json:"limit" validate:"omitempty,min=1,max=100"`
}

func (h *handler) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "request body must be JSON with a query field")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	if req.Limit == 0 {
		req.Limit = 10
	}
	res, err := h.opts.Searcher.Search(r.Context(), req.Query, req.Limit)
	if err != nil {
		respondLookupError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type productResponse struct {
	ArticleID    string  `json:"article_id"`
	ProdName     *string `json:"prod_name"`
	ProductType  *string `json:"product_type_name"`
	ProductGroup *string `json:"product_group_name"`
	Colour       *string `json:"colour_group_name"`
	Department   *string `json:"department_name"`
}

func (h *handler) product(w http.ResponseWriter, r *http.Request) {
	p, err := h.opts.Query.Product(chi.URLParam(r, "id"))
	if err != nil {
		respondLookupError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, productResponse{
		ArticleID:    p.ArticleID,
		ProdName:     p.Name,
		ProductType:  p.ProductType,
		ProductGroup: p.ProductGroup,
		Colour:       p.Colour,
		Department:   p.Department,
	})
}

// days reads the days query parameter and bounds it to [1, limit].
func (h *handler) days(w http.ResponseWriter, r *http.Request, def, limit int) (int, bool) {
	n, err := intParam(r, "days", def)
	if err == nil {
		err = h.validate.Var(n, "min=1,max="+strconv.Itoa(limit))
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "days must be an integer between 1 and "+strconv.Itoa(limit))
		return 0, false
	}
	return n, true
}

func (h *handler) sales(w http.ResponseWriter, r *http.Request) {
	days, ok := h.days(w, r, 90, 3650)
	if !ok {
		return
	}
	hist, err := h.opts.Query.SalesHistory(chi.URLParam(r, "id"), days)
	if err != nil {
		respondLookupError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, hist)
}

func (h *handler) forecast(w http.ResponseWriter, r *http.Request) {
	days, ok := h.days(w, r, 30, 365)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	hist, err := h.opts.Query.SalesHistory(id, query.SummaryDays)
	if err != nil {
		respondLookupError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, forecast.Generate(id, hist.Rows(), days))
}

type segmentsResponse struct {
	ArticleID string             `json:"article_id"`
	Profile   segments.Profile   `json:"profile"`
	Segments  []segments.Segment `json:"segments"`
}

func (h *handler) segments(w http.ResponseWriter, r *http.Request) {
	p, err := h.opts.Query.Product(chi.URLParam(r, "id"))
	if err != nil {
		respondLookupError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, segmentsResponse{
		ArticleID: p.ArticleID,
		Profile:   segments.Classify(p),
		Segments:  segments.For(p),
	})
}

type insightsResponse struct {
	llm.Insights
	Metrics query.Summary `json:"metrics"`
}

func (h *handler) insights(w http.ResponseWriter, r *http.Request) {
	s, err := h.opts.Query.SalesSummary(chi.URLParam(r, "id"))
	if err != nil {
		respondLookupError(w, err)
		return
	}
	ins := h.opts.Assistant.Summarize(r.Context(), llm.SummaryInput{
		ArticleID:       s.ArticleID,
		ProductName:     s.ProductName,
		TotalRevenue:    s.TotalRevenue,
		TotalUnits:      s.TotalUnits,
		AvgDailyRevenue: s.AvgDailyRevenue,
		AvgDailyUnits:   s.AvgDailyUnits,
		Trend:           s.Trend,
		DaysOfData:      s.DaysOfData,
	})
	respondJSON(w, http.StatusOK, insightsResponse{Insights: ins, Metrics: s})
}

func (h *handler) dataset(w http.ResponseWriter, _ *http.Request) {
	snap, err := h.opts.Query.Current()
	if err != nil {
		respondLookupError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap.Manifest())
}

func (h *handler) reload(w http.ResponseWriter, r *http.Request) {
	snap, err := h.opts.Query.Reload(r.Context())
	if err != nil {
		log := logctx.FromContext(r.Context())
		log.Error().Err(err).Msg("reload failed")
		respondLookupError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap.Manifest())
}
