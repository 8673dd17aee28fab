// Package api provides HTTP handlers for the heatmap server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/cengen-heatmap/server/internal/generator"
	"github.com/cengen-heatmap/server/internal/service"
)

// RouterConfig contains router configuration.
type RouterConfig struct {
	Registry *DatasetRegistry

	CORSOrigins []string

	// Server-level display caps applied when a request leaves them unset.
	DefaultMaxRows int
	DefaultMaxCols int
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Global datasets endpoint (not dataset-scoped)
	r.Get("/api/datasets", datasetsHandler(cfg.Registry))

	// The pattern legend is fixed across datasets.
	r.Get("/api/patterns", patternsHandler)

	// Dataset-scoped routes: /d/{dataset}/...
	r.Route("/d/{dataset}", func(r chi.Router) {
		r.Use(datasetMiddleware(cfg.Registry))

		r.Route("/api", func(r chi.Router) {
			r.Get("/metadata", datasetMetadataHandler)
			r.Get("/genes", datasetGenesHandler)
			r.Post("/heatmap", datasetHeatmapHandler(cfg))
			r.Post("/heatmap.png", datasetHeatmapPNGHandler(cfg))
		})
	})

	return r
}

// Context key for dataset service
type ctxKey string

const datasetServiceKey ctxKey = "datasetService"

// datasetMiddleware resolves the dataset from URL and injects the heatmap service into context.
func datasetMiddleware(registry *DatasetRegistry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			datasetID := chi.URLParam(r, "dataset")
			svc := registry.Get(datasetID)
			if svc == nil {
				http.Error(w, "dataset not found: "+datasetID, http.StatusNotFound)
				return
			}
			ctx := context.WithValue(r.Context(), datasetServiceKey, svc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func getDatasetService(r *http.Request) *service.HeatmapService {
	if svc, ok := r.Context().Value(datasetServiceKey).(*service.HeatmapService); ok {
		return svc
	}
	return nil
}

// datasetsHandler returns the list of available datasets.
func datasetsHandler(registry *DatasetRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"default":  registry.DefaultDatasetID(),
			"datasets": registry.Datasets(),
			"title":    registry.Title(),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}

// patternsHandler returns the fixed 8-entry pattern legend.
func patternsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"patterns": generator.Legend(),
	})
}

func datasetMetadataHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	if svc == nil {
		http.Error(w, "dataset service not found", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(svc.Metadata())
}

func datasetGenesHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	if svc == nil {
		http.Error(w, "dataset service not found", http.StatusInternalServerError)
		return
	}

	prefix := strings.TrimSpace(r.URL.Query().Get("q"))
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	genes := svc.Genes(prefix, limit)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"genes": genes,
		"total": svc.GeneCount(),
	})
}

// heatmapRequest is the JSON body of the heatmap endpoints. Genes may arrive
// as a list, as free text (one per line), or both.
type heatmapRequest struct {
	Genes         []string `json:"genes"`
	GenesText     string   `json:"genes_text"`
	Threshold     *float64 `json:"threshold"`
	SortByPattern *bool    `json:"sort_by_pattern"`
	MaxRows       int      `json:"max_rows"`
	MaxCols       int      `json:"max_cols"`
}

// parseHeatmapRequest validates the body and applies defaults: threshold 0,
// pattern sorting on, display caps from server config.
func parseHeatmapRequest(r *http.Request, cfg RouterConfig) (generator.Request, error) {
	var body heatmapRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return generator.Request{}, errors.New("invalid JSON body")
	}

	genes := service.ParseGeneList(body.GenesText)
	for _, g := range body.Genes {
		if g = strings.TrimSpace(g); g != "" {
			genes = append(genes, g)
		}
	}
	if len(genes) == 0 {
		return generator.Request{}, errors.New("no genes provided")
	}

	threshold := 0.0
	if body.Threshold != nil {
		threshold = *body.Threshold
	}
	if threshold < 0 {
		return generator.Request{}, errors.New("threshold must be >= 0")
	}

	sortByPattern := true
	if body.SortByPattern != nil {
		sortByPattern = *body.SortByPattern
	}

	if body.MaxRows < 0 || body.MaxCols < 0 {
		return generator.Request{}, errors.New("max_rows and max_cols must be >= 0")
	}
	maxRows := body.MaxRows
	if maxRows == 0 {
		maxRows = cfg.DefaultMaxRows
	}
	maxCols := body.MaxCols
	if maxCols == 0 {
		maxCols = cfg.DefaultMaxCols
	}

	return generator.Request{
		Genes:         genes,
		Threshold:     threshold,
		SortByPattern: sortByPattern,
		MaxRows:       maxRows,
		MaxCols:       maxCols,
	}, nil
}

func datasetHeatmapHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc := getDatasetService(r)
		if svc == nil {
			http.Error(w, "dataset service not found", http.StatusInternalServerError)
			return
		}

		req, err := parseHeatmapRequest(r, cfg)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		data, err := svc.HeatmapJSON(req)
		if err != nil {
			http.Error(w, err.Error(), heatmapErrorStatus(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}
}

func datasetHeatmapPNGHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc := getDatasetService(r)
		if svc == nil {
			http.Error(w, "dataset service not found", http.StatusInternalServerError)
			return
		}

		req, err := parseHeatmapRequest(r, cfg)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		data, err := svc.HeatmapPNG(req)
		if err != nil {
			http.Error(w, err.Error(), heatmapErrorStatus(err))
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Write(data)
	}
}

// heatmapErrorStatus maps generation failures to HTTP statuses. The no-genes
// case is a request problem, not a server fault.
func heatmapErrorStatus(err error) int {
	if errors.Is(err, generator.ErrNoGenesInCommon) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
