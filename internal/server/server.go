// Package server exposes the listing store over a read-only HTTP API.
package server

import (
	"context"
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"vacancy-watch/poster/internal/database"
	"vacancy-watch/poster/internal/models"
	"vacancy-watch/poster/internal/server/api"
	"vacancy-watch/poster/internal/server/pagination"
	"vacancy-watch/poster/internal/server/storage"
)

const exportPageSize = 500

// apiKeyMiddleware checks for the X-API-Key header and validates it against the provided key.
// If key is empty, it allows all requests.
func apiKeyMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" || r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			reqAPIKey := r.Header.Get("X-API-Key")
			if reqAPIKey == "" {
				http.Error(w, "API key required", http.StatusUnauthorized)
				return
			}
			if reqAPIKey != apiKey {
				http.Error(w, "Invalid API key", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// NewHandler builds the routed, logged and optionally key-protected API handler.
func NewHandler(repo storage.ListingRepository, logger zerolog.Logger, apiKey string) http.Handler {
	handler := api.NewHandler(repo)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/listings", handler.GetListings)
	mux.HandleFunc("GET /v1/listings.csv", exportListingsHandler(repo))
	mux.HandleFunc("GET /v1/deletions", handler.GetDeletions)
	mux.HandleFunc("GET /health", healthCheckHandler(repo))

	// Set up middleware chain for logging and request tracking
	h := apiKeyMiddleware(apiKey)(mux)
	h = hlog.MethodHandler("method")(h)
	h = hlog.URLHandler("url")(h)
	h = hlog.RemoteAddrHandler("remote_addr")(h)
	h = hlog.UserAgentHandler("user_agent")(h)
	h = hlog.RequestIDHandler("req_id", "Request-Id")(h)
	h = hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		idReq, _ := hlog.IDFromRequest(r)

		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Str("req_id", idReq.String()).
			Msg("HTTP Request")
	})(h)
	h = hlog.NewHandler(logger)(h)

	if apiKey != "" {
		logger.Info().Msg("API key authentication enabled")
	} else {
		logger.Info().Msg("API key authentication disabled")
	}
	return h
}

// RunServer serves the API on listenAddr until ctx is cancelled, then shuts down gracefully.
func RunServer(ctx context.Context, db *database.DB, listenAddr string, logger zerolog.Logger, apiKey string) error {
	logger = logger.With().Str("service", "listing-api-readonly").Logger()

	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           NewHandler(storage.NewRepository(db.DB), logger, apiKey),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("address", listenAddr).Msg("API Server starting")
		err := httpServer.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return errors.Wrap(err, "server failed to start")

	case <-ctx.Done():
		logger.Info().Msg("Shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("HTTP server shutdown error")
			if err := httpServer.Close(); err != nil {
				logger.Error().Err(err).Msg("HTTP server force close error")
			}
		} else {
			logger.Info().Msg("HTTP server shutdown complete.")
		}
		if err := <-serverErr; err != nil {
			logger.Error().Err(err).Msg("ListenAndServe error during shutdown")
		}
	}

	logger.Info().Msg("Server exiting.")
	return nil
}

// healthCheckHandler answers 200 OK while the database is reachable and 503 otherwise.
func healthCheckHandler(repo storage.ListingRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := hlog.FromRequest(r)

		if err := repo.Ping(r.Context()); err != nil {
			log.Error().Err(err).Msg("Health check failed")
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("Error writing health check response")
		}
	}
}

// exportListingsHandler streams every stored listing as CSV. The columns are
// accepted by the import command.
func exportListingsHandler(repo storage.ListingRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := hlog.FromRequest(r)

		status, err := storage.ParseStatus(r.URL.Query().Get("status"))
		if err != nil {
			http.Error(w, "Invalid 'status' parameter: use all, unposted or posted", http.StatusBadRequest)
			return
		}

		// fetch the first page before committing to a 200
		page, err := repo.FetchListings(r.Context(), status, exportPageSize, nil)
		if err != nil {
			log.Error().Err(err).Msg("Failed to query listings")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=listings.csv")

		csvWriter := csv.NewWriter(w)
		if err := csvWriter.Write([]string{"title", "company", "link", "salary", "summary", "posted", "inserted_at"}); err != nil {
			log.Error().Err(err).Msg("Failed to write CSV header")
			return
		}

		count := 0
		for len(page) > 0 {
			for _, l := range page {
				if err := csvWriter.Write(listingRecord(l)); err != nil {
					log.Error().Err(err).Msg("Failed to write CSV record")
					return
				}
				count++
			}
			if len(page) < exportPageSize {
				break
			}
			last := page[len(page)-1]
			page, err = repo.FetchListings(r.Context(), status, exportPageSize, &pagination.Cursor{Time: last.InsertedAt, ID: last.ID})
			if err != nil {
				log.Error().Err(err).Msg("Failed to query listings")
				return
			}
		}

		csvWriter.Flush()
		if err := csvWriter.Error(); err != nil {
			log.Error().Err(err).Msg("Error flushing CSV data")
			return
		}
		log.Info().Int("listing_count", count).Msg("Exported listings as CSV")
	}
}

func listingRecord(l models.Listing) []string {
	return []string{
		l.Title,
		l.Company,
		l.Link,
		l.Salary,
		l.Summary,
		strconv.FormatBool(l.Posted),
		l.InsertedAt.UTC().Format(time.RFC3339Nano),
	}
}
