// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"cidadao/platform/connectors/base"
	"cidadao/platform/connectors/camara"
	"cidadao/platform/connectors/ckan"
	"cidadao/platform/connectors/config"
	"cidadao/platform/connectors/datasus"
	"cidadao/platform/connectors/ibge"
	"cidadao/platform/connectors/inep"
	"cidadao/platform/connectors/pncp"
	"cidadao/platform/connectors/portal"
	"cidadao/platform/connectors/registry"
	"cidadao/platform/connectors/siconfi"
	"cidadao/platform/shared/types"
)

// Cidadão.AI Orchestrator - federal transparency query engine.
// This service classifies citizen questions, fans them out to government
// APIs and aggregates the answers.

// Components
var (
	startTime           time.Time
	runtimeConfig       *types.RuntimeConfig
	sourceCatalog       *config.Catalog
	sourceRegistry      *registry.Registry
	resultCache         *ResultCache
	auditLogger         *AuditLogger
	queryProcessor      *Processor
	enrichmentService   *EnrichmentService
	investigationStore  InvestigationStore
	investigationRunner *InvestigationRunner
	authenticator       *Authenticator
	rateLimiter         *RateLimiter
)

// Prometheus metrics
var (
	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cidadao_queries_total",
			Help: "Total number of citizen queries processed",
		},
		[]string{"intent", "degraded"},
	)
	queryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cidadao_query_duration_seconds",
			Help:    "End-to-end query processing duration",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
	investigationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cidadao_investigations_total",
			Help: "Total number of investigations started",
		},
	)
)

func init() {
	prometheus.MustRegister(queriesTotal)
	prometheus.MustRegister(queryDuration)
	prometheus.MustRegister(investigationsTotal)
}

// Run starts the orchestrator service
func Run() {
	log.Println("Starting Cidadão.AI Orchestrator...")
	startTime = time.Now()

	initializeComponents()

	r := mux.NewRouter()

	// CORS middleware
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // Configure for production
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	// Operational endpoints stay outside auth and rate limiting
	r.HandleFunc("/health", healthHandler).Methods("GET")
	r.HandleFunc("/ready", readyHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(authenticator.Middleware)
	api.Use(rateLimiter.Middleware)

	api.HandleFunc("/query", handleQuery).Methods("POST")

	api.HandleFunc("/agents", handleAgents).Methods("GET")
	api.HandleFunc("/agents/{name}", handleAgent).Methods("GET")
	api.HandleFunc("/agents/{name}/analyze", handleAgentAnalyze).Methods("POST")

	api.HandleFunc("/investigations", handleInvestigationCreate).Methods("POST")
	api.HandleFunc("/investigations", handleInvestigationList).Methods("GET")
	api.HandleFunc("/investigations/{id}", handleInvestigationGet).Methods("GET")

	api.HandleFunc("/sources", handleSources).Methods("GET")
	api.HandleFunc("/sources/{name}/health", handleSourceHealth).Methods("GET")

	if runtimeConfig.ExposeDebugRoutes {
		r.HandleFunc("/debug/sources/health", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, sourceRegistry.HealthCheck(req.Context()))
		}).Methods("GET")
	}

	port := getEnv("PORT", "8080")
	handler := c.Handler(r)
	log.Printf("Cidadão.AI Orchestrator listening on port %s (mode: %s)", port, runtimeConfig.Mode)
	log.Fatal(http.ListenAndServe(":"+port, handler))
}

func initializeComponents() {
	mode := types.ForMode(getEnv("RUNTIME_MODE", string(types.RuntimeModePublic)))
	runtimeConfig = &mode
	log.Printf("✅ Runtime mode: %s (auth: %v, rate limit: %v)",
		runtimeConfig.Mode, runtimeConfig.EnforceAuth, runtimeConfig.EnforceRateLimit)

	// Source catalog: YAML file when provided, built-in federal set otherwise
	catalogPath := os.Getenv("SOURCES_CONFIG")
	if catalogPath != "" {
		catalog, err := config.LoadCatalog(catalogPath)
		if err != nil {
			log.Fatalf("failed to load sources catalog: %v", err)
		}
		sourceCatalog = catalog
		log.Printf("✅ Loaded %d sources from %s", len(catalog.Sources), catalogPath)
	} else {
		sourceCatalog = config.DefaultCatalog()
		log.Printf("✅ Using built-in catalog (%d federal sources)", len(sourceCatalog.Sources))
	}

	dbURL := os.Getenv("DATABASE_URL")

	sourceRegistry = buildRegistry(dbURL)
	sourceRegistry.SetFactory(connectorFactory)
	for _, src := range sourceCatalog.Sources {
		if err := sourceRegistry.RegisterConfig(src); err != nil {
			log.Printf("⚠️  Skipping source %q: %v", src.Name, err)
		}
	}
	log.Printf("✅ Source registry ready (%d sources)", sourceRegistry.Count())

	cacheTTL := envDuration("CACHE_TTL", 15*time.Minute)
	resultCache = NewResultCache(os.Getenv("REDIS_URL"), cacheTTL)
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			resultCache.Cleanup()
		}
	}()

	auditLogger = NewAuditLogger(dbURL)
	queryProcessor = NewProcessor(sourceRegistry, resultCache, auditLogger)
	enrichmentService = NewEnrichmentService(sourceCatalog, queryProcessor)

	if dbURL != "" {
		store, err := NewPostgresInvestigationStore(dbURL)
		if err != nil {
			log.Printf("⚠️  Investigation database unavailable, using memory store: %v", err)
			investigationStore = NewMemoryInvestigationStore()
		} else {
			investigationStore = store
			log.Println("✅ Investigation store: PostgreSQL")
		}
	} else {
		investigationStore = NewMemoryInvestigationStore()
		log.Println("✅ Investigation store: in-memory")
	}
	investigationRunner = NewInvestigationRunner(investigationStore, queryProcessor,
		envDuration("INVESTIGATION_TIMEOUT", 5*time.Minute))

	authenticator = NewAuthenticator(os.Getenv("JWT_SECRET"), runtimeConfig)
	if authenticator.Enabled() {
		log.Println("✅ JWT authentication enabled")
	} else {
		log.Println("⚠️  JWT authentication disabled")
	}

	rateLimiter = NewRateLimiter(newRedisClient(os.Getenv("REDIS_URL")),
		envInt("RATE_LIMIT_PER_MINUTE", 60), runtimeConfig)

	sourceRegistry.StartPeriodicReload(context.Background(), 5*time.Minute)
}

// buildRegistry prefers database-backed source configs so operators can add
// state portals without a redeploy
func buildRegistry(dbURL string) *registry.Registry {
	if dbURL == "" {
		return registry.NewRegistry()
	}
	reg, err := registry.NewRegistryWithStorage(dbURL)
	if err != nil {
		log.Printf("⚠️  Registry storage unavailable, using static registry: %v", err)
		return registry.NewRegistry()
	}
	log.Println("✅ Registry storage: PostgreSQL")
	return reg
}

// connectorFactory instantiates the adapter for a source type
func connectorFactory(sourceType string) (base.Connector, error) {
	switch sourceType {
	case "portal":
		return portal.New(), nil
	case "pncp":
		return pncp.New(), nil
	case "ibge":
		return ibge.New(), nil
	case "siconfi":
		return siconfi.New(), nil
	case "datasus":
		return datasus.New(), nil
	case "inep":
		return inep.New(), nil
	case "camara":
		return camara.New(), nil
	case "ckan":
		return ckan.New(), nil
	default:
		return nil, fmt.Errorf("unknown source type: %s", sourceType)
	}
}

// newRedisClient returns nil when Redis is not configured or unreachable
func newRedisClient(redisURL string) *redis.Client {
	if redisURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("⚠️  Invalid REDIS_URL: %v", err)
		return nil
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("⚠️  Redis unreachable for rate limiting: %v", err)
		_ = client.Close()
		return nil
	}
	return client
}

// getEnv retrieves an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("⚠️  Invalid %s=%q, using %s", key, raw, defaultValue)
		return defaultValue
	}
	return d
}

func envInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("⚠️  Invalid %s=%q, using %d", key, raw, defaultValue)
		return defaultValue
	}
	return n
}
