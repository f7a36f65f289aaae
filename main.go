package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/username/finloader/backend/src/config"
	"github.com/username/finloader/backend/src/database"
	"github.com/username/finloader/backend/src/engine"
	"github.com/username/finloader/backend/src/handlers"
	"github.com/username/finloader/backend/src/logger"
	"github.com/username/finloader/backend/src/oracle"
	"github.com/username/finloader/backend/src/rules"
	"github.com/username/finloader/backend/src/services"
	"github.com/username/finloader/backend/src/snapshots"
	"github.com/username/finloader/backend/src/template"
	"golang.org/x/time/rate"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remoteAddr", r.RemoteAddr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:3000": true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With, If-None-Match")
			w.Header().Set("Access-Control-Expose-Headers", "ETag")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			logger.L.Debug("Handling OPTIONS preflight request", "path", r.URL.Path, "origin", origin)
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("Finloader backend server starting...")

	logger.L.Info("Loading statement template...", "path", config.Cfg.TemplatePath)
	graph, err := template.Load(config.Cfg.TemplatePath)
	if err != nil {
		logger.L.Error("Failed to load statement template", "error", err)
		os.Exit(1)
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	logger.L.Info("Database initialized successfully.")

	logger.L.Info("Initializing services and handlers...")
	derivationEngine := engine.New(graph, engine.Tolerances{
		Currency: config.Cfg.CurrencyTolerance,
		Percent:  config.Cfg.PercentTolerance,
	})
	snapshotStore := snapshots.NewStore()
	snapshotManager := snapshots.NewManager(derivationEngine, snapshotStore)

	oracleClient := oracle.NewClient(config.Cfg)
	promptStore := oracle.NewPromptStore(config.Cfg.PromptsDir)

	companyStore := services.NewCompanyStore()
	queueStore := services.NewQueueStore()
	ruleFiles := rules.NewFileStore(config.Cfg.CompanyContextDir)
	merger := rules.NewMerger(graph, services.NewOraclePolicy(oracleClient, promptStore))
	changelog := rules.NewChangelog(filepath.Join(config.Cfg.DataDir, "context_changelog.jsonl"))

	emailService := services.NewEmailService()
	snapshotCache := gocache.New(30*time.Second, 5*time.Minute)
	contextService := services.NewContextService(oracleClient, promptStore, queueStore, companyStore, ruleFiles, merger, changelog, emailService)
	classificationService := services.NewClassificationService(oracleClient, promptStore, snapshotManager, companyStore, ruleFiles, emailService, snapshotCache)
	correctionService := services.NewCorrectionService(snapshotManager, queueStore, contextService, config.Cfg.DataDir, snapshotCache)
	finalizeService := services.NewFinalizeService(graph, snapshotStore, companyStore)

	templateHandler := handlers.NewTemplateHandler(graph)
	statementHandler := handlers.NewStatementHandler(classificationService)
	correctionHandler := handlers.NewCorrectionHandler(correctionService)
	companyHandler := handlers.NewCompanyHandler(companyStore, contextService, snapshotManager)
	finalizeHandler := handlers.NewFinalizeHandler(finalizeService)

	logger.L.Info("Configuring routes...")
	rootMux := http.NewServeMux()
	apiRouter := http.NewServeMux()

	apiRouter.HandleFunc("GET /api/template", templateHandler.HandleGetTemplate)

	apiRouter.HandleFunc("POST /api/classify", statementHandler.HandleClassify)
	apiRouter.HandleFunc("POST /api/derive", statementHandler.HandleDerive)
	apiRouter.HandleFunc("GET /api/snapshots/{id}", statementHandler.HandleGetSnapshot)

	apiRouter.HandleFunc("POST /api/corrections", correctionHandler.HandleSubmitCorrection)
	apiRouter.HandleFunc("DELETE /api/corrections", correctionHandler.HandleRevertCorrection)

	apiRouter.HandleFunc("GET /api/companies", companyHandler.HandleListCompanies)
	apiRouter.HandleFunc("POST /api/companies", companyHandler.HandleCreateCompany)
	apiRouter.HandleFunc("GET /api/companies/{id}", companyHandler.HandleGetCompany)
	apiRouter.HandleFunc("GET /api/companies/{id}/rules", companyHandler.HandleGetCompanyRules)
	apiRouter.HandleFunc("POST /api/companies/{id}/reprocess", companyHandler.HandleReprocessCompany)

	apiRouter.HandleFunc("POST /api/finalize", finalizeHandler.HandleFinalize)
	apiRouter.HandleFunc("GET /api/export", finalizeHandler.HandleExportCSV)

	rootMux.Handle("/api/", apiRouter)

	rootMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"message": "Finloader backend is running"})
		} else {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				logger.L.Warn("Root level path not found", "method", r.Method, "path", r.URL.Path)
				http.NotFound(w, r)
			}
		}
	})

	logger.L.Info("Applying global middleware...")
	finalHandler := enableCORS(rateLimitMiddleware(rootMux))

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      finalHandler,
		ReadTimeout:  15 * time.Second,
		// Classification requests block on the oracle, so the write timeout
		// must outlast it.
		WriteTimeout: config.Cfg.OracleTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L.Error("Failed to start server", "error", err)
		stdlog.Fatalf("Failed to start server: %v", err)
	} else if err == http.ErrServerClosed {
		logger.L.Info("Server stopped gracefully.")
	}
}
