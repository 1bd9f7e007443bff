package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/craftdeck/craftdeck/internal/app"
	"github.com/craftdeck/craftdeck/internal/app/services"
	"github.com/craftdeck/craftdeck/internal/infrastructure/storage"
)

// Config holds the panel server configuration.
type Config struct {
	// BasePath is the panel data directory (rules, history, logs).
	BasePath string

	// BackupsDir, OldWorldsDir and ServerDir are the managed directories
	// handed to the scanner. Empty values fall back to subdirectories of
	// BasePath's parent.
	BackupsDir   string
	OldWorldsDir string
	ServerDir    string

	// Port pins the listen port; zero scans the configured range.
	Port int

	// AdminToken, when set, is required on mutating requests via the
	// admin token header.
	AdminToken string
}

// Server is the CraftDeck maintenance HTTP server.
type Server struct {
	httpServer  *http.Server
	port        int
	config      Config
	maintenance *services.MaintenanceService
	scheduler   *services.SchedulerService
	watcher     *ConfigWatcher
	pidFile     string
	logFile     string
	logHandle   *os.File
}

// NewServer wires the maintenance core and creates a server instance.
func NewServer(cfg Config) (*Server, error) {
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("base path is required")
	}

	parent := filepath.Dir(cfg.BasePath)
	if cfg.BackupsDir == "" {
		cfg.BackupsDir = filepath.Join(parent, app.BackupsDirName)
	}
	if cfg.OldWorldsDir == "" {
		cfg.OldWorldsDir = filepath.Join(parent, app.OldWorldsDirName)
	}

	repo := storage.NewFileMaintenanceRepository(cfg.BasePath)
	scanner := services.NewScannerService(services.ScanPaths{
		BackupsDir:   cfg.BackupsDir,
		OldWorldsDir: cfg.OldWorldsDir,
		ServerDir:    cfg.ServerDir,
	})
	clock := services.RealClock{}
	audit := services.NewAuditLogger(cfg.BasePath)

	maintenance := services.NewMaintenanceService(
		repo,
		scanner,
		services.NewRuleService(),
		services.NewStatfsProvider(),
		cfg.BasePath,
		services.FSDeleter{},
		clock,
		audit,
	)
	scheduler := services.NewSchedulerService(maintenance, repo, clock, 0)

	port := cfg.Port
	if port == 0 {
		found, err := findAvailablePort(app.ServerPortRangeStart, app.ServerPortRangeEnd)
		if err != nil {
			return nil, fmt.Errorf("failed to find available port: %w", err)
		}
		port = found
	}

	server := &Server{
		port:        port,
		config:      cfg,
		maintenance: maintenance,
		scheduler:   scheduler,
		pidFile:     filepath.Join(cfg.BasePath, app.ServerPIDFile),
		logFile:     filepath.Join(cfg.BasePath, app.ServerLogFile),
	}

	watcher, err := NewConfigWatcher(repo.ConfigPath(), scheduler)
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}
	server.watcher = watcher

	return server, nil
}

// Start begins the HTTP server, the scheduler, and the config watcher.
func (s *Server) Start() error {
	if err := os.MkdirAll(s.config.BasePath, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := s.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	if err := s.watcher.Start(); err != nil {
		return fmt.Errorf("failed to start config watcher: %w", err)
	}

	router := s.setupRouter()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if err := s.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	s.setupLogging()

	log.Printf("%s server starting on port %d", app.AppName, s.port)
	log.Printf("API endpoints available at http://localhost:%d%s", s.port, app.APIBasePath)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed to start: %w", err)
	}

	return nil
}

// Stop gracefully shuts down the server and its background services.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return fmt.Errorf("server is not running")
	}

	log.Println("Shutting down server...")

	if s.watcher != nil {
		s.watcher.Stop()
	}
	s.scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(app.ServerShutdownTimeout)*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	if s.logHandle != nil {
		if err := s.logHandle.Close(); err != nil {
			log.Printf("Warning: failed to close log file: %v", err)
		}
		s.logHandle = nil
	}

	if err := os.Remove(s.pidFile); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to remove PID file: %v", err)
	}

	log.Println("Server stopped successfully")
	return nil
}

// GetPort returns the server port
func (s *Server) GetPort() int {
	return s.port
}

// IsRunning checks if a server process for this data directory is alive.
func (s *Server) IsRunning() bool {
	pidBytes, err := os.ReadFile(s.pidFile)
	if err != nil {
		return false
	}

	pid, err := strconv.Atoi(string(pidBytes))
	if err != nil {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	err = process.Signal(syscall.Signal(0))
	return err == nil
}

// setupRouter configures the HTTP router with all endpoints
func (s *Server) setupRouter() http.Handler {
	router := mux.NewRouter()

	api := router.PathPrefix(app.APIBasePath).Subrouter()

	api.Use(s.loggingMiddleware)
	api.Use(s.recoveryMiddleware)

	api.HandleFunc("/health", s.healthHandler).Methods("GET")
	api.HandleFunc("/info", s.infoHandler).Methods("GET")

	maintenance := api.PathPrefix("/maintenance").Subrouter()
	maintenance.HandleFunc("/{scope}/state", s.getStateHandler).Methods("GET")
	maintenance.HandleFunc("/{scope}/history", s.getHistoryHandler).Methods("GET")
	maintenance.HandleFunc("/{scope}/preview", s.previewHandler).Methods("POST")
	maintenance.Handle("/{scope}/rules", s.requireAdminToken(http.HandlerFunc(s.saveRulesHandler))).Methods("PUT")
	maintenance.Handle("/{scope}/run", s.requireAdminToken(http.HandlerFunc(s.runRulesHandler))).Methods("POST")
	maintenance.Handle("/{scope}/manual-delete", s.requireAdminToken(http.HandlerFunc(s.manualDeleteHandler))).Methods("POST")
	maintenance.Handle("/{scope}/ack-missed", s.requireAdminToken(http.HandlerFunc(s.ackMissedHandler))).Methods("POST")

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})

	return c.Handler(router)
}

// writePIDFile writes the current process ID to a file
func (s *Server) writePIDFile() error {
	pid := os.Getpid()
	return os.WriteFile(s.pidFile, []byte(strconv.Itoa(pid)), 0644)
}

// setupLogging configures server logging
func (s *Server) setupLogging() {
	logFile, err := os.OpenFile(s.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Printf("Warning: failed to open log file: %v", err)
		return
	}

	s.logHandle = logFile
	log.SetOutput(logFile)
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

// findAvailablePort finds an available port in the given range
func findAvailablePort(start, end int) (int, error) {
	for port := start; port <= end; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			ln.Close()
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available ports in range %d-%d", start, end)
}

// Middleware functions

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		duration := time.Since(start)
		log.Printf("%s %s %v", r.Method, r.URL.Path, duration)
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("Panic in handler: %v", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requireAdminToken gates mutating routes behind the shared admin token
// when one is configured. Credential policy beyond this shared token is
// the embedding panel's concern.
func (s *Server) requireAdminToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.AdminToken != "" && r.Header.Get(app.AdminTokenHeader) != s.config.AdminToken {
			s.errorResponse(w, "admin token missing or incorrect", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
