// CLAUDE:SUMMARY Entry point for the invoice dispatch service — chi router, Basic Auth, sqlite, daily scheduler, MCP stdio optional.
package main

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/Sinthos/PPV-Rechnung-Versenden/invoice"
	"github.com/Sinthos/PPV-Rechnung-Versenden/kit"
)

// fileConfig is the optional YAML configuration file.
type fileConfig struct {
	SourceFolder string `yaml:"source_folder"`
	TargetFolder string `yaml:"target_folder"`
	SendTime     string `yaml:"send_time"`
	Timezone     string `yaml:"timezone"`
	MailTimeout  string `yaml:"mail_timeout"` // Go duration, e.g. "30s"
}

func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config file: %w", err)
	}
	return fc, nil
}

func main() {
	port := env("PORT", "8080")
	dataDir := env("DATA_DIR", "data")
	logLevel := env("LOG_LEVEL", "info")
	mcpTransport := env("MCP_TRANSPORT", "")
	adminUser := env("ADMIN_USER", "admin")
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	adminHash := os.Getenv("ADMIN_PASSWORD_HASH")

	// Logging.
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	if adminPassword == "" && adminHash == "" {
		slog.Error("ADMIN_PASSWORD or ADMIN_PASSWORD_HASH is required")
		os.Exit(1)
	}
	if adminHash == "" {
		// Hash the plain password once so every check is a bcrypt compare.
		h, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
		if err != nil {
			slog.Error("hash admin password", "error", err)
			os.Exit(1)
		}
		adminHash = string(h)
	}

	fc, err := loadFileConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.Error("config file", "error", err)
		os.Exit(1)
	}

	var mailTimeout time.Duration
	if fc.MailTimeout != "" {
		mailTimeout, err = time.ParseDuration(fc.MailTimeout)
		if err != nil {
			slog.Error("invalid mail_timeout", "value", fc.MailTimeout, "error", err)
			os.Exit(1)
		}
	}

	var loc *time.Location
	if fc.Timezone != "" {
		loc, err = time.LoadLocation(fc.Timezone)
		if err != nil {
			slog.Error("invalid timezone", "timezone", fc.Timezone, "error", err)
			os.Exit(1)
		}
	}

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Database.
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		slog.Error("create data dir", "error", err)
		os.Exit(1)
	}
	dbPath := filepath.Join(dataDir, "rechnung.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("open db", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")
	db.Exec("PRAGMA foreign_keys=ON")

	// Invoice service.
	svc, err := invoice.New(db, invoice.Config{
		SourceFolder: fc.SourceFolder,
		TargetFolder: fc.TargetFolder,
		SendTime:     fc.SendTime,
		Location:     loc,
		MailTimeout:  mailTimeout,
	}, logger)
	if err != nil {
		slog.Error("invoice service", "error", err)
		os.Exit(1)
	}

	seedGraphSettings(ctx, svc)

	// Optional MCP stdio.
	if mcpTransport == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "rechnung",
			Version: "1.0.0",
		}, nil)
		svc.RegisterMCP(mcpSrv)
		go func() {
			slog.Info("MCP stdio starting")
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				slog.Error("MCP stdio", "error", err)
			}
		}()
	}

	// Start the daily trigger.
	svc.StartScheduler()
	defer svc.StopScheduler()

	// Router.
	r := chi.NewRouter()
	r.Use(requestID)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	// All API endpoints require Basic Auth.
	r.Group(func(r chi.Router) {
		r.Use(requireBasicAuth(adminUser, adminHash))

		r.Get("/api/settings", func(w http.ResponseWriter, r *http.Request) {
			st, err := svc.Settings(r.Context())
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, st)
		})

		r.Put("/api/settings", func(w http.ResponseWriter, r *http.Request) {
			var values map[string]string
			if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
				writeError(w, 400, err)
				return
			}
			if err := svc.SaveSettings(r.Context(), values); err != nil {
				writeError(w, 400, err)
				return
			}
			st, err := svc.Settings(r.Context())
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, st)
		})

		r.Get("/api/logs", func(w http.ResponseWriter, r *http.Request) {
			logs, err := svc.RecentLogs(r.Context(), queryInt(r, "limit", 100))
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, logs)
		})

		r.Post("/api/run", func(w http.ResponseWriter, r *http.Request) {
			var opts invoice.RunOptions
			if r.ContentLength > 0 {
				if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
					writeError(w, 400, err)
					return
				}
			}
			opts.DryRun = false
			writeJSON(w, 200, svc.TriggerNow(r.Context(), opts))
		})

		r.Post("/api/preview", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Files []string `json:"files"`
			}
			if r.ContentLength > 0 {
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					writeError(w, 400, err)
					return
				}
			}
			writeJSON(w, 200, svc.Preview(r.Context(), req.Files))
		})

		r.Get("/api/next-run", func(w http.ResponseWriter, r *http.Request) {
			resp := map[string]any{"running": svc.SchedulerRunning()}
			if next := svc.NextRun(); next != nil {
				resp["next_run"] = next.Format(time.RFC3339)
			}
			writeJSON(w, 200, resp)
		})

		r.Get("/api/connection-test", func(w http.ResponseWriter, r *http.Request) {
			if err := svc.TestConnection(r.Context()); err != nil {
				writeJSON(w, 200, map[string]any{"connected": false, "error": err.Error()})
				return
			}
			writeJSON(w, 200, map[string]any{"connected": true})
		})

		r.Get("/api/browse", func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Query().Get("path")
			if path == "" {
				path = "/"
			}
			entries, err := svc.BrowseDirectories(r.Context(), path)
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, entries)
		})
	})

	// HTTP server.
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute, // a manual run over SMB can be slow
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// seedGraphSettings copies Graph credentials from the environment into
// the settings store on first start. Placeholder values from an example
// env file are ignored; stored values always win.
func seedGraphSettings(ctx context.Context, svc *invoice.Service) {
	st, err := svc.Settings(ctx)
	if err != nil {
		slog.Warn("read settings for seeding", "error", err)
		return
	}
	pairs := []struct {
		key, current, envVal string
	}{
		{invoice.KeyTenantID, st.TenantID, os.Getenv("TENANT_ID")},
		{invoice.KeyClientID, st.ClientID, os.Getenv("CLIENT_ID")},
		{invoice.KeyClientSecret, st.ClientSecret, os.Getenv("CLIENT_SECRET")},
		{invoice.KeySenderAddress, st.SenderAddress, os.Getenv("SENDER_ADDRESS")},
	}
	values := map[string]string{}
	for _, p := range pairs {
		if p.current != "" || p.envVal == "" || isPlaceholder(p.envVal) {
			continue
		}
		values[p.key] = p.envVal
	}
	if len(values) == 0 {
		return
	}
	if err := svc.SaveSettings(ctx, values); err != nil {
		slog.Warn("seed settings", "error", err)
		return
	}
	slog.Info("seeded settings from environment", "count", len(values))
}

func isPlaceholder(v string) bool {
	lower := strings.ToLower(v)
	return (strings.Contains(lower, "your-") && strings.Contains(lower, "-here")) ||
		v == "rechnung@ppv-web.de"
}

// requestID stamps every request with an id for log correlation.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(kit.WithRequestID(r.Context(), id)))
	})
}

// requireBasicAuth guards the API with a single admin account.
func requireBasicAuth(user, passwordHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, p, ok := r.BasicAuth()
			if !ok ||
				subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 ||
				bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(p)) != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="rechnung"`)
				writeJSON(w, 401, map[string]string{"error": "unauthorized"})
				return
			}
			ctx := kit.WithUser(r.Context(), u)
			ctx = kit.WithRemoteAddr(ctx, r.RemoteAddr)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
