// cmd/engine/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	commonaws "fieldservice-engine/internal/common/aws"
	"fieldservice-engine/internal/common/config"
	"fieldservice-engine/internal/common/database"
	"fieldservice-engine/internal/common/errors"
	"fieldservice-engine/internal/common/logger"
	"fieldservice-engine/internal/common/observability"
	"fieldservice-engine/internal/engine/gateway"
	"fieldservice-engine/internal/engine/ledger"
	"fieldservice-engine/internal/engine/notify"
	"fieldservice-engine/internal/engine/payments"
	"fieldservice-engine/internal/engine/processor"
	"fieldservice-engine/internal/engine/state"
	"fieldservice-engine/internal/engine/trust"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting reconciliation engine...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("reconciliation-engine")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		// Test the connection with context
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var redisClient *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redisClient, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		// Test the connection with context
		return redisClient.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redisClient.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		// Test the connection
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init AWS clients for notifications (optional) ---
	var sesClient *commonaws.SESClient
	var snsClient *commonaws.SNSClient
	if cfg.Notifications.Email.Enabled {
		sesClient, err = commonaws.NewSESClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Warn("SES client unavailable, email notifications disabled", zap.Error(err))
			sesClient = nil
		}
	}
	if cfg.Notifications.SMS.Enabled {
		snsClient, err = commonaws.NewSNSClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Warn("SNS client unavailable, SMS notifications disabled", zap.Error(err))
			snsClient = nil
		}
	}

	// --- Wire the engine ---
	resolver := processor.NewConfigResolver(cfg.Processors, log)
	adjuster := trust.NewAdjuster(pg.DB, cfg.Trust, log)
	writer := ledger.NewWriter(pg.DB, esClient, cfg.Database.Elasticsearch.AuditIndex, log)
	env := payments.ParseEnvironment(cfg.App.Environment)
	router := payments.NewRouter(env, resolver, adjuster, writer, log)
	notifier := notify.New(pg.DB, sesClient, snsClient, cfg.Notifications, log)
	gw := gateway.New(pg.DB, redisClient.Client, router, writer, resolver, notifier, obs, log)

	zapLog.Info("Engine initialized",
		zap.String("environment", string(env)),
		zap.Int("rails", len(cfg.Processors)),
	)

	// --- API Server ---
	mux := http.NewServeMux()
	registerRoutes(mux, gw, log)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		zapLog.Info("API server listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("API server failed", zap.Error(err))
		}
	}()

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Server.MetricsAddress))
		if err := http.ListenAndServe(cfg.Server.MetricsAddress, nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining requests...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down API server", zap.Error(err))
	}

	zapLog.Info("Reconciliation engine stopped gracefully")
}

func registerRoutes(mux *http.ServeMux, gw *gateway.Gateway, log logger.Logger) {
	mux.HandleFunc("POST /api/v1/jobs/{jobID}/transition", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid request body"})
			return
		}

		result, err := gw.TransitionJobStatus(r.Context(), r.PathValue("jobID"), body.Status)
		if err != nil {
			writeError(w, err)
			return
		}
		if !result.Allowed {
			writeError(w, denialError(result))
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	mux.HandleFunc("POST /api/v1/invoices/{invoiceID}/payments", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Method      string                 `json:"method"`
			AmountCents int64                  `json:"amountCents"`
			Metadata    map[string]interface{} `json:"metadata"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid request body"})
			return
		}

		result, err := gw.CollectPayment(r.Context(), r.PathValue("invoiceID"), body.Method, body.AmountCents, body.Metadata)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, result)
	})

	mux.HandleFunc("POST /api/v1/payments/{paymentID}/refund", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			AmountCents int64 `json:"amountCents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid request body"})
			return
		}

		if err := gw.RefundPayment(r.Context(), r.PathValue("paymentID"), body.AmountCents); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"refunded": true})
	})

	mux.HandleFunc("POST /api/v1/webhooks/processor", func(w http.ResponseWriter, r *http.Request) {
		payload, err := readBody(r, 1<<20)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "unreadable request body"})
			return
		}

		// Rejected webhooks surface as security errors, which writeError
		// maps to a 4xx so the rail does not keep retrying a payload that
		// can never verify.
		result, err := gw.HandleProcessorWebhook(r.Context(), payload, r.Header.Get("X-Signature"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	})
}

// denialError converts a denied transition into the structured error the
// response layer knows how to map.
func denialError(result *state.Result) error {
	if len(result.MissingFields) > 0 {
		return errors.NewMissingRequiredFieldsError(result.MissingFields)
	}
	return errors.NewInvalidTransitionError(result.Reason)
}

func readBody(r *http.Request, limit int64) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(http.MaxBytesReader(nil, r.Body, limit))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps standard error codes onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	se, ok := errors.AsStandardError(err)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}

	status := http.StatusInternalServerError
	switch errors.GetErrorCategory(se.Code) {
	case "VALIDATION", "SECURITY":
		status = http.StatusBadRequest
	case "PROCESSOR":
		status = http.StatusBadGateway
	case "CONFIGURATION":
		status = http.StatusServiceUnavailable
	default:
		switch se.Code {
		case errors.ErrCodeRecordNotFound:
			status = http.StatusNotFound
		case errors.ErrCodeLockContention:
			status = http.StatusConflict
		}
	}

	writeJSON(w, status, map[string]interface{}{
		"error":     se.Message,
		"code":      se.Code,
		"details":   se.Details,
		"retryable": se.Retryable,
	})
}
