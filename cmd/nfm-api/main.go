package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"NetFlowMeter/internal/config"
	"NetFlowMeter/internal/logging"
	"NetFlowMeter/internal/query"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	logger := logging.New(cfg.Logging)

	// The API reads from the same ClickHouse instance the engine writes to:
	// take the first enabled clickhouse writer definition.
	var chCfg *config.ClickHouseConfig
	for _, writerDef := range cfg.Engine.Writers {
		if writerDef.Enabled && writerDef.Type == "clickhouse" {
			chCfg = &writerDef.ClickHouse
			break
		}
	}
	if chCfg == nil {
		logger.Fatal("no enabled clickhouse writer in config, api server cannot start")
	}

	querier, err := query.NewClickHouseQuerier(*chCfg)
	if err != nil {
		logger.WithError(err).Fatal("failed to create querier")
	}

	apiHandler := &APIHandler{querier: querier, log: logger.WithField("component", "api")}

	r := mux.NewRouter()
	r.HandleFunc("/api/v1/flows/summary", apiHandler.summaryHandler).Methods("POST")
	r.HandleFunc("/api/v1/flows/top", apiHandler.topFlowsHandler).Methods("POST")
	r.HandleFunc("/api/v1/health", apiHandler.healthHandler).Methods("GET")

	server := &http.Server{
		Addr:    cfg.API.ListenAddr,
		Handler: r,
	}

	go func() {
		logger.WithField("addr", server.Addr).Info("api server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatalf("could not listen on %s", server.Addr)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("api server shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("server forced to shutdown")
	}
	logger.Info("api server exited")
}

// APIHandler holds the dependencies for the API handlers.
type APIHandler struct {
	querier query.Querier
	log     *logrus.Entry
}

// summaryHandler aggregates totals over a time range. An empty body means
// no filters.
func (h *APIHandler) summaryHandler(w http.ResponseWriter, r *http.Request) {
	var req query.SummaryRequest
	if err := decodeRequest(r, &req); err != nil {
		http.Error(w, fmt.Sprintf("failed to decode request: %v", err), http.StatusBadRequest)
		return
	}

	resp, err := h.querier.Summary(r.Context(), &req)
	if err != nil {
		h.log.WithError(err).Error("summary query failed")
		http.Error(w, fmt.Sprintf("failed to query summary: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, resp)
}

// topFlowsHandler returns the heaviest flows by bytes or packets.
func (h *APIHandler) topFlowsHandler(w http.ResponseWriter, r *http.Request) {
	var req query.TopFlowsRequest
	if err := decodeRequest(r, &req); err != nil {
		http.Error(w, fmt.Sprintf("failed to decode request: %v", err), http.StatusBadRequest)
		return
	}

	resp, err := h.querier.TopFlows(r.Context(), &req)
	if err != nil {
		h.log.WithError(err).Error("top flows query failed")
		http.Error(w, fmt.Sprintf("failed to query top flows: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, resp)
}

func (h *APIHandler) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func decodeRequest(r *http.Request, dst interface{}) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(payload)
}
