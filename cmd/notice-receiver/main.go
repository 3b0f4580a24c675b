package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/straja-ai/lightning-guard/internal/logging"
	"github.com/straja-ai/lightning-guard/internal/notify"
)

func main() {
	addr := flag.String("addr", ":8099", "listen address for notice receiver")
	format := flag.String("log-format", "console", "log format: json or console")
	flag.Parse()

	logger, err := logging.New(logging.Config{Level: "info", Format: *format})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	mux := http.NewServeMux()
	mux.Handle("/notices", newHandler(logger))
	mux.Handle("/", newHandler(logger))

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("notice receiver listening (POST JSON to /notices)", zap.String("addr", *addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("receiver error", zap.Error(err))
	}
}

func newHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		_ = r.Body.Close()
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}

		var n notify.Notice
		if err := json.Unmarshal(body, &n); err != nil {
			logger.Warn("received undecodable notice",
				zap.String("path", r.URL.Path),
				zap.String("content_type", r.Header.Get("Content-Type")),
				zap.Int("len", len(body)))
			http.Error(w, "invalid notice", http.StatusBadRequest)
			return
		}

		logger.Info("received notice",
			zap.String("id", n.ID),
			zap.String("title", n.Title),
			zap.String("description", n.Description),
			zap.String("variant", string(n.Variant)),
			zap.String("level", string(n.Level)),
			zap.Time("timestamp", n.Timestamp))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintln(w, `{"status":"ok"}`)
	}
}
