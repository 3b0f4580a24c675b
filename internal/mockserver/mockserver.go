package mockserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/straja-ai/lightning-guard/internal/intel"
	"github.com/straja-ai/lightning-guard/internal/redact"
)

const maxUploadBytes = 32 << 20

// Options configures the mock analysis service.
type Options struct {
	Delay  time.Duration
	Engine intel.Engine
	Logger *zap.Logger
}

// Handler serves /api/analyze-text and /api/analyze-file. Verdicts come
// from the heuristic engine and are written in the loosely typed shape a
// language-model backend tends to produce: bullet strings, percentages
// and the "explanation" alias.
func Handler(opts Options) http.Handler {
	engine := opts.Engine
	if engine == nil {
		engine = intel.NewRegexBundle()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &server{engine: engine, delay: opts.Delay, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/analyze-text", s.handleText)
	mux.HandleFunc("/api/analyze-file", s.handleFile)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "engine": engine.Status()})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not found", http.StatusNotFound)
	})
	return mux
}

// Start launches the mock service on addr. It returns a shutdown function
// and the base URL (e.g., http://127.0.0.1:5000).
func Start(addr string, opts Options) (func(context.Context) error, string, error) {
	if strings.TrimSpace(addr) == "" {
		addr = "127.0.0.1:5000"
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.Logger = logger

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", fmt.Errorf("listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           Handler(opts),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("mock server error", zap.Error(err))
		}
	}()

	baseURL := "http://" + ln.Addr().String()
	logger.Info("mock analysis service listening",
		zap.String("url", baseURL),
		zap.Duration("delay", opts.Delay))
	return srv.Shutdown, baseURL, nil
}

type server struct {
	engine intel.Engine
	delay  time.Duration
	logger *zap.Logger
}

func (s *server) handleText(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes)).Decode(&body); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		http.Error(w, "No text provided", http.StatusBadRequest)
		return
	}
	s.respond(w, r, body.Text, nil)
}

func (s *server) handleFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "Invalid multipart body", http.StatusBadRequest)
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		http.Error(w, "No files uploaded", http.StatusBadRequest)
		return
	}
	names := make([]string, 0, len(files))
	for _, fh := range files {
		names = append(names, fh.Filename)
	}
	s.respond(w, r, r.FormValue("text"), names)
}

func (s *server) respond(w http.ResponseWriter, r *http.Request, text string, filenames []string) {
	s.logger.Debug("mock analysis request",
		zap.String("path", r.URL.Path),
		zap.String("request_id", r.Header.Get("X-Request-ID")),
		zap.String("text_preview", redact.Preview(text, 60)),
		zap.Strings("files", filenames))

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-r.Context().Done():
			return
		}
	}

	res, err := s.engine.Analyze(r.Context(), text, filenames)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	v := res.Verdict()

	payload := map[string]any{
		"threatLevel":             string(v.ThreatLevel),
		"confidence":              fmt.Sprintf("%.0f%%", v.Confidence),
		"category":                v.Category,
		"explanation":             v.Details,
		"recommendations":         bulletList(v.Recommendations),
		"securityRecommendations": v.SecurityRecommendations,
	}
	if len(v.Services) > 0 {
		payload["services"] = strings.Join(v.Services, "\n")
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func bulletList(items []string) string {
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("• ")
		b.WriteString(item)
	}
	return b.String()
}
