package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/straja-ai/lightning-guard/internal/config"
	"github.com/straja-ai/lightning-guard/internal/redact"
	"github.com/straja-ai/lightning-guard/internal/telemetry"
	"github.com/straja-ai/lightning-guard/internal/verdict"
)

const (
	TextEndpoint = "/api/analyze-text"
	FileEndpoint = "/api/analyze-file"
)

// ServerError is returned when the analysis service answers with a non-2xx status.
type ServerError struct {
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	if msg := strings.TrimSpace(e.Body); msg != "" {
		return msg
	}
	return fmt.Sprintf("Server returned %d", e.StatusCode)
}

// TransportError covers connection failures and unreadable responses.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteConfig configures the HTTP analyzer.
type RemoteConfig struct {
	BaseURL          string
	Timeout          time.Duration
	MaxResponseBytes int64
	Client           *http.Client
	Logger           *zap.Logger
	Telemetry        *telemetry.Provider
}

// Remote submits requests to the analysis service over HTTP.
type Remote struct {
	baseURL          string
	client           *http.Client
	maxResponseBytes int64
	logger           *zap.Logger
	tracer           trace.Tracer
}

// NewRemote creates a new remote analyzer.
func NewRemote(cfg RemoteConfig) *Remote {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = config.DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxResponseBytes := cfg.MaxResponseBytes
	if maxResponseBytes <= 0 {
		maxResponseBytes = 4 * 1024 * 1024
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Remote{
		baseURL:          baseURL,
		client:           client,
		maxResponseBytes: maxResponseBytes,
		logger:           logger,
		tracer:           cfg.Telemetry.Tracer(),
	}
}

// BaseURL returns the service root requests are sent to.
func (r *Remote) BaseURL() string { return r.baseURL }

type textPayload struct {
	Text string `json:"text"`
}

// Analyze sends exactly one POST and normalizes the answer. It never retries.
func (r *Remote) Analyze(ctx context.Context, req Request) (*verdict.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	endpoint := TextEndpoint
	if len(req.Attachments) > 0 {
		endpoint = FileEndpoint
	}
	requestID := uuid.NewString()

	ctx, span := r.tracer.Start(ctx, "guard.analyze", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(telemetry.SafeAttributes(requestFields(req, endpoint, requestID))...)

	log := r.logger.With(
		zap.String("request_id", requestID),
		zap.String("endpoint", endpoint),
	)

	body, contentType, err := encodeRequest(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode")
		return nil, &TransportError{Op: "encode request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+endpoint, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request")
		return nil, &TransportError{Op: "create request", Err: err}
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)

	log.Debug("submitting analysis",
		zap.String("text_preview", redact.Preview(req.TrimmedText(), 80)),
		zap.Int("attachments", len(req.Attachments)),
		zap.String("url", redact.URL(r.baseURL+endpoint)))

	start := time.Now()
	resp, err := r.client.Do(httpReq)
	if err != nil {
		log.Warn("analysis request failed", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return nil, &TransportError{Op: "call analysis service", Err: err}
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	limited := io.LimitReader(resp.Body, r.maxResponseBytes+1)
	respBody, err := io.ReadAll(limited)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read body")
		return nil, &TransportError{Op: "read response", Err: err}
	}
	oversized := int64(len(respBody)) > r.maxResponseBytes
	if oversized {
		respBody = respBody[:r.maxResponseBytes]
	}

	// Any non-2xx status is a server failure, however large its body.
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &ServerError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
		log.Warn("analysis service returned error",
			zap.Int("status", resp.StatusCode),
			zap.String("body", redact.Preview(serr.Body, 200)))
		span.SetStatus(codes.Error, serr.Error())
		return nil, serr
	}
	if oversized {
		err := fmt.Errorf("response exceeded limit (%d bytes)", r.maxResponseBytes)
		span.RecordError(err)
		span.SetStatus(codes.Error, "body too large")
		return nil, &TransportError{Op: "read response", Err: err}
	}

	var raw any
	if err := json.Unmarshal(respBody, &raw); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode")
		return nil, &TransportError{Op: "decode response", Err: fmt.Errorf("decode analysis response: %w", err)}
	}

	res := verdict.Normalize(raw)
	log.Info("analysis settled",
		zap.String("threat_level", string(res.ThreatLevel)),
		zap.Float64("confidence", res.Confidence),
		zap.Duration("elapsed", time.Since(start)))
	span.SetAttributes(attribute.String("guard.threat_level", string(res.ThreatLevel)))
	return &res, nil
}

// requestFields describes req for tracing. telemetry.SafeAttributes drops
// the file names before they reach a span.
func requestFields(req Request, endpoint, requestID string) map[string]any {
	names := make([]string, 0, len(req.Attachments))
	types := make([]string, 0, len(req.Attachments))
	var size int64
	for _, a := range req.Attachments {
		names = append(names, a.Blob.Name)
		types = append(types, a.Blob.MIMEType)
		size += a.Blob.Size()
	}
	return map[string]any{
		"endpoint":         endpoint,
		"request_id":       requestID,
		"input_chars":      len([]rune(req.TrimmedText())),
		"attachments":      len(req.Attachments),
		"attachment_bytes": size,
		"mime_types":       types,
		"filenames":        names,
	}
}

// encodeRequest builds the JSON or multipart body for req.
func encodeRequest(req Request) (io.Reader, string, error) {
	text := req.TrimmedText()
	if len(req.Attachments) == 0 {
		body, err := json.Marshal(textPayload{Text: text})
		if err != nil {
			return nil, "", fmt.Errorf("marshal text request: %w", err)
		}
		return bytes.NewReader(body), "application/json", nil
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if text != "" {
		if err := w.WriteField("text", text); err != nil {
			return nil, "", fmt.Errorf("write text field: %w", err)
		}
	}
	for _, a := range req.Attachments {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, escapeQuotes(a.Blob.Name)))
		ct := a.Blob.MIMEType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create file part: %w", err)
		}
		if _, err := part.Write(a.Blob.Data); err != nil {
			return nil, "", fmt.Errorf("write file part: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
