package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the loaded config for required fields and safe values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if err := validateBaseURL("api.base_url", cfg.API.BaseURL); err != nil {
		return err
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Analyzer.Strategy)) {
	case StrategyRemote, StrategyHeuristic:
	default:
		return fmt.Errorf("analyzer.strategy must be remote or heuristic, got %q", cfg.Analyzer.Strategy)
	}

	if cfg.Attachments.Max < 1 {
		return errors.New("attachments.max must be at least 1")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", cfg.Logging.Format)
	}

	if err := validateNotifyConfig(cfg.Notify); err != nil {
		return err
	}

	if err := validateTelemetryConfig(cfg.Telemetry); err != nil {
		return err
	}

	return nil
}

func validateBaseURL(field, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%s must be set", field)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s is invalid: %q", field, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be http or https", field)
	}
	return nil
}

func validateNotifyConfig(n NotifyConfig) error {
	for i, w := range n.Webhooks {
		if strings.TrimSpace(w.URL) == "" {
			return fmt.Errorf("notify webhook %d missing url", i)
		}
		if err := validateBaseURL(fmt.Sprintf("notify webhook %d url", i), w.URL); err != nil {
			return err
		}
		switch strings.ToLower(strings.TrimSpace(w.MinLevel)) {
		case "", "info", "warning", "error":
		default:
			return fmt.Errorf("notify webhook %d min_level must be info, warning or error, got %q", i, w.MinLevel)
		}
	}
	return nil
}

func validateTelemetryConfig(t TelemetryConfig) error {
	if !t.Enabled {
		return nil
	}
	if strings.TrimSpace(t.Endpoint) == "" {
		return errors.New("telemetry enabled but endpoint is empty")
	}
	if t.Protocol != "" {
		switch strings.ToLower(strings.TrimSpace(t.Protocol)) {
		case "grpc", "http":
		default:
			return fmt.Errorf("telemetry.protocol must be grpc or http, got %q", t.Protocol)
		}
	}
	return nil
}
