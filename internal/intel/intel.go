package intel

import (
	"context"
	"fmt"
	"strings"

	"github.com/straja-ai/lightning-guard/internal/verdict"
)

// Hit is one matched indicator.
type Hit struct {
	Rule     string
	Category string
	Weight   int
	Evidence string
	Advice   string
}

// Result groups all indicators found in one submission.
type Result struct {
	Hits     []Hit
	Score    int      // 0..100
	Services []string // brands or services referenced by the content
}

// Status describes the current intelligence engine state.
type Status struct {
	Enabled       bool
	BundleID      string
	BundleVersion string
}

// Engine is the generic intelligence engine interface.
type Engine interface {
	Status() Status
	Analyze(ctx context.Context, text string, filenames []string) (*Result, error)
}

const (
	dangerScore  = 60
	warningScore = 25
)

// Verdict maps engine indicators onto the canonical result shape.
func (r *Result) Verdict() verdict.Result {
	if r == nil || len(r.Hits) == 0 {
		return verdict.Result{
			ThreatLevel:     verdict.ThreatSafe,
			Confidence:      60,
			Category:        "Benign",
			Details:         "No known threat indicators were found.",
			Recommendations: []string{"No action needed; stay alert for unexpected requests."},
			Services:        servicesOrNil(r),
		}
	}

	level := verdict.ThreatSafe
	switch {
	case r.Score >= dangerScore:
		level = verdict.ThreatDanger
	case r.Score >= warningScore:
		level = verdict.ThreatWarning
	}

	strongest := r.Hits[0]
	var evidence []string
	var advice []string
	seenAdvice := make(map[string]struct{})
	categories := make(map[string]struct{})
	for _, h := range r.Hits {
		if h.Weight > strongest.Weight {
			strongest = h
		}
		evidence = append(evidence, fmt.Sprintf("%s (%q)", h.Rule, h.Evidence))
		categories[h.Category] = struct{}{}
		if _, ok := seenAdvice[h.Advice]; ok || h.Advice == "" {
			continue
		}
		seenAdvice[h.Advice] = struct{}{}
		advice = append(advice, h.Advice)
	}

	var security []string
	for _, c := range categoryOrder {
		if _, ok := categories[c]; ok {
			security = append(security, categoryHardening[c]...)
		}
	}

	confidence := 55 + float64(r.Score)*0.45
	if confidence > 99 {
		confidence = 99
	}

	return verdict.Result{
		ThreatLevel:             level,
		Confidence:              confidence,
		Category:                strongest.Category,
		Details:                 fmt.Sprintf("Matched %d indicator(s): %s.", len(r.Hits), strings.Join(evidence, "; ")),
		Recommendations:         advice,
		SecurityRecommendations: security,
		Services:                servicesOrNil(r),
	}
}

func servicesOrNil(r *Result) []string {
	if r == nil || len(r.Services) == 0 {
		return nil
	}
	out := make([]string, len(r.Services))
	copy(out, r.Services)
	return out
}

var categoryOrder = []string{
	CategoryMalware,
	CategoryPhishing,
	CategoryScam,
	CategoryInjection,
	CategorySensitiveData,
	CategorySocialEngineering,
}

var categoryHardening = map[string][]string{
	CategoryMalware: {
		"Scan attachments with an up-to-date antivirus before opening.",
		"Only install apps from official stores.",
	},
	CategoryPhishing: {
		"Enable multi-factor authentication on important accounts.",
		"Type known addresses manually instead of following links.",
	},
	CategoryScam: {
		"Verify payment requests through a separate, trusted channel.",
	},
	CategoryInjection: {
		"Treat pasted commands and queries as untrusted input.",
	},
	CategorySensitiveData: {
		"Never share one-time codes, PINs or card security codes.",
	},
	CategorySocialEngineering: {
		"Pause before acting on pressure or deadlines in messages.",
	},
}
