package ai

import "strings"

type ModelProfile struct {
	PrimaryModel    string
	FallbackModel   string
	Temperature     float64
	MaxOutputTokens int
}

type ModelRouterConfig struct {
	ReviewPrimary  string
	ReviewFallback string
}

// ModelRouter picks the model pair used for review generation. The
// fallback model is tried once when the primary call fails.
type ModelRouter struct {
	config ModelRouterConfig
}

func NewModelRouter(config ModelRouterConfig) *ModelRouter {
	if strings.TrimSpace(config.ReviewPrimary) == "" {
		config.ReviewPrimary = "gpt-4o"
	}
	if strings.TrimSpace(config.ReviewFallback) == "" {
		config.ReviewFallback = "gpt-4o-mini"
	}
	return &ModelRouter{config: config}
}

func (r *ModelRouter) Review() ModelProfile {
	return ModelProfile{
		PrimaryModel:    r.config.ReviewPrimary,
		FallbackModel:   r.config.ReviewFallback,
		Temperature:     0.2,
		MaxOutputTokens: 4000,
	}
}
