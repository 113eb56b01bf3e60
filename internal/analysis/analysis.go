// Package analysis provides the AI collaborators for safety commentary.
//
// Everything here is best-effort enrichment: report analysis, safety
// recommendations, route suggestions, and emergency guidance. Callers must
// treat an error or empty result as "no analysis" and proceed without it.
// When no API key is configured the Noop implementation stands in.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"google.golang.org/genai"

	"github.com/safetransit/safetransit/internal/report"
)

// ErrEmptyResponse indicates the model returned no usable text.
var ErrEmptyResponse = errors.New("empty model response")

// systemPrompt frames every generation. Short answers render better in chat
// confirmations and dashboard cards.
const systemPrompt = "You are a transit-safety assistant for the Padova bus network. " +
	"Answer in at most three short sentences, concrete and calm, no markdown."

// Service generates safety commentary through Genkit.
type Service struct {
	g           *genkit.Genkit
	modelName   string
	temperature float32
	logger      *slog.Logger
}

// Config configures a Service.
type Config struct {
	Genkit      *genkit.Genkit // Required: initialized with the googlegenai plugin
	ModelName   string         // Required: e.g. "gemini-2.5-flash"
	Temperature float32
	Logger      *slog.Logger // Optional: nil uses slog.Default()
}

// NewService creates an analysis service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Genkit == nil {
		return nil, errors.New("analysis: genkit is required")
	}
	if cfg.ModelName == "" {
		return nil, errors.New("analysis: model name is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		g:           cfg.Genkit,
		modelName:   cfg.ModelName,
		temperature: cfg.Temperature,
		logger:      logger,
	}, nil
}

// AnalyzeReport returns free-text commentary on a finalized report.
// Implements report.Analyzer.
func (s *Service) AnalyzeReport(ctx context.Context, r *report.Report) (string, error) {
	prompt := fmt.Sprintf(
		"Analyze this safety report: Location: %s, Crowd Level: %s, Safety Concerns: %s",
		r.Location, r.CrowdLevel, r.ConcernsLine())
	if r.AdditionalInfo != "" {
		prompt += ", Additional Info: " + r.AdditionalInfo
	}
	return s.generate(ctx, prompt)
}

// SafetyRecommendation returns travel advice for a location and time of day.
func (s *Service) SafetyRecommendation(ctx context.Context, location, timeOfDay string) (string, error) {
	return s.generate(ctx, fmt.Sprintf(
		"What are the safety recommendations for traveling near %s during %s?",
		location, timeOfDay))
}

// RouteSuggestion returns the safest-route advice between two stops.
func (s *Service) RouteSuggestion(ctx context.Context, from, to string) (string, error) {
	return s.generate(ctx, fmt.Sprintf(
		"Suggest the safest route from %s to %s in Padova, considering current time and safety scores",
		from, to))
}

// EmergencyGuidance returns immediate steps for a transit emergency.
func (s *Service) EmergencyGuidance(ctx context.Context) (string, error) {
	return s.generate(ctx, "What are the immediate steps to take in a transit emergency?")
}

// generate runs one prompt through the configured model.
func (s *Service) generate(ctx context.Context, prompt string) (string, error) {
	response, err := genkit.Generate(ctx, s.g,
		ai.WithModelName("googleai/"+s.modelName),
		ai.WithSystem(systemPrompt),
		ai.WithPrompt(prompt),
		ai.WithConfig(&genai.GenerateContentConfig{
			Temperature: genai.Ptr(s.temperature),
		}),
	)
	if err != nil {
		s.logger.Warn("generation failed", "model", s.modelName, "error", err)
		return "", fmt.Errorf("generating analysis: %w", err)
	}

	text := strings.TrimSpace(response.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Noop is the analyzer used when no AI credentials are configured.
// Every method reports success with no text, so completion never depends
// on the collaborator being present.
type Noop struct{}

// AnalyzeReport implements report.Analyzer with no output.
func (Noop) AnalyzeReport(context.Context, *report.Report) (string, error) {
	return "", nil
}

// SafetyRecommendation returns no advice.
func (Noop) SafetyRecommendation(context.Context, string, string) (string, error) {
	return "", nil
}

// RouteSuggestion returns no advice.
func (Noop) RouteSuggestion(context.Context, string, string) (string, error) {
	return "", nil
}

// EmergencyGuidance returns no advice.
func (Noop) EmergencyGuidance(context.Context) (string, error) {
	return "", nil
}
