// Package weather is a canned weather service exposed over MCP by
// "minimcp serve -toolset weather". It is a fixture for exercising
// hosts, not a forecast source.
package weather

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/nugget/minimcp/internal/mcp"
)

var reports = map[string]string{
	"beijing":  "The weather of Beijing is sunny, 25°C",
	"shanghai": "The weather of Shanghai is cloudy, 22°C",
	"hangzhou": "The weather of Hangzhou is rainy, 29°C, 80% humidity, wind 10km/h",
	"nyc":      "The weather of NYC is 67°F, precipitation 0%, humidity 68%, wind 5 mph",
}

// Service answers weather lookups and remembers every location asked.
type Service struct {
	logger *slog.Logger

	mu      sync.Mutex
	records []string
}

// NewService creates a Service with an empty lookup record.
func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger.With("toolset", "weather")}
}

// Lookup returns the report for location. Unknown locations get an
// "unsupported" message rather than an error.
func (s *Service) Lookup(location string) string {
	s.mu.Lock()
	s.records = append(s.records, location)
	s.mu.Unlock()

	location = strings.TrimSpace(location)
	if location == "" {
		return "Location is required"
	}
	if r, ok := reports[strings.ToLower(location)]; ok {
		s.logger.Debug("weather lookup", "location", location)
		return r
	}
	s.logger.Debug("weather lookup for unsupported location", "location", location)
	return "The weather of " + location + " is unsupported, please try another location"
}

// Records returns the locations looked up so far, oldest first.
func (s *Service) Records() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.records))
	copy(out, s.records)
	return out
}

// Instructions is the initialize-time description of the toolset.
const Instructions = "Fake weather server. get_weather knows Beijing, Shanghai, Hangzhou and NYC."

// Tools returns get_weather and list_get_weather_records.
func (s *Service) Tools() []mcp.ExposedTool {
	return []mcp.ExposedTool{
		{
			Name:        "get_weather",
			Description: "Get the weather of a location",
			Params: map[string]mcp.Property{
				"location": {
					Type:        "string",
					Description: `The location to get weather for, in English, like "Beijing" or "Shanghai"`,
				},
			},
			Required: []string{"location"},
			Invoke: func(_ context.Context, args map[string]any) (any, error) {
				loc, _ := args["location"].(string)
				return s.Lookup(loc), nil
			},
		},
		{
			Name:        "list_get_weather_records",
			Description: "List all get weather records",
			Params:      map[string]mcp.Property{},
			Invoke: func(context.Context, map[string]any) (any, error) {
				return s.Records(), nil
			},
		},
	}
}
