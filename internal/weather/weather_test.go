package weather

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/nugget/minimcp/internal/mcp"
)

func TestLookup(t *testing.T) {
	s := NewService(slog.New(slog.DiscardHandler))
	tests := []struct {
		location string
		want     string
	}{
		{"Shanghai", "The weather of Shanghai is cloudy"},
		{"beijing", "The weather of Beijing is sunny"},
		{" NYC ", "The weather of NYC is"},
		{"Atlantis", "The weather of Atlantis is unsupported"},
		{"   ", "Location is required"},
	}
	for _, tt := range tests {
		if got := s.Lookup(tt.location); !strings.HasPrefix(got, tt.want) {
			t.Errorf("Lookup(%q) = %q, want prefix %q", tt.location, got, tt.want)
		}
	}
	if got := s.Records(); len(got) != len(tests) || got[0] != "Shanghai" {
		t.Errorf("Records = %q", got)
	}
}

func TestTools_ServedOverMCP(t *testing.T) {
	s := NewService(slog.New(slog.DiscardHandler))
	srv := mcp.NewToolServer(mcp.ToolServerOptions{
		Info:         mcp.ServerInfo{Name: "weather", Version: "test"},
		Instructions: Instructions,
		Logger:       slog.New(slog.DiscardHandler),
	}, s.Tools())

	ctx := context.Background()
	out := string(srv.ProcessLine(ctx, []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_weather","arguments":{"location":"Hangzhou"}}}`)))
	if !strings.Contains(out, "The weather of Hangzhou is rainy") {
		t.Errorf("get_weather response = %s", out)
	}

	out = string(srv.ProcessLine(ctx, []byte(`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"list_get_weather_records"}}`)))
	if !strings.Contains(out, `[\"Hangzhou\"]`) {
		t.Errorf("records response = %s", out)
	}
}
