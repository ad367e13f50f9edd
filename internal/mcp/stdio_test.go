package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"testing"
	"time"

	"github.com/nugget/minimcp/internal/events"
	"github.com/nugget/minimcp/internal/tools"
)

// TestHelperProcess is not a real test. The stdio tests re-run the test
// binary with MINIMCP_HELPER set so that it behaves as an MCP server.
func TestHelperProcess(t *testing.T) {
	mode := os.Getenv("MINIMCP_HELPER")
	if mode == "" {
		return
	}
	defer os.Exit(0)

	switch mode {
	case "serve":
		env := ExposedTool{
			Name: "env",
			Invoke: func(context.Context, map[string]any) (any, error) {
				return os.Getenv("MINIMCP_TEST_VAR"), nil
			},
		}
		srv := NewToolServer(ToolServerOptions{
			Info: ServerInfo{Name: "helper", Version: "0.0.1"},
		}, []ExposedTool{weatherTool(), env})
		if err := srv.Serve(context.Background(), os.Stdin, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, "serve:", err)
			os.Exit(2)
		}
	case "exit":
		fmt.Fprintln(os.Stderr, "fatal: missing configuration")
		os.Exit(1)
	case "silent":
		// Never answers; exits when stdin closes.
		buf := make([]byte, 1024)
		for {
			if _, err := os.Stdin.Read(buf); err != nil {
				return
			}
		}
	case "stubborn":
		signal.Ignore(syscall.SIGTERM)
		fmt.Fprintln(os.Stderr, "ignoring SIGTERM")
		time.Sleep(time.Minute)
	default:
		fmt.Fprintf(os.Stderr, "unknown helper mode %q\n", mode)
		os.Exit(2)
	}
}

func helperConfig(mode string) StdioConfig {
	return StdioConfig{
		Name:    "helper-" + mode,
		Command: os.Args[0],
		Args:    []string{"-test.run=^TestHelperProcess$", "--"},
		Env:     []string{"MINIMCP_HELPER=" + mode},
	}
}

func TestStdio_ConnectCallClose(t *testing.T) {
	cfg := helperConfig("serve")
	cfg.Env = append(cfg.Env, "MINIMCP_TEST_VAR=from-config")
	t.Setenv("MINIMCP_TEST_VAR", "inherited")

	tr, err := StartStdio(cfg)
	if err != nil {
		t.Fatalf("StartStdio: %v", err)
	}
	client := NewClient("helper", tr, ClientOptions{HandshakeTimeout: 10 * time.Second})
	ctx := context.Background()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := client.ServerInfo().Name; got != "helper" {
		t.Errorf("server name = %q, want helper", got)
	}
	if got := len(client.Tools()); got != 2 {
		t.Errorf("catalog has %d tools, want 2", got)
	}

	text, err := client.CallTool(ctx, "get_weather", map[string]any{"location": "Shanghai"})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if text != "The weather of Shanghai is sunny" {
		t.Errorf("CallTool = %q", text)
	}

	// Configured variables override inherited ones.
	text, err = client.CallTool(ctx, "env", nil)
	if err != nil {
		t.Fatalf("CallTool env: %v", err)
	}
	if text != "from-config" {
		t.Errorf("MINIMCP_TEST_VAR = %q, want from-config", text)
	}

	_, err = client.CallTool(ctx, "missing", nil)
	var tie *ToolInvocationError
	if !errors.As(err, &tie) {
		t.Fatalf("CallTool missing = %v, want ToolInvocationError", err)
	}
	if client.State() != StateReady {
		t.Errorf("state = %v after tool error, want ready", client.State())
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := tr.WriteLine(ctx, NewNotification("late", nil)); !errors.Is(err, ErrTransport) {
		t.Errorf("WriteLine after Close = %v, want ErrTransport", err)
	}
}

func TestStdio_ChildExitsBeforeHandshake(t *testing.T) {
	tr, err := StartStdio(helperConfig("exit"))
	if err != nil {
		t.Fatalf("StartStdio: %v", err)
	}
	client := NewClient("exit", tr, ClientOptions{HandshakeTimeout: 10 * time.Second})

	err = client.Connect(context.Background())
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("Connect = %v, want ErrConnection", err)
	}
	if client.State() != StateClosed {
		t.Errorf("state = %v, want closed", client.State())
	}
}

func TestStdio_HandshakeTimeout(t *testing.T) {
	tr, err := StartStdio(helperConfig("silent"))
	if err != nil {
		t.Fatalf("StartStdio: %v", err)
	}
	client := NewClient("silent", tr, ClientOptions{HandshakeTimeout: 200 * time.Millisecond})

	err = client.Connect(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Connect = %v, want ErrTimeout", err)
	}
}

func TestStdio_CloseKillsStubbornChild(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("SIGTERM is not deliverable on windows")
	}

	cfg := helperConfig("stubborn")
	cfg.CloseGrace = 100 * time.Millisecond
	tr, err := StartStdio(cfg)
	if err != nil {
		t.Fatalf("StartStdio: %v", err)
	}
	// Give the child time to install its signal handler.
	time.Sleep(300 * time.Millisecond)

	start := time.Now()
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("Close took %v", elapsed)
	}

	select {
	case <-tr.exited:
	default:
		t.Error("process not reaped after Close")
	}
}

func TestStdio_StartFailure(t *testing.T) {
	_, err := StartStdio(StdioConfig{Command: "/nonexistent/minimcp-server"})
	if err == nil {
		t.Fatal("StartStdio succeeded for a missing binary")
	}
}

func TestHub_ConnectBridgeClose(t *testing.T) {
	hub := NewHub(ClientOptions{HandshakeTimeout: 10 * time.Second})
	bus := events.New()
	ch := bus.Subscribe(8)
	defer bus.Unsubscribe(ch)
	hub.SetBus(bus)

	failures := hub.Connect(context.Background(), []ServerSpec{
		{Name: "weather", Stdio: helperConfig("serve"), ExcludeTools: []string{"env"}},
		{Name: "broken", Stdio: helperConfig("exit")},
		{Name: "weather", Stdio: helperConfig("serve")},
	})

	if len(failures) != 2 {
		t.Fatalf("failures = %v, want broken and duplicate", failures)
	}
	for _, err := range failures {
		if !errors.Is(err, ErrConnection) {
			t.Errorf("failure %v is not a ConnectionError", err)
		}
	}
	if got := len(hub.Clients()); got != 1 {
		t.Fatalf("clients = %d, want 1", got)
	}
	kinds := map[string]int{}
	for len(ch) > 0 {
		kinds[(<-ch).Kind]++
	}
	if kinds[events.KindServerReady] != 1 || kinds[events.KindServerFailed] != 2 {
		t.Errorf("events = %v, want 1 ready and 2 failed", kinds)
	}

	registry := tools.NewRegistry(nil)
	if n := hub.Bridge(registry); n != 1 {
		t.Errorf("Bridge registered %d proxies, want 1", n)
	}
	if registry.Get("mcp_weather_get_weather") == nil {
		t.Error("mcp_weather_get_weather missing")
	}
	if registry.Get(UseToolName) == nil {
		t.Error("use_mcp_tool missing")
	}

	res := registry.Dispatch(context.Background(), UseToolName, map[string]any{
		"server_name": "weather",
		"tool_name":   "get_weather",
		"arguments":   `{"location":"Hangzhou"}`,
	})
	if res.Err != nil || res.Text != "The weather of Hangzhou is sunny" {
		t.Errorf("use_mcp_tool = %+v", res)
	}

	if err := hub.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if c, _ := hub.Client("weather"); c.State() != StateClosed {
		t.Errorf("state after hub close = %v", c.State())
	}
}
