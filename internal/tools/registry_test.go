package tools_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorekeep/lorekeep/internal/tools"
)

func TestRegisterAllExposesTools(t *testing.T) {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "lorekeep-test",
		Version: "0.0.1-test",
	}, nil)

	deps := &tools.Dependencies{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	tools.RegisterAll(server, deps)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Run(ctx, serverTransport)
	}()

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer session.Close()

	result, err := session.ListTools(ctx, nil)
	require.NoError(t, err)
	require.Len(t, result.Tools, 9)

	names := make([]string, len(result.Tools))
	for i, tool := range result.Tools {
		names[i] = tool.Name
	}
	for _, want := range []string{
		"ping", "remember", "recall", "entity", "link",
		"subgraph", "generate", "snapshot", "rollback",
	} {
		assert.Contains(t, names, want)
	}

	cancel()
	select {
	case <-serverErr:
	case <-time.After(2 * time.Second):
		t.Error("server did not stop within timeout")
	}
}
