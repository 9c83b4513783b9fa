package kit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestLogging_RecordsFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	errFail := errors.New("fail")

	ep := Logging(logger, "templates.create")(func(context.Context, any) (any, error) {
		return nil, errFail
	})
	_, err := ep(WithTransport(context.Background(), "mcp"), nil)
	if !errors.Is(err, errFail) {
		t.Fatalf("error: got %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "op=templates.create") || !strings.Contains(out, "transport=mcp") {
		t.Fatalf("log line missing attrs: %s", out)
	}
}

func TestContext_Defaults(t *testing.T) {
	ctx := context.Background()
	if v := GetUserID(ctx); v != "" {
		t.Fatalf("user id default: got %q", v)
	}
	if v := GetTransport(ctx); v != "http" {
		t.Fatalf("transport default: got %q", v)
	}
	ctx = WithTraceID(WithUserID(ctx, "usr_1"), "trc_1")
	if GetUserID(ctx) != "usr_1" || GetTraceID(ctx) != "trc_1" {
		t.Fatal("values not carried")
	}
}

func TestRegisterMCPTool(t *testing.T) {
	type req struct {
		Name string `json:"name"`
	}
	srv := mcp.NewServer(&mcp.Implementation{Name: "kit-test", Version: "0.1.0"}, nil)
	RegisterMCPTool(srv, &mcp.Tool{
		Name:        "greet",
		InputSchema: map[string]any{"type": "object"},
	}, func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		if p.Name == "" {
			return nil, errors.New("name required")
		}
		return map[string]string{"hello": p.Name, "via": GetTransport(ctx)}, nil
	}, DecodeJSON[req])

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()
	session, err := mcp.NewClient(&mcp.Implementation{Name: "c", Version: "0.1.0"}, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer session.Close()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: "greet", Arguments: map[string]any{"name": "ada"}})
	if err != nil {
		t.Fatal(err)
	}
	text := res.Content[0].(*mcp.TextContent).Text
	if !strings.Contains(text, `"hello":"ada"`) || !strings.Contains(text, `"via":"mcp"`) {
		t.Fatalf("unexpected result: %s", text)
	}

	// WHY: endpoint errors surface as tool errors, not protocol errors.
	res, err = session.CallTool(ctx, &mcp.CallToolParams{Name: "greet", Arguments: map[string]any{}})
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Fatal("expected tool error")
	}
}
