package mcpsrv

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/stephenstubbs/viewpoint/axsnap"
	"github.com/stephenstubbs/viewpoint/axsnap/axhtml"
	"github.com/stephenstubbs/viewpoint/internal/config"
	"github.com/stephenstubbs/viewpoint/session"
)

var testImpl = &mcp.Implementation{Name: "viewpoint-test", Version: "0.1.0"}

// staticOpener backs new pages with in-memory HTML documents.
type staticOpener struct {
	ctx  *session.Context
	docs map[string]string
}

func (o *staticOpener) OpenPage(_ context.Context, url string) (*session.PageHandle, error) {
	src, ok := o.docs[url]
	if !ok {
		return nil, fmt.Errorf("no document for %q", url)
	}
	prov, err := axhtml.New(url, map[string]string{url: src})
	if err != nil {
		return nil, err
	}
	return o.ctx.NewPage(prov, prov.MainFrame(), url), nil
}

// mcpSession builds a Service over static documents and returns a connected
// client session that can call tools end-to-end.
func mcpSession(t *testing.T) *mcp.ClientSession {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := session.NewRegistry(logger)
	engine := axsnap.New(axsnap.Config{Logger: logger})
	opener := &staticOpener{
		ctx: reg.NewContext(),
		docs: map[string]string{
			"https://example.com/form": `<html><body><button>Submit</button></body></html>`,
		},
	}
	var cfg config.Config
	cfg.ApplyDefaults()
	svc := NewService(logger, reg, engine, opener, cfg.Capture)

	srv := mcp.NewServer(testImpl, nil)
	svc.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()

	go func() {
		_ = srv.Run(ctx, serverT)
	}()

	client := mcp.NewClient(testImpl, nil)
	sess, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { sess.Close() })
	return sess
}

// callTool invokes a tool and returns the JSON text from the first TextContent.
func callTool(t *testing.T, sess *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := sess.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if result.IsError {
		t.Fatalf("CallTool(%s) tool error: %s", name, resultText(t, name, result))
	}
	return resultText(t, name, result)
}

// resultText extracts the text of the first TextContent in a result.
func resultText(t *testing.T, name string, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	return tc.Text
}

// callToolErr invokes a tool expecting a tool error; returns its message.
func callToolErr(t *testing.T, sess *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := sess.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if !result.IsError {
		t.Fatalf("CallTool(%s): expected tool error", name)
	}
	return resultText(t, name, result)
}

func openTestPage(t *testing.T, sess *mcp.ClientSession) PageSummary {
	t.Helper()
	text := callTool(t, sess, "viewpoint_open_page", map[string]any{
		"url": "https://example.com/form",
	})
	var p PageSummary
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return p
}

func TestMCP_OpenPage(t *testing.T) {
	sess := mcpSession(t)
	p := openTestPage(t, sess)
	if p.PageID == "" {
		t.Error("expected non-empty page ID")
	}
	if p.ContextIndex != 0 || p.PageIndex != 0 {
		t.Errorf("scope = c%dp%d, want c0p0", p.ContextIndex, p.PageIndex)
	}
}

func TestMCP_ListPages(t *testing.T) {
	sess := mcpSession(t)
	p := openTestPage(t, sess)

	text := callTool(t, sess, "viewpoint_list_pages", map[string]any{})
	var out struct {
		Pages []PageSummary `json:"pages"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Pages) != 1 || out.Pages[0].PageID != p.PageID {
		t.Fatalf("pages = %+v", out.Pages)
	}
}

func TestMCP_Snapshot_Text(t *testing.T) {
	sess := mcpSession(t)
	p := openTestPage(t, sess)

	text := callTool(t, sess, "viewpoint_snapshot", map[string]any{
		"page_id": p.PageID,
	})
	var out struct {
		Version   uint64 `json:"version"`
		NodeCount int    `json:"node_count"`
		Outline   string `json:"outline"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Version != 1 {
		t.Errorf("version = %d, want 1", out.Version)
	}
	if out.NodeCount != 1 {
		t.Errorf("node_count = %d, want 1", out.NodeCount)
	}
	if !strings.Contains(out.Outline, `button "Submit"`) || !strings.Contains(out.Outline, "[ref=c0p0e1]") {
		t.Errorf("outline = %q", out.Outline)
	}
}

func TestMCP_Snapshot_Tree(t *testing.T) {
	sess := mcpSession(t)
	p := openTestPage(t, sess)

	text := callTool(t, sess, "viewpoint_snapshot", map[string]any{
		"page_id": p.PageID,
		"format":  "tree",
	})
	var res axsnap.Result
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if res.Full == nil || len(res.Full.Root.Children) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if res.Full.Root.Children[0].Ref != "c0p0e1" {
		t.Errorf("ref = %q", res.Full.Root.Children[0].Ref)
	}
}

func TestMCP_ResolveRef(t *testing.T) {
	sess := mcpSession(t)
	p := openTestPage(t, sess)
	callTool(t, sess, "viewpoint_snapshot", map[string]any{"page_id": p.PageID})

	text := callTool(t, sess, "viewpoint_resolve_ref", map[string]any{
		"page_id": p.PageID,
		"ref":     "c0p0e1",
	})
	var out struct {
		Ref       string `json:"ref"`
		BackendID int64  `json:"backend_id"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.BackendID == 0 {
		t.Error("backend_id = 0")
	}
}

func TestMCP_ResolveRef_WrongScope(t *testing.T) {
	sess := mcpSession(t)
	p := openTestPage(t, sess)
	callTool(t, sess, "viewpoint_snapshot", map[string]any{"page_id": p.PageID})

	msg := callToolErr(t, sess, "viewpoint_resolve_ref", map[string]any{
		"page_id": p.PageID,
		"ref":     "c4p0e1",
	})
	if !strings.Contains(msg, "context") {
		t.Errorf("error = %q", msg)
	}
}

func TestMCP_Snapshot_UnknownPage(t *testing.T) {
	sess := mcpSession(t)
	msg := callToolErr(t, sess, "viewpoint_snapshot", map[string]any{
		"page_id": "page_none",
	})
	if !strings.Contains(msg, "unknown page") {
		t.Errorf("error = %q", msg)
	}
}
