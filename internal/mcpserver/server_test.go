package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/patto/internal/noteservice"
	"github.com/starford/patto/internal/storage"
	"github.com/starford/patto/internal/testutil"
	"github.com/starford/patto/internal/workspace"
)

func testServer(t *testing.T) (*Server, storage.Provider) {
	t.Helper()
	svc, store := testutil.TestService(t)
	return New(svc, "test"), store
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so the handlers are
	// invoked directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "search_notes":
		result, err = srv.searchNotes(ctx, req)
	case "read_note":
		result, err = srv.readNote(ctx, req)
	case "create_note":
		result, err = srv.createNote(ctx, req)
	case "list_notes":
		result, err = srv.listNotes(ctx, req)
	case "get_backlinks":
		result, err = srv.getBacklinks(ctx, req)
	case "get_two_hop":
		result, err = srv.getTwoHop(ctx, req)
	case "list_tasks":
		result, err = srv.listTasks(ctx, req)
	case "resolve_link":
		result, err = srv.resolveLink(ctx, req)
	case "get_note_format":
		result, err = srv.getNoteFormat(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestCreateAndReadNote(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "create_note", map[string]interface{}{
		"path":    "test.pn",
		"content": "Test\n\tHello\n",
	})
	if text := resultText(r); text != "created: test.pn" {
		t.Errorf("create result = %q", text)
	}

	r = callTool(t, srv, "read_note", map[string]interface{}{"path": "test.pn"})
	if text := resultText(r); text != "Test\n\tHello\n" {
		t.Errorf("read result = %q", text)
	}
}

func TestCreateNoteRejectsDuplicate(t *testing.T) {
	srv, _ := testServer(t)
	args := map[string]interface{}{"path": "dup.pn", "content": "x\n"}
	_ = callTool(t, srv, "create_note", args)

	r := callTool(t, srv, "create_note", args)
	if !r.IsError || !strings.Contains(resultText(r), "already exists") {
		t.Errorf("duplicate create = %q", resultText(r))
	}
}

func TestListNotes(t *testing.T) {
	srv, store := testServer(t)
	_ = store.Write("a.pn", []byte("a\n"))
	_ = store.Write("dir/b.pn", []byte("b\n"))
	for _, p := range []string{"a.pn", "dir/b.pn"} {
		_ = callTool(t, srv, "read_note", map[string]interface{}{"path": p})
	}

	r := callTool(t, srv, "list_notes", map[string]interface{}{})
	if text := resultText(r); text != "a.pn\ndir/b.pn" {
		t.Errorf("list = %q", text)
	}
	r = callTool(t, srv, "list_notes", map[string]interface{}{"folder": "dir"})
	if text := resultText(r); text != "dir/b.pn" {
		t.Errorf("list dir = %q", text)
	}
}

func TestReadNoteMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_note", map[string]interface{}{"path": "nope.pn"})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
}

func TestGetBacklinks(t *testing.T) {
	srv, _ := testServer(t)
	_ = callTool(t, srv, "create_note", map[string]interface{}{
		"path":    "a.pn",
		"content": "intro\nlinks to [b]\n",
	})

	r := callTool(t, srv, "get_backlinks", map[string]interface{}{"path": "b.pn"})
	if text := resultText(r); text != "a.pn:2: links to [b]" {
		t.Errorf("backlinks = %q", text)
	}

	r = callTool(t, srv, "get_backlinks", map[string]interface{}{"path": "a.pn"})
	if text := resultText(r); text != "no backlinks found" {
		t.Errorf("backlinks = %q", text)
	}
}

func TestGetTwoHop(t *testing.T) {
	srv, _ := testServer(t)
	_ = callTool(t, srv, "create_note", map[string]interface{}{"path": "a.pn", "content": "[hub]\n"})
	_ = callTool(t, srv, "create_note", map[string]interface{}{"path": "c.pn", "content": "[hub]\n"})

	r := callTool(t, srv, "get_two_hop", map[string]interface{}{"path": "a.pn"})
	var bridges []workspace.Bridge
	if err := json.Unmarshal([]byte(resultText(r)), &bridges); err != nil {
		t.Fatalf("decode: %v (%q)", err, resultText(r))
	}
	if len(bridges) != 1 || bridges[0].Name != "hub" || len(bridges[0].Notes) != 1 || bridges[0].Notes[0] != "c" {
		t.Errorf("bridges = %+v", bridges)
	}
}

func TestListTasks(t *testing.T) {
	srv, _ := testServer(t)
	_ = callTool(t, srv, "create_note", map[string]interface{}{
		"path":    "plan.pn",
		"content": "later !2025-06-01\nnow *2025-01-01\n",
	})

	r := callTool(t, srv, "list_tasks", map[string]interface{}{})
	var tasks []noteservice.TaskItem
	if err := json.Unmarshal([]byte(resultText(r)), &tasks); err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 2 || tasks[0].Text != "now" || tasks[0].Status != "doing" {
		t.Errorf("tasks = %+v", tasks)
	}

	r = callTool(t, srv, "list_tasks", map[string]interface{}{"status": "nope"})
	if !r.IsError {
		t.Error("expected error for invalid status")
	}
}

func TestResolveLink(t *testing.T) {
	srv, _ := testServer(t)
	_ = callTool(t, srv, "create_note", map[string]interface{}{"path": "a.pn", "content": "top #here\n[b]\n"})

	r := callTool(t, srv, "resolve_link", map[string]interface{}{"from": "a.pn", "anchor": "here"})
	var res noteservice.Resolution
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatal(err)
	}
	if res.Path != "a.pn" || !res.AnchorFound {
		t.Errorf("self link = %+v", res)
	}

	r = callTool(t, srv, "resolve_link", map[string]interface{}{"from": "a.pn", "target": "b"})
	if !r.IsError || resultText(r) != "not found" {
		t.Errorf("unresolved = %q", resultText(r))
	}
}

func TestGetNoteFormat(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_note_format", nil)
	if !strings.Contains(resultText(r), "{@task status=") {
		t.Error("format reference missing task syntax")
	}
}
