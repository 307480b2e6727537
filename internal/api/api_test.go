package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/patto/internal/noteservice"
	"github.com/starford/patto/internal/testutil"
)

// testEnv sets up a temp workspace, SQLite DB, service, and router for testing.
// An empty authToken means disabled mode; otherwise token mode.
func testEnv(t *testing.T, authToken string) (*noteservice.Service, http.Handler) {
	t.Helper()
	return testEnvWith(t, authToken != "", authToken, nil)
}

func testEnvWith(t *testing.T, authEnabled bool, authToken string, events http.Handler) (*noteservice.Service, http.Handler) {
	t.Helper()
	svc, _ := testutil.TestService(t)
	return svc, NewRouter(svc, authEnabled, authToken, events, nil)
}

func do(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, rd)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func create(t *testing.T, router http.Handler, path, content string) NoteDetail {
	t.Helper()
	w := do(t, router, http.MethodPost, "/notes", map[string]string{"path": path, "content": content})
	if w.Code != http.StatusCreated {
		t.Fatalf("create %s = %d, body = %s", path, w.Code, w.Body.String())
	}
	var note NoteDetail
	if err := json.Unmarshal(w.Body.Bytes(), &note); err != nil {
		t.Fatal(err)
	}
	return note
}

func TestCreateAndGetNote(t *testing.T) {
	_, router := testEnv(t, "")

	created := create(t, router, "daily/today.pn", "Today #top\n\tcall [bob]\n")
	if created.Name != "daily/today" {
		t.Errorf("name = %q, want daily/today", created.Name)
	}

	w := do(t, router, http.MethodGet, "/notes/daily/today.pn", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var note NoteDetail
	_ = json.Unmarshal(w.Body.Bytes(), &note)
	if note.Path != "daily/today.pn" {
		t.Errorf("path = %q", note.Path)
	}
	if len(note.Links) != 1 || note.Links[0].Target != "bob" {
		t.Errorf("links = %+v", note.Links)
	}
	if len(note.Anchors) != 1 || note.Anchors[0].Name != "top" {
		t.Errorf("anchors = %+v", note.Anchors)
	}
}

func TestGetNote_EncodedSlash(t *testing.T) {
	_, router := testEnv(t, "")
	create(t, router, "dir/x.pn", "x\n")

	w := do(t, router, http.MethodGet, "/notes/dir%2Fx.pn", nil)
	if w.Code != http.StatusOK {
		t.Errorf("get encoded = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestCreateDuplicate(t *testing.T) {
	_, router := testEnv(t, "")
	create(t, router, "dup.pn", "a")

	w := do(t, router, http.MethodPost, "/notes", map[string]string{"path": "dup.pn", "content": "a"})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate create = %d, want 409", w.Code)
	}
}

func TestCreateWrongExtension(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/notes", map[string]string{"path": "note.md", "content": "a"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("create .md = %d, want 400", w.Code)
	}
}

func TestUpdateWithOptimisticLocking(t *testing.T) {
	_, router := testEnv(t, "")
	created := create(t, router, "lock.pn", "v1")

	body, _ := json.Marshal(map[string]string{"content": "v2"})
	req := httptest.NewRequest(http.MethodPut, "/notes/lock.pn", bytes.NewReader(body))
	req.Header.Set("If-Match", `"`+created.Checksum+`"`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("update with correct checksum = %d, body = %s", w.Code, w.Body.String())
	}
	var updated NoteDetail
	_ = json.Unmarshal(w.Body.Bytes(), &updated)
	if updated.Version <= created.Version {
		t.Errorf("version = %d, want > %d", updated.Version, created.Version)
	}

	// Stale checksum.
	req = httptest.NewRequest(http.MethodPut, "/notes/lock.pn", bytes.NewReader(body))
	req.Header.Set("If-Match", created.Checksum)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Errorf("update with stale checksum = %d, want 409", w.Code)
	}
}

func TestUpdateWithoutIfMatch(t *testing.T) {
	_, router := testEnv(t, "")
	create(t, router, "nolock.pn", "v1")

	w := do(t, router, http.MethodPut, "/notes/nolock.pn", map[string]string{"content": "v2"})
	if w.Code != http.StatusOK {
		t.Errorf("update without If-Match = %d, want 200", w.Code)
	}
}

func TestUpdateNote_NotFound(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPut, "/notes/ghost.pn", map[string]string{"content": "x"})
	if w.Code != http.StatusNotFound {
		t.Errorf("update missing = %d, want 404", w.Code)
	}
}

func TestDeleteNote(t *testing.T) {
	_, router := testEnv(t, "")
	create(t, router, "bye.pn", "gone")

	if w := do(t, router, http.MethodDelete, "/notes/bye.pn", nil); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/notes/bye.pn", nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/notes/bye.pn", nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}

func TestMoveNote(t *testing.T) {
	_, router := testEnv(t, "")
	create(t, router, "old.pn", "content\n")
	create(t, router, "ref.pn", "see [new]\n")

	w := do(t, router, http.MethodPost, "/notes/move", map[string]string{"from": "old.pn", "to": "new.pn"})
	if w.Code != http.StatusOK {
		t.Fatalf("move = %d, body = %s", w.Code, w.Body.String())
	}
	var moved NoteDetail
	_ = json.Unmarshal(w.Body.Bytes(), &moved)
	if moved.Name != "new" || len(moved.Backlinks) != 1 {
		t.Errorf("moved = %+v", moved)
	}
	if w := do(t, router, http.MethodGet, "/notes/old.pn", nil); w.Code != http.StatusNotFound {
		t.Errorf("old path = %d, want 404", w.Code)
	}
	w = do(t, router, http.MethodPost, "/notes/move", map[string]string{"from": "new.pn", "to": "ref.pn"})
	if w.Code != http.StatusConflict {
		t.Errorf("move onto existing = %d, want 409", w.Code)
	}
}

func TestListNotes(t *testing.T) {
	_, router := testEnv(t, "")
	for _, name := range []string{"b.pn", "a.pn", "c.pn"} {
		create(t, router, name, "x\n")
	}

	w := do(t, router, http.MethodGet, "/notes?limit=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var resp NoteListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 3 || len(resp.Notes) != 2 {
		t.Fatalf("total = %d, len = %d", resp.Total, len(resp.Notes))
	}
	if resp.Notes[0].Name != "a" || resp.Notes[1].Name != "b" {
		t.Errorf("order = %s, %s", resp.Notes[0].Name, resp.Notes[1].Name)
	}
}

func TestTreeEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	create(t, router, "t.pn", "root\n\tchild [x]\n")

	w := do(t, router, http.MethodGet, "/tree/t.pn", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("tree = %d, body = %s", w.Code, w.Body.String())
	}
	var tree struct {
		Value struct {
			Kind     struct {
				Type string `json:"type"`
			} `json:"kind"`
			Children []any `json:"children"`
		} `json:"value"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &tree); err != nil {
		t.Fatal(err)
	}
	if tree.Value.Kind.Type != "Dummy" {
		t.Errorf("root kind = %q, want Dummy", tree.Value.Kind.Type)
	}
	if len(tree.Value.Children) != 1 {
		t.Errorf("top-level blocks = %d, want 1", len(tree.Value.Children))
	}
}

func TestBacklinksAndTwoHop(t *testing.T) {
	_, router := testEnv(t, "")
	create(t, router, "a.pn", "[hub] and [b]\n")
	create(t, router, "b.pn", "x\n")
	create(t, router, "c.pn", "also [hub]\n")

	w := do(t, router, http.MethodGet, "/backlinks/b.pn", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("backlinks = %d", w.Code)
	}
	var bl BacklinksResponse
	_ = json.Unmarshal(w.Body.Bytes(), &bl)
	if len(bl.Backlinks) != 1 || bl.Backlinks[0].SourceName != "a" {
		t.Errorf("backlinks = %+v", bl.Backlinks)
	}

	// A note that does not exist yet still has backlinks.
	w = do(t, router, http.MethodGet, "/backlinks/hub.pn", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &bl)
	if len(bl.Backlinks) != 2 {
		t.Errorf("hub backlinks = %d, want 2", len(bl.Backlinks))
	}

	w = do(t, router, http.MethodGet, "/twohop/a.pn", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("twohop = %d", w.Code)
	}
	var th TwoHopResponse
	_ = json.Unmarshal(w.Body.Bytes(), &th)
	if len(th.Bridges) != 1 || th.Bridges[0].Name != "hub" || len(th.Bridges[0].Notes) != 1 || th.Bridges[0].Notes[0] != "c" {
		t.Errorf("bridges = %+v", th.Bridges)
	}

	if w := do(t, router, http.MethodGet, "/twohop/missing.pn", nil); w.Code != http.StatusNotFound {
		t.Errorf("twohop missing = %d, want 404", w.Code)
	}
}

func TestTasksEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	create(t, router, "a.pn", "later !2025-06-01\nsoon !2025-01-01\n")
	create(t, router, "b.pn", "finished {@task status=done}\n")

	w := do(t, router, http.MethodGet, "/tasks?status=todo", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("tasks = %d, body = %s", w.Code, w.Body.String())
	}
	var resp TasksResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Tasks) != 2 || resp.Tasks[0].Text != "soon" || resp.Tasks[1].Text != "later" {
		t.Errorf("tasks = %+v", resp.Tasks)
	}

	if w := do(t, router, http.MethodGet, "/tasks?status=bogus", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad status = %d, want 400", w.Code)
	}
}

func TestResolveEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	create(t, router, "a.pn", "[b#sec]\n")
	create(t, router, "b.pn", "intro\nhere #sec\n")

	w := do(t, router, http.MethodGet, "/resolve?from=a.pn&target=b&anchor=sec", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("resolve = %d, body = %s", w.Code, w.Body.String())
	}
	var res Resolution
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if res.Path != "b.pn" || res.Row != 1 || !res.AnchorFound {
		t.Errorf("resolution = %+v", res)
	}

	if w := do(t, router, http.MethodGet, "/resolve?from=a.pn&target=nowhere", nil); w.Code != http.StatusNotFound {
		t.Errorf("unresolved = %d, want 404", w.Code)
	}
}

func TestCompletionEndpoints(t *testing.T) {
	_, router := testEnv(t, "")
	create(t, router, "project.pn", "x #goals\ny #budget\n")

	var resp CompletionResponse
	w := do(t, router, http.MethodGet, "/complete/notes?q=prj", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Items) != 1 || resp.Items[0] != "project" {
		t.Errorf("notes = %v", resp.Items)
	}

	w = do(t, router, http.MethodGet, "/complete/anchors/project.pn?q=bud", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Items) != 1 || resp.Items[0] != "budget" {
		t.Errorf("anchors = %v", resp.Items)
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	create(t, router, "find.pn", "uniquetoken here\n")

	w := do(t, router, http.MethodGet, "/search?q=uniquetoken", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d, body = %s", w.Code, w.Body.String())
	}
	var resp SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 1 || resp.Results[0].Path != "find.pn" {
		t.Errorf("search results = %+v", resp.Results)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	_, router := testEnv(t, "")

	if w := do(t, router, http.MethodGet, "/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestGetNote_NotFound(t *testing.T) {
	_, router := testEnv(t, "")

	if w := do(t, router, http.MethodGet, "/notes/nope.pn", nil); w.Code != http.StatusNotFound {
		t.Errorf("get missing = %d, want 404", w.Code)
	}
}

// Auth middleware tests.

func TestRequireBearer_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
}

func TestRequireBearer_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret")

	w := do(t, router, http.MethodGet, "/notes", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("missing token = %d, want 401", w.Code)
	}
	if got := w.Header().Get("WWW-Authenticate"); !strings.HasPrefix(got, "Bearer") {
		t.Errorf("WWW-Authenticate = %q", got)
	}
}

func TestRequireBearer_QueryToken(t *testing.T) {
	_, router := testEnv(t, "secret")

	if w := do(t, router, http.MethodGet, "/notes?access_token=secret", nil); w.Code != http.StatusOK {
		t.Errorf("query token = %d, want 200", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/notes?access_token=nope", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong query token = %d, want 401", w.Code)
	}
}

func TestRequireBearer_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestRequireBearer_Disabled(t *testing.T) {
	_, router := testEnvWith(t, false, "ignored", nil)

	if w := do(t, router, http.MethodGet, "/notes", nil); w.Code != http.StatusOK {
		t.Errorf("disabled auth = %d, want 200", w.Code)
	}
}

// Event stream auth tests.

// blockingStream writes stream headers and blocks until the request ends.
var blockingStream = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestEvents_AuthProtected(t *testing.T) {
	_, router := testEnvWith(t, true, "secret", blockingStream)

	if w := do(t, router, http.MethodGet, "/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("events no auth = %d, want 401", w.Code)
	}
}

func TestEvents_ValidToken(t *testing.T) {
	_, router := testEnvWith(t, true, "tok", blockingStream)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("events with valid token = %d, want 200", w.Code)
	}
}

func TestEvents_NotMounted(t *testing.T) {
	_, router := testEnv(t, "")

	if w := do(t, router, http.MethodGet, "/events", nil); w.Code != http.StatusNotFound {
		t.Errorf("events without handler = %d, want 404", w.Code)
	}
}
