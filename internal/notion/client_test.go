package notion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/docbase/docbase/internal/log"
	"github.com/docbase/docbase/internal/security"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New("ntn_test_token", security.NewHTTPAllowLoopback(), log.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c.WithBaseURL(srv.URL), srv
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("", security.NewHTTP(), log.NewNop()); err == nil {
		t.Error("empty token accepted")
	}
	if _, err := New("tok", nil, log.NewNop()); err == nil {
		t.Error("nil validator accepted")
	}
	if _, err := New("tok", security.NewHTTP(), nil); err == nil {
		t.Error("nil logger accepted")
	}
}

func TestSearch_PaginatesAndFilters(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Notion-Version"); got != APIVersion {
			t.Errorf("Notion-Version = %q, want %q", got, APIVersion)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer ntn_test_token" {
			t.Errorf("Authorization = %q", got)
		}

		calls++
		var resp SearchResponse
		switch calls {
		case 1:
			resp = SearchResponse{
				Results: []json.RawMessage{
					json.RawMessage(`{"object":"page","id":"page-1","url":"https://notion.so/page-1"}`),
					json.RawMessage(`{"object":"user","id":"user-1"}`),
				},
				HasMore:    true,
				NextCursor: "cursor-2",
			}
		default:
			var req SearchRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.StartCursor != "cursor-2" {
				t.Errorf("StartCursor = %q, want cursor-2", req.StartCursor)
			}
			resp = SearchResponse{
				Results: []json.RawMessage{
					json.RawMessage(`{"object":"database","id":"db-1","title":[{"plain_text":"Specs"}]}`),
				},
			}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))

	pages, err := client.Search(context.Background(), "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("got %d results, want 2 (user object filtered out)", len(pages))
	}
	if pages[0].ID != "page-1" || pages[1].ID != "db-1" {
		t.Errorf("unexpected results: %+v", pages)
	}
	if calls != 2 {
		t.Errorf("expected 2 paginated calls, got %d", calls)
	}
}

func TestBlockChildren_RecursesIntoNestedBlocks(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var resp BlockChildrenResponse
		switch r.URL.Path {
		case "/v1/blocks/root/children":
			resp = BlockChildrenResponse{Results: []Block{
				{ID: "b1", Type: "paragraph", HasChildren: true,
					Paragraph: &TextBlock{RichText: []RichText{{PlainText: "parent"}}}},
			}}
		case "/v1/blocks/b1/children":
			resp = BlockChildrenResponse{Results: []Block{
				{ID: "b2", Type: "paragraph",
					Paragraph: &TextBlock{RichText: []RichText{{PlainText: "child"}}}},
			}}
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))

	blocks, err := client.BlockChildren(context.Background(), "root")
	if err != nil {
		t.Fatalf("BlockChildren: %v", err)
	}
	if got := ExtractText(blocks); got != "parent\nchild" {
		t.Errorf("ExtractText = %q, want %q", got, "parent\nchild")
	}
}

func TestSearch_APIErrorSurfaced(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"unauthorized"}`, http.StatusUnauthorized)
	}))

	if _, err := client.Search(context.Background(), ""); err == nil {
		t.Fatal("expected error for 401 response")
	}
}

func TestPageTitle(t *testing.T) {
	tests := []struct {
		name string
		page Page
		want string
	}{
		{
			"page property title",
			Page{Properties: map[string]Property{
				"Name": {Type: "title", Title: []RichText{{PlainText: "Road"}, {PlainText: "map"}}},
			}},
			"Roadmap",
		},
		{
			"database title",
			Page{Title: []RichText{{PlainText: "Specs"}}},
			"Specs",
		},
		{"untitled", Page{}, "Untitled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PageTitle(&tt.page); got != tt.want {
				t.Errorf("PageTitle = %q, want %q", got, tt.want)
			}
		})
	}
}
