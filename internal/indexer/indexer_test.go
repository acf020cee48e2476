package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/docbase/docbase/internal/loader"
	"github.com/docbase/docbase/internal/log"
	"github.com/docbase/docbase/internal/plan"
	"github.com/docbase/docbase/internal/splitter"
	"github.com/docbase/docbase/internal/store"
)

// fakeDocs holds one document and one project and records status history.
type fakeDocs struct {
	doc      store.Document
	project  store.Project
	statuses []string
	size     int64
	deleted  bool
}

func (f *fakeDocs) GetDocument(_ context.Context, id string) (*store.Document, error) {
	if id != f.doc.ID {
		return nil, store.ErrNotFound
	}
	cp := f.doc
	return &cp, nil
}

func (f *fakeDocs) GetProject(_ context.Context, _ string) (*store.Project, error) {
	cp := f.project
	return &cp, nil
}

func (f *fakeDocs) SetDocumentStatus(_ context.Context, _, status string) error {
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeDocs) SetDocumentSize(_ context.Context, _ string, sizeBytes int64) error {
	f.size = sizeBytes
	return nil
}

func (f *fakeDocs) DeleteDocument(_ context.Context, _ string) error {
	f.deleted = true
	return nil
}

// fakeVectors records upserts and deletes, optionally failing the upsert.
type fakeVectors struct {
	upserts    [][]loader.Document
	deletes    []string
	upsertErr  error
	namespaces []string
}

func (f *fakeVectors) Upsert(_ context.Context, namespace string, chunks []loader.Document) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.namespaces = append(f.namespaces, namespace)
	f.upserts = append(f.upserts, chunks)
	return nil
}

func (f *fakeVectors) DeleteDocument(_ context.Context, namespace, documentID string) (int64, error) {
	f.deletes = append(f.deletes, namespace+"/"+documentID)
	return 0, nil
}

// fakeQuotas allows or denies the byte gate and records commits.
type fakeQuotas struct {
	allow   bool
	commits []int64
}

func (f *fakeQuotas) GateDocumentBytes(_ context.Context, _ string, _ int64) (bool, error) {
	return f.allow, nil
}

func (f *fakeQuotas) CommitDocumentBytes(_ context.Context, _, _ string, delta int64) error {
	f.commits = append(f.commits, delta)
	return nil
}

func (f *fakeQuotas) MaxCrawlPages(_ context.Context, _ string) (int, error) {
	return plan.LimitsFor(plan.Free).CrawlPages, nil
}

// fakeLoaders returns a fixed load result or error.
type fakeLoaders struct {
	result *loader.Result
	err    error
}

func (f *fakeLoaders) ForRequest(_ loader.Request) (loader.Loader, error) {
	if f.err != nil {
		return nil, f.err
	}
	return loadFunc(func(context.Context) (*loader.Result, error) { return f.result, nil }), nil
}

type loadFunc func(ctx context.Context) (*loader.Result, error)

func (f loadFunc) Load(ctx context.Context) (*loader.Result, error) { return f(ctx) }

func testDoc() store.Document {
	return store.Document{
		ID:        "doc-1",
		ProjectID: "proj-1",
		Type:      string(loader.TypeText),
		Source:    "Handbook",
		Details:   []byte(`{"content":"irrelevant, loader is faked"}`),
	}
}

func loadedResult(content string) *loader.Result {
	return &loader.Result{Documents: []loader.Document{{
		PageContent: content,
		Metadata:    loader.Metadata{Source: "Handbook", Title: "Handbook", Size: int64(len(content))},
	}}}
}

func newTestIndexer(t *testing.T, docs *fakeDocs, vecs *fakeVectors, quotas *fakeQuotas, loaders *fakeLoaders, webhook *Webhook) *Indexer {
	t.Helper()
	split, err := splitter.New(100, 10)
	if err != nil {
		t.Fatalf("splitter.New: %v", err)
	}
	ix, err := New(docs, vecs, quotas, loaders, split, nil, webhook, log.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ix
}

func TestIndex_SuccessPath(t *testing.T) {
	docs := &fakeDocs{doc: testDoc(), project: store.Project{ID: "proj-1", OrgID: "org-1"}}
	vecs := &fakeVectors{}
	quotas := &fakeQuotas{allow: true}
	loaders := &fakeLoaders{result: loadedResult("Employees get 25 vacation days per year.")}

	ix := newTestIndexer(t, docs, vecs, quotas, loaders, nil)
	res, err := ix.Index(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("Index: %v", err)
	}

	wantStatuses := []string{store.StatusFetching, store.StatusFetchDone, store.StatusIndexing, store.StatusSuccess}
	if len(docs.statuses) != len(wantStatuses) {
		t.Fatalf("statuses = %v, want %v", docs.statuses, wantStatuses)
	}
	for i := range wantStatuses {
		if docs.statuses[i] != wantStatuses[i] {
			t.Fatalf("statuses = %v, want %v", docs.statuses, wantStatuses)
		}
	}

	if res.Chunks == 0 || len(vecs.upserts) != 1 {
		t.Errorf("chunks = %d, upserts = %d", res.Chunks, len(vecs.upserts))
	}
	if vecs.namespaces[0] != "proj-1" {
		t.Errorf("namespace = %q, want project id", vecs.namespaces[0])
	}
	// Stale vectors deleted before the upsert.
	if len(vecs.deletes) != 1 || vecs.deletes[0] != "proj-1/doc-1" {
		t.Errorf("deletes = %v", vecs.deletes)
	}
	if len(quotas.commits) != 1 || quotas.commits[0] != docs.size {
		t.Errorf("commits = %v, size = %d", quotas.commits, docs.size)
	}

	for _, chunk := range vecs.upserts[0] {
		if chunk.Metadata.ProjectID != "proj-1" || chunk.Metadata.DocumentID != "doc-1" {
			t.Errorf("chunk metadata not annotated: %+v", chunk.Metadata)
		}
	}
}

func TestIndex_FetchFailure(t *testing.T) {
	docs := &fakeDocs{doc: testDoc(), project: store.Project{ID: "proj-1", OrgID: "org-1"}}
	vecs := &fakeVectors{}
	quotas := &fakeQuotas{allow: true}
	loaders := &fakeLoaders{err: fmt.Errorf("connection refused")}

	ix := newTestIndexer(t, docs, vecs, quotas, loaders, nil)
	if _, err := ix.Index(context.Background(), "doc-1"); err == nil {
		t.Fatal("expected error")
	}

	last := docs.statuses[len(docs.statuses)-1]
	if last != store.StatusFetchingFailed {
		t.Errorf("final status = %q, want FETCHING_FAILED", last)
	}
	if len(vecs.upserts) != 0 {
		t.Error("vectors written despite fetch failure")
	}
	if len(quotas.commits) != 0 {
		t.Error("bytes committed despite fetch failure")
	}
}

func TestIndex_SizeLimitExceeded(t *testing.T) {
	docs := &fakeDocs{doc: testDoc(), project: store.Project{ID: "proj-1", OrgID: "org-1"}}
	vecs := &fakeVectors{}
	quotas := &fakeQuotas{allow: false}
	loaders := &fakeLoaders{result: loadedResult("content over the plan limit")}

	ix := newTestIndexer(t, docs, vecs, quotas, loaders, nil)
	if _, err := ix.Index(context.Background(), "doc-1"); err == nil {
		t.Fatal("expected error")
	}

	last := docs.statuses[len(docs.statuses)-1]
	if last != store.StatusSizeLimitExceeded {
		t.Errorf("final status = %q, want SIZE_LIMIT_EXCEEDED", last)
	}
	if len(vecs.upserts) != 0 || len(quotas.commits) != 0 {
		t.Error("vectors or bytes committed despite size gate")
	}
}

func TestIndex_UpsertFailurePurgesPartialVectors(t *testing.T) {
	docs := &fakeDocs{doc: testDoc(), project: store.Project{ID: "proj-1", OrgID: "org-1"}}
	vecs := &fakeVectors{upsertErr: errors.New("embedder unavailable")}
	quotas := &fakeQuotas{allow: true}
	loaders := &fakeLoaders{result: loadedResult("some content to index")}

	ix := newTestIndexer(t, docs, vecs, quotas, loaders, nil)
	if _, err := ix.Index(context.Background(), "doc-1"); err == nil {
		t.Fatal("expected error")
	}

	last := docs.statuses[len(docs.statuses)-1]
	if last != store.StatusFailed {
		t.Errorf("final status = %q, want FAILED", last)
	}
	// One delete before the upsert, one purge after it failed.
	if len(vecs.deletes) != 2 {
		t.Errorf("deletes = %v, want pre-delete and purge", vecs.deletes)
	}
	if len(quotas.commits) != 0 {
		t.Error("bytes committed despite upsert failure")
	}
}

func TestIndex_ReindexCommitsOnlyGrowth(t *testing.T) {
	doc := testDoc()
	doc.SizeBytes = 10 // previous run indexed 10 bytes
	docs := &fakeDocs{doc: doc, project: store.Project{ID: "proj-1", OrgID: "org-1"}}
	vecs := &fakeVectors{}
	quotas := &fakeQuotas{allow: true}
	content := "exactly twenty-five chars"
	loaders := &fakeLoaders{result: loadedResult(content)}

	ix := newTestIndexer(t, docs, vecs, quotas, loaders, nil)
	if _, err := ix.Index(context.Background(), "doc-1"); err != nil {
		t.Fatalf("Index: %v", err)
	}
	want := int64(len(content)) - 10
	if len(quotas.commits) != 1 || quotas.commits[0] != want {
		t.Errorf("commits = %v, want [%d]", quotas.commits, want)
	}
}

func TestIndex_EmitsWebhook(t *testing.T) {
	var events []WebhookEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer hook-secret" {
			t.Errorf("authorization = %q", got)
		}
		var ev WebhookEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			t.Errorf("decoding webhook body: %v", err)
		}
		events = append(events, ev)
	}))
	defer srv.Close()

	docs := &fakeDocs{doc: testDoc(), project: store.Project{ID: "proj-1", OrgID: "org-1"}}
	webhook := NewWebhook(srv.URL, "hook-secret", log.NewNop())

	ix := newTestIndexer(t, docs, &fakeVectors{}, &fakeQuotas{allow: true},
		&fakeLoaders{result: loadedResult("indexed fine")}, webhook)
	if _, err := ix.Index(context.Background(), "doc-1"); err != nil {
		t.Fatalf("Index: %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("got %d webhook events, want 1", len(events))
	}
	if events[0].DocumentID != "doc-1" || events[0].Error != "" {
		t.Errorf("event = %+v", events[0])
	}
	if events[0].Title != "Handbook" {
		t.Errorf("title = %q", events[0].Title)
	}
}

func TestDelete_PurgesVectorsAndAccounting(t *testing.T) {
	doc := testDoc()
	doc.SizeBytes = 2048
	docs := &fakeDocs{doc: doc, project: store.Project{ID: "proj-1", OrgID: "org-1"}}
	vecs := &fakeVectors{}
	quotas := &fakeQuotas{allow: true}

	ix := newTestIndexer(t, docs, vecs, quotas, &fakeLoaders{}, nil)
	if err := ix.Delete(context.Background(), "doc-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if len(vecs.deletes) != 1 || vecs.deletes[0] != "proj-1/doc-1" {
		t.Errorf("vector deletes = %v", vecs.deletes)
	}
	if len(quotas.commits) != 1 || quotas.commits[0] != -2048 {
		t.Errorf("commits = %v, want [-2048]", quotas.commits)
	}
	if !docs.deleted {
		t.Error("document row not deleted")
	}
}
