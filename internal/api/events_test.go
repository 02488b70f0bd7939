package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/envio-core/internal/audit"
	"github.com/nerrad567/envio-core/internal/infrastructure/config"
	"github.com/nerrad567/envio-core/internal/infrastructure/database"
	"github.com/nerrad567/envio-core/internal/infrastructure/logging"
	"github.com/nerrad567/envio-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/envio-core/internal/item"
	"github.com/nerrad567/envio-core/migrations"
)

// fakePublisher records item events instead of sending them to a broker.
type fakePublisher struct {
	mu     sync.Mutex
	events []mqtt.ItemEvent
	err    error
}

func (f *fakePublisher) PublishItemEvent(event mqtt.ItemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

func (f *fakePublisher) IsConnected() bool { return true }

func (f *fakePublisher) published() []mqtt.ItemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mqtt.ItemEvent(nil), f.events...)
}

type metricPoint struct {
	itemID         int64
	ganancia, peso float64
}

type eventPoint struct {
	itemID int64
	action string
}

// fakeTelemetry records points instead of writing them to InfluxDB.
type fakeTelemetry struct {
	mu      sync.Mutex
	metrics []metricPoint
	events  []eventPoint
}

func (f *fakeTelemetry) WriteItemMetric(itemID int64, ganancia, peso float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metrics = append(f.metrics, metricPoint{itemID: itemID, ganancia: ganancia, peso: peso})
}

func (f *fakeTelemetry) WriteItemEvent(itemID int64, action string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventPoint{itemID: itemID, action: action})
}

func (f *fakeTelemetry) IsConnected() bool { return true }

func TestItemEvents_FanOut(t *testing.T) {
	pub := &fakePublisher{}
	tel := &fakeTelemetry{}
	deps := testDeps()
	deps.MQTT = pub
	deps.Telemetry = tel
	srv := testServerWith(t, deps)
	router := srv.buildRouter()

	doRequest(t, router, http.MethodPost, "/items/", `{"ganancia":10,"peso":2.5}`)
	doRequest(t, router, http.MethodPut, "/items/1", `{"ganancia":11,"peso":2}`)
	doRequest(t, router, http.MethodPatch, "/items/1", `{"peso":3}`)
	doRequest(t, router, http.MethodDelete, "/items/1", "")

	events := pub.published()
	wantActions := []string{"created", "replaced", "updated", "deleted"}
	if len(events) != len(wantActions) {
		t.Fatalf("published %d events, want %d", len(events), len(wantActions))
	}
	for i, ev := range events {
		if ev.Action != wantActions[i] || ev.ItemID != 1 {
			t.Errorf("event[%d] = %s/%d, want %s/1", i, ev.Action, ev.ItemID, wantActions[i])
		}
		if ev.RequestID == "" {
			t.Errorf("event[%d] has no request id", i)
		}
		if ev.Seq != uint64(i+1) {
			t.Errorf("event[%d].Seq = %d, want %d", i, ev.Seq, i+1)
		}
	}

	// Deleted events carry only the id.
	if got, ok := events[3].Item.(map[string]int64); !ok || got["id"] != 1 {
		t.Errorf("delete payload = %#v", events[3].Item)
	}

	tel.mu.Lock()
	defer tel.mu.Unlock()
	if len(tel.events) != 4 {
		t.Errorf("telemetry events = %d, want 4", len(tel.events))
	}
	if len(tel.metrics) != 3 {
		t.Fatalf("telemetry metrics = %d, want 3 (no metric on delete)", len(tel.metrics))
	}
	if tel.metrics[2] != (metricPoint{itemID: 1, ganancia: 11, peso: 3}) {
		t.Errorf("last metric = %+v", tel.metrics[2])
	}
}

func TestItemEvents_NotPublishedOnFailure(t *testing.T) {
	pub := &fakePublisher{}
	deps := testDeps()
	deps.MQTT = pub
	srv := testServerWith(t, deps)
	router := srv.buildRouter()

	doRequest(t, router, http.MethodPost, "/items/", `{"ganancia":"bad"}`)
	doRequest(t, router, http.MethodPut, "/items/9", `{"ganancia":1,"peso":1}`)
	doRequest(t, router, http.MethodDelete, "/items/9", "")

	if n := len(pub.published()); n != 0 {
		t.Errorf("published %d events for failed requests, want 0", n)
	}
}

func TestItemEvents_EmptyPatchNotPublished(t *testing.T) {
	pub := &fakePublisher{}
	deps := testDeps()
	deps.MQTT = pub
	srv := testServerWith(t, deps)
	router := srv.buildRouter()

	doRequest(t, router, http.MethodPost, "/items/", `{"ganancia":1,"peso":1}`)
	if w := doRequest(t, router, http.MethodPatch, "/items/1", `{}`); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	if n := len(pub.published()); n != 1 {
		t.Errorf("published %d events, want only the create", n)
	}
}

func TestItemEvents_SequenceFollowsStore(t *testing.T) {
	const writers = 50

	pub := &fakePublisher{}
	deps := testDeps()
	deps.MQTT = pub
	srv := testServerWith(t, deps)
	router := srv.buildRouter()

	doRequest(t, router, http.MethodPost, "/items/", `{"ganancia":0,"peso":0}`)

	var wg sync.WaitGroup
	for i := 1; i <= writers; i++ {
		wg.Add(1)
		go func(peso int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPatch, "/items/1", strings.NewReader(fmt.Sprintf(`{"peso":%d}`, peso)))
			router.ServeHTTP(httptest.NewRecorder(), req)
		}(i)
	}
	wg.Wait()

	events := pub.published()
	if len(events) != writers+1 {
		t.Fatalf("published %d events, want %d", len(events), writers+1)
	}

	seen := make(map[uint64]bool, len(events))
	var last mqtt.ItemEvent
	for _, ev := range events {
		if ev.Seq == 0 || ev.Seq > writers+1 || seen[ev.Seq] {
			t.Fatalf("seq %d is out of range or repeated", ev.Seq)
		}
		seen[ev.Seq] = true
		if ev.Seq > last.Seq {
			last = ev
		}
	}

	// The highest sequence number must describe the state the store kept.
	stored, _ := srv.store.Get(1) //nolint:errcheck // item exists
	if got, ok := last.Item.(item.Item); !ok || got != stored {
		t.Errorf("event seq %d carries %#v, store holds %+v", last.Seq, last.Item, stored)
	}
}

func TestItemMutations_LoggedAtInfo(t *testing.T) {
	var buf bytes.Buffer
	deps := testDeps()
	deps.Logger = logging.NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "test", &buf)
	srv := testServerWith(t, deps)
	router := srv.buildRouter()

	doRequest(t, router, http.MethodPost, "/items/", `{"ganancia":1,"peso":1}`)
	doRequest(t, router, http.MethodPut, "/items/1", `{"ganancia":2,"peso":2}`)
	doRequest(t, router, http.MethodPatch, "/items/1", `{"peso":3}`)
	doRequest(t, router, http.MethodDelete, "/items/1", "")

	var got []string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("log line %q: %v", line, err)
		}
		msg, _ := rec["msg"].(string) //nolint:errcheck // checked below
		if !strings.HasPrefix(msg, "item ") {
			continue
		}
		if reqID, _ := rec["request_id"].(string); rec["level"] != "INFO" || rec["id"] != 1.0 || reqID == "" { //nolint:errcheck // empty when absent
			t.Errorf("log record = %v", rec)
		}
		got = append(got, msg)
	}

	want := []string{"item created", "item replaced", "item updated", "item deleted"}
	if !slices.Equal(got, want) {
		t.Errorf("mutation logs = %v, want %v", got, want)
	}
}

func TestItemEvents_PublisherErrorIgnored(t *testing.T) {
	deps := testDeps()
	deps.MQTT = &fakePublisher{err: mqtt.ErrNotConnected}
	srv := testServerWith(t, deps)

	w := doRequest(t, srv.buildRouter(), http.MethodPost, "/items/", `{"ganancia":1,"peso":1}`)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201 despite publish failure", w.Code)
	}
	if srv.store.Count() != 1 {
		t.Error("item should still be stored")
	}
}

// ─── Audit trail ───────────────────────────────────────────────────

func setupAuditServer(t *testing.T) (*Server, audit.Repository) {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "audit.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(ctx, migrations.FS, "."); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	repo := audit.NewSQLiteRepository(db.DB)
	deps := testDeps()
	deps.AuditRepo = repo
	deps.DB = db
	srv := testServerWith(t, deps)

	drainCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		srv.drainAuditLog(drainCtx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return srv, repo
}

func waitForAuditEntries(t *testing.T, repo audit.Repository, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		result, err := repo.List(context.Background(), audit.Filter{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if result.Total >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d audit entries", want)
}

func TestAuditTrail(t *testing.T) {
	srv, repo := setupAuditServer(t)
	router := srv.buildRouter()

	doRequest(t, router, http.MethodPost, "/items/", `{"ganancia":10,"peso":2.5}`)
	doRequest(t, router, http.MethodPatch, "/items/1", `{"peso":3}`)
	doRequest(t, router, http.MethodDelete, "/items/1", "")

	waitForAuditEntries(t, repo, 3)

	w := doRequest(t, router, http.MethodGet, "/api/v1/audit", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var result audit.ListResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result.Total != 3 || len(result.Logs) != 3 {
		t.Fatalf("total = %d, logs = %d, want 3", result.Total, len(result.Logs))
	}

	// Newest first.
	wantActions := []string{audit.ActionDelete, audit.ActionUpdate, audit.ActionCreate}
	for i, entry := range result.Logs {
		if entry.Action != wantActions[i] {
			t.Errorf("logs[%d].Action = %q, want %q", i, entry.Action, wantActions[i])
		}
		if entry.EntityType != audit.EntityItem || entry.EntityID != "1" {
			t.Errorf("logs[%d] entity = %s/%s", i, entry.EntityType, entry.EntityID)
		}
		if entry.RequestID == "" {
			t.Errorf("logs[%d] has no request id", i)
		}
	}
	if result.Logs[1].Details["peso"] != 3.0 {
		t.Errorf("update details = %v", result.Logs[1].Details)
	}
	if d := result.Logs[0].Details; d["seq"] != 3.0 || d["peso"] != nil {
		t.Errorf("delete details = %v, want only seq", d)
	}
}

func TestAuditTrail_Filters(t *testing.T) {
	srv, repo := setupAuditServer(t)
	router := srv.buildRouter()

	doRequest(t, router, http.MethodPost, "/items/", `{"ganancia":1,"peso":1}`)
	doRequest(t, router, http.MethodPost, "/items/", `{"ganancia":2,"peso":2}`)
	doRequest(t, router, http.MethodPut, "/items/2", `{"ganancia":3,"peso":3}`)
	waitForAuditEntries(t, repo, 3)

	tests := []struct {
		name      string
		query     string
		wantTotal int
		wantLogs  int
	}{
		{name: "by action", query: "?action=create", wantTotal: 2, wantLogs: 2},
		{name: "by entity", query: "?entity_id=2", wantTotal: 2, wantLogs: 2},
		{name: "combined", query: "?action=replace&entity_id=2", wantTotal: 1, wantLogs: 1},
		{name: "limit", query: "?limit=1", wantTotal: 3, wantLogs: 1},
		{name: "offset past end", query: "?offset=10", wantTotal: 3, wantLogs: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, router, http.MethodGet, "/api/v1/audit"+tt.query, "")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}

			var result audit.ListResult
			if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if result.Total != tt.wantTotal || len(result.Logs) != tt.wantLogs {
				t.Errorf("total = %d logs = %d, want %d/%d", result.Total, len(result.Logs), tt.wantTotal, tt.wantLogs)
			}
		})
	}
}

func TestAuditTrail_InvalidQuery(t *testing.T) {
	srv, _ := setupAuditServer(t)
	router := srv.buildRouter()

	for _, query := range []string{"?limit=ten", "?offset=-x"} {
		w := doRequest(t, router, http.MethodGet, "/api/v1/audit"+query, "")
		if w.Code != http.StatusUnprocessableEntity {
			t.Errorf("%s status = %d, want 422", query, w.Code)
		}
	}
}

func TestAuditTrail_Disabled(t *testing.T) {
	srv := testServer(t)

	w := doRequest(t, srv.buildRouter(), http.MethodGet, "/api/v1/audit", "")

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if e := decodeError(t, w); e.Code != ErrCodeUnavailable {
		t.Errorf("code = %q", e.Code)
	}
}

func TestAuditLog_DropsWhenFull(t *testing.T) {
	deps := testDeps()
	deps.AuditRepo = failingAuditRepo{}
	srv := testServerWith(t, deps)

	for i := 0; i < auditChanSize+10; i++ {
		srv.auditLog(audit.ActionCreate, "1", "", nil)
	}

	if got := len(srv.auditCh); got != auditChanSize {
		t.Errorf("queued = %d, want %d", got, auditChanSize)
	}
}

func TestMetrics_Database(t *testing.T) {
	srv, _ := setupAuditServer(t)

	w := doRequest(t, srv.buildRouter(), http.MethodGet, "/api/v1/metrics", "")

	var m SystemMetrics
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Database == nil {
		t.Fatal("database metrics missing")
	}
}

// slowAuditRepo records entries after a delay so writes are still queued
// when the server shuts down.
type slowAuditRepo struct {
	delay time.Duration

	mu      sync.Mutex
	entries []*audit.AuditLog
}

func (r *slowAuditRepo) Create(_ context.Context, entry *audit.AuditLog) error {
	time.Sleep(r.delay)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *slowAuditRepo) List(context.Context, audit.Filter) (*audit.ListResult, error) {
	return &audit.ListResult{}, nil
}

func (r *slowAuditRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func TestServer_CloseFlushesAuditLog(t *testing.T) {
	const (
		port  = 19182
		posts = 5
	)

	repo := &slowAuditRepo{delay: 20 * time.Millisecond}
	deps := testDeps()
	deps.Config.Port = port
	deps.AuditRepo = repo
	srv := testServerWith(t, deps)

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	url := fmt.Sprintf("http://127.0.0.1:%d/items/", port)
	var err error
	for i := 0; i < 20; i++ {
		var resp *http.Response
		if resp, err = http.Get(url); err == nil {
			resp.Body.Close()
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server not reachable: %v", err)
	}

	for i := 0; i < posts; i++ {
		resp, err := http.Post(url, "application/json", strings.NewReader(`{"ganancia":1,"peso":1}`))
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		resp.Body.Close()
	}

	if err := srv.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	// No waiting here: Close returns only after the queue is written.
	if n := repo.count(); n != posts {
		t.Errorf("audit entries after Close = %d, want %d", n, posts)
	}
}

type failingAuditRepo struct{}

func (failingAuditRepo) Create(context.Context, *audit.AuditLog) error {
	return errors.New("unavailable")
}

func (failingAuditRepo) List(context.Context, audit.Filter) (*audit.ListResult, error) {
	return nil, errors.New("unavailable")
}
