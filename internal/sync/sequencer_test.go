package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/joostmulder/AuditPro/internal/audit"
	"github.com/joostmulder/AuditPro/internal/catalog"
	"github.com/joostmulder/AuditPro/internal/gateway"
	"github.com/joostmulder/AuditPro/internal/model"
	"github.com/joostmulder/AuditPro/internal/session"
	"github.com/joostmulder/AuditPro/internal/store"
	"github.com/joostmulder/AuditPro/internal/tables"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

var testStart = time.Date(2019, 3, 1, 10, 0, 0, 0, time.UTC)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// fakeGateway records calls and fails on demand.
type fakeGateway struct {
	uploaded      []string
	uploadErrs    map[int]error
	onUpload      func(i int)
	stores        []model.Store
	products      []model.Product
	storesErr     error
	productsErr   error
	storesCalls   int
	productsCalls int
}

func (g *fakeGateway) UploadAuditPayload(ctx context.Context, token, payload string) error {
	i := len(g.uploaded)
	if g.onUpload != nil {
		g.onUpload(i)
	}
	if err := g.uploadErrs[i]; err != nil {
		return err
	}
	g.uploaded = append(g.uploaded, gjson.Get(payload, "id").String())
	return nil
}

func (g *fakeGateway) FetchStores(ctx context.Context, token string) ([]model.Store, error) {
	g.storesCalls++
	return g.stores, g.storesErr
}

func (g *fakeGateway) FetchProducts(ctx context.Context, token string) ([]model.Product, error) {
	g.productsCalls++
	return g.products, g.productsErr
}

type harness struct {
	db      *store.DB
	sess    *session.Session
	audits  *audit.Repository
	catalog *catalog.Repository
	gw      *fakeGateway
	events  []Event
	seq     *Sequencer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := store.DefaultConfig()
	cfg.Logger = quietLogger()
	db, err := tables.Open(context.Background(), filepath.Join(t.TempDir(), "audit.db"), cfg)
	if err != nil {
		t.Fatalf("tables.Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sess, err := session.Begin(t.TempDir(), "tok", model.User{
		ID: 7, FirstName: "Dana", LastName: "Reyes", Email: "dana@example.com",
		RoleID: 2, RoleName: "Auditor", ClientID: 3, ClientName: "Fizz Co",
	})
	if err != nil {
		t.Fatalf("session.Begin() failed: %v", err)
	}

	now := testStart
	clock := func() time.Time {
		now = now.Add(time.Minute)
		return now
	}

	h := &harness{
		db:      db,
		sess:    sess,
		audits:  audit.NewWithConfig(db, sess, &audit.Config{Logger: quietLogger(), Now: clock}),
		catalog: catalog.NewWithConfig(db, &catalog.Config{Logger: quietLogger()}),
		gw: &fakeGateway{
			stores:   []model.Store{{ID: 10, ClientID: 3, ChainID: 1, ChainName: "Acme", StoreName: "Acme North"}},
			products: []model.Product{{ID: 100, ClientID: 3, ChainID: 1, ProductID: 1, ProductName: "Cola"}},
		},
	}
	h.seq = NewWithConfig(h.audits, h.catalog, h.gw, sess, &Config{
		Logger:   quietLogger(),
		Observer: ObserverFunc(func(e Event) { h.events = append(h.events, e) }),
		Now:      clock,
	})
	return h
}

// seed completes n audits, returned in end-time order.
func (h *harness) seed(t *testing.T, n int) []model.Audit {
	t.Helper()
	ctx := context.Background()
	var out []model.Audit
	for i := 0; i < n; i++ {
		a, err := h.audits.StartAudit(ctx, model.StartParams{
			UserID: 7, StoreID: int64(100 + i), StoreDescription: fmt.Sprintf("Store %d", i+1),
		})
		if err != nil {
			t.Fatalf("StartAudit() failed: %v", err)
		}
		a, err = h.audits.CompleteAudit(ctx, a, nil, nil, testStart.Add(time.Duration(i+1)*time.Hour))
		if err != nil {
			t.Fatalf("CompleteAudit() failed: %v", err)
		}
		out = append(out, a)
	}
	return out
}

func (h *harness) pending(t *testing.T) []string {
	t.Helper()
	audits, err := h.audits.CompletedAudits(context.Background(), 7)
	if err != nil {
		t.Fatalf("CompletedAudits() failed: %v", err)
	}
	var ids []string
	for _, a := range audits {
		ids = append(ids, a.ID.String())
	}
	return ids
}

func (h *harness) states() []State {
	var out []State
	for _, e := range h.events {
		out = append(out, e.State)
	}
	return out
}

func ids(audits []model.Audit) []string {
	var out []string
	for _, a := range audits {
		out = append(out, a.ID.String())
	}
	return out
}

func TestRun_UploadsInOrderThenRefreshesCatalog(t *testing.T) {
	h := newHarness(t)
	audits := h.seed(t, 3)

	res := h.seq.Run(context.Background())
	if !res.OK() {
		t.Fatalf("Run() = %v %q (%v), want done", res.State, res.Message, res.Err)
	}
	if res.Uploaded != 3 || res.Pending != 0 || res.Stores != 1 || res.Products != 1 {
		t.Errorf("Run() counts = %+v", res)
	}
	if res.FailedAudit != uuid.Nil {
		t.Errorf("FailedAudit = %s after a clean pass", res.FailedAudit)
	}
	if diff := cmp.Diff(ids(audits), h.gw.uploaded); diff != "" {
		t.Errorf("upload order mismatch (-want +got):\n%s", diff)
	}
	if left := h.pending(t); len(left) != 0 {
		t.Errorf("pending audits after sync = %v", left)
	}

	want := []State{
		StateUploadingAudit, StateUploadingAudit, StateUploadingAudit,
		StateFetchingStores, StateFetchingProducts, StateApplyingCatalog, StateDone,
	}
	if diff := cmp.Diff(want, h.states()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if e := h.events[1]; e.Index != 1 || e.Total != 3 || e.AuditID != audits[1].ID {
		t.Errorf("second upload event = %+v", e)
	}

	if n, _, err := h.catalog.Counts(context.Background()); err != nil || n != 1 {
		t.Errorf("catalog stores = %d, %v; want 1", n, err)
	}
	if h.sess.CatalogSyncRequired(tables.SchemaVersion) {
		t.Error("CatalogSyncRequired() = true after a full sync")
	}
	if h.seq.State() != StateDone || h.seq.Running() {
		t.Errorf("sequencer state = %v running=%v", h.seq.State(), h.seq.Running())
	}
}

func TestRun_NoAudits(t *testing.T) {
	h := newHarness(t)

	res := h.seq.Run(context.Background())
	if !res.OK() {
		t.Fatalf("Run() = %v %q", res.State, res.Message)
	}
	if len(h.gw.uploaded) != 0 {
		t.Errorf("uploaded %v with nothing pending", h.gw.uploaded)
	}
	if h.gw.storesCalls != 1 || h.gw.productsCalls != 1 {
		t.Errorf("fetch calls = %d/%d", h.gw.storesCalls, h.gw.productsCalls)
	}
}

func TestRun_UploadFailureStopsBeforeCatalog(t *testing.T) {
	h := newHarness(t)
	audits := h.seed(t, 3)
	h.gw.uploadErrs = map[int]error{1: &gateway.Error{Message: "Audit rejected"}}

	res := h.seq.Run(context.Background())
	if res.State != StateFailed {
		t.Fatalf("Run() state = %v, want failed", res.State)
	}
	if !strings.Contains(res.Message, "Store 2") || !strings.Contains(res.Message, "Audit rejected") {
		t.Errorf("Message = %q, want audit and server message", res.Message)
	}
	if res.Uploaded != 1 || res.Pending != 2 {
		t.Errorf("Uploaded/Pending = %d/%d, want 1/2", res.Uploaded, res.Pending)
	}
	if res.FailedAudit != audits[1].ID {
		t.Errorf("FailedAudit = %s, want %s", res.FailedAudit, audits[1].ID)
	}
	if diff := cmp.Diff(ids(audits[1:]), h.pending(t)); diff != "" {
		t.Errorf("pending mismatch (-want +got):\n%s", diff)
	}
	if h.gw.storesCalls != 0 || h.gw.productsCalls != 0 {
		t.Errorf("catalog fetched after failed upload: %d/%d", h.gw.storesCalls, h.gw.productsCalls)
	}
	if !h.sess.CatalogSyncRequired(tables.SchemaVersion) {
		t.Error("catalog marked synced after a failed pass")
	}
}

func TestRun_FetchFailureKeepsCatalog(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	old := []model.Store{{ID: 99, ClientID: 3, ChainID: 1, StoreName: "Old"}}
	if err := h.catalog.ApplyRefresh(ctx, old, nil); err != nil {
		t.Fatalf("ApplyRefresh() failed: %v", err)
	}
	h.gw.productsErr = &gateway.Error{Message: "No valid products received from web service"}

	res := h.seq.Run(ctx)
	if res.State != StateFailed {
		t.Fatalf("Run() state = %v, want failed", res.State)
	}
	if res.Message != "Failed to get products: No valid products received from web service" {
		t.Errorf("Message = %q", res.Message)
	}
	stores, err := h.catalog.GetStores(ctx)
	if err != nil {
		t.Fatalf("GetStores() failed: %v", err)
	}
	if len(stores) != 1 || stores[0].ID != 99 {
		t.Errorf("catalog changed after failed fetch: %+v", stores)
	}
	if got := h.states(); got[len(got)-1] != StateFailed {
		t.Errorf("last event = %v, want failed", got[len(got)-1])
	}
}

func TestRun_CancelKeepsCommittedDeletions(t *testing.T) {
	h := newHarness(t)
	audits := h.seed(t, 3)
	h.gw.onUpload = func(i int) {
		if i == 1 {
			h.seq.Cancel()
		}
	}

	res := h.seq.Run(context.Background())
	if res.State != StateCanceled {
		t.Fatalf("Run() state = %v (%q), want canceled", res.State, res.Message)
	}
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", res.Err)
	}
	// The second upload still went through before the pass noticed; both
	// accepted audits are gone and the third stays.
	if diff := cmp.Diff(ids(audits[2:]), h.pending(t)); diff != "" {
		t.Errorf("pending mismatch (-want +got):\n%s", diff)
	}
	if h.gw.storesCalls != 0 {
		t.Error("stores fetched after cancel")
	}
}

func TestRun_RejectsConcurrentPass(t *testing.T) {
	h := newHarness(t)
	h.seed(t, 1)

	var nested Result
	h.gw.onUpload = func(int) { nested = h.seq.Run(context.Background()) }

	if res := h.seq.Run(context.Background()); !res.OK() {
		t.Fatalf("Run() = %v %q", res.State, res.Message)
	}
	if !errors.Is(nested.Err, ErrRunning) {
		t.Errorf("nested Run() error = %v, want ErrRunning", nested.Err)
	}
}

func TestRun_NoSession(t *testing.T) {
	h := newHarness(t)
	seq := NewWithConfig(h.audits, h.catalog, h.gw, nil, &Config{Logger: quietLogger()})

	res := seq.Run(context.Background())
	if res.State != StateFailed || !errors.Is(res.Err, ErrNoSession) {
		t.Errorf("Run() = %v, %v; want failed with ErrNoSession", res.State, res.Err)
	}
}
