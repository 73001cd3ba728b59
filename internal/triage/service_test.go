package triage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

// memStore is a minimal in-process Store for service tests; the real
// implementations live in memstore and pgstore.
type memStore struct {
	mu      sync.Mutex
	byID    map[string]*Record
	byReq   map[string]*Record
	putErr  error
	putsN   int
	dropPut bool
}

func newMemStore() *memStore {
	return &memStore{byID: make(map[string]*Record), byReq: make(map[string]*Record)}
}

func (m *memStore) Get(_ context.Context, id string) (*Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	return r, ok, nil
}

func (m *memStore) GetByRequestID(_ context.Context, requestID string) (*Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byReq[requestID]
	return r, ok, nil
}

func (m *memStore) Put(_ context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.putsN++
	if m.dropPut {
		return nil
	}
	m.byID[r.ID] = r
	if r.RequestID != "" {
		m.byReq[r.RequestID] = r
	}
	return nil
}

func (m *memStore) List(_ context.Context, _ int) ([]*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Record, 0, len(m.byID))
	for _, r := range m.byID {
		out = append(out, r)
	}
	return out, nil
}

type chanNotifier struct {
	got chan *Record
	err error
}

func (n *chanNotifier) NotifyEscalation(_ context.Context, rec *Record) error {
	if n.err != nil {
		return n.err
	}
	n.got <- rec
	return nil
}

func newTestService(store Store, notifier Notifier) *Service {
	return NewService(store, NewPipeline(PipelineOptions{}), notifier, log.Nop())
}

func TestSubmit_PersistsRecord(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := newTestService(store, nil)

	rec, replayed, err := svc.Submit(context.Background(), criticalIntake(), "req-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if replayed {
		t.Error("replayed = true for a first submission")
	}
	if rec.ID == "" {
		t.Error("record ID is empty")
	}
	if rec.RequestID != "req-1" {
		t.Errorf("request_id = %q, want %q", rec.RequestID, "req-1")
	}
	if rec.Result == nil || rec.Result.RiskTier != TierCritical {
		t.Errorf("result = %v, want critical tier", rec.Result)
	}
	if rec.Intake == nil {
		t.Error("intake not persisted on the record")
	}

	stored, ok, err := store.Get(context.Background(), rec.ID)
	if err != nil || !ok {
		t.Fatalf("stored record missing: ok=%v err=%v", ok, err)
	}
	if stored.Result.RunID != rec.Result.RunID {
		t.Errorf("stored run_id = %q, want %q", stored.Result.RunID, rec.Result.RunID)
	}
}

func TestSubmit_IdempotentReplay(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	first, _, err := svc.Submit(ctx, criticalIntake(), "req-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	second, replayed, err := svc.Submit(ctx, criticalIntake(), "req-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !replayed {
		t.Error("replayed = false for a repeated request ID")
	}
	if second.ID != first.ID || second.Result.RunID != first.Result.RunID {
		t.Errorf("replay returned a different record: %q vs %q", second.ID, first.ID)
	}
	if store.putsN != 1 {
		t.Errorf("store received %d puts, want 1 (pipeline must not rerun)", store.putsN)
	}
}

func TestSubmit_EmptyRequestIDNeverReplays(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	a, _, err := svc.Submit(ctx, criticalIntake(), "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	b, replayed, err := svc.Submit(ctx, criticalIntake(), "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if replayed {
		t.Error("replayed = true without a request ID")
	}
	if a.ID == b.ID {
		t.Error("two anonymous submissions share a record ID")
	}
}

func TestSubmit_StoreErrorSurfaces(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.putErr = errors.New("disk full")
	svc := newTestService(store, nil)

	if _, _, err := svc.Submit(context.Background(), criticalIntake(), "req-1"); err == nil {
		t.Error("Submit succeeded despite store failure")
	}
}

func TestSubmit_NotifiesOnEscalation(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	n := &chanNotifier{got: make(chan *Record, 1)}
	svc := newTestService(store, n)

	rec, _, err := svc.Submit(context.Background(), criticalIntake(), "req-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case notified := <-n.got:
		if notified.ID != rec.ID {
			t.Errorf("notified record = %q, want %q", notified.ID, rec.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("escalation notice never delivered")
	}
}

func TestSubmit_NoNoticeForRoutine(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	n := &chanNotifier{got: make(chan *Record, 1)}
	svc := newTestService(store, n)

	intake := &PatientIntake{
		ChiefComplaint: "mild runny nose",
		Vitals:         Vitals{HeartRate: Float(74), SpO2: Float(99), TemperatureC: Float(36.8)},
	}
	if _, _, err := svc.Submit(context.Background(), intake, "req-1"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case rec := <-n.got:
		t.Errorf("unexpected escalation notice for routine record %q", rec.ID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubmit_NoNoticeWhenRecordVanishes(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.dropPut = true
	n := &chanNotifier{got: make(chan *Record, 1)}
	svc := newTestService(store, n)

	if _, _, err := svc.Submit(context.Background(), criticalIntake(), "req-1"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case rec := <-n.got:
		t.Errorf("unexpected escalation notice for unretrievable record %q", rec.ID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestGetAndList(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	rec, _, err := svc.Submit(ctx, criticalIntake(), "req-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	got, ok, err := svc.Get(ctx, rec.ID)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.ID != rec.ID {
		t.Errorf("Get returned %q, want %q", got.ID, rec.ID)
	}

	list, err := svc.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("List returned %d records, want 1", len(list))
	}
}
