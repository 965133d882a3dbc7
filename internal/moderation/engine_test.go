package moderation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ChauDoan21165/MercyB-sub006/internal/policy"
)

// memStore is a minimal in-package Store fake with the same per-user
// serialization contract as the real stores.
type memStore struct {
	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	events map[string][]ViolationEvent
	status map[string]Status
}

func newMemStore() *memStore {
	return &memStore{
		locks:  make(map[string]*sync.Mutex),
		events: make(map[string][]ViolationEvent),
		status: make(map[string]Status),
	}
}

func (s *memStore) Update(ctx context.Context, userID string, fn func(tx Tx) error) error {
	s.mu.Lock()
	lock, ok := s.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[userID] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn(s)
}

func (s *memStore) GetStatus(_ context.Context, userID string) (*Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.status[userID]
	if !ok {
		return nil, nil
	}
	statusCopy := status
	return &statusCopy, nil
}

func (s *memStore) UpsertStatus(_ context.Context, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[status.UserID] = status
	return nil
}

func (s *memStore) AppendViolation(_ context.Context, event ViolationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.UserID] = append(s.events[event.UserID], event)
	return nil
}

func (s *memStore) CountViolationsSince(_ context.Context, userID string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, event := range s.events[userID] {
		if !event.OccurredAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// failStore errors on every operation, simulating an unavailable backend.
type failStore struct{}

var errStoreDown = errors.New("store down")

func (failStore) Update(context.Context, string, func(tx Tx) error) error { return errStoreDown }
func (failStore) GetStatus(context.Context, string) (*Status, error)     { return nil, errStoreDown }
func (failStore) UpsertStatus(context.Context, Status) error             { return errStoreDown }
func (failStore) AppendViolation(context.Context, ViolationEvent) error  { return errStoreDown }
func (failStore) CountViolationsSince(context.Context, string, time.Time) (int, error) {
	return 0, errStoreDown
}

type fakeAlerter struct {
	mu     sync.Mutex
	alerts []SuspensionAlert
	fail   bool
}

func (a *fakeAlerter) EmitSuspensionAlert(_ context.Context, alert SuspensionAlert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail {
		return errors.New("alert channel down")
	}
	a.alerts = append(a.alerts, alert)
	return nil
}

type fakeCache struct {
	mu        sync.Mutex
	suspended map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{suspended: make(map[string]string)}
}

func (c *fakeCache) Suspend(_ context.Context, userID, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suspended[userID] = reason
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *memStore, *fakeAlerter, *fakeCache) {
	t.Helper()
	store := newMemStore()
	alerter := &fakeAlerter{}
	cache := newFakeCache()
	return NewEngine(policy.Default(), store, alerter, cache), store, alerter, cache
}

func TestDecide_CleanTextNoSideEffects(t *testing.T) {
	engine, store, alerter, _ := newTestEngine(t)

	result, err := engine.Decide(context.Background(), CheckRequest{
		UserID: "u1",
		Text:   "hello, how are you today?",
	})
	if err != nil {
		t.Fatalf("Decide() error: %v", err)
	}
	if !result.Allowed || result.Action != ActionAllow {
		t.Errorf("result = %+v, want allowed", result)
	}
	if result.Severity != 0 || result.MatchedRuleID != "" {
		t.Errorf("clean result carries match data: %+v", result)
	}
	if len(store.events["u1"]) != 0 {
		t.Error("clean text produced violation events")
	}
	if _, ok := store.status["u1"]; ok {
		t.Error("clean text produced a status row")
	}
	if len(alerter.alerts) != 0 {
		t.Error("clean text produced an alert")
	}
}

func TestDecide_InvalidInput(t *testing.T) {
	engine, store, _, _ := newTestEngine(t)

	tests := []struct {
		name string
		req  CheckRequest
	}{
		{"missing user", CheckRequest{Text: "hello"}},
		{"empty text", CheckRequest{UserID: "u1"}},
		{"too long", CheckRequest{UserID: "u1", Text: strings.Repeat("a", MaxTextChars+1)}},
		{"bad room context", CheckRequest{UserID: "u1", Text: "hello", RoomContext: "VIP Room!"}},
		{"unsupported language", CheckRequest{UserID: "u1", Text: "hello", Language: "fr"}},
		{"invalid utf8", CheckRequest{UserID: "u1", Text: string([]byte{0xff, 0xfe})}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Decide(context.Background(), tt.req)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Decide() error = %v, want ErrInvalidInput", err)
			}
		})
	}

	if len(store.events) != 0 || len(store.status) != 0 {
		t.Error("invalid input produced side effects")
	}
}

func TestDecide_FirstViolationWarns(t *testing.T) {
	engine, store, alerter, cache := newTestEngine(t)

	result, err := engine.Decide(context.Background(), CheckRequest{
		UserID:      "u1",
		Text:        "You bastard, go away",
		RoomContext: "vip3-room",
	})
	if err != nil {
		t.Fatalf("Decide() error: %v", err)
	}

	if result.Allowed {
		t.Error("violation was allowed")
	}
	if result.Action != ActionWarn {
		t.Errorf("Action = %q, want warn", result.Action)
	}
	if result.Severity != 2 {
		t.Errorf("Severity = %d, want 2", result.Severity)
	}
	if result.WindowCount != 1 {
		t.Errorf("WindowCount = %d, want 1", result.WindowCount)
	}
	if result.Suspended {
		t.Error("first violation marked user suspended")
	}
	if !strings.Contains(result.Message, "1/1") {
		t.Errorf("warn message missing running count: %q", result.Message)
	}

	events := store.events["u1"]
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Action != ActionWarn || events[0].Severity != 2 {
		t.Errorf("event = %+v", events[0])
	}
	if events[0].RoomContext != "vip3-room" {
		t.Errorf("event room context = %q", events[0].RoomContext)
	}
	if events[0].ID == "" {
		t.Error("event has no ID")
	}

	status := store.status["u1"]
	if status.TotalViolations != 1 || status.IsSuspended {
		t.Errorf("status = %+v", status)
	}
	if status.CumulativeScore != 1 { // severity 2 weighs 1
		t.Errorf("CumulativeScore = %d, want 1", status.CumulativeScore)
	}
	if status.LastViolationAt == nil {
		t.Error("LastViolationAt not set")
	}

	if len(alerter.alerts) != 0 {
		t.Error("warn emitted an alert")
	}
	if len(cache.suspended) != 0 {
		t.Error("warn wrote to the suspension cache")
	}
}

func TestDecide_SecondViolationInWindowSuspends(t *testing.T) {
	engine, store, alerter, cache := newTestEngine(t)
	ctx := context.Background()

	base := time.Now()
	engine.now = func() time.Time { return base }
	if _, err := engine.Decide(ctx, CheckRequest{UserID: "u1", Text: "You bastard, go away"}); err != nil {
		t.Fatalf("first Decide() error: %v", err)
	}

	// Second violation one hour later, still inside the 24h window.
	engine.now = func() time.Time { return base.Add(1 * time.Hour) }
	result, err := engine.Decide(ctx, CheckRequest{UserID: "u1", Text: "f***ing idiot"})
	if err != nil {
		t.Fatalf("second Decide() error: %v", err)
	}

	if result.Action != ActionSuspend {
		t.Errorf("Action = %q, want suspend", result.Action)
	}
	if result.Severity != 3 {
		t.Errorf("Severity = %d, want 3", result.Severity)
	}
	if result.WindowCount != 2 {
		t.Errorf("WindowCount = %d, want 2", result.WindowCount)
	}
	if !result.Suspended {
		t.Error("Suspended = false, want true")
	}

	status := store.status["u1"]
	if !status.IsSuspended {
		t.Error("status.IsSuspended = false, want true")
	}
	if status.TotalViolations != 2 {
		t.Errorf("TotalViolations = %d, want 2", status.TotalViolations)
	}
	if status.CumulativeScore != 3 { // weight(2)=1 + weight(3)=2
		t.Errorf("CumulativeScore = %d, want 3", status.CumulativeScore)
	}

	if len(alerter.alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerter.alerts))
	}
	alert := alerter.alerts[0]
	if alert.UserID != "u1" || alert.ViolationCount != 2 {
		t.Errorf("alert = %+v", alert)
	}
	if alert.LastExcerpt != "f***ing idiot" {
		t.Errorf("alert excerpt = %q", alert.LastExcerpt)
	}

	if _, ok := cache.suspended["u1"]; !ok {
		t.Error("suspension not mirrored into the cache")
	}
}

// With warn_threshold raised above 1 the first violation lands in the grace
// tier: recorded for the audit trail, but the message is allowed through with
// no user-facing warning.
func TestDecide_GraceTierRecordsWithoutEnforcing(t *testing.T) {
	pol, err := policy.Parse([]byte(`{
		"warn_threshold": 2,
		"suspend_threshold": 3,
		"rules": [{"id": "r", "language": "en", "category": "profanity", "severity": 2, "patterns": ["\\bbastard\\b"]}]
	}`))
	if err != nil {
		t.Fatalf("test policy: %v", err)
	}
	store := newMemStore()
	engine := NewEngine(pol, store, nil, nil)
	ctx := context.Background()

	base := time.Now()
	engine.now = func() time.Time { return base }
	result, err := engine.Decide(ctx, CheckRequest{UserID: "u1", Text: "you bastard"})
	if err != nil {
		t.Fatalf("first Decide() error: %v", err)
	}
	if !result.Allowed || result.Action != ActionAllow {
		t.Errorf("first result = %+v, want allowed grace violation", result)
	}
	if result.Message != "" {
		t.Errorf("grace violation carries a message: %q", result.Message)
	}
	events := store.events["u1"]
	if len(events) != 1 || events[0].Action != ActionAllow {
		t.Fatalf("events = %+v, want one recorded allow event", events)
	}
	if store.status["u1"].TotalViolations != 1 {
		t.Errorf("TotalViolations = %d, want 1", store.status["u1"].TotalViolations)
	}

	engine.now = func() time.Time { return base.Add(time.Minute) }
	result, err = engine.Decide(ctx, CheckRequest{UserID: "u1", Text: "you bastard"})
	if err != nil {
		t.Fatalf("second Decide() error: %v", err)
	}
	if result.Allowed || result.Action != ActionWarn {
		t.Errorf("second result = %+v, want warn", result)
	}

	engine.now = func() time.Time { return base.Add(2 * time.Minute) }
	result, err = engine.Decide(ctx, CheckRequest{UserID: "u1", Text: "you bastard"})
	if err != nil {
		t.Fatalf("third Decide() error: %v", err)
	}
	if result.Action != ActionSuspend || !result.Suspended {
		t.Errorf("third result = %+v, want suspend", result)
	}
}

// A violation outside the 24h window ages out of the escalation count but
// stays in the audit totals.
func TestDecide_OldViolationAgesOut(t *testing.T) {
	engine, store, _, _ := newTestEngine(t)
	ctx := context.Background()

	base := time.Now()
	engine.now = func() time.Time { return base }
	if _, err := engine.Decide(ctx, CheckRequest{UserID: "u1", Text: "You bastard, go away"}); err != nil {
		t.Fatalf("first Decide() error: %v", err)
	}

	// 30 hours later: the first violation is outside the window.
	engine.now = func() time.Time { return base.Add(30 * time.Hour) }
	result, err := engine.Decide(ctx, CheckRequest{UserID: "u1", Text: "f***ing idiot"})
	if err != nil {
		t.Fatalf("second Decide() error: %v", err)
	}

	if result.Action != ActionWarn {
		t.Errorf("Action = %q, want warn (old violation aged out)", result.Action)
	}
	if result.WindowCount != 1 {
		t.Errorf("WindowCount = %d, want 1", result.WindowCount)
	}

	// Audit totals keep counting across windows.
	status := store.status["u1"]
	if status.TotalViolations != 2 {
		t.Errorf("TotalViolations = %d, want 2", status.TotalViolations)
	}
	if status.CumulativeScore != 3 {
		t.Errorf("CumulativeScore = %d, want 3", status.CumulativeScore)
	}
	if status.IsSuspended {
		t.Error("user suspended on aged-out window")
	}
}

// A message containing both a mild and a severe pattern is judged by the
// severe one.
func TestDecide_MixedSeverityJudgedByWorst(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	result, err := engine.Decide(context.Background(), CheckRequest{
		UserID: "u1",
		Text:   "you bastard, kill yourself",
	})
	if err != nil {
		t.Fatalf("Decide() error: %v", err)
	}
	if result.Severity != 4 {
		t.Errorf("Severity = %d, want 4 (harassment outranks mild profanity)", result.Severity)
	}
	if result.MatchedRuleID != "en-harassment" {
		t.Errorf("MatchedRuleID = %q, want en-harassment", result.MatchedRuleID)
	}
}

func TestDecide_Vietnamese(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	result, err := engine.Decide(context.Background(), CheckRequest{
		UserID:   "u1",
		Text:     "Đồ ngu!",
		Language: LangVI,
	})
	if err != nil {
		t.Fatalf("Decide() error: %v", err)
	}
	if result.Allowed {
		t.Fatal("Vietnamese violation was allowed")
	}
	if result.MatchedRuleID != "vi-profanity-mild" {
		t.Errorf("MatchedRuleID = %q, want vi-profanity-mild", result.MatchedRuleID)
	}
}

// Persistence failures fail the decision closed: the caller gets a hard error,
// never an implicit allow.
func TestDecide_StoreFailureFailsClosed(t *testing.T) {
	engine := NewEngine(policy.Default(), failStore{}, nil, nil)

	result, err := engine.Decide(context.Background(), CheckRequest{
		UserID: "u1",
		Text:   "You bastard, go away",
	})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Decide() error = %v, want ErrStoreUnavailable", err)
	}
	if result != nil {
		t.Errorf("Decide() result = %+v, want nil on store failure", result)
	}
}

// A failed alert never fails the decision: the suspension already committed.
func TestDecide_AlertFailureNonFatal(t *testing.T) {
	store := newMemStore()
	alerter := &fakeAlerter{fail: true}
	engine := NewEngine(policy.Default(), store, alerter, nil)
	ctx := context.Background()

	base := time.Now()
	engine.now = func() time.Time { return base }
	if _, err := engine.Decide(ctx, CheckRequest{UserID: "u1", Text: "You bastard, go away"}); err != nil {
		t.Fatalf("first Decide() error: %v", err)
	}

	engine.now = func() time.Time { return base.Add(time.Minute) }
	result, err := engine.Decide(ctx, CheckRequest{UserID: "u1", Text: "f***ing idiot"})
	if err != nil {
		t.Fatalf("Decide() error = %v, want nil despite alert failure", err)
	}
	if result.Action != ActionSuspend {
		t.Errorf("Action = %q, want suspend", result.Action)
	}
	if !store.status["u1"].IsSuspended {
		t.Error("suspension not persisted")
	}
}

func TestDecide_ExcerptBounded(t *testing.T) {
	engine, store, _, _ := newTestEngine(t)

	// A long message whose tail contains the violation.
	text := strings.Repeat("blah ", 150) + "you bastard"
	_, err := engine.Decide(context.Background(), CheckRequest{UserID: "u1", Text: text})
	if err != nil {
		t.Fatalf("Decide() error: %v", err)
	}

	events := store.events["u1"]
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if n := len([]rune(events[0].ContentExcerpt)); n > MaxExcerptChars {
		t.Errorf("excerpt length = %d runes, want <= %d", n, MaxExcerptChars)
	}
}

// Two simultaneous violations from the same fresh user must produce exactly
// one warn and one suspend, never two warns.
func TestDecide_ConcurrentSameUser(t *testing.T) {
	engine, store, alerter, _ := newTestEngine(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]*DecisionResult, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = engine.Decide(ctx, CheckRequest{
				UserID: "u1",
				Text:   "You bastard, go away",
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Decide() %d error: %v", i, err)
		}
	}

	actions := map[Action]int{}
	for _, r := range results {
		actions[r.Action]++
	}
	if actions[ActionWarn] != 1 || actions[ActionSuspend] != 1 {
		t.Errorf("actions = %v, want exactly one warn and one suspend", actions)
	}

	if !store.status["u1"].IsSuspended {
		t.Error("user not suspended after concurrent pair")
	}
	if len(alerter.alerts) != 1 {
		t.Errorf("got %d alerts, want exactly 1", len(alerter.alerts))
	}
}

func TestDecide_PolicySwap(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	req := CheckRequest{UserID: "u1", Text: "flibbertigibbet"}
	result, err := engine.Decide(ctx, req)
	if err != nil || !result.Allowed {
		t.Fatalf("Decide() = %+v, %v; want allowed under default policy", result, err)
	}

	stricter, err := policy.Parse([]byte(`{"version": "v2", "rules": [
		{"id": "strict", "language": "en", "category": "nonsense", "severity": 1, "patterns": ["\\bflibbertigibbet\\b"]}
	]}`))
	if err != nil {
		t.Fatalf("test policy: %v", err)
	}
	engine.SetPolicy(stricter)

	result, err = engine.Decide(ctx, CheckRequest{UserID: "u2", Text: "flibbertigibbet"})
	if err != nil {
		t.Fatalf("Decide() error: %v", err)
	}
	if result.Allowed {
		t.Error("swapped policy not in effect")
	}
}
