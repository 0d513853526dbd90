package executor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/nightshift/internal/clock"
	"github.com/friendsincode/nightshift/internal/models"
	"github.com/friendsincode/nightshift/internal/session"
)

// fakeSession fails at the named step ("login", "tenant", "click",
// "submit") or, with marker false, never shows the completion marker.
// panicAt makes the named step panic instead.
type fakeSession struct {
	failAt  string
	panicAt string
	marker bool
	shot   []byte

	mu     sync.Mutex
	closes int
}

func (s *fakeSession) fail(step string) error {
	if s.panicAt == step {
		panic("element detached")
	}
	if s.failAt == step {
		return &session.Error{Op: step, Err: errors.New("element not found")}
	}
	return nil
}

func (s *fakeSession) NavigateAndLogin(ctx context.Context, url string, creds session.Credentials) error {
	return s.fail("login")
}
func (s *fakeSession) SelectTenant(ctx context.Context, label string) error { return s.fail("tenant") }
func (s *fakeSession) ClickControl(ctx context.Context, mode models.Mode) error {
	return s.fail("click")
}
func (s *fakeSession) ConfirmAndSubmit(ctx context.Context) error { return s.fail("submit") }
func (s *fakeSession) MarkerPresent(ctx context.Context) (bool, error) {
	return s.marker, nil
}
func (s *fakeSession) Screenshot(ctx context.Context) ([]byte, error) {
	if s.shot == nil {
		return nil, errors.New("no page")
	}
	return s.shot, nil
}
func (s *fakeSession) Close() {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
}

// fakeDriver hands out scripted sessions in order; the last one repeats.
type fakeDriver struct {
	script  []*fakeSession
	openErr error
	opened  []*fakeSession
}

func (d *fakeDriver) Open(ctx context.Context, stepTimeout time.Duration) (session.Session, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	idx := len(d.opened)
	if idx >= len(d.script) {
		idx = len(d.script) - 1
	}
	s := &fakeSession{failAt: d.script[idx].failAt, panicAt: d.script[idx].panicAt, marker: d.script[idx].marker, shot: d.script[idx].shot}
	d.opened = append(d.opened, s)
	return s, nil
}

type fakeNotifier struct {
	texts []string
}

func (n *fakeNotifier) Send(ctx context.Context, text string) bool {
	n.texts = append(n.texts, text)
	return true
}

type fakeRecorder struct {
	records []models.ActionRecord
}

func (r *fakeRecorder) Record(ctx context.Context, rec *models.ActionRecord) error {
	r.records = append(r.records, *rec)
	return nil
}

type memStore struct {
	objects map[string][]byte
}

func (m *memStore) Put(ctx context.Context, key string, data []byte) error {
	m.objects[key] = data
	return nil
}

func (m *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	return m.objects[key], nil
}

var testStart = time.Date(2026, 1, 1, 23, 17, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		RunID:        "run-1",
		LoginURL:     "https://example.test/login",
		Credentials:  session.Credentials{StaffID: "s", Password: "p"},
		TenantText:   "C",
		MaxAttempts:  3,
		StepTimeout:  10 * time.Second,
		Backoff:      5 * time.Second,
		PollInterval: time.Second,
	}
}

func request(mode models.Mode) models.ActionRequest {
	return models.ActionRequest{Slot: clock.Slot{Hour: 23, At: testStart}, Mode: mode}
}

func TestExecuteSuccessNotifications(t *testing.T) {
	tests := []struct {
		mode        models.Mode
		wantNotices int
	}{
		{models.ModeClockIn, 1},
		{models.ModeStatusReport, 0},
		{models.ModeClockOut, 1},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			driver := &fakeDriver{script: []*fakeSession{{marker: true}}}
			notifier := &fakeNotifier{}
			exec := New(driver, notifier, clock.NewFake(testStart), testConfig(), zerolog.Nop())

			res := exec.Execute(context.Background(), request(tt.mode))

			if !res.Success || res.Attempts != 1 || res.Err != nil {
				t.Fatalf("result = %+v, want success on first attempt", res)
			}
			if len(notifier.texts) != tt.wantNotices {
				t.Fatalf("notifications = %v, want %d", notifier.texts, tt.wantNotices)
			}
			if tt.wantNotices == 1 && !strings.Contains(notifier.texts[0], "完了") {
				t.Fatalf("success notice %q", notifier.texts[0])
			}
			if len(driver.opened) != 1 || driver.opened[0].closes != 1 {
				t.Fatalf("expected one session closed once")
			}
		})
	}
}

func TestExecuteExhaustsRetries(t *testing.T) {
	driver := &fakeDriver{script: []*fakeSession{{failAt: "click"}}}
	notifier := &fakeNotifier{}
	clk := clock.NewFake(testStart)
	exec := New(driver, notifier, clk, testConfig(), zerolog.Nop())

	res := exec.Execute(context.Background(), request(models.ModeStatusReport))

	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", res.Attempts)
	}
	var se *session.Error
	if !errors.As(res.Err, &se) || se.Op != "click" {
		t.Fatalf("err = %v, want session error from click", res.Err)
	}
	if len(driver.opened) != 3 {
		t.Fatalf("opened %d sessions, want 3", len(driver.opened))
	}
	for i, s := range driver.opened {
		if s.closes != 1 {
			t.Fatalf("session %d closed %d times, want 1", i, s.closes)
		}
	}
	if len(notifier.texts) != 1 || !strings.Contains(notifier.texts[0], "失敗（最終）") {
		t.Fatalf("notifications = %v, want exactly one final failure", notifier.texts)
	}
	if sleeps := clk.Sleeps(); len(sleeps) != 2 || sleeps[0] != 5*time.Second || sleeps[1] != 5*time.Second {
		t.Fatalf("backoff sleeps = %v, want two 5s sleeps", sleeps)
	}
}

func TestExecuteStopsAtFirstSuccess(t *testing.T) {
	driver := &fakeDriver{script: []*fakeSession{{failAt: "login"}, {marker: true}}}
	notifier := &fakeNotifier{}
	exec := New(driver, notifier, clock.NewFake(testStart), testConfig(), zerolog.Nop())

	res := exec.Execute(context.Background(), request(models.ModeStatusReport))

	if !res.Success || res.Attempts != 2 {
		t.Fatalf("result = %+v, want success on attempt 2", res)
	}
	if len(driver.opened) != 2 {
		t.Fatalf("opened %d sessions, want 2", len(driver.opened))
	}
	if len(notifier.texts) != 0 {
		t.Fatalf("status report success should be silent, got %v", notifier.texts)
	}
}

func TestExecuteCompletionTimeout(t *testing.T) {
	driver := &fakeDriver{script: []*fakeSession{{marker: false}}}
	cfg := testConfig()
	cfg.MaxAttempts = 1
	exec := New(driver, &fakeNotifier{}, clock.NewFake(testStart), cfg, zerolog.Nop())

	res := exec.Execute(context.Background(), request(models.ModeClockIn))

	if res.Success || !errors.Is(res.Err, ErrCompletionTimeout) {
		t.Fatalf("result = %+v, want completion timeout", res)
	}
}

func TestExecuteOpenFailure(t *testing.T) {
	driver := &fakeDriver{openErr: &session.Error{Op: "launch", Err: errors.New("no browser")}}
	notifier := &fakeNotifier{}
	exec := New(driver, notifier, clock.NewFake(testStart), testConfig(), zerolog.Nop())

	res := exec.Execute(context.Background(), request(models.ModeClockOut))

	if res.Success || res.Attempts != 3 {
		t.Fatalf("result = %+v, want 3 failed attempts", res)
	}
	if len(notifier.texts) != 1 {
		t.Fatalf("notifications = %v, want 1", notifier.texts)
	}
}

func TestExecuteCancelledBeforeStart(t *testing.T) {
	driver := &fakeDriver{script: []*fakeSession{{marker: true}}}
	notifier := &fakeNotifier{}
	exec := New(driver, notifier, clock.NewFake(testStart), testConfig(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := exec.Execute(ctx, request(models.ModeStatusReport))

	if res.Success || res.Attempts != 1 || !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("result = %+v, want one fatal attempt", res)
	}
	if len(driver.opened) != 0 {
		t.Fatal("no session should open after cancellation")
	}
	if len(notifier.texts) != 1 {
		t.Fatalf("notifications = %v, want the final failure", notifier.texts)
	}
}

func TestExecuteCancelledDuringBackoff(t *testing.T) {
	driver := &fakeDriver{script: []*fakeSession{{failAt: "submit"}}}
	notifier := &fakeNotifier{}
	clk := clock.NewFake(testStart)
	ctx, cancel := context.WithCancel(context.Background())
	clk.OnSleep = func(time.Duration) { cancel() }
	exec := New(driver, notifier, clk, testConfig(), zerolog.Nop())

	res := exec.Execute(ctx, request(models.ModeStatusReport))

	if res.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", res.Attempts)
	}
	var se *session.Error
	if !errors.As(res.Err, &se) {
		t.Fatalf("err = %v, should keep the causing session error", res.Err)
	}
	if len(notifier.texts) != 1 {
		t.Fatalf("notifications = %v, want 1", notifier.texts)
	}
}

func TestExecuteJournalsAndStoresEvidence(t *testing.T) {
	driver := &fakeDriver{script: []*fakeSession{{failAt: "tenant", shot: []byte("png")}, {marker: true}}}
	rec := &fakeRecorder{}
	store := &memStore{objects: map[string][]byte{}}
	exec := New(driver, &fakeNotifier{}, clock.NewFake(testStart), testConfig(), zerolog.Nop(),
		WithJournal(rec), WithEvidence(store))

	res := exec.Execute(context.Background(), request(models.ModeStatusReport))
	if !res.Success {
		t.Fatalf("result = %+v, want success", res)
	}

	if len(rec.records) != 2 {
		t.Fatalf("journaled %d attempts, want 2", len(rec.records))
	}
	first, second := rec.records[0], rec.records[1]
	if first.Outcome != models.AttemptRetryable || first.Attempt != 1 || first.Error == "" {
		t.Fatalf("first record = %+v", first)
	}
	if second.Outcome != models.AttemptSucceeded || second.EvidenceKey != "" {
		t.Fatalf("second record = %+v", second)
	}
	if first.EvidenceKey == "" {
		t.Fatal("failed attempt should carry an evidence key")
	}
	if string(store.objects[first.EvidenceKey]) != "png" {
		t.Fatalf("stored evidence = %q", store.objects[first.EvidenceKey])
	}
	if first.RunID != "run-1" || first.Hour != 23 {
		t.Fatalf("record identity = %s/%d", first.RunID, first.Hour)
	}
}

func TestExecuteRecoversSessionPanic(t *testing.T) {
	driver := &fakeDriver{script: []*fakeSession{{panicAt: "click"}}}
	notifier := &fakeNotifier{}
	rec := &fakeRecorder{}
	exec := New(driver, notifier, clock.NewFake(testStart), testConfig(), zerolog.Nop(), WithJournal(rec))

	res := exec.Execute(context.Background(), request(models.ModeStatusReport))

	if res.Success || res.Attempts != 3 {
		t.Fatalf("result = %+v, want 3 failed attempts", res)
	}
	if res.Err == nil || !strings.Contains(res.Err.Error(), "element detached") {
		t.Fatalf("err = %v, want the panic value", res.Err)
	}
	if len(driver.opened) != 3 {
		t.Fatalf("opened %d sessions, want 3", len(driver.opened))
	}
	for i, s := range driver.opened {
		if s.closes != 1 {
			t.Fatalf("session %d closed %d times, want 1", i, s.closes)
		}
	}
	if len(notifier.texts) != 1 || !strings.Contains(notifier.texts[0], "失敗（最終）") {
		t.Fatalf("notifications = %v, want exactly one final failure", notifier.texts)
	}
	if len(rec.records) != 3 {
		t.Fatalf("journaled %d attempts, want 3", len(rec.records))
	}
	for i, r := range rec.records {
		if r.Outcome != models.AttemptRetryable {
			t.Fatalf("record %d outcome = %s, want retryable", i, r.Outcome)
		}
	}
}

func TestZeroOutcomeIsNotSuccess(t *testing.T) {
	var out Outcome
	if out.Kind == OutcomeSuccess || out.journalOutcome() == models.AttemptSucceeded {
		t.Fatalf("zero outcome = %s, must not be a success", out.Kind)
	}
}

func TestOutcomeKinds(t *testing.T) {
	err := errors.New("x")
	tests := []struct {
		out  Outcome
		want models.AttemptOutcome
	}{
		{Success(), models.AttemptSucceeded},
		{Retryable(err), models.AttemptRetryable},
		{Fatal(err), models.AttemptFatal},
	}
	for _, tt := range tests {
		if got := tt.out.journalOutcome(); got != tt.want {
			t.Errorf("%s journal outcome = %s, want %s", tt.out.Kind, got, tt.want)
		}
	}
}
