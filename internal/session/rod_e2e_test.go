package session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/nightshift/internal/models"
)

// fakeSite mimics the reporting site's page flow closely enough for the
// default locators.
type fakeSite struct {
	mu      sync.Mutex
	tenant  string
	reports []string
}

func (f *fakeSite) routes() http.Handler {
	r := chi.NewRouter()
	page := func(w http.ResponseWriter, body string) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<!doctype html><html><body>%s</body></html>", body)
	}

	r.Get("/adams/", func(w http.ResponseWriter, r *http.Request) {
		page(w, `<form method="post" action="/adams/login">
			<input name="staff_id"><input name="password" type="password">
			<input type="submit" name="send" value="ログイン"></form>`)
	})
	r.Post("/adams/login", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("staff_id") != "s001" || r.FormValue("password") != "pw" {
			http.Error(w, "bad login", http.StatusUnauthorized)
			return
		}
		page(w, `<form method="get" action="/adams/menu">
			<select name="tenant"><option>A 店舗</option><option>B 店舗</option><option>C 店舗</option></select>
			<input type="submit" value="決定"></form>`)
	})
	r.Get("/adams/menu", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.tenant = r.URL.Query().Get("tenant")
		f.mu.Unlock()
		page(w, `<form method="get" action="/adams/form">
			<input type="submit" name="mode" value="出勤">
			<input type="submit" name="mode" value="勤務状況報告">
			<input type="submit" name="mode" value="退勤"></form>`)
	})
	r.Get("/adams/form", func(w http.ResponseWriter, r *http.Request) {
		mode := r.URL.Query().Get("mode")
		page(w, fmt.Sprintf(`<form method="get" action="/adams/confirm">
			<input type="hidden" name="mode" value="%s">
			<input type="submit" value="内容確認"></form>`, mode))
	})
	r.Get("/adams/confirm", func(w http.ResponseWriter, r *http.Request) {
		mode := r.URL.Query().Get("mode")
		page(w, fmt.Sprintf(`<form method="get" action="/adams/done">
			<input type="hidden" name="mode" value="%s">
			<input type="submit" value="報告"></form>`, mode))
	})
	r.Get("/adams/done", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.reports = append(f.reports, r.URL.Query().Get("mode"))
		f.mu.Unlock()
		page(w, `<p>受け付けました</p><a href="/adams/logout.php">終了する</a>`)
	})
	return r
}

// TestRodDriverAgainstFakeSite drives a real browser. It needs Chromium
// (or network access for rod to fetch one) and runs only with
// NIGHTSHIFT_E2E=1.
func TestRodDriverAgainstFakeSite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e tests in short mode")
	}
	if os.Getenv("NIGHTSHIFT_E2E") != "1" {
		t.Skip("set NIGHTSHIFT_E2E=1 to run browser tests")
	}

	site := &fakeSite{}
	server := httptest.NewServer(site.routes())
	defer server.Close()

	driver := NewRodDriver(RodOptions{
		Bin:      os.Getenv("NIGHTSHIFT_BROWSER_BIN"),
		Headless: os.Getenv("E2E_HEADLESS") != "false",
	}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	sess, err := driver.Open(ctx, 20*time.Second)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer sess.Close()

	if err := sess.NavigateAndLogin(ctx, server.URL+"/adams/", Credentials{StaffID: "s001", Password: "pw"}); err != nil {
		t.Fatalf("NavigateAndLogin() error = %v", err)
	}
	if err := sess.SelectTenant(ctx, "C"); err != nil {
		t.Fatalf("SelectTenant() error = %v", err)
	}
	if err := sess.ClickControl(ctx, models.ModeStatusReport); err != nil {
		t.Fatalf("ClickControl() error = %v", err)
	}

	found, err := sess.MarkerPresent(ctx)
	if err != nil {
		t.Fatalf("MarkerPresent() error = %v", err)
	}
	if found {
		t.Fatal("marker must not show before submission")
	}

	if err := sess.ConfirmAndSubmit(ctx); err != nil {
		t.Fatalf("ConfirmAndSubmit() error = %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for !found && time.Now().Before(deadline) {
		found, _ = sess.MarkerPresent(ctx)
		if !found {
			time.Sleep(200 * time.Millisecond)
		}
	}
	if !found {
		t.Fatal("completion marker not found after submit")
	}

	if shooter, ok := sess.(Screenshotter); ok {
		data, err := shooter.Screenshot(ctx)
		if err != nil || len(data) == 0 {
			t.Fatalf("Screenshot() = %d bytes, %v", len(data), err)
		}
	}

	site.mu.Lock()
	defer site.mu.Unlock()
	if site.tenant != "C 店舗" {
		t.Errorf("tenant = %q, want C 店舗", site.tenant)
	}
	if len(site.reports) != 1 || site.reports[0] != "勤務状況報告" {
		t.Errorf("reports = %v", site.reports)
	}
}

func TestRodSessionCloseIdempotent(t *testing.T) {
	s := &rodSession{logger: zerolog.Nop()}
	s.Close()
	s.Close()

	if err := s.ConfirmAndSubmit(context.Background()); err == nil {
		t.Fatal("expected error on a session without a page")
	}
}
