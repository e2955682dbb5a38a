package health_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/wellspring-app/wellspring/internal/app/gamification"
	"github.com/wellspring-app/wellspring/internal/clock"
	"github.com/wellspring-app/wellspring/internal/domain"
	"github.com/wellspring-app/wellspring/internal/health"
	"github.com/wellspring-app/wellspring/internal/infra/sqlite"
)

var at = time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

func quiet() *log.Logger { return log.New(io.Discard) }

func newTestDB(t *testing.T, dir string) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type failingPinger struct{ err error }

func (f failingPinger) Ping(context.Context) error { return f.err }

// ─── Checker Tests ──────────────────────────────────────────────────────────

func TestChecker_AllHealthy(t *testing.T) {
	dir := t.TempDir()
	db := newTestDB(t, dir)
	c := health.NewChecker(db, dir, gamification.DefaultCatalog(), clock.Fixed{T: at}, quiet())

	statuses := c.RunOnce(context.Background())
	if len(statuses) != 3 {
		t.Fatalf("statuses = %d, want 3", len(statuses))
	}
	for _, s := range statuses {
		if !s.Healthy {
			t.Errorf("check %q unhealthy: %s", s.Name, s.Error)
		}
		if !s.CheckedAt.Equal(at) {
			t.Errorf("checked_at = %v", s.CheckedAt)
		}
	}
	if !c.IsHealthy() {
		t.Error("IsHealthy() should be true")
	}
}

func TestChecker_RemoteStoreSkipsDataDir(t *testing.T) {
	c := health.NewChecker(failingPinger{}, "", gamification.DefaultCatalog(), nil, quiet())
	if n := len(c.RunOnce(context.Background())); n != 2 {
		t.Errorf("statuses = %d, want 2", n)
	}
}

func TestChecker_StoreDown(t *testing.T) {
	c := health.NewChecker(failingPinger{err: errors.New("connection refused")}, "", gamification.DefaultCatalog(), nil, quiet())
	c.RunOnce(context.Background())

	if c.IsHealthy() {
		t.Fatal("IsHealthy() should be false")
	}
	for _, s := range c.Statuses() {
		if s.Name == "store" && (s.Healthy || s.Error != "connection refused") {
			t.Errorf("store status = %+v", s)
		}
	}
}

func TestChecker_InvalidCatalog(t *testing.T) {
	bad := domain.Catalog{Version: 1, Badges: []domain.BadgeDefinition{{ID: "", Metric: domain.MetricMoodCount, Threshold: 1}}}
	c := health.NewChecker(failingPinger{}, "", bad, nil, quiet())
	c.RunOnce(context.Background())
	if c.IsHealthy() {
		t.Error("invalid catalog should fail the catalog check")
	}
}

func TestChecker_RecoversMissingDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	c := health.NewChecker(failingPinger{}, dir, gamification.DefaultCatalog(), nil, quiet())

	c.RunOnce(context.Background())
	if !c.IsHealthy() {
		t.Fatalf("data_dir should recover: %+v", c.Statuses())
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("recovery did not create dir: %v", err)
	}
}

func TestChecker_IsHealthyBeforeRun(t *testing.T) {
	c := health.New(nil, nil, quiet())
	if !c.IsHealthy() {
		t.Error("IsHealthy() should be true before first run")
	}
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	calls := make(chan struct{}, 16)
	c := health.New([]health.Check{{
		Name:    "tick",
		CheckFn: func(context.Context) error { calls <- struct{}{}; return nil },
	}}, nil, quiet())
	c.SetInterval(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { c.Run(ctx); close(done) }()

	<-calls
	<-calls
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
