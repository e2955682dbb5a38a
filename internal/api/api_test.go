package api_test

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/wellspring-app/wellspring/internal/api"
	"github.com/wellspring-app/wellspring/internal/app/gamification"
	"github.com/wellspring-app/wellspring/internal/clock"
	"github.com/wellspring-app/wellspring/internal/domain"
	"github.com/wellspring-app/wellspring/internal/health"
	"github.com/wellspring-app/wellspring/internal/infra/sqlite"
)

var base = time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	handler http.Handler
	hub     *api.LiveHub
	db      *sqlite.DB
}

func newTestEnv(t *testing.T, withDeps func(*api.Deps), withServer func(*api.Server)) testEnv {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	quiet := log.New(io.Discard)
	clk := clock.NewManual(base)
	hub := api.NewLiveHub()
	notifier := gamification.NewNotifier(db, domain.DefaultNotificationPolicy(), gamification.DefaultCatalog(), time.UTC,
		gamification.WithClock(clk), gamification.WithLogger(quiet))

	settings := gamification.DefaultSettings()
	settings.Retry = gamification.RetryConfig{MaxRetries: 32, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
	engine, err := gamification.New(db, db, settings,
		gamification.WithClock(clk), gamification.WithLogger(quiet),
		gamification.WithObserver(notifier), gamification.WithObserver(hub))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	deps := api.Deps{Engine: engine, Actions: db, Notifier: notifier, Live: hub, Clock: clk, Logger: quiet}
	if withDeps != nil {
		withDeps(&deps)
	}
	srv := api.NewServer(deps)
	if withServer != nil {
		withServer(srv)
	}
	return testEnv{handler: srv.Handler(), hub: hub, db: db}
}

func (e testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

type progressBody struct {
	TotalXP       int64          `json:"total_xp"`
	Level         int            `json:"level"`
	StreakDays    int            `json:"streak_days"`
	Badges        []domain.Badge `json:"badges"`
	LevelProgress struct {
		ToNext int64 `json:"xp_to_next_level"`
	} `json:"level_progress"`
}

type actionBody struct {
	Action  domain.Action `json:"action"`
	Outcome struct {
		Event  *domain.XPEvent `json:"event"`
		Badges []domain.Badge  `json:"badges"`
	} `json:"outcome"`
	Warnings []string `json:"warnings"`
}

// ─── Tests ──────────────────────────────────────────────────────────────────

func TestHealth_NoChecker(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	w := env.do(t, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestHealth_Degraded(t *testing.T) {
	checker := health.New([]health.Check{{
		Name:    "store",
		CheckFn: func(context.Context) error { return io.ErrUnexpectedEOF },
	}}, nil, log.New(io.Discard))
	checker.RunOnce(context.Background())

	env := newTestEnv(t, func(d *api.Deps) { d.Health = checker }, nil)
	w := env.do(t, http.MethodGet, "/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	body := decode[map[string]any](t, w)
	if body["status"] != "degraded" {
		t.Errorf("body = %v", body)
	}
}

func TestCatalog(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	w := env.do(t, http.MethodGet, "/api/catalog", "")
	cat := decode[domain.Catalog](t, w)
	if cat.Version != gamification.CatalogVersion || len(cat.Badges) != len(gamification.DefaultCatalog().Badges) {
		t.Errorf("catalog = v%d with %d badges", cat.Version, len(cat.Badges))
	}
}

func TestProgress_FreshUser(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	w := env.do(t, http.MethodGet, "/api/users/new/progress", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
	p := decode[progressBody](t, w)
	if p.TotalXP != 0 || p.Level != 1 || p.StreakDays != 0 || len(p.Badges) != 0 {
		t.Errorf("fresh progress = %+v", p)
	}
	if p.LevelProgress.ToNext != 100 {
		t.Errorf("to next = %d, want 100", p.LevelProgress.ToNext)
	}
}

func TestAction_MoodLog(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(t, http.MethodPost, "/api/users/ana/actions/mood", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
	a := decode[actionBody](t, w)
	if a.Action.ID == "" || a.Action.Kind != domain.ActionMood {
		t.Errorf("action = %+v", a.Action)
	}
	if a.Outcome.Event == nil || a.Outcome.Event.Amount != 10 || a.Outcome.Event.SourceID != a.Action.ID {
		t.Errorf("event = %+v", a.Outcome.Event)
	}
	if len(a.Outcome.Badges) != 1 || a.Outcome.Badges[0].ID != "first_mood" {
		t.Errorf("badges = %+v", a.Outcome.Badges)
	}

	p := decode[progressBody](t, env.do(t, http.MethodGet, "/api/users/ana/progress", ""))
	if p.TotalXP != 60 || p.StreakDays != 1 {
		t.Errorf("progress = %+v, want 60 XP streak 1", p)
	}
}

func TestAction_ReplayWithSameID(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	body := `{"id":"task-42","occurred_at":"2025-07-01T08:00:00Z"}`

	first := decode[actionBody](t, env.do(t, http.MethodPost, "/api/users/ben/actions/task", body))
	second := decode[actionBody](t, env.do(t, http.MethodPost, "/api/users/ben/actions/task", body))
	if first.Outcome.Event == nil || second.Outcome.Event == nil || first.Outcome.Event.ID != second.Outcome.Event.ID {
		t.Fatalf("replay events differ: %+v vs %+v", first.Outcome.Event, second.Outcome.Event)
	}

	// 20 task + 50 first_task
	p := decode[progressBody](t, env.do(t, http.MethodGet, "/api/users/ben/progress", ""))
	if p.TotalXP != 70 {
		t.Errorf("total = %d, want 70", p.TotalXP)
	}
}

func TestAction_Unknown(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	if w := env.do(t, http.MethodPost, "/api/users/ana/actions/sleep", ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestAction_BadBody(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	if w := env.do(t, http.MethodPost, "/api/users/ana/actions/goal", "{nope"); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestAction_FutureOccurredAt(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(t, http.MethodPost, "/api/users/zed/actions/mood", `{"id":"m1","occurred_at":"2030-01-01T09:00:00Z"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", w.Code, w.Body)
	}

	a := decode[actionBody](t, env.do(t, http.MethodPost, "/api/users/zed/actions/habit", ""))
	if len(a.Warnings) != 0 {
		t.Errorf("warnings = %v", a.Warnings)
	}
	p := decode[progressBody](t, env.do(t, http.MethodGet, "/api/users/zed/progress", ""))
	if p.StreakDays != 1 || p.TotalXP != 65 {
		t.Errorf("progress = %+v, want streak 1 and 65 XP", p)
	}
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.do(t, http.MethodPost, "/api/users/cy/actions/habit", "")

	if w := env.do(t, http.MethodGet, "/api/users/cy/xp?limit=abc", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", w.Code)
	}

	h := decode[struct {
		Events []domain.XPEvent `json:"events"`
	}](t, env.do(t, http.MethodGet, "/api/users/cy/xp?limit=1", ""))
	if len(h.Events) != 1 || h.Events[0].Reason != domain.ReasonBadgeBonus {
		t.Errorf("limit=1 events = %+v, want the badge bonus", h.Events)
	}

	all := decode[struct {
		Events []domain.XPEvent `json:"events"`
	}](t, env.do(t, http.MethodGet, "/api/users/cy/xp", ""))
	if len(all.Events) != 2 {
		t.Errorf("events = %d, want 2", len(all.Events))
	}
}

func TestBadges(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.do(t, http.MethodPost, "/api/users/dee/actions/gratitude", "")

	b := decode[struct {
		CatalogVersion int `json:"catalog_version"`
		Badges         []struct {
			ID       string `json:"id"`
			Unlocked bool   `json:"unlocked"`
		} `json:"badges"`
	}](t, env.do(t, http.MethodGet, "/api/users/dee/badges", ""))

	unlocked := 0
	for _, s := range b.Badges {
		if s.Unlocked {
			unlocked++
			if s.ID != "first_gratitude" {
				t.Errorf("unexpected unlocked %s", s.ID)
			}
		}
	}
	if unlocked != 1 {
		t.Errorf("unlocked = %d, want 1", unlocked)
	}
}

func TestReconcileAndVerify(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	r := decode[struct {
		Earned []domain.Badge `json:"earned"`
	}](t, env.do(t, http.MethodPost, "/api/users/eve/reconcile", ""))
	if r.Earned == nil || len(r.Earned) != 0 {
		t.Errorf("earned = %+v, want empty list", r.Earned)
	}

	env.do(t, http.MethodPost, "/api/users/eve/actions/goal", "")
	v := decode[map[string]any](t, env.do(t, http.MethodGet, "/api/users/eve/verify", ""))
	if v["ok"] != true {
		t.Errorf("verify = %v", v)
	}
}

func TestNotifications(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	// 100 goal + 50 first_goal crosses level 2
	env.do(t, http.MethodPost, "/api/users/fay/actions/goal", "")

	n := decode[struct {
		Notifications []domain.Notification `json:"notifications"`
	}](t, env.do(t, http.MethodGet, "/api/users/fay/notifications", ""))
	if len(n.Notifications) != 2 {
		t.Fatalf("notifications = %+v, want badge + level-up", n.Notifications)
	}

	id := n.Notifications[0].ID
	if w := env.do(t, http.MethodPost, "/api/users/fay/notifications/"+itoa(id)+"/shown", ""); w.Code != http.StatusOK {
		t.Errorf("mark shown status = %d: %s", w.Code, w.Body)
	}
	if w := env.do(t, http.MethodPost, "/api/users/fay/notifications/99999/shown", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/users/fay/notifications/x/shown", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil, func(s *api.Server) { s.EnableMetrics() })
	env.do(t, http.MethodPost, "/api/users/gil/actions/mood", "")

	w := env.do(t, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "wellspring_xp_granted_total") {
		t.Errorf("metrics status = %d", w.Code)
	}
}

func TestMetricsDisabledByDefault(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	if w := env.do(t, http.MethodGet, "/metrics", ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestLiveFeed(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/users/hu/live", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type = %q", ct)
	}

	deadline := time.Now().Add(2 * time.Second)
	for env.hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	// Another user's activity must not reach this feed.
	env.do(t, http.MethodPost, "/api/users/other/actions/mood", "")
	env.do(t, http.MethodPost, "/api/users/hu/actions/mood", "")

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read feed: %v", err)
		}
		data, ok := strings.CutPrefix(strings.TrimSpace(line), "data: ")
		if !ok {
			continue
		}
		var ev api.LiveEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			t.Fatalf("decode %q: %v", data, err)
		}
		if ev.UserID != "hu" {
			t.Fatalf("received event for %s", ev.UserID)
		}
		if ev.Type != "xp_granted" || ev.Event == nil || ev.Event.Amount != 10 {
			t.Errorf("first event = %+v", ev)
		}
		return
	}
}

func TestLiveHub_Unsubscribe(t *testing.T) {
	hub := api.NewLiveHub()
	_, unsub := hub.Subscribe("ana")
	if hub.ClientCount() != 1 {
		t.Fatalf("clients = %d", hub.ClientCount())
	}
	unsub()
	unsub()
	if hub.ClientCount() != 0 {
		t.Errorf("clients after unsubscribe = %d", hub.ClientCount())
	}
	hub.Broadcast(api.LiveEvent{Type: "xp_granted", UserID: "ana"})
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

// ─── Redelivery ─────────────────────────────────────────────────────────────

type downAggregates struct{}

func (downAggregates) CountMoodEntries(context.Context, string) (int64, error) {
	return 0, io.ErrUnexpectedEOF
}
func (downAggregates) CountHabitLogs(context.Context, string) (int64, error) {
	return 0, io.ErrUnexpectedEOF
}
func (downAggregates) CountCompletedTasks(context.Context, string) (int64, error) {
	return 0, io.ErrUnexpectedEOF
}
func (downAggregates) CountCompletedGoals(context.Context, string) (int64, error) {
	return 0, io.ErrUnexpectedEOF
}
func (downAggregates) CountGratitudeEntries(context.Context, string) (int64, error) {
	return 0, io.ErrUnexpectedEOF
}

type recordingRedeliverer struct{ triggers []gamification.Trigger }

func (r *recordingRedeliverer) Redeliver(t gamification.Trigger, _ error) bool {
	r.triggers = append(r.triggers, t)
	return true
}

func TestAction_SchedulesRedelivery(t *testing.T) {
	rd := &recordingRedeliverer{}
	env := newTestEnv(t, func(d *api.Deps) {
		engine, err := gamification.New(d.Actions.(*sqlite.DB), downAggregates{}, gamification.DefaultSettings(),
			gamification.WithClock(d.Clock), gamification.WithLogger(d.Logger))
		if err != nil {
			t.Fatal(err)
		}
		d.Engine = engine
		d.Redelivery = rd
	}, nil)

	w := env.do(t, http.MethodPost, "/api/users/fay/actions/mood", `{"id":"m-9"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Warnings    []string `json:"warnings"`
		Redelivered bool     `json:"redelivery_scheduled"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Warnings) == 0 || !body.Redelivered {
		t.Errorf("body = %+v", body)
	}
	if len(rd.triggers) != 1 || rd.triggers[0].SourceID != "m-9" || rd.triggers[0].UserID != "fay" {
		t.Errorf("triggers = %+v", rd.triggers)
	}
}

func TestAction_CleanDispatchSkipsRedelivery(t *testing.T) {
	rd := &recordingRedeliverer{}
	env := newTestEnv(t, func(d *api.Deps) { d.Redelivery = rd }, nil)

	if w := env.do(t, http.MethodPost, "/api/users/gus/actions/habit", ""); w.Code != http.StatusCreated {
		t.Fatalf("status = %d", w.Code)
	}
	if len(rd.triggers) != 0 {
		t.Errorf("triggers = %+v", rd.triggers)
	}
}
