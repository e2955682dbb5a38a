package gamification

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/wellspring-app/wellspring/internal/clock"
	"github.com/wellspring-app/wellspring/internal/domain"
	"github.com/wellspring-app/wellspring/internal/infra/metrics"
)

// Notifier turns milestones (level-ups, badges, streak bonuses) into inbox
// notifications, subject to a policy:
//   - at most MaxPerDay notifications per user per local day
//   - nothing between QuietStart and QuietEnd in the configured zone
//
// Suppressed notifications are dropped silently.
type Notifier struct {
	store   domain.NotificationStore
	policy  domain.NotificationPolicy
	catalog domain.Catalog
	loc     *time.Location
	clock   clock.Clock
	log     *log.Logger
}

// NewNotifier creates a notifier. Only the clock and logger options apply.
func NewNotifier(store domain.NotificationStore, policy domain.NotificationPolicy, catalog domain.Catalog, loc *time.Location, opts ...Option) *Notifier {
	o := buildOptions(opts)
	if loc == nil {
		loc = time.UTC
	}
	return &Notifier{
		store:   store,
		policy:  policy,
		catalog: catalog,
		loc:     loc,
		clock:   o.clock,
		log:     o.log.With("component", "notifier"),
	}
}

// Policy returns the current notification policy.
func (n *Notifier) Policy() domain.NotificationPolicy {
	return n.policy
}

// Create stores notif if policy allows it. Returns the notification id,
// or 0 when suppressed.
func (n *Notifier) Create(ctx context.Context, notif domain.Notification) (int64, error) {
	now := n.clock.Now().In(n.loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, n.loc)

	todayCount, err := n.store.CountNotificationsSince(ctx, notif.UserID, dayStart)
	if err != nil {
		return 0, fmt.Errorf("count today: %w", err)
	}
	if todayCount >= n.policy.MaxPerDay {
		metrics.NotificationsCreated.WithLabelValues("suppressed").Inc()
		return 0, nil
	}
	if n.isQuietHour(now) {
		metrics.NotificationsCreated.WithLabelValues("suppressed").Inc()
		return 0, nil
	}

	notif.CreatedAt = now
	notif.Shown = false
	id, err := n.store.InsertNotification(ctx, notif)
	if err != nil {
		return 0, fmt.Errorf("insert notification: %w", err)
	}
	metrics.NotificationsCreated.WithLabelValues("created").Inc()
	return id, nil
}

// Pending returns unshown notifications for the user.
func (n *Notifier) Pending(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	out, err := n.store.PendingNotifications(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Notification{}
	}
	return out, nil
}

// MarkShown marks a notification as shown.
func (n *Notifier) MarkShown(ctx context.Context, userID string, id int64) error {
	return n.store.MarkNotificationShown(ctx, userID, id)
}

// ProgressCommitted implements Observer.
func (n *Notifier) ProgressCommitted(ctx context.Context, before, after domain.ProgressRecord, c domain.ProgressCommit) {
	for _, notif := range n.milestones(before, after, c) {
		if _, err := n.Create(ctx, notif); err != nil {
			n.log.Warn("milestone notification failed", "user", after.UserID, "type", notif.Type, "err", err)
		}
	}
}

func (n *Notifier) milestones(before, after domain.ProgressRecord, c domain.ProgressCommit) []domain.Notification {
	var out []domain.Notification
	for _, b := range c.Badges {
		name := b.ID
		if def, ok := n.catalog.Lookup(b.ID); ok {
			name = def.Name
		}
		out = append(out, domain.Notification{
			UserID: after.UserID, Type: domain.NotifyBadge,
			Title: "Badge unlocked: " + name,
			Body:  "You earned the " + name + " badge.",
		})
	}
	for _, ev := range c.Events {
		if ev.Reason != domain.ReasonStreakBonus {
			continue
		}
		out = append(out, domain.Notification{
			UserID: after.UserID, Type: domain.NotifyStreakBonus,
			Title: ev.Ref + "-day streak",
			Body:  fmt.Sprintf("%s days in a row. +%d XP.", ev.Ref, ev.Amount),
		})
	}
	if after.Level > before.Level {
		out = append(out, domain.Notification{
			UserID: after.UserID, Type: domain.NotifyLevelUp,
			Title: fmt.Sprintf("Level %d reached", after.Level),
			Body:  fmt.Sprintf("You reached level %d with %d XP.", after.Level, after.TotalXP),
		})
	}
	return out
}

// isQuietHour returns true if t falls within quiet hours.
func (n *Notifier) isQuietHour(t time.Time) bool {
	if n.policy.QuietStart == "" || n.policy.QuietEnd == "" {
		return false
	}
	startHour, startMin := parseHHMM(n.policy.QuietStart)
	endHour, endMin := parseHHMM(n.policy.QuietEnd)

	timeMinutes := t.Hour()*60 + t.Minute()
	startMinutes := startHour*60 + startMin
	endMinutes := endHour*60 + endMin

	if startMinutes > endMinutes {
		// Wraps midnight: e.g., 22:00 – 08:00
		return timeMinutes >= startMinutes || timeMinutes < endMinutes
	}
	return timeMinutes >= startMinutes && timeMinutes < endMinutes
}

// parseHHMM parses "HH:MM" into hour and minute.
func parseHHMM(s string) (int, int) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	return h, m
}

// ValidHHMM reports whether s is a well-formed "HH:MM" time of day.
func ValidHHMM(s string) bool {
	_, err := time.Parse("15:04", s)
	return err == nil
}
