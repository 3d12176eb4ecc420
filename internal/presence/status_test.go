package presence

import (
	"testing"
	"time"

	"github.com/labforge/lims-admin/internal/models"
)

func TestDerive_Boundaries(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	at := func(ago time.Duration) *time.Time {
		ts := now.Add(-ago)
		return &ts
	}

	cases := []struct {
		name string
		last *time.Time
		want string
	}{
		{"never", nil, models.SessionStatusOffline},
		{"just now", at(0), models.SessionStatusOnline},
		{"119s", at(119 * time.Second), models.SessionStatusOnline},
		{"120s", at(120 * time.Second), models.SessionStatusAway},
		{"599s", at(599 * time.Second), models.SessionStatusAway},
		{"600s", at(600 * time.Second), models.SessionStatusOffline},
		{"one day", at(24 * time.Hour), models.SessionStatusOffline},
	}
	for _, tc := range cases {
		if got := Derive(tc.last, now); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

func TestPlan_SkipsUnchangedRows(t *testing.T) {
	now := time.Now()
	recent := now.Add(-30 * time.Second)
	stale := now.Add(-5 * time.Minute)

	plan := Plan([]Snapshot{
		{UserID: 1, Status: models.SessionStatusOnline, LastHeartbeatAt: &recent},
		{UserID: 2, Status: models.SessionStatusOnline, LastHeartbeatAt: &stale},
		{UserID: 3, Status: models.SessionStatusOffline, LastHeartbeatAt: nil},
		{UserID: 4, Status: models.SessionStatusAway, LastHeartbeatAt: nil},
	}, now)

	if len(plan) != 2 {
		t.Fatalf("expected 2 transitions, got %d: %+v", len(plan), plan)
	}
	if plan[0].UserID != 2 || plan[0].To != models.SessionStatusAway {
		t.Fatalf("unexpected first transition: %+v", plan[0])
	}
	if plan[1].UserID != 4 || plan[1].From != models.SessionStatusAway || plan[1].To != models.SessionStatusOffline {
		t.Fatalf("unexpected second transition: %+v", plan[1])
	}
}
