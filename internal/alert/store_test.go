package alert

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/fall_monitor/internal/gps"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "alerts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreSaveAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := Alert{
		ID: "a1", Origin: OriginDetector, State: StatePending,
		DetectedAt: detected, UpdatedAt: detected,
		Location: &gps.Fix{Latitude: 48.1173, Longitude: 11.5167, Validity: "A"},
	}
	second := Alert{
		ID: "a2", Origin: OriginManual, State: StateSent,
		DetectedAt: detected.Add(time.Hour), UpdatedAt: detected.Add(time.Hour),
	}
	require.NoError(t, s.Save(ctx, first))
	require.NoError(t, s.Save(ctx, second))

	first.State = StateDismissed
	first.UpdatedAt = detected.Add(time.Minute)
	require.NoError(t, s.Save(ctx, first))

	got, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	if diff := cmp.Diff([]Alert{second, first}, got); diff != "" {
		t.Errorf("Recent() mismatch (-want +got):\n%s", diff)
	}

	got, err = s.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a2", got[0].ID)

	counts, err := s.CountByState(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[State]int{StateDismissed: 1, StateSent: 1}, counts)
}

func TestStoreJournalsManager(t *testing.T) {
	s := openTestStore(t)
	m := newManager(&recorder{})
	m.OnChange(func(a Alert) { require.NoError(t, s.Save(context.Background(), a)) })

	a, _ := m.Raise(detected, OriginDetector, "fall")
	_, err := m.Respond(context.Background(), a.ID, ActionSendEmergency)
	require.NoError(t, err)

	got, err := s.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, StateSent, got[0].State)
}

func TestStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.db")
	s, err := OpenStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), Alert{ID: "a1", Origin: OriginDetector, State: StateSent, DetectedAt: detected, UpdatedAt: detected}))
	require.NoError(t, s.Close())

	s, err = OpenStore(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].ID)
}
