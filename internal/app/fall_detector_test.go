package app

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/fall_monitor/internal/alert"
	"github.com/relabs-tech/fall_monitor/internal/config"
	"github.com/relabs-tech/fall_monitor/internal/fall"
	"github.com/relabs-tech/fall_monitor/internal/gps"
	"github.com/relabs-tech/fall_monitor/internal/imu"
	"github.com/relabs-tech/fall_monitor/internal/monitor"
)

var local = time.Date(2026, 5, 1, 7, 0, 0, 0, time.UTC)

type sentLog struct {
	mu   sync.Mutex
	sent []alert.Emergency
}

func (s *sentLog) Send(_ context.Context, e alert.Emergency) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, e)
	return nil
}

func (s *sentLog) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func newTestDetector(t *testing.T) (*detectorService, *fakePublisher, *sentLog) {
	t.Helper()
	cfg := config.Default()
	cfg.EmergencyContact = "+15550100"
	pub := &fakePublisher{}
	sender := &sentLog{}
	svc, err := newDetectorService(cfg, pub, sender)
	require.NoError(t, err)
	svc.now = func() time.Time { return local }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.mon.Run(ctx) }()
	require.Eventually(t, svc.mon.Active, time.Second, 5*time.Millisecond)
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return svc, pub, sender
}

func reading(monoMS int, mag float64) imu.Reading {
	return imu.Reading{
		Source: "test",
		Mono:   time.Duration(monoMS) * time.Millisecond,
		Accel:  [3]float64{0, 0, mag},
	}
}

// feedFall delivers a free fall, an impact and two seconds of stillness,
// all arriving at the same local instant.
func feedFall(s *detectorService) {
	s.handleReading(reading(0, 9.8))
	s.handleReading(reading(100, 1.0))
	s.handleReading(reading(450, 30))
	for ms := 500; ms <= 2500; ms += 100 {
		s.handleReading(reading(ms, 9.8))
	}
}

func TestDetectorServiceRaisesAlert(t *testing.T) {
	svc, pub, _ := newTestDetector(t)
	svc.handleFix(gps.Fix{Latitude: 48.1173, Longitude: 11.5167, Validity: "A"})
	feedFall(svc)

	require.Eventually(t, func() bool { return len(pub.on(svc.cfg.TopicAlert)) == 1 }, time.Second, 5*time.Millisecond)

	var ev monitor.Event
	pub.decodeLast(t, svc.cfg.TopicFallEvent, &ev)
	assert.Equal(t, fall.DecisionFallConfirmed, ev.Decision)
	assert.True(t, ev.At.Equal(local.Add(2500*time.Millisecond)), "decision timed on producer clock: %s", ev.At)

	var a alert.Alert
	pub.decodeLast(t, svc.cfg.TopicAlert, &a)
	assert.Equal(t, alert.StatePending, a.State)
	assert.Equal(t, alert.OriginDetector, a.Origin)
	require.NotNil(t, a.Location)
	require.NotNil(t, a.Pose)
	assert.True(t, pub.on(svc.cfg.TopicAlert)[0].retained)
}

func TestDetectorServiceAlertRequests(t *testing.T) {
	svc, pub, sender := newTestDetector(t)
	feedFall(svc)
	require.Eventually(t, func() bool { _, ok := svc.alerts.Pending(); return ok }, time.Second, 5*time.Millisecond)
	pending, _ := svc.alerts.Pending()

	ctx := context.Background()
	require.NoError(t, svc.handleAlertRequest(ctx, AlertRequest{ID: pending.ID, Action: "im_ok"}))
	var a alert.Alert
	pub.decodeLast(t, svc.cfg.TopicAlert, &a)
	assert.Equal(t, alert.StateDismissed, a.State)
	assert.Zero(t, sender.count())

	assert.ErrorIs(t, svc.handleAlertRequest(ctx, AlertRequest{ID: pending.ID, Action: "im_ok"}), alert.ErrAlertClosed)
	assert.ErrorIs(t, svc.handleAlertRequest(ctx, AlertRequest{Action: "dance"}), alert.ErrUnknownAction)
	assert.ErrorIs(t, svc.handleAlertRequest(ctx, AlertRequest{Action: "im_ok"}), alert.ErrUnknownAction)

	// Manual trigger.
	require.NoError(t, svc.handleAlertRequest(ctx, AlertRequest{Action: "send_emergency"}))
	assert.Equal(t, 1, sender.count())
	pub.decodeLast(t, svc.cfg.TopicAlert, &a)
	assert.Equal(t, alert.OriginManual, a.Origin)
	assert.Equal(t, alert.StateSent, a.State)
}

func TestDetectorServiceStatus(t *testing.T) {
	svc, pub, _ := newTestDetector(t)
	svc.handleReading(reading(0, 9.8))
	require.Eventually(t, func() bool { return svc.mon.Status().Samples == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, svc.publishStatus())
	msgs := pub.on(svc.cfg.TopicFallStatus)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].retained)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].payload, &raw))
	assert.Equal(t, true, raw["active"])
	assert.Equal(t, "normal", raw["state"])

	var st monitor.Status
	require.NoError(t, json.Unmarshal(inactiveStatus, &st))
	assert.False(t, st.Active)
}

func TestDetectorServiceJournal(t *testing.T) {
	svc, _, _ := newTestDetector(t)
	store, err := alert.OpenStore(filepath.Join(t.TempDir(), "alerts.db"))
	require.NoError(t, err)
	defer store.Close()
	svc.journal(store)

	require.NoError(t, svc.handleAlertRequest(context.Background(), AlertRequest{Action: "send_emergency"}))

	got, err := store.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, alert.StateSent, got[0].State)
	assert.Equal(t, alert.OriginManual, got[0].Origin)
}
