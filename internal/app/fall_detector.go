// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/fall_monitor/internal/alert"
	"github.com/relabs-tech/fall_monitor/internal/config"
	"github.com/relabs-tech/fall_monitor/internal/fall"
	"github.com/relabs-tech/fall_monitor/internal/gps"
	"github.com/relabs-tech/fall_monitor/internal/imu"
	"github.com/relabs-tech/fall_monitor/internal/monitor"
	"github.com/relabs-tech/fall_monitor/internal/orientation"
)

// inactiveStatus is the retained last will: a detector that dies without
// a clean shutdown is reported as not monitoring.
var inactiveStatus = []byte(`{"active":false}`)

// AlertRequest is the payload on TOPIC_ALERT_RESPONSE. An empty ID with
// action send_emergency is a manual trigger.
type AlertRequest struct {
	ID     string `json:"id,omitempty"`
	Action string `json:"action"`
}

// detectorService connects MQTT traffic to the monitor and alert manager.
type detectorService struct {
	cfg    *config.Config
	pub    publisher
	mon    *monitor.Monitor
	alerts *alert.Manager
	now    func() time.Time

	mu       sync.Mutex
	timeline imu.Timeline
}

func newDetectorService(cfg *config.Config, pub publisher, sender alert.Sender) (*detectorService, error) {
	settings, err := cfg.FallSettings()
	if err != nil {
		return nil, err
	}
	det, err := fall.New(settings, fall.WithTransitionHook(func(t fall.Transition) {
		slog.Debug("fall state",
			"from", t.From, "to", t.To, "reason", t.Reason,
			"magnitude", t.Magnitude, "elapsed", t.Elapsed)
	}))
	if err != nil {
		return nil, err
	}

	s := &detectorService{
		cfg:    cfg,
		pub:    pub,
		alerts: alert.NewManager(sender, cfg.EmergencyContact, cfg.EmergencyMessage),
		now:    time.Now,
	}
	s.mon = monitor.New(det, s, monitor.WithQueueSize(cfg.MonitorQueueSize))
	s.alerts.OnChange(func(a alert.Alert) {
		if err := publishJSON(s.pub, cfg.TopicAlert, 1, true, a); err != nil {
			slog.Warn("alert publish failed", "id", a.ID, "error", err)
		}
	})
	return s, nil
}

// journal saves every alert change to store.
func (s *detectorService) journal(store *alert.Store) {
	s.alerts.OnChange(func(a alert.Alert) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Save(ctx, a); err != nil {
			slog.Error("alert journal write failed", "id", a.ID, "error", err)
		}
	})
}

// HandleDecision publishes the decision and raises an alert for a fall.
func (s *detectorService) HandleDecision(_ context.Context, ev monitor.Event) {
	if err := publishJSON(s.pub, s.cfg.TopicFallEvent, 1, false, ev); err != nil {
		slog.Warn("fall event publish failed", "error", err)
	}
	if ev.Decision == fall.DecisionFallConfirmed {
		s.alerts.Raise(ev.At, alert.OriginDetector, "fall confirmed")
	}
}

// handleReading maps the reading onto the local timeline and queues it.
func (s *detectorService) handleReading(r imu.Reading) {
	s.mu.Lock()
	r.Time = s.timeline.At(r.Mono, s.now())
	s.mu.Unlock()

	if r.AccelMagnitude() > 0 {
		s.alerts.SetPose(orientation.ComputePoseFromAccel(r.Accel[0], r.Accel[1], r.Accel[2]))
	}
	if err := s.mon.Submit(r); err != nil {
		slog.Debug("reading dropped", "error", err)
	}
}

func (s *detectorService) handleFix(f gps.Fix) {
	s.alerts.SetLocation(f)
}

func (s *detectorService) handleAlertRequest(ctx context.Context, req AlertRequest) error {
	action, err := alert.ParseAction(req.Action)
	if err != nil {
		return err
	}
	if req.ID == "" {
		if action != alert.ActionSendEmergency {
			return fmt.Errorf("%w: manual request must be %s", alert.ErrUnknownAction, alert.ActionSendEmergency)
		}
		_, err = s.alerts.Trigger(ctx, s.now())
		return err
	}
	_, err = s.alerts.Respond(ctx, req.ID, action)
	return err
}

func (s *detectorService) publishStatus() error {
	return publishJSON(s.pub, s.cfg.TopicFallStatus, 1, true, s.mon.Status())
}

// RunFallDetector runs the fall monitor fed from TOPIC_IMU until ctx is
// canceled.
func RunFallDetector(ctx context.Context) error {
	return runFallDetector(ctx, config.Get())
}

func runFallDetector(ctx context.Context, cfg *config.Config) error {
	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDDetector, func(o *mqtt.ClientOptions) {
		o.SetWill(cfg.TopicFallStatus, string(inactiveStatus), 1, true)
	})
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	sender := alert.NewMQTTSender(client, cfg.TopicEmergency, publishTimeout)
	svc, err := newDetectorService(cfg, client, sender)
	if err != nil {
		return err
	}

	if cfg.AlertDBPath != "" {
		store, err := alert.OpenStore(cfg.AlertDBPath)
		if err != nil {
			return err
		}
		defer store.Close()
		svc.journal(store)
		slog.Info("journaling alerts", "path", cfg.AlertDBPath)
	}
	return svc.run(ctx, client)
}

func (s *detectorService) run(ctx context.Context, client mqtt.Client) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	monErr := make(chan error, 1)
	go func() { monErr <- s.mon.Run(ctx) }()

	if err := subscribeJSON(client, s.cfg.TopicIMU, s.handleReading); err != nil {
		return err
	}
	if err := subscribeJSON(client, s.cfg.TopicGPS, s.handleFix); err != nil {
		return err
	}
	// Readings must reach the monitor in order, so callbacks stay ordered
	// and never wait on a token; alert requests publish, so they get their
	// own goroutine.
	if err := subscribeJSON(client, s.cfg.TopicAlertResponse, func(req AlertRequest) {
		go func() {
			if err := s.handleAlertRequest(ctx, req); err != nil {
				slog.Warn("alert request rejected", "id", req.ID, "action", req.Action, "error", err)
			}
		}()
	}); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Duration(s.cfg.StatusInterval) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			<-monErr
			token := client.Publish(s.cfg.TopicFallStatus, 1, true, inactiveStatus)
			token.WaitTimeout(publishTimeout)
			slog.Info("fall detector stopped")
			return nil
		case err := <-monErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("fall monitor: %w", err)
			}
			return nil
		case <-ticker.C:
			if err := s.publishStatus(); err != nil {
				slog.Warn("status publish failed", "error", err)
			}
		}
	}
}
