package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/relabs-tech/fall_monitor/internal/alert"
	"github.com/relabs-tech/fall_monitor/internal/config"
	"github.com/relabs-tech/fall_monitor/internal/gps"
	"github.com/relabs-tech/fall_monitor/internal/monitor"
)

func formatEvent(ev monitor.Event) string {
	return fmt.Sprintf("[FALL]  %s  decision=%s  state=%s  mag=%.2f  source=%s",
		ev.At.Format("15:04:05.000"), ev.Decision, ev.State, ev.Magnitude, ev.Source)
}

func formatAlert(a alert.Alert) string {
	s := fmt.Sprintf("[ALERT] id=%s  state=%s  origin=%s  detected=%s",
		a.ID, a.State, a.Origin, a.DetectedAt.Format("15:04:05"))
	if a.Location != nil {
		s += fmt.Sprintf("  at=%.6f,%.6f", a.Location.Latitude, a.Location.Longitude)
	}
	if a.Error != "" {
		s += "  error=" + a.Error
	}
	return s
}

func formatStatus(st monitor.Status) string {
	if !st.Active {
		return "[STAT]  detector inactive"
	}
	return fmt.Sprintf("[STAT]  state=%s  samples=%d  dropped=%d  invalid=%d  cooldown=%t  |a|=%.2f  |w|=%.2f",
		st.State, st.Samples, st.Dropped, st.Invalid, st.Cooldown, st.LastMagnitude, st.AngularVelocity)
}

func formatFix(f gps.Fix) string {
	return fmt.Sprintf("[GPS ]  time=%s date=%s lat=%.6f lon=%.6f speed=%.1fkn course=%.1f° validity=%s",
		f.Time, f.Date, f.Latitude, f.Longitude, f.SpeedKnots, f.CourseDeg, f.Validity)
}

// lineWriter serializes output from concurrent MQTT callbacks.
type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lineWriter) println(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

// RunConsoleMQTT prints fall events, alerts, status and GPS fixes until
// ctx is canceled.
func RunConsoleMQTT(ctx context.Context) error {
	cfg := config.Get()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	out := &lineWriter{w: os.Stdout}
	if err := subscribeJSON(client, cfg.TopicFallEvent, func(ev monitor.Event) { out.println(formatEvent(ev)) }); err != nil {
		return err
	}
	if err := subscribeJSON(client, cfg.TopicAlert, func(a alert.Alert) { out.println(formatAlert(a)) }); err != nil {
		return err
	}
	if err := subscribeJSON(client, cfg.TopicFallStatus, func(st monitor.Status) { out.println(formatStatus(st)) }); err != nil {
		return err
	}
	if err := subscribeJSON(client, cfg.TopicGPS, func(f gps.Fix) { out.println(formatFix(f)) }); err != nil {
		return err
	}

	<-ctx.Done()
	slog.Info("console: shutting down")
	return nil
}
