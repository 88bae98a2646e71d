package app

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/fall_monitor/internal/alert"
	"github.com/relabs-tech/fall_monitor/internal/config"
	"github.com/relabs-tech/fall_monitor/internal/fall"
	"github.com/relabs-tech/fall_monitor/internal/monitor"
)

const (
	displayWidth  = 128
	displayHeight = 64
	lineHeight    = 13
)

// displayData holds the latest data for display.
type displayData struct {
	mu         sync.RWMutex
	status     monitor.Status
	haveStatus bool
	alert      alert.Alert
	haveAlert  bool
}

func (d *displayData) setStatus(st monitor.Status) {
	d.mu.Lock()
	d.status, d.haveStatus = st, true
	d.mu.Unlock()
}

func (d *displayData) setAlert(a alert.Alert) {
	d.mu.Lock()
	d.alert, d.haveAlert = a, true
	d.mu.Unlock()
}

// lines returns the four text lines shown on the 128x64 panel. An alert
// still waiting for a response takes over the whole screen.
func (d *displayData) lines() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.haveAlert && d.alert.State == alert.StatePending {
		return []string{"!! FALL !!", "Are you OK?", "Respond in app", d.alert.DetectedAt.Format("15:04:05")}
	}
	if d.haveAlert && d.alert.State == alert.StateFailed {
		return []string{"!! FALL !!", "SEND FAILED", "Retry in app", truncate(d.alert.Error, 18)}
	}
	if !d.haveStatus {
		return []string{"Fall Monitor", "Waiting..."}
	}
	if !d.status.Active {
		return []string{"Fall Monitor", "INACTIVE"}
	}

	last := "Last: -"
	if d.status.LastDecision != fall.DecisionNone {
		last = fmt.Sprintf("Last: %s", shortDecision(d.status.LastDecision))
	}
	third := fmt.Sprintf("|a| %.1f m/s2", d.status.LastMagnitude)
	if d.status.Cooldown {
		third = "Cooldown"
	}
	out := []string{"Monitoring", shortState(d.status.State), third, last}
	if d.haveAlert && d.alert.State == alert.StateSent {
		out[3] = "Help requested"
	}
	return out
}

func shortState(s fall.State) string {
	switch s {
	case fall.StateFreeFall:
		return "FREE FALL"
	case fall.StateImpact:
		return "IMPACT"
	case fall.StateStationaryCheck:
		return "CHECKING"
	default:
		return "OK"
	}
}

func shortDecision(d fall.Decision) string {
	switch d {
	case fall.DecisionFallConfirmed:
		return "FALL"
	case fall.DecisionReset:
		return "recovered"
	default:
		return "-"
	}
}

// renderLines draws up to four lines with the 7x13 font.
func renderLines(lines []string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, displayWidth, displayHeight))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		if i >= displayHeight/lineHeight {
			break
		}
		drawer.Dot = fixed.P(0, lineHeight*(i+1))
		drawer.DrawString(line)
	}
	return img
}

// RunDisplay shows the detector state on an SSD1306 OLED until ctx is
// canceled.
func RunDisplay(ctx context.Context) error {
	cfg := config.Get()

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}
	bus, err := i2creg.Open("")
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	defer dev.Halt()

	data := &displayData{}
	draw := func() {
		img := renderLines(data.lines())
		if err := dev.Draw(dev.Bounds(), img, image.Point{}); err != nil {
			slog.Warn("display update failed", "error", err)
		}
	}
	draw()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDDisplay)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	if err := subscribeJSON(client, cfg.TopicFallStatus, data.setStatus); err != nil {
		return err
	}
	if err := subscribeJSON(client, cfg.TopicAlert, data.setAlert); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()
	slog.Info("display: starting update loop")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			draw()
		}
	}
}

// truncate cuts s to at most n runes, the width of one panel line.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
