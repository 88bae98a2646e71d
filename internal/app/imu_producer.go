package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/relabs-tech/fall_monitor/internal/config"
	"github.com/relabs-tech/fall_monitor/internal/imu"
	"github.com/relabs-tech/fall_monitor/internal/sensors"
	"github.com/relabs-tech/fall_monitor/internal/sim"
)

// maxConsecutiveReadErrors stops the producer when the sensor keeps failing.
const maxConsecutiveReadErrors = 20

// newIMUSource builds the source selected by IMU_SOURCE.
func newIMUSource(cfg *config.Config) (imu.Source, error) {
	switch cfg.IMUSource {
	case "sim":
		script, err := sim.LoadScript(cfg.SimScenarioFile)
		if err != nil {
			return nil, err
		}
		slog.Info("using simulated IMU", "scenario", script.Name, "duration", script.Duration())
		return sim.NewSource(script, true)
	case "mpu9250":
		cal, err := sensors.LoadCalibration(cfg.IMUCalibrationFile)
		if err != nil {
			return nil, err
		}
		return sensors.NewMPU9250Source(sensors.MPU9250Options{
			Name:       "mpu9250",
			SPIDevice:  cfg.IMUSPIDevice,
			CSPin:      cfg.IMUCSPin,
			AccelRange: cfg.IMUAccelRange,
			GyroRange:  cfg.IMUGyroRange,
			Calibrate:  true,
		}, cal)
	default:
		return nil, fmt.Errorf("unknown IMU_SOURCE %q", cfg.IMUSource)
	}
}

// imuProducer stamps readings with the local clock and publishes them.
type imuProducer struct {
	src   imu.Source
	pub   publisher
	topic string
	start time.Time
}

// step reads and publishes one sample taken at t.
func (p *imuProducer) step(t time.Time) (imu.Reading, error) {
	r, err := p.src.Next()
	if err != nil {
		return imu.Reading{}, err
	}
	r.Time = t
	r.Mono = t.Sub(p.start)
	if err := publishJSON(p.pub, p.topic, 0, false, r); err != nil {
		return r, err
	}
	return r, nil
}

// RunIMUProducer samples the configured IMU every IMU_SAMPLE_INTERVAL ms
// and publishes imu.Reading JSON until ctx is canceled.
func RunIMUProducer(ctx context.Context) error {
	cfg := config.Get()

	src, err := newIMUSource(cfg)
	if err != nil {
		return fmt.Errorf("IMU source: %w", err)
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDProducer)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	interval := time.Duration(cfg.IMUSampleInterval) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p := &imuProducer{src: src, pub: client, topic: cfg.TopicIMU, start: time.Now()}
	slog.Info("publishing IMU readings", "topic", cfg.TopicIMU, "interval", interval, "source", cfg.IMUSource)

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-ticker.C:
			r, err := p.step(t)
			switch {
			case errors.Is(err, sim.ErrEndOfScenario):
				slog.Info("scenario finished")
				return nil
			case err != nil:
				failures++
				slog.Warn("IMU sample failed", "error", err, "consecutive", failures)
				if failures >= maxConsecutiveReadErrors {
					return fmt.Errorf("IMU keeps failing: %w", err)
				}
				continue
			}
			failures = 0
			slog.Debug("IMU reading", "accel", r.AccelMagnitude(), "gyro", r.GyroMagnitude())
		}
	}
}
