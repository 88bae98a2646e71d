// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"log/slog"

	"github.com/relabs-tech/fall_monitor/internal/imu"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"
)

// MPU9250Options selects the SPI wiring and measurement ranges.
type MPU9250Options struct {
	Name       string // for logging and the Reading.Source field
	SPIDevice  string
	CSPin      string
	AccelRange byte
	GyroRange  byte
	Calibrate  bool // run the on-chip bias calibration at startup
}

type imuSource struct {
	name  string
	imu   *mpu9250.MPU9250
	scale Scale
	cal   Calibration
}

// NewMPU9250Source initializes an MPU9250 over SPI and returns an
// imu.Source producing calibrated readings in m/s² and rad/s.
func NewMPU9250Source(opts MPU9250Options, cal Calibration) (imu.Source, error) {
	name := opts.Name
	scale := Scale{AccelRange: opts.AccelRange, GyroRange: opts.GyroRange}
	if err := scale.validate(); err != nil {
		return nil, fmt.Errorf("%s IMU: %w", name, err)
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%s IMU: periph host init: %w", name, err)
	}

	cs := gpioreg.ByName(opts.CSPin)
	if cs == nil {
		return nil, fmt.Errorf("%s IMU: CS pin %q not found", name, opts.CSPin)
	}

	tr, err := mpu9250.NewSpiTransport(opts.SPIDevice, cs)
	if err != nil {
		return nil, fmt.Errorf("%s IMU: SPI transport (%s): %w", name, opts.SPIDevice, err)
	}

	dev, err := mpu9250.New(*tr)
	if err != nil {
		return nil, fmt.Errorf("%s IMU: device creation: %w", name, err)
	}

	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("%s IMU: initialization: %w", name, err)
	}

	if err := dev.SetAccelRange(opts.AccelRange); err != nil {
		return nil, fmt.Errorf("%s IMU: set accel range: %w", name, err)
	}
	slog.Info("sensors: accelerometer range set", "imu", name, "range", opts.AccelRange,
		"g", []int{2, 4, 8, 16}[opts.AccelRange])

	if err := dev.SetGyroRange(opts.GyroRange); err != nil {
		return nil, fmt.Errorf("%s IMU: set gyro range: %w", name, err)
	}
	slog.Info("sensors: gyroscope range set", "imu", name, "range", opts.GyroRange,
		"dps", []int{250, 500, 1000, 2000}[opts.GyroRange])

	if opts.Calibrate {
		// The device must be still while this runs; a failure is not fatal.
		if err := dev.Calibrate(); err != nil {
			slog.Warn("sensors: IMU calibration failed", "imu", name, "err", err)
		} else {
			slog.Info("sensors: IMU calibration complete", "imu", name)
		}
	}

	return &imuSource{name: name, imu: dev, scale: scale, cal: cal}, nil
}

// NextRaw reads accelerometer and gyroscope counts.
func (s *imuSource) NextRaw() (imu.IMURaw, error) {
	ax, err := s.imu.GetAccelerationX()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU accel X: %w", s.name, err)
	}
	ay, err := s.imu.GetAccelerationY()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU accel Y: %w", s.name, err)
	}
	az, err := s.imu.GetAccelerationZ()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU accel Z: %w", s.name, err)
	}

	gx, err := s.imu.GetRotationX()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU gyro X: %w", s.name, err)
	}
	gy, err := s.imu.GetRotationY()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU gyro Y: %w", s.name, err)
	}
	gz, err := s.imu.GetRotationZ()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU gyro Z: %w", s.name, err)
	}

	return imu.IMURaw{
		Source: s.name,
		Ax:     ax,
		Ay:     ay,
		Az:     az,
		Gx:     gx,
		Gy:     gy,
		Gz:     gz,
	}, nil
}

// Next reads one sample and converts it to calibrated physical units.
// Timestamps are left for the caller to stamp.
func (s *imuSource) Next() (imu.Reading, error) {
	raw, err := s.NextRaw()
	if err != nil {
		return imu.Reading{}, err
	}
	return s.cal.Apply(s.scale.Apply(raw)), nil
}
