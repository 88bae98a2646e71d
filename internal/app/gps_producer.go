package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/fall_monitor/internal/config"
	"github.com/relabs-tech/fall_monitor/internal/gps"
)

// RunGPSProducer opens the GPS serial port, parses NMEA sentences, and
// publishes each RMC fix as retained JSON on TOPIC_GPS.
func RunGPSProducer(ctx context.Context) error {
	cfg := config.Get()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDGPS)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	serialOpts := serial.OpenOptions{
		PortName:              cfg.GPSSerialPort,
		BaudRate:              uint(cfg.GPSBaudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	port, err := serial.Open(serialOpts)
	if err != nil {
		return fmt.Errorf("open GPS port %s: %w", cfg.GPSSerialPort, err)
	}
	slog.Info("GPS serial port opened", "port", serialOpts.PortName, "baud", serialOpts.BaudRate)

	// Closing the port unblocks the reader on shutdown.
	go func() {
		<-ctx.Done()
		port.Close()
	}()

	err = pumpNMEA(port, client, cfg.TopicGPS)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// pumpNMEA reads NMEA lines from r until EOF and publishes RMC fixes.
// Malformed sentences are skipped.
func pumpNMEA(r io.Reader, pub publisher, topic string) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fix, ok, err := gps.ParseRMC(scanner.Text())
		if err != nil {
			slog.Debug("NMEA parse error", "error", err)
			continue
		}
		if !ok {
			continue
		}
		if err := publishJSON(pub, topic, 0, true, fix); err != nil {
			slog.Warn("GPS publish failed", "error", err)
			continue
		}
		slog.Debug("published GPS fix", "lat", fix.Latitude, "lon", fix.Longitude, "valid", fix.Valid())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("GPS read: %w", err)
	}
	return nil
}
