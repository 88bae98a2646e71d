// Package monitor owns a fall.Detector and feeds it from a bounded queue
// on a single worker goroutine. Producers never block: when the queue is
// full the sample is dropped and counted.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/fall_monitor/internal/fall"
	"github.com/relabs-tech/fall_monitor/internal/imu"
)

// DefaultQueueSize is used when WithQueueSize is not given.
const DefaultQueueSize = 256

var (
	// ErrAlreadyRunning is returned by Run when another Run is active.
	ErrAlreadyRunning = errors.New("monitor: already running")
	// ErrQueueFull is returned by the Submit methods when a sample was dropped.
	ErrQueueFull = errors.New("monitor: queue full, sample dropped")
)

// Event is a non-trivial decision taken by the detector.
type Event struct {
	Decision  fall.Decision `json:"decision"`
	State     fall.State    `json:"state"`
	At        time.Time     `json:"at"`
	Magnitude float64       `json:"magnitude"`
	Source    string        `json:"source,omitempty"`
}

// DecisionHandler receives every decision other than DecisionNone. It runs
// on the worker goroutine; slow handlers back up the queue.
type DecisionHandler interface {
	HandleDecision(ctx context.Context, ev Event)
}

// HandlerFunc adapts a function to DecisionHandler.
type HandlerFunc func(ctx context.Context, ev Event)

func (f HandlerFunc) HandleDecision(ctx context.Context, ev Event) { f(ctx, ev) }

// Status is a point-in-time snapshot of the monitor.
type Status struct {
	Active          bool          `json:"active"`
	State           fall.State    `json:"state"`
	StartedAt       time.Time     `json:"started_at,omitzero"`
	Samples         uint64        `json:"samples"`
	GyroSamples     uint64        `json:"gyro_samples"`
	Dropped         uint64        `json:"dropped"`
	Invalid         uint64        `json:"invalid"`
	LastDecision    fall.Decision `json:"last_decision"`
	LastDecisionAt  time.Time     `json:"last_decision_at,omitzero"`
	LastAlertAt     time.Time     `json:"last_alert_at,omitzero"`
	Cooldown        bool          `json:"cooldown"`
	AngularVelocity float64       `json:"angular_velocity"`
	LastMagnitude   float64       `json:"last_magnitude"`
}

type sample struct {
	source   string
	at       time.Time
	accel    float64
	gyro     float64
	hasAccel bool
	hasGyro  bool
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithQueueSize sets the capacity of the sample queue.
func WithQueueSize(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.queueSize = n
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.log = l
		}
	}
}

// WithClock overrides the wall clock used for StartedAt.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// Monitor serializes access to a Detector.
type Monitor struct {
	det     *fall.Detector
	handler DecisionHandler
	log     *slog.Logger
	now     func() time.Time

	cooldown  time.Duration
	queueSize int
	queue     chan sample

	active  atomic.Bool
	dropped atomic.Uint64

	mu           sync.Mutex
	status       Status
	lastSampleAt time.Time
}

// New wraps det. The monitor takes ownership: det must not be used
// directly afterwards. handler may be nil.
func New(det *fall.Detector, handler DecisionHandler, opts ...Option) *Monitor {
	m := &Monitor{
		det:       det,
		handler:   handler,
		log:       slog.Default(),
		now:       time.Now,
		cooldown:  det.Settings().AlertCooldown,
		queueSize: DefaultQueueSize,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.queue = make(chan sample, m.queueSize)
	m.status.State = det.State()
	return m
}

// Active reports whether Run is currently processing samples.
func (m *Monitor) Active() bool {
	return m.active.Load()
}

// Submit enqueues an IMU reading. The gyroscope part, if any, is applied
// before the acceleration part.
func (m *Monitor) Submit(r imu.Reading) error {
	return m.enqueue(sample{
		source:   r.Source,
		at:       r.Time,
		accel:    r.AccelMagnitude(),
		hasAccel: true,
		gyro:     r.GyroMagnitude(),
		hasGyro:  r.HasGyro,
	})
}

// SubmitAcceleration enqueues an acceleration magnitude in m/s².
func (m *Monitor) SubmitAcceleration(magnitude float64, at time.Time) error {
	return m.enqueue(sample{at: at, accel: magnitude, hasAccel: true})
}

// SubmitGyroscope enqueues an angular velocity magnitude in rad/s.
func (m *Monitor) SubmitGyroscope(magnitude float64, at time.Time) error {
	return m.enqueue(sample{at: at, gyro: magnitude, hasGyro: true})
}

func (m *Monitor) enqueue(s sample) error {
	select {
	case m.queue <- s:
		return nil
	default:
		m.dropped.Add(1)
		return ErrQueueFull
	}
}

// Status returns a snapshot.
//
// Cooldown is evaluated against the later of the clock and the last
// sample time, so it clears when the stream pauses.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	st := m.status
	ref := m.lastSampleAt
	m.mu.Unlock()
	if now := m.now(); now.After(ref) {
		ref = now
	}
	st.Cooldown = !st.LastAlertAt.IsZero() && ref.Sub(st.LastAlertAt) < m.cooldown
	st.Active = m.active.Load()
	st.Dropped = m.dropped.Load()
	return st
}

// Run processes queued samples until ctx is done. Only one Run may be
// active at a time.
func (m *Monitor) Run(ctx context.Context) error {
	if !m.active.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer m.active.Store(false)

	m.mu.Lock()
	m.status.StartedAt = m.now()
	m.mu.Unlock()
	m.log.Info("fall monitor started", "queue", m.queueSize)

	for {
		select {
		case <-ctx.Done():
			m.log.Info("fall monitor stopped", "reason", context.Cause(ctx))
			return nil
		case s := <-m.queue:
			m.process(ctx, s)
		}
	}
}

func (m *Monitor) process(ctx context.Context, s sample) {
	max := m.det.Settings().MaxMagnitude

	if s.hasGyro {
		if err := imu.Validate(s.gyro, 0); err != nil {
			m.invalid(s, err)
		} else {
			m.det.OnGyroscopeSample(s.gyro)
			m.mu.Lock()
			m.status.GyroSamples++
			m.status.AngularVelocity = s.gyro
			m.mu.Unlock()
		}
	}
	if !s.hasAccel {
		return
	}
	if err := imu.Validate(s.accel, max); err != nil {
		m.invalid(s, err)
		return
	}

	d := m.det.OnAccelerationSample(s.accel, s.at)

	m.mu.Lock()
	m.status.Samples++
	m.status.State = m.det.State()
	m.status.LastMagnitude = s.accel
	m.lastSampleAt = s.at
	if t, ok := m.det.LastAlert(); ok {
		m.status.LastAlertAt = t
	}
	if d != fall.DecisionNone {
		m.status.LastDecision = d
		m.status.LastDecisionAt = s.at
	}
	m.mu.Unlock()

	if d == fall.DecisionNone {
		return
	}
	ev := Event{Decision: d, State: m.det.State(), At: s.at, Magnitude: s.accel, Source: s.source}
	m.log.Info("fall decision", "decision", d, "at", s.at, "magnitude", s.accel, "source", s.source)
	if m.handler != nil {
		m.handler.HandleDecision(ctx, ev)
	}
}

func (m *Monitor) invalid(s sample, err error) {
	m.mu.Lock()
	m.status.Invalid++
	m.mu.Unlock()
	m.log.Debug("sample rejected", "source", s.source, "error", err)
}
