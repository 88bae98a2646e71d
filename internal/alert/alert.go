// Package alert tracks fall alerts from detection until the wearer either
// dismisses them or asks for help, and delivers emergency messages.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/fall_monitor/internal/gps"
	"github.com/relabs-tech/fall_monitor/internal/orientation"
)

var (
	ErrUnknownAlert  = errors.New("alert: unknown alert")
	ErrAlertClosed   = errors.New("alert: alert already resolved")
	ErrUnknownAction = errors.New("alert: unknown action")
)

// Origin says who raised the alert.
type Origin string

const (
	OriginDetector Origin = "detector"
	OriginManual   Origin = "manual"
)

// State is the lifecycle of an alert. Only pending alerts accept a response.
type State string

const (
	StatePending   State = "pending"
	StateSent      State = "sent"
	StateDismissed State = "dismissed"
	StateFailed    State = "failed"
)

// Action is the wearer's answer to a pending alert.
type Action string

const (
	ActionSendEmergency Action = "send_emergency"
	ActionImOK          Action = "im_ok"
)

// ParseAction validates s.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionSendEmergency, ActionImOK:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// Alert is one detected (or manually triggered) emergency.
type Alert struct {
	ID         string            `json:"id"`
	Origin     Origin            `json:"origin"`
	State      State             `json:"state"`
	Reason     string            `json:"reason,omitempty"`
	DetectedAt time.Time         `json:"detected_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	Location   *gps.Fix          `json:"location,omitempty"`
	Pose       *orientation.Pose `json:"pose,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Closed reports whether the alert no longer accepts responses. A failed
// delivery stays open so the wearer can send again or dismiss it.
func (a Alert) Closed() bool {
	return a.State == StateSent || a.State == StateDismissed
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides time.Now for UpdatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithHistory bounds how many alerts are remembered. Defaults to 50.
func WithHistory(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.history = n
		}
	}
}

// WithIDGenerator replaces uuid-based IDs, for tests.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) { m.newID = fn }
}

// Manager owns the alert list. It is safe for concurrent use.
type Manager struct {
	sender  Sender
	contact string
	message string

	now     func() time.Time
	newID   func() string
	log     *slog.Logger
	history int

	mu        sync.Mutex
	alerts    map[string]*Alert
	order     []string // oldest first
	location  *gps.Fix
	pose      *orientation.Pose
	listeners []func(Alert)
}

// NewManager returns a Manager that delivers emergencies to contact via sender.
func NewManager(sender Sender, contact, message string, opts ...Option) *Manager {
	m := &Manager{
		sender:  sender,
		contact: contact,
		message: message,
		now:     time.Now,
		newID:   uuid.NewString,
		log:     slog.Default(),
		history: 50,
		alerts:  make(map[string]*Alert),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnChange registers fn to be called after every alert change, outside
// the manager's lock.
func (m *Manager) OnChange(fn func(Alert)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// SetLocation records the latest GPS fix. Fixes without a position are ignored.
func (m *Manager) SetLocation(fix gps.Fix) {
	if !fix.Valid() {
		return
	}
	m.mu.Lock()
	m.location = &fix
	m.mu.Unlock()
}

// SetPose records the latest device pose.
func (m *Manager) SetPose(p orientation.Pose) {
	m.mu.Lock()
	m.pose = &p
	m.mu.Unlock()
}

// Raise creates a pending alert detected at at. While another alert is
// pending it is returned instead and no new alert is created.
func (m *Manager) Raise(at time.Time, origin Origin, reason string) (Alert, bool) {
	m.mu.Lock()
	if a := m.pendingLocked(); a != nil {
		cp := *a
		m.mu.Unlock()
		return cp, false
	}
	a := &Alert{
		ID:         m.newID(),
		Origin:     origin,
		State:      StatePending,
		Reason:     reason,
		DetectedAt: at,
		UpdatedAt:  m.now(),
		Location:   m.location,
		Pose:       m.pose,
	}
	m.storeLocked(a)
	cp := *a
	listeners := m.listeners
	m.mu.Unlock()

	m.log.Warn("fall alert raised", "id", cp.ID, "origin", cp.Origin, "reason", reason)
	notify(listeners, cp)
	return cp, true
}

// Respond applies the wearer's action to an open alert. Sending is never
// retried automatically: a failed delivery leaves the alert in StateFailed
// and returns the sender's error, and only another response sends again.
func (m *Manager) Respond(ctx context.Context, id string, action Action) (Alert, error) {
	if _, err := ParseAction(string(action)); err != nil {
		return Alert{}, err
	}

	m.mu.Lock()
	a, ok := m.alerts[id]
	if !ok {
		m.mu.Unlock()
		return Alert{}, fmt.Errorf("%w: %s", ErrUnknownAlert, id)
	}
	if a.Closed() {
		cp := *a
		m.mu.Unlock()
		return cp, fmt.Errorf("%w: %s is %s", ErrAlertClosed, id, cp.State)
	}

	var sendErr error
	switch action {
	case ActionImOK:
		a.State = StateDismissed
	case ActionSendEmergency:
		// Held under the lock so a second response cannot send twice.
		sendErr = m.sender.Send(ctx, m.emergencyLocked(a))
		if sendErr != nil {
			a.State = StateFailed
			a.Error = sendErr.Error()
		} else {
			a.State = StateSent
			a.Error = ""
		}
	}
	a.UpdatedAt = m.now()
	cp := *a
	listeners := m.listeners
	m.mu.Unlock()

	if sendErr != nil {
		m.log.Error("emergency delivery failed", "id", id, "error", sendErr)
	} else {
		m.log.Info("alert resolved", "id", id, "state", cp.State)
	}
	notify(listeners, cp)
	if sendErr != nil {
		return cp, fmt.Errorf("alert: send emergency: %w", sendErr)
	}
	return cp, nil
}

// Trigger raises a manual alert and sends the emergency message at once,
// without waiting for a response. A pending alert is escalated instead.
func (m *Manager) Trigger(ctx context.Context, at time.Time) (Alert, error) {
	a, _ := m.Raise(at, OriginManual, "manual trigger")
	return m.Respond(ctx, a.ID, ActionSendEmergency)
}

// Get returns the alert with the given ID.
func (m *Manager) Get(id string) (Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return Alert{}, fmt.Errorf("%w: %s", ErrUnknownAlert, id)
	}
	return *a, nil
}

// Pending returns the alert waiting for a response, if any. Failed alerts
// count as waiting.
func (m *Manager) Pending() (Alert, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a := m.pendingLocked(); a != nil {
		return *a, true
	}
	return Alert{}, false
}

// Latest returns the most recently raised alert.
func (m *Manager) Latest() (Alert, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.order) == 0 {
		return Alert{}, false
	}
	return *m.alerts[m.order[len(m.order)-1]], true
}

// List returns remembered alerts, newest first.
func (m *Manager) List() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Alert, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		out = append(out, *m.alerts[m.order[i]])
	}
	return out
}

func (m *Manager) pendingLocked() *Alert {
	for i := len(m.order) - 1; i >= 0; i-- {
		if a := m.alerts[m.order[i]]; !a.Closed() {
			return a
		}
	}
	return nil
}

func (m *Manager) storeLocked(a *Alert) {
	m.alerts[a.ID] = a
	m.order = append(m.order, a.ID)
	for len(m.order) > m.history {
		delete(m.alerts, m.order[0])
		m.order = m.order[1:]
	}
}

func (m *Manager) emergencyLocked(a *Alert) Emergency {
	e := Emergency{
		AlertID: a.ID,
		To:      m.contact,
		Message: m.message,
		Time:    a.DetectedAt,
	}
	if a.Location != nil {
		e.Lat = a.Location.Latitude
		e.Lon = a.Location.Longitude
		e.HasLocation = true
		e.Message += fmt.Sprintf("\nLocation: %.6f,%.6f", e.Lat, e.Lon)
	}
	return e
}

func notify(listeners []func(Alert), a Alert) {
	for _, fn := range listeners {
		fn(a)
	}
}
