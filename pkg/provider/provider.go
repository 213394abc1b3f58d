// Package provider implements the heart rate monitor connection lifecycle:
// scanning, connecting, notification streaming, bounded reconnection and
// multi-consumer sample fan-out.
package provider

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/synheart-ai/synheart-wear-go/internal/device"
	"github.com/synheart-ai/synheart-wear-go/internal/scanner"
	"github.com/synheart-ai/synheart-wear-go/internal/stream"
	"github.com/synheart-ai/synheart-wear-go/pkg/hrm"
	"github.com/synheart-ai/synheart-wear-go/pkg/wear"
)

const (
	batteryServiceUUID = "180f"
	batteryLevelUUID   = "2a19"

	// DefaultConnectTimeout bounds the whole dial-discover-subscribe
	// sequence. A peripheral that cannot complete it within this window is
	// reported as not found.
	DefaultConnectTimeout = 15 * time.Second

	// DefaultStreamBuffer sizes each consumer's sample channel. A consumer
	// that falls behind accumulates a backlog; the producer never waits.
	DefaultStreamBuffer = 64
)

// DefaultReconnectDelays is the backoff schedule applied after an unexpected
// disconnect. Once all delays are consumed the provider settles in idle and
// a fresh Connect is required.
var DefaultReconnectDelays = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
}

// ErrBusy is returned when Scan or Connect is called while another scan or
// connection is already in progress. It is a caller sequencing error, not a
// transport outcome, so it carries no device error kind.
var ErrBusy = errors.New("another operation is already in progress")

// ConnectOptions carries the optional parameters of Connect.
type ConnectOptions struct {
	// SessionID is attached verbatim to every emitted sample.
	SessionID string

	// ReadBattery enables a best-effort battery level read after the
	// subscription is established. Failure to read it never fails the
	// connection.
	ReadBattery bool
}

// session is the mutable state of one logical connection. It survives
// reconnect cycles; only an explicit Disconnect or an exhausted retry budget
// retires it.
type session struct {
	deviceID    string
	deviceName  string
	sessionID   string
	readBattery bool

	// attempts counts reconnect attempts consumed so far. It is never
	// reset by a successful reconnect; only a fresh Connect starts at 0.
	attempts int

	stop     chan struct{}
	stopOnce sync.Once

	link    device.Link
	hrChar  device.Characteristic
	battery int
}

func (s *session) cancel() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Provider drives a single heart rate peripheral and fans its samples out to
// any number of consumers.
type Provider struct {
	transport device.Transport
	scanner   *scanner.Scanner
	logger    *logrus.Logger
	broker    *stream.Broker[wear.HeartRateSample]

	mu         sync.Mutex
	state      State
	session    *session
	lastSample *wear.HeartRateSample

	connectTimeout  time.Duration
	reconnectDelays []time.Duration
}

// New creates a Provider on the given transport.
func New(transport device.Transport, logger *logrus.Logger) *Provider {
	if logger == nil {
		logger = logrus.New()
	}
	return &Provider{
		transport:       transport,
		scanner:         scanner.NewScanner(transport, logger),
		logger:          logger,
		broker:          stream.NewBroker[wear.HeartRateSample](DefaultStreamBuffer),
		state:           StateIdle,
		connectTimeout:  DefaultConnectTimeout,
		reconnectDelays: append([]time.Duration(nil), DefaultReconnectDelays...),
	}
}

// State returns the current lifecycle state.
func (p *Provider) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// IsConnected reports whether a live, subscribed connection exists.
func (p *Provider) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == StateConnected && p.session != nil && p.session.hrChar != nil
}

// Scan discovers nearby heart rate peripherals. It rejects with ErrBusy when
// a scan or connection is already in progress.
func (p *Provider) Scan(ctx context.Context, timeout time.Duration, namePrefix string) ([]wear.ScannedDevice, error) {
	p.mu.Lock()
	if p.state != StateIdle {
		state := p.state
		p.mu.Unlock()
		p.logger.WithField("state", state).Warn("Scan rejected, provider is busy")
		return nil, ErrBusy
	}
	p.state = StateScanning
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if p.state == StateScanning {
			p.state = StateIdle
		}
		p.mu.Unlock()
	}()

	return p.scanner.Scan(ctx, &scanner.ScanOptions{
		Timeout:         timeout,
		NamePrefix:      namePrefix,
		ServiceUUIDs:    []string{hrm.ServiceUUID},
		DuplicateFilter: true,
	})
}

// Connect dials the peripheral, discovers the heart rate service and enables
// measurement notifications. The whole sequence is bounded by the connect
// timeout; a peripheral that does not complete it in time is reported as not
// found. Rejects with ErrBusy when the provider is not idle.
func (p *Provider) Connect(ctx context.Context, deviceID string, opts ConnectOptions) error {
	p.mu.Lock()
	if p.state != StateIdle {
		state := p.state
		p.mu.Unlock()
		p.logger.WithField("state", state).Warn("Connect rejected, provider is busy")
		return ErrBusy
	}
	sess := &session{
		deviceID:    deviceID,
		sessionID:   opts.SessionID,
		readBattery: opts.ReadBattery,
		stop:        make(chan struct{}),
		battery:     -1,
	}
	p.state = StateConnecting
	p.session = sess
	p.mu.Unlock()

	p.logger.WithFields(logrus.Fields{
		"device":  deviceID,
		"session": opts.SessionID,
	}).Info("Connecting to heart rate monitor")

	if err := p.establish(ctx, sess); err != nil {
		p.mu.Lock()
		if p.session == sess {
			p.session = nil
			p.state = StateIdle
		}
		p.mu.Unlock()
		sess.cancel()
		p.logger.WithError(err).WithField("device", deviceID).Error("Connection failed")
		return err
	}

	p.mu.Lock()
	if p.session != sess {
		// Disconnected while the sequence was finishing.
		link := sess.link
		sess.link = nil
		sess.hrChar = nil
		p.mu.Unlock()
		if link != nil {
			_ = link.Close()
		}
		return device.WrapKind(device.ErrSubscribeFailed, errors.New("connection aborted"))
	}
	p.state = StateConnected
	link := sess.link
	p.mu.Unlock()

	p.logger.WithFields(logrus.Fields{
		"device": deviceID,
		"name":   sess.deviceName,
	}).Info("Connected and subscribed")
	go p.watch(sess, link)
	return nil
}

// establish runs the connect sequence under the provider's connect timeout.
// On timeout any link dialed so far is closed and the failure is reported as
// device not found.
func (p *Provider) establish(ctx context.Context, sess *session) error {
	cctx, cancel := context.WithTimeout(ctx, p.connectTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.runConnectSequence(cctx, sess) }()

	select {
	case err := <-done:
		return err
	case <-cctx.Done():
		p.mu.Lock()
		link := sess.link
		sess.link = nil
		sess.hrChar = nil
		p.mu.Unlock()
		if link != nil {
			_ = link.Close()
		}
		return device.WrapKind(device.ErrDeviceNotFound, cctx.Err())
	}
}

func (p *Provider) runConnectSequence(ctx context.Context, sess *session) error {
	link, err := p.transport.Dial(ctx, sess.deviceID)
	if err != nil {
		if _, tagged := device.KindOf(err); tagged {
			return err
		}
		return device.WrapKind(device.ErrDeviceNotFound, err)
	}

	// The timeout path in establish may have fired while Dial was still in
	// flight; a link adopted after that would leak, so the deadline is
	// checked again under the same lock as the session identity.
	p.mu.Lock()
	if p.session != sess || ctx.Err() != nil {
		p.mu.Unlock()
		_ = link.Close()
		return device.WrapKind(device.ErrSubscribeFailed, errors.New("connection aborted"))
	}
	sess.link = link
	sess.deviceName = link.DeviceName()
	p.mu.Unlock()

	p.transition(sess, StateDiscoveringServices)
	svc, err := link.DiscoverService(hrm.ServiceUUID)
	if err != nil {
		_ = link.Close()
		return asSubscribeFailed(err)
	}

	p.transition(sess, StateDiscoveringCharacteristics)
	char, err := svc.Characteristic(hrm.MeasurementUUID)
	if err != nil {
		_ = link.Close()
		return asSubscribeFailed(err)
	}
	if !char.SupportsNotify() {
		_ = link.Close()
		return device.WrapKind(device.ErrSubscribeFailed, errors.New("measurement characteristic does not support notifications"))
	}

	p.transition(sess, StateSubscribing)
	if err := char.Subscribe(func(data []byte) { p.handleNotification(sess, data) }); err != nil {
		_ = link.Close()
		return asSubscribeFailed(err)
	}

	if sess.readBattery {
		p.readBatteryLevel(sess, link)
	}

	p.mu.Lock()
	if p.session != sess || ctx.Err() != nil {
		sess.link = nil
		sess.hrChar = nil
		p.mu.Unlock()
		// Close is idempotent; the timeout path may have closed it first.
		_ = link.Close()
		return device.WrapKind(device.ErrSubscribeFailed, errors.New("connection aborted"))
	}
	sess.hrChar = char
	p.mu.Unlock()
	return nil
}

// asSubscribeFailed tags discovery and subscription failures. Errors already
// carrying the subscribe_failed kind pass through unchanged.
func asSubscribeFailed(err error) error {
	if kind, ok := device.KindOf(err); ok && kind == device.KindSubscribeFailed {
		return err
	}
	return device.WrapKind(device.ErrSubscribeFailed, err)
}

// readBatteryLevel is best effort. An absent battery service or a failed read
// is logged and leaves the level unknown.
func (p *Provider) readBatteryLevel(sess *session, link device.Link) {
	svc, err := link.DiscoverService(batteryServiceUUID)
	if err != nil {
		p.logger.WithError(err).Debug("Battery service not available")
		return
	}
	char, err := svc.Characteristic(batteryLevelUUID)
	if err != nil {
		p.logger.WithError(err).Debug("Battery level characteristic not available")
		return
	}
	data, err := char.Read()
	if err != nil || len(data) == 0 {
		p.logger.WithError(err).Warn("Battery level read failed")
		return
	}
	p.mu.Lock()
	sess.battery = int(data[0])
	p.mu.Unlock()
	p.logger.WithField("battery", int(data[0])).Debug("Battery level read")
}

// transition advances the lifecycle state if the session is still current.
func (p *Provider) transition(sess *session, state State) {
	p.mu.Lock()
	if p.session == sess {
		p.state = state
	}
	p.mu.Unlock()
}

// handleNotification decodes one measurement payload and publishes it.
// Malformed payloads decode to an invalid measurement and are dropped.
func (p *Provider) handleNotification(sess *session, data []byte) {
	m := hrm.Decode(data)
	if !m.Valid() {
		p.logger.WithField("len", len(data)).Debug("Dropping invalid measurement payload")
		return
	}

	sample := wear.HeartRateSample{
		TimestampMs:   time.Now().UnixMilli(),
		BPM:           m.BPM,
		DeviceID:      sess.deviceID,
		SessionID:     sess.sessionID,
		RRIntervalsMs: m.RRIntervalsMs,
	}

	p.mu.Lock()
	if p.session != sess {
		// Stale notification arriving after teardown.
		p.mu.Unlock()
		return
	}
	sample.DeviceName = sess.deviceName
	p.lastSample = &sample
	p.mu.Unlock()

	// Publish outside the provider lock; the broker has its own.
	p.broker.Publish(sample)
}

// watch waits for the link to drop and drives reconnection. An explicit
// Disconnect retires the session before the teardown reaches the link, so a
// superseded session observed here means the drop was expected.
func (p *Provider) watch(sess *session, link device.Link) {
	select {
	case <-sess.stop:
		return
	case <-link.Disconnected():
	}

	p.mu.Lock()
	if p.session != sess {
		p.mu.Unlock()
		return
	}
	sess.link = nil
	sess.hrChar = nil
	if sess.attempts >= len(p.reconnectDelays) {
		p.session = nil
		p.state = StateIdle
		p.mu.Unlock()
		sess.cancel()
		p.logger.WithField("device", sess.deviceID).Warn("Connection lost, retry budget exhausted")
		return
	}
	p.state = StateReconnecting
	p.mu.Unlock()

	p.logger.WithField("device", sess.deviceID).Warn("Connection lost unexpectedly, reconnecting")
	p.reconnect(sess)
}

// reconnect consumes backoff delays until a reconnect succeeds or the budget
// runs out. The attempt counter carries across successful reconnects within
// the session.
func (p *Provider) reconnect(sess *session) {
	for {
		p.mu.Lock()
		if p.session != sess {
			p.mu.Unlock()
			return
		}
		if sess.attempts >= len(p.reconnectDelays) {
			p.session = nil
			p.state = StateIdle
			p.mu.Unlock()
			sess.cancel()
			p.logger.WithField("device", sess.deviceID).Warn("Retry budget exhausted, settling idle")
			return
		}
		delay := p.reconnectDelays[sess.attempts]
		sess.attempts++
		attempt := sess.attempts
		p.state = StateReconnecting
		p.mu.Unlock()

		p.logger.WithFields(logrus.Fields{
			"device":  sess.deviceID,
			"attempt": attempt,
			"delay":   delay,
		}).Info("Scheduling reconnect attempt")

		select {
		case <-time.After(delay):
		case <-sess.stop:
			return
		}

		p.transition(sess, StateConnecting)
		if err := p.establish(context.Background(), sess); err != nil {
			p.logger.WithError(err).WithFields(logrus.Fields{
				"device":  sess.deviceID,
				"attempt": attempt,
			}).Warn("Reconnect attempt failed")
			continue
		}

		p.mu.Lock()
		if p.session != sess {
			link := sess.link
			sess.link = nil
			sess.hrChar = nil
			p.mu.Unlock()
			if link != nil {
				_ = link.Close()
			}
			return
		}
		p.state = StateConnected
		link := sess.link
		p.mu.Unlock()

		p.logger.WithFields(logrus.Fields{
			"device":  sess.deviceID,
			"attempt": attempt,
		}).Info("Reconnected")
		go p.watch(sess, link)
		return
	}
}

// Disconnect tears the connection down and cancels any pending reconnect.
// It is idempotent; disconnecting an idle provider is a no-op. Provider state
// is settled before the platform teardown runs, so callers observe idle
// immediately.
func (p *Provider) Disconnect() error {
	p.mu.Lock()
	sess := p.session
	p.session = nil
	p.state = StateIdle
	p.mu.Unlock()

	if sess == nil {
		p.logger.Debug("Disconnect on idle provider, nothing to do")
		return nil
	}

	sess.cancel()

	p.mu.Lock()
	link := sess.link
	hrChar := sess.hrChar
	sess.link = nil
	sess.hrChar = nil
	p.mu.Unlock()

	if hrChar != nil {
		if err := hrChar.Unsubscribe(); err != nil {
			p.logger.WithError(err).Debug("Unsubscribe during disconnect failed")
		}
	}
	if link != nil {
		if err := link.Close(); err != nil {
			p.logger.WithError(err).Debug("Link close during disconnect failed")
		}
	}
	p.logger.WithField("device", sess.deviceID).Info("Disconnected")
	return nil
}

// Dispose disconnects, discards the cached last sample and closes all sample
// streams. The provider must not be used afterwards.
func (p *Provider) Dispose() {
	_ = p.Disconnect()
	p.mu.Lock()
	p.lastSample = nil
	p.mu.Unlock()
	p.broker.Close()
}

// Samples attaches a new consumer and returns its handle and channel. Every
// sample published while attached is delivered exactly once; a slow consumer
// builds a backlog and never blocks the notification path. Samples published
// before attachment are not replayed.
func (p *Provider) Samples() (string, <-chan wear.HeartRateSample) {
	return p.broker.Subscribe()
}

// CancelStream detaches the consumer with the given handle and closes its
// channel. Unknown handles are ignored.
func (p *Provider) CancelStream(handle string) {
	p.broker.Unsubscribe(handle)
}

// LastSample returns the most recently published sample, if any.
func (p *Provider) LastSample() (wear.HeartRateSample, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastSample == nil {
		return wear.HeartRateSample{}, false
	}
	return *p.lastSample, true
}

// BatteryLevel returns the peripheral battery percentage, or -1 when unknown
// or not connected.
func (p *Provider) BatteryLevel() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return -1
	}
	return p.session.battery
}
