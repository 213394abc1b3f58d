package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synheart-ai/synheart-wear-go/internal/device"
	"github.com/synheart-ai/synheart-wear-go/internal/testutils"
)

const (
	testDeviceID = "AA:BB:CC:DD:EE:FF"
	testDevice   = "Polar H10"
)

// newTestProvider builds a provider over a mock transport hosting one heart
// rate peripheral with a battery service. Timeouts and backoff delays are
// compressed so lifecycle tests run in milliseconds.
func newTestProvider(t *testing.T) (*Provider, *testutils.MockTransport) {
	t.Helper()
	h := testutils.NewTestHelper(t)

	transport := testutils.NewMockTransport()
	transport.WithPeripheral(testDeviceID, testDevice).
		WithService("180d").
		WithCharacteristic("2a37", "notify", nil).
		WithService("180f").
		WithCharacteristic("2a19", "read", []byte{85})

	p := New(transport, h.Logger)
	p.connectTimeout = 500 * time.Millisecond
	p.reconnectDelays = []time.Duration{
		10 * time.Millisecond,
		10 * time.Millisecond,
		10 * time.Millisecond,
	}
	return p, transport
}

func waitForState(t *testing.T, p *Provider, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return p.State() == want },
		2*time.Second, 2*time.Millisecond,
		"provider never reached state %s", want)
}

func TestConnectEstablishesSubscription(t *testing.T) {
	// GOAL: Verify a successful connect walks the full sequence and ends
	// connected with notifications enabled on the measurement characteristic.
	p, transport := newTestProvider(t)
	defer p.Dispose()

	err := p.Connect(context.Background(), testDeviceID, ConnectOptions{SessionID: "sess-1"})
	require.NoError(t, err)

	assert.True(t, p.IsConnected())
	assert.Equal(t, StateConnected, p.State())
	assert.Equal(t, 1, transport.DialCount())
	assert.True(t, transport.LatestLink().Subscribed("2a37"),
		"measurement notifications MUST be enabled")
}

func TestConnectReadsBatteryLevel(t *testing.T) {
	p, _ := newTestProvider(t)
	defer p.Dispose()

	require.NoError(t, p.Connect(context.Background(), testDeviceID, ConnectOptions{ReadBattery: true}))
	assert.Equal(t, 85, p.BatteryLevel())
}

func TestConnectWithoutBatteryServiceIsNotFatal(t *testing.T) {
	// GOAL: Verify a peripheral lacking the battery service still connects;
	// the level just stays unknown.
	h := testutils.NewTestHelper(t)
	transport := testutils.NewMockTransport()
	transport.WithPeripheral(testDeviceID, testDevice).
		WithService("180d").
		WithCharacteristic("2a37", "notify", nil)

	p := New(transport, h.Logger)
	defer p.Dispose()

	require.NoError(t, p.Connect(context.Background(), testDeviceID, ConnectOptions{ReadBattery: true}))
	assert.True(t, p.IsConnected())
	assert.Equal(t, -1, p.BatteryLevel())
}

func TestConnectSurvivesBatteryReadFailure(t *testing.T) {
	// GOAL: Verify a failing battery level read does not abort the connect
	// sequence; the level stays unknown and the subscription proceeds.
	h := testutils.NewTestHelper(t)
	transport := testutils.NewMockTransport()
	transport.WithPeripheral(testDeviceID, testDevice).
		WithService("180d").
		WithCharacteristic("2a37", "notify", nil).
		WithService("180f").
		WithCharacteristic("2a19", "read", []byte{85}).
		FailRead("2a19", errors.New("gatt read failed"))

	p := New(transport, h.Logger)
	defer p.Dispose()

	require.NoError(t, p.Connect(context.Background(), testDeviceID, ConnectOptions{ReadBattery: true}))
	assert.True(t, p.IsConnected())
	assert.Equal(t, -1, p.BatteryLevel())
}

func TestConnectRejectedWhileBusy(t *testing.T) {
	// GOAL: Verify overlapping Connect and Scan calls are rejected instead
	// of interleaving with the live connection.
	p, _ := newTestProvider(t)
	defer p.Dispose()

	require.NoError(t, p.Connect(context.Background(), testDeviceID, ConnectOptions{}))

	err := p.Connect(context.Background(), testDeviceID, ConnectOptions{})
	assert.ErrorIs(t, err, ErrBusy)

	_, err = p.Scan(context.Background(), 50*time.Millisecond, "")
	assert.ErrorIs(t, err, ErrBusy)
}

func TestConnectFailsWhenServiceMissing(t *testing.T) {
	h := testutils.NewTestHelper(t)
	transport := testutils.NewMockTransport()
	transport.WithPeripheral(testDeviceID, testDevice).
		WithService("180f").
		WithCharacteristic("2a19", "read", []byte{50})

	p := New(transport, h.Logger)
	defer p.Dispose()

	err := p.Connect(context.Background(), testDeviceID, ConnectOptions{})
	require.Error(t, err)
	kind, ok := device.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, device.KindSubscribeFailed, kind)
	assert.Equal(t, StateIdle, p.State())
	assert.False(t, p.IsConnected())
}

func TestConnectFailsWhenSubscribeFails(t *testing.T) {
	h := testutils.NewTestHelper(t)
	transport := testutils.NewMockTransport()
	transport.WithPeripheral(testDeviceID, testDevice).
		WithService("180d").
		WithCharacteristic("2a37", "notify", nil).
		FailSubscribe("2a37", errors.New("cccd write rejected"))

	p := New(transport, h.Logger)
	defer p.Dispose()

	err := p.Connect(context.Background(), testDeviceID, ConnectOptions{})
	kind, ok := device.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, device.KindSubscribeFailed, kind)
	assert.Equal(t, StateIdle, p.State())
}

func TestConnectUnknownDevice(t *testing.T) {
	p, _ := newTestProvider(t)
	defer p.Dispose()

	err := p.Connect(context.Background(), "00:00:00:00:00:00", ConnectOptions{})
	require.Error(t, err)
	kind, ok := device.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, device.KindDeviceNotFound, kind)
	assert.Equal(t, StateIdle, p.State())
}

func TestConnectTimesOutAsNotFound(t *testing.T) {
	// GOAL: Verify a dial that never completes is cut off by the connect
	// timeout and surfaces as device not found, leaving the provider idle.
	p, transport := newTestProvider(t)
	defer p.Dispose()
	p.connectTimeout = 40 * time.Millisecond
	transport.HangDial()

	start := time.Now()
	err := p.Connect(context.Background(), testDeviceID, ConnectOptions{})
	elapsed := time.Since(start)

	require.Error(t, err)
	kind, ok := device.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, device.KindDeviceNotFound, kind)
	assert.Less(t, elapsed, time.Second, "Connect MUST return promptly after the timeout")
	assert.Equal(t, StateIdle, p.State())
}

// lateDialTransport completes the dial only once the caller's deadline has
// already expired, modeling a peripheral that answers at the last moment.
type lateDialTransport struct {
	*testutils.MockTransport
}

func (t *lateDialTransport) Dial(ctx context.Context, deviceID string) (device.Link, error) {
	<-ctx.Done()
	return t.MockTransport.Dial(context.Background(), deviceID)
}

func TestLateDialAfterTimeoutIsClosed(t *testing.T) {
	// GOAL: Verify a dial that completes after the connect timeout neither
	// leaks an open link nor resurrects the already-failed session.
	p, transport := newTestProvider(t)
	defer p.Dispose()
	p.connectTimeout = 30 * time.Millisecond
	p.transport = &lateDialTransport{MockTransport: transport}

	err := p.Connect(context.Background(), testDeviceID, ConnectOptions{})
	require.Error(t, err)
	kind, ok := device.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, device.KindDeviceNotFound, kind)
	assert.Equal(t, StateIdle, p.State())

	require.Eventually(t, func() bool {
		link := transport.LatestLink()
		if link == nil {
			return false
		}
		select {
		case <-link.Disconnected():
			return true
		default:
			return false
		}
	}, 2*time.Second, 2*time.Millisecond, "the late link MUST end up closed")
	assert.False(t, p.IsConnected())
}

func TestNotificationsFanOutToAllStreams(t *testing.T) {
	// GOAL: Verify one notification reaches every attached consumer exactly
	// once, with device and session identity attached.
	p, transport := newTestProvider(t)
	defer p.Dispose()

	require.NoError(t, p.Connect(context.Background(), testDeviceID, ConnectOptions{SessionID: "sess-9"}))

	_, ch1 := p.Samples()
	_, ch2 := p.Samples()

	transport.LatestLink().SimulateNotification("2a37", []byte{0x10, 72, 0x00, 0x04})

	s1 := <-ch1
	s2 := <-ch2
	assert.Equal(t, 72, s1.BPM)
	assert.Equal(t, s1, s2, "both consumers MUST observe the same sample")
	assert.Equal(t, testDeviceID, s1.DeviceID)
	assert.Equal(t, testDevice, s1.DeviceName)
	assert.Equal(t, "sess-9", s1.SessionID)
	assert.Equal(t, []float64{1000}, s1.RRIntervalsMs)
	assert.Positive(t, s1.TimestampMs)

	last, ok := p.LastSample()
	require.True(t, ok)
	assert.Equal(t, s1, last)
}

func TestMalformedNotificationIsDropped(t *testing.T) {
	p, transport := newTestProvider(t)
	defer p.Dispose()

	require.NoError(t, p.Connect(context.Background(), testDeviceID, ConnectOptions{}))
	_, ch := p.Samples()

	// Flags promise a 16-bit value that is not there.
	transport.LatestLink().SimulateNotification("2a37", []byte{0x01, 0x48})
	transport.LatestLink().SimulateNotification("2a37", []byte{})

	assert.Empty(t, ch, "malformed payloads MUST NOT produce samples")
	_, ok := p.LastSample()
	assert.False(t, ok)
}

func TestReconnectAfterUnexpectedDrop(t *testing.T) {
	// GOAL: Verify an unexpected link drop triggers a backed-off reconnect
	// and existing sample streams keep flowing afterwards.
	p, transport := newTestProvider(t)
	defer p.Dispose()

	require.NoError(t, p.Connect(context.Background(), testDeviceID, ConnectOptions{}))
	_, ch := p.Samples()

	transport.LatestLink().SimulateDisconnect()

	require.Eventually(t, func() bool {
		return transport.DialCount() == 2 && p.IsConnected()
	}, 2*time.Second, 2*time.Millisecond, "provider never reconnected")

	transport.LatestLink().SimulateNotification("2a37", []byte{0x00, 64})
	assert.Equal(t, 64, (<-ch).BPM, "stream MUST survive a reconnect")
}

func TestReconnectBudgetExhaustionSettlesIdle(t *testing.T) {
	// GOAL: Verify the attempt counter persists across successful reconnects
	// within a session. Repeated drops consume the whole schedule and the
	// provider settles idle instead of retrying forever.
	p, transport := newTestProvider(t)
	defer p.Dispose()

	require.NoError(t, p.Connect(context.Background(), testDeviceID, ConnectOptions{}))

	for dial := 1; dial <= len(p.reconnectDelays); dial++ {
		wanted := dial
		require.Eventually(t, func() bool {
			return transport.DialCount() == wanted && p.IsConnected()
		}, 2*time.Second, 2*time.Millisecond)
		transport.LatestLink().SimulateDisconnect()
	}

	// The final reconnect consumes the last delay; the drop after it finds
	// the budget spent.
	require.Eventually(t, func() bool {
		return transport.DialCount() == len(p.reconnectDelays)+1 && p.IsConnected()
	}, 2*time.Second, 2*time.Millisecond)
	transport.LatestLink().SimulateDisconnect()

	waitForState(t, p, StateIdle)
	assert.False(t, p.IsConnected())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, len(p.reconnectDelays)+1, transport.DialCount(),
		"no further automatic attempts after the budget is spent")
}

func TestFailedReconnectAttemptsConsumeBudget(t *testing.T) {
	// GOAL: Verify a reconnect attempt that fails does not abort the
	// schedule; the remaining delays are still consumed before settling.
	p, transport := newTestProvider(t)
	defer p.Dispose()

	require.NoError(t, p.Connect(context.Background(), testDeviceID, ConnectOptions{}))

	transport.FailDial(errors.New("peripheral out of range"))
	transport.LatestLink().SimulateDisconnect()

	waitForState(t, p, StateIdle)
	assert.Equal(t, 1+len(p.reconnectDelays), transport.DialCount(),
		"every scheduled attempt MUST have been tried")
	assert.False(t, p.IsConnected())
}

func TestDisconnectIsIdempotentAndImmediate(t *testing.T) {
	p, transport := newTestProvider(t)
	defer p.Dispose()

	require.NoError(t, p.Connect(context.Background(), testDeviceID, ConnectOptions{}))
	link := transport.LatestLink()

	require.NoError(t, p.Disconnect())
	assert.Equal(t, StateIdle, p.State())
	assert.False(t, p.IsConnected())
	assert.False(t, link.Subscribed("2a37"), "notifications MUST be disabled on teardown")

	require.NoError(t, p.Disconnect(), "second Disconnect MUST be a no-op")
	require.NoError(t, p.Disconnect())
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	// GOAL: Verify an explicit Disconnect during backoff stops the schedule;
	// no further dial is attempted.
	p, transport := newTestProvider(t)
	defer p.Dispose()
	p.reconnectDelays = []time.Duration{
		150 * time.Millisecond,
		150 * time.Millisecond,
		150 * time.Millisecond,
	}

	require.NoError(t, p.Connect(context.Background(), testDeviceID, ConnectOptions{}))
	transport.LatestLink().SimulateDisconnect()

	waitForState(t, p, StateReconnecting)
	require.NoError(t, p.Disconnect())
	assert.Equal(t, StateIdle, p.State())

	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, 1, transport.DialCount(), "backoff MUST be cancelled by Disconnect")
	assert.Equal(t, StateIdle, p.State())
}

func TestCancelStreamIsolatesConsumer(t *testing.T) {
	p, transport := newTestProvider(t)
	defer p.Dispose()

	require.NoError(t, p.Connect(context.Background(), testDeviceID, ConnectOptions{}))
	id1, ch1 := p.Samples()
	_, ch2 := p.Samples()

	p.CancelStream(id1)
	transport.LatestLink().SimulateNotification("2a37", []byte{0x00, 88})

	_, open := <-ch1
	assert.False(t, open, "cancelled stream channel MUST be closed")
	assert.Equal(t, 88, (<-ch2).BPM, "other streams MUST be unaffected")

	// Unknown handles are ignored.
	p.CancelStream("no-such-handle")
}

func TestDisposeClosesAllStreams(t *testing.T) {
	p, transport := newTestProvider(t)

	require.NoError(t, p.Connect(context.Background(), testDeviceID, ConnectOptions{}))
	_, ch := p.Samples()

	transport.LatestLink().SimulateNotification("2a37", []byte{0x00, 70})
	assert.Equal(t, 70, (<-ch).BPM)
	_, ok := p.LastSample()
	require.True(t, ok)

	p.Dispose()

	_, open := <-ch
	assert.False(t, open, "Dispose MUST terminate every stream")
	assert.Equal(t, StateIdle, p.State())
	_, ok = p.LastSample()
	assert.False(t, ok, "Dispose MUST discard the cached last sample")
}

func TestScanThroughProvider(t *testing.T) {
	p, transport := newTestProvider(t)
	defer p.Dispose()
	transport.WithAdvertisement(testDeviceID, testDevice, -60, "180d")
	transport.WithAdvertisement("11:22:33:44:55:66", "Treadmill", -40, "1826")

	devices, err := p.Scan(context.Background(), 50*time.Millisecond, "")
	require.NoError(t, err)
	require.Len(t, devices, 1, "only heart rate peripherals MUST be reported")
	assert.Equal(t, testDeviceID, devices[0].ID)
	assert.Equal(t, StateIdle, p.State(), "provider MUST return to idle after a scan")
}
