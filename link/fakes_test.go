package link

import (
	"time"

	"github.com/rigado/l2cap"
)

type sentBuf struct {
	peer l2cap.Address
	data []byte
}

type fakeDataSink struct {
	bredr []sentBuf
	ble   []sentBuf
}

func (f *fakeDataSink) SendBREDR(peer l2cap.Address, data []byte) error {
	f.bredr = append(f.bredr, sentBuf{peer, append([]byte(nil), data...)})
	return nil
}

func (f *fakeDataSink) SendBLE(peer l2cap.Address, data []byte) error {
	f.ble = append(f.ble, sentBuf{peer, append([]byte(nil), data...)})
	return nil
}

type csmEvent struct {
	cid   uint16
	event l2cap.ChannelEvent
	info  *l2cap.ConnInfo
}

type fakeCsm struct {
	events []csmEvent
}

func (f *fakeCsm) Execute(localCID uint16, event l2cap.ChannelEvent, info *l2cap.ConnInfo) {
	f.events = append(f.events, csmEvent{localCID, event, info})
}

type fakeSecurityManager struct {
	result l2cap.DisconnectStatus
}

func (f *fakeSecurityManager) Disconnect(handle uint16, reason l2cap.HCIStatus, context string) l2cap.DisconnectStatus {
	return f.result
}

type fakeController struct {
	disconnected []uint16
}

func (f *fakeController) Disconnect(handle uint16, reason l2cap.HCIStatus, context string) error {
	f.disconnected = append(f.disconnected, handle)
	return nil
}

type fakeIotConfig struct {
	disc        map[string]int
	discTimeout map[string]int
}

func newFakeIotConfig() *fakeIotConfig {
	return &fakeIotConfig{disc: map[string]int{}, discTimeout: map[string]int{}}
}

func (f *fakeIotConfig) IncrementDiscCount(peer l2cap.Address) {
	f.disc[peer.String()]++
}

func (f *fakeIotConfig) IncrementDiscConnTimeoutCount(peer l2cap.Address) {
	f.discTimeout[peer.String()]++
}

type powerCall struct {
	peer     l2cap.Address
	priority l2cap.Priority
	force    bool
}

type fakePowerMonitor struct {
	mode  l2cap.PowerMode
	ok    bool
	calls []powerCall
}

func (f *fakePowerMonitor) ReadPowerMode(peer l2cap.Address) (l2cap.PowerMode, bool) {
	return f.mode, f.ok
}

func (f *fakePowerMonitor) SetACLPriority(peer l2cap.Address, priority l2cap.Priority, force bool) error {
	f.calls = append(f.calls, powerCall{peer, priority, force})
	return nil
}

type fakeTimer struct {
	canceled bool
}

func (f *fakeTimer) Cancel() { f.canceled = true }

// fakeTimerFacility captures the most recently armed callback instead of
// scheduling it, so a test can fire it synchronously.
type fakeTimerFacility struct {
	callback func()
	timer    *fakeTimer
}

func (f *fakeTimerFacility) Arm(d time.Duration, callback func()) l2cap.Timer {
	f.callback = callback
	f.timer = &fakeTimer{}
	return f.timer
}

func (f *fakeTimerFacility) fire() {
	cb := f.callback
	f.callback = nil
	if cb != nil {
		cb()
	}
}

func mustAddr(t testingT, s string) l2cap.Address {
	a, err := l2cap.ParseAddress(s)
	if err != nil {
		t.Fatalf("ParseAddress(%q): %v", s, err)
	}
	return a
}

// testingT is the subset of *testing.T the helpers above need, so they
// can be shared between _test.go files without importing "testing" into
// a non-test file.
type testingT interface {
	Fatalf(format string, args ...interface{})
}
