package link

import (
	"testing"

	"github.com/rigado/l2cap"
)

func TestAdjustAllocationSplitsQuotaAcrossLowPriorityLinks(t *testing.T) {
	c, err := NewCore(l2cap.OptACLBufferCount(4), l2cap.OptHighPriorityMinQuota(2))
	if err != nil {
		t.Fatalf("NewCore: %v", err)
	}
	a1 := mustAddr(t, "00:11:22:33:44:55")
	a2 := mustAddr(t, "66:77:88:99:aa:bb")
	l1 := connectedLink(t, c, a1)
	l2 := connectedLink(t, c, a2)

	c.adjustAllocation()

	if l1.linkXmitQuota != l2.linkXmitQuota {
		t.Errorf("expected equal quotas for two low-priority links, got %d and %d", l1.linkXmitQuota, l2.linkXmitQuota)
	}
	if l1.linkXmitQuota == 0 {
		t.Error("expected a non-zero quota when buffers exceed link count")
	}
}

func TestAdjustAllocationGivesHighPriorityItsOwnQuota(t *testing.T) {
	c, err := NewCore(l2cap.OptACLBufferCount(10), l2cap.OptHighPriorityMinQuota(3))
	if err != nil {
		t.Fatalf("NewCore: %v", err)
	}
	addr := mustAddr(t, "00:11:22:33:44:55")
	l := connectedLink(t, c, addr)
	l.aclPriority = l2cap.PriorityHigh

	c.adjustAllocation()

	if l.linkXmitQuota != 3 {
		t.Errorf("linkXmitQuota = %d, want 3", l.linkXmitQuota)
	}
}

func TestAdjustAllocationNoLinksResetsWindow(t *testing.T) {
	c, err := NewCore(l2cap.OptACLBufferCount(6))
	if err != nil {
		t.Fatalf("NewCore: %v", err)
	}
	c.controllerXmitWindow = 0
	c.adjustAllocation()
	if c.controllerXmitWindow != 6 {
		t.Errorf("controllerXmitWindow = %d, want 6 when no links are active", c.controllerXmitWindow)
	}
}

func TestCheckSendPktsDirectSendDebitsWindow(t *testing.T) {
	sink := &fakeDataSink{}
	c, err := NewCore(
		l2cap.OptACLBufferCount(8),
		l2cap.OptCollaborators(l2cap.Collaborators{DataSink: sink}),
	)
	if err != nil {
		t.Fatalf("NewCore: %v", err)
	}
	addr := mustAddr(t, "00:11:22:33:44:55")
	l := connectedLink(t, c, addr)
	c.adjustAllocation()

	before := c.controllerXmitWindow
	c.checkSendPkts(l, 0, &Buffer{Data: []byte("hello")})

	if len(sink.bredr) != 1 {
		t.Fatalf("expected one BR/EDR send, got %d", len(sink.bredr))
	}
	if c.controllerXmitWindow != before-1 {
		t.Errorf("controllerXmitWindow = %d, want %d", c.controllerXmitWindow, before-1)
	}
	if l.sentNotAcked != 1 {
		t.Errorf("sentNotAcked = %d, want 1", l.sentNotAcked)
	}
}

func TestCheckSendPktsSkipsWhenNotConnected(t *testing.T) {
	sink := &fakeDataSink{}
	c, err := NewCore(l2cap.OptCollaborators(l2cap.Collaborators{DataSink: sink}))
	if err != nil {
		t.Fatalf("NewCore: %v", err)
	}
	addr := mustAddr(t, "00:11:22:33:44:55")
	l, err := c.allocate(addr, false, l2cap.TransportBREDR)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	l.linkXmitQuota = 4
	c.checkSendPkts(l, 0, &Buffer{Data: []byte("hello")})

	if len(sink.bredr) != 0 {
		t.Error("expected no send for a link that isn't connected")
	}
}

func TestCheckSendPktsRecursionGuard(t *testing.T) {
	c, err := NewCore()
	if err != nil {
		t.Fatalf("NewCore: %v", err)
	}
	c.congCbackDepth = 1
	addr := mustAddr(t, "00:11:22:33:44:55")
	l := connectedLink(t, c, addr)
	c.adjustAllocation()

	c.checkSendPkts(l, 0, &Buffer{Data: []byte("x")})
	if len(l.linkXmitDataQ) != 1 {
		t.Error("expected the buffer to remain queued while congCbackDepth > 0")
	}
}

func TestSendToLowerTracksRoundRobinUnacked(t *testing.T) {
	c, err := NewCore()
	if err != nil {
		t.Fatalf("NewCore: %v", err)
	}
	addr := mustAddr(t, "00:11:22:33:44:55")
	l := connectedLink(t, c, addr)
	l.linkXmitQuota = 0

	c.sendToLower(l, &Buffer{Data: []byte("x")}, nil)

	if c.roundRobinUnacked != 1 {
		t.Errorf("roundRobinUnacked = %d, want 1", c.roundRobinUnacked)
	}
}
