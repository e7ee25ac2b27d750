package link

import (
	"testing"

	"github.com/rigado/l2cap"
)

func TestNewCoreDefaults(t *testing.T) {
	c, err := NewCore()
	if err != nil {
		t.Fatalf("NewCore: %v", err)
	}
	if len(c.lcbs) != defaultMaxLinks {
		t.Errorf("lcb pool size = %d, want %d", len(c.lcbs), defaultMaxLinks)
	}
	if len(c.ccbs) != defaultMaxChannels {
		t.Errorf("ccb pool size = %d, want %d", len(c.ccbs), defaultMaxChannels)
	}
	if c.controllerXmitWindow != defaultACLBufferCount {
		t.Errorf("controllerXmitWindow = %d, want %d", c.controllerXmitWindow, defaultACLBufferCount)
	}
}

func TestNewCoreRejectsBadOptions(t *testing.T) {
	if _, err := NewCore(l2cap.OptMaxLinks(0)); err == nil {
		t.Error("expected error for zero max links")
	}
	if _, err := NewCore(l2cap.OptMaxChannels(-1)); err == nil {
		t.Error("expected error for negative max channels")
	}
	if _, err := NewCore(l2cap.OptChannelPriorityQuotas(nil)); err == nil {
		t.Error("expected error for empty priority quotas")
	}
}

func TestNewCoreSharedBufferPool(t *testing.T) {
	c, err := NewCore(l2cap.OptBLEBufferCount(l2cap.SharedBufferPool))
	if err != nil {
		t.Fatalf("NewCore: %v", err)
	}
	if !c.isShareBuffer() {
		t.Error("expected shared buffer pool")
	}
	if c.controllerLEXmitWindow != 0 {
		t.Errorf("controllerLEXmitWindow = %d, want 0 when shared", c.controllerLEXmitWindow)
	}
}

func TestNewCoreFixedChannelMismatch(t *testing.T) {
	_, err := NewCore(
		l2cap.OptFixedChannelCount(2),
		l2cap.OptCollaborators(l2cap.Collaborators{
			FixedChannels: []l2cap.FixedChannelBinding{{Name: "only-one"}},
		}),
	)
	if err == nil {
		t.Error("expected error on fixed channel registry size mismatch")
	}
}
