package link

import (
	"github.com/pkg/errors"
	"github.com/rigado/l2cap"
)

// rrGroup is one strict-priority group of a link's per-channel round
// robin: a circular membership list plus a serve cursor and the group's
// remaining quota for the current sweep.
type rrGroup struct {
	members []*ccb
	cursor  int
	quota   int
	base    int
}

// lcb is a LinkControlBlock: one per (peer, transport) while in use.
type lcb struct {
	core  *Core
	index int

	inUse     bool
	peer      l2cap.Address
	transport l2cap.Transport

	handle      uint16
	handleValid bool

	state       l2cap.LinkState
	role        l2cap.Role
	aclPriority l2cap.Priority

	disconnectReason l2cap.HCIStatus
	isBonding        bool

	linkXmitQuota int
	sentNotAcked  int
	linkXmitDataQ []*Buffer

	ccbs       []*ccb
	fixedCCBs  []*ccb
	pendingCCB *ccb

	rrPri  int
	rrServ []rrGroup

	// w4InfoRsp and infoRespTimer are set by StartInfoRequest once the
	// caller has sent an Information Request PDU, and cleared by
	// infoRespTimeout.
	w4InfoRsp     bool
	infoRespTimer l2cap.Timer
	lcbTimer      l2cap.Timer

	secAct uint16

	logger l2cap.Logger
}

// Handle returns the LCB's controller handle and whether it's valid.
func (l *lcb) Handle() (uint16, bool) { return l.handle, l.handleValid }

func (l *lcb) isRoundRobin() bool { return l.linkXmitQuota == 0 }

func (l *lcb) isHighPriority() bool { return l.aclPriority == l2cap.PriorityHigh }

func (l *lcb) log() l2cap.Logger {
	if l.logger == nil {
		return l.core.log()
	}
	return l.logger
}

// findByPeer looks up the LCB for a given (peer, transport) pair.
func (c *Core) findByPeer(addr l2cap.Address, transport l2cap.Transport) *lcb {
	for _, l := range c.lcbs {
		if l.inUse && l.peer == addr && l.transport == transport {
			return l
		}
	}
	return nil
}

// findByHandle looks up the LCB currently bound to a controller handle.
func (c *Core) findByHandle(h uint16) *lcb {
	for _, l := range c.lcbs {
		if l.inUse && l.handleValid && l.handle == h {
			return l
		}
	}
	return nil
}

// findByState returns the first in-use LCB in the given state.
func (c *Core) findByState(s l2cap.LinkState) *lcb {
	for _, l := range c.lcbs {
		if l.inUse && l.state == s {
			return l
		}
	}
	return nil
}

// allocate draws an LCB from the fixed-size pool, or fails with
// ErrNoResources.
func (c *Core) allocate(addr l2cap.Address, isBonding bool, transport l2cap.Transport) (*lcb, error) {
	for _, l := range c.lcbs {
		if !l.inUse {
			l.reset()
			l.inUse = true
			l.peer = addr
			l.transport = transport
			l.isBonding = isBonding
			l.state = l2cap.StateFree
			l.aclPriority = l2cap.PriorityNormal
			l.role = l2cap.RoleCentral
			l.rrServ = make([]rrGroup, len(c.chnlQuotas))
			for i := range l.rrServ {
				l.rrServ[i].quota = c.chnlQuotas[i]
				l.rrServ[i].base = c.chnlQuotas[i]
			}
			l.fixedCCBs = make([]*ccb, c.numFixedChnls)
			l.logger = c.log().ChildLogger(map[string]interface{}{"peer": addr.String(), "transport": transport.String()})
			l.log().Debug("allocated LCB")
			c.adjustAllocation()
			return l, nil
		}
	}
	return nil, errors.Wrap(l2cap.ErrNoResources, "l2cap/link: allocate LCB")
}

func (l *lcb) reset() {
	l.handle = 0
	l.handleValid = false
	l.state = l2cap.StateFree
	l.disconnectReason = 0
	l.isBonding = false
	l.linkXmitQuota = 0
	l.sentNotAcked = 0
	l.linkXmitDataQ = nil
	l.ccbs = nil
	l.fixedCCBs = nil
	l.pendingCCB = nil
	l.rrPri = 0
	l.rrServ = nil
	l.w4InfoRsp = false
	l.infoRespTimer = nil
	l.lcbTimer = nil
	l.secAct = 0
}

// release cancels pending timers, drains the link transmit queue, detaches
// fixed CCBs (notifying false + disconnect reason), then frees the slot.
func (c *Core) release(l *lcb) {
	if !l.inUse {
		return
	}
	l.log().Debug("releasing LCB")

	cancelTimer(&l.lcbTimer)
	cancelTimer(&l.infoRespTimer)

	l.linkXmitDataQ = nil

	c.releaseFixedChannels(l, l.pendingCCB)

	l.inUse = false
	l.handleValid = false
	l.handle = 0
	l.pendingCCB = nil
	l.ccbs = nil

	c.adjustAllocation()
}

// releaseFixedChannels detaches every fixed channel slot that isn't the
// given exclusion (typically the pending CCB), notifying each binding's
// OnConnectionChange with connected=false.
func (c *Core) releaseFixedChannels(l *lcb, except *ccb) {
	for i, fc := range l.fixedCCBs {
		if fc == nil || fc == except {
			continue
		}
		l.fixedCCBs[i] = nil
		c.freeCCB(fc)
		if i < len(c.collab.FixedChannels) {
			if cb := c.collab.FixedChannels[i].OnConnectionChange; cb != nil {
				cb(fc.localCID, l.peer, false, l.disconnectReason, l.transport)
			}
		}
	}
}

// SetLinkPriority sets a link's ACL priority and re-applies it to the
// PowerMonitor collaborator, then recomputes every link's transmit quota
// so a link raised to PriorityHigh actually gets the high-priority split
// in adjustAllocation.
func (c *Core) SetLinkPriority(peer l2cap.Address, transport l2cap.Transport, priority l2cap.Priority) error {
	l := c.findByPeer(peer, transport)
	if l == nil {
		return errors.Wrap(l2cap.ErrNoLink, "l2cap/link: SetLinkPriority")
	}
	l.aclPriority = priority
	if c.collab.Power != nil {
		if err := c.collab.Power.SetACLPriority(peer, priority, false); err != nil {
			l.log().Warn("set_acl_priority failed")
		}
	}
	c.adjustAllocation()
	return nil
}

func (l *lcb) setDisconnectReason(reason l2cap.HCIStatus) {
	l.disconnectReason = reason
}

// setHandle binds the LCB to a controller handle.
func (c *Core) setHandle(l *lcb, h uint16) {
	l.handle = h
	l.handleValid = true
}

// invalidateHandle marks the LCB's controller handle as no longer valid.
func (c *Core) invalidateHandle(l *lcb) {
	l.handleValid = false
}
