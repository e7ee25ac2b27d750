package link

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rigado/l2cap"
)

// Buffer is a fully-prepared HCI ACL data buffer, equivalent to the
// link transmit queue's BT_HDR entries. CID and LayerSpecific mirror
// p_buf->event and p_buf->layer_specific; Handle is stamped just before
// the buffer reaches the HCI data sink.
type Buffer struct {
	Data          []byte
	CID           uint16
	Handle        uint16
	LayerSpecific int
}

// SecurityToken is an opaque, comparable-by-value handle used in place of
// an identity-compared pointer to correlate a security callback with the
// channel that requested it.
type SecurityToken uuid.UUID

// ccb is a ChannelControlBlock: bookkeeping the link-management core keeps
// for a channel so the scheduler can serve it. The channel's own
// signalling state machine lives outside this core and drives state
// through the setters below.
type ccb struct {
	index int

	inUse    bool
	localCID uint16
	lcb      *lcb

	fixed      bool
	fixedIndex int
	priority   int

	state    l2cap.ChannelState
	fcrMode  l2cap.FCRMode
	waitAck  bool
	remoteBusy bool
	windowClosed bool

	leCreditBased bool
	peerCredits   int

	mps           int
	xmitHoldQ     [][]byte
	retransQ      [][]byte
	segmentOffset int

	buffQuota             int
	txDataRate, rxDataRate int
	congested             bool

	txComplete        func(cid uint16, count int)
	congestionChanged func(cid uint16, congested bool)

	secToken SecurityToken
	timer    l2cap.Timer
}

// ChannelParams describes a channel to attach to a link via
// Core.OpenChannel.
type ChannelParams struct {
	Peer          l2cap.Address
	Transport     l2cap.Transport
	Priority      int
	FCRMode       l2cap.FCRMode
	MPS           int
	Fixed         bool
	FixedIndex    int
	TxDataRate    int
	RxDataRate    int
	LECreditBased bool
	PeerCredits   int
}

func (c *Core) findCCBByCID(cid uint16) (*ccb, error) {
	cb, ok := c.cidIndex[cid]
	if !ok {
		return nil, errors.Wrapf(l2cap.ErrNoChannel, "cid 0x%04x", cid)
	}
	return cb, nil
}

// OpenChannel attaches a new channel to the link for (params.Peer,
// params.Transport). A CCB appears in exactly one LCB's channel list and
// at most one priority group.
func (c *Core) OpenChannel(params ChannelParams) (uint16, error) {
	l := c.findByPeer(params.Peer, params.Transport)
	if l == nil {
		return 0, errors.Wrap(l2cap.ErrNoLink, "l2cap/link: OpenChannel")
	}
	return c.attachChannel(l, params)
}

func (c *Core) attachChannel(l *lcb, params ChannelParams) (uint16, error) {
	cb, err := c.allocCCB()
	if err != nil {
		return 0, err
	}

	cb.lcb = l
	cb.fixed = params.Fixed
	cb.fixedIndex = params.FixedIndex
	cb.priority = params.Priority
	cb.fcrMode = params.FCRMode
	cb.mps = params.MPS
	if cb.mps <= 0 {
		cb.mps = 512
	}
	cb.txDataRate = params.TxDataRate
	cb.rxDataRate = params.RxDataRate
	cb.leCreditBased = params.LECreditBased
	cb.peerCredits = params.PeerCredits
	cb.state = l2cap.ChannelClosed
	cb.secToken = c.tokens.issue()

	if params.Fixed {
		if params.FixedIndex < 0 || params.FixedIndex >= len(l.fixedCCBs) {
			c.freeCCB(cb)
			return 0, errors.Errorf("l2cap/link: fixed index %d out of range", params.FixedIndex)
		}
		cb.localCID = firstFixedCID + uint16(params.FixedIndex)
		l.fixedCCBs[params.FixedIndex] = cb
	} else {
		cb.localCID = c.nextDynamicCID
		c.nextDynamicCID++
		if params.Priority < 0 || params.Priority >= len(l.rrServ) {
			c.freeCCB(cb)
			return 0, errors.Errorf("l2cap/link: priority %d out of range", params.Priority)
		}
		l.rrServ[params.Priority].members = append(l.rrServ[params.Priority].members, cb)
	}

	l.ccbs = append(l.ccbs, cb)
	c.cidIndex[cb.localCID] = cb

	c.adjustChnlAllocation()
	return cb.localCID, nil
}

func (c *Core) allocCCB() (*ccb, error) {
	for _, cb := range c.ccbs {
		if !cb.inUse {
			cb.inUse = true
			cb.xmitHoldQ = nil
			cb.retransQ = nil
			cb.segmentOffset = 0
			cb.waitAck = false
			cb.remoteBusy = false
			cb.windowClosed = false
			cb.txComplete = nil
			cb.congestionChanged = nil
			cb.congested = false
			return cb, nil
		}
	}
	return nil, errors.Wrap(l2cap.ErrNoResources, "l2cap/link: allocate CCB")
}

// freeCCB detaches cb from its link's bookkeeping and returns the slot to
// the pool.
func (c *Core) freeCCB(cb *ccb) {
	if !cb.inUse {
		return
	}
	l := cb.lcb
	if l != nil {
		l.ccbs = removeCCB(l.ccbs, cb)
		if cb.fixed {
			if cb.fixedIndex >= 0 && cb.fixedIndex < len(l.fixedCCBs) && l.fixedCCBs[cb.fixedIndex] == cb {
				l.fixedCCBs[cb.fixedIndex] = nil
			}
		} else if cb.priority >= 0 && cb.priority < len(l.rrServ) {
			g := &l.rrServ[cb.priority]
			g.members = removeCCB(g.members, cb)
			if g.cursor >= len(g.members) {
				g.cursor = 0
			}
		}
		if l.pendingCCB == cb {
			l.pendingCCB = nil
		}
	}
	delete(c.cidIndex, cb.localCID)
	cancelTimer(&cb.timer)
	cb.inUse = false
	cb.lcb = nil
	cb.xmitHoldQ = nil
	cb.retransQ = nil
}

func removeCCB(list []*ccb, target *ccb) []*ccb {
	out := list[:0]
	for _, cb := range list {
		if cb != target {
			out = append(out, cb)
		}
	}
	return out
}

// CloseChannel detaches and frees the channel. Any queued but unsent data
// is discarded; once detached, nothing still references it.
func (c *Core) CloseChannel(cid uint16) error {
	cb, err := c.findCCBByCID(cid)
	if err != nil {
		return err
	}
	c.freeCCB(cb)
	return nil
}

// SetChannelState sets the channel's Open/Closed state, consulted by the
// scheduler's eligibility checks.
func (c *Core) SetChannelState(cid uint16, state l2cap.ChannelState) error {
	cb, err := c.findCCBByCID(cid)
	if err != nil {
		return err
	}
	cb.state = state
	return nil
}

// SetChannelFlowFlags updates the FCR bookkeeping an eRTM-aware channel
// owner maintains externally (wait-for-ack, remote-busy, window-closed).
func (c *Core) SetChannelFlowFlags(cid uint16, waitAck, remoteBusy, windowClosed bool) error {
	cb, err := c.findCCBByCID(cid)
	if err != nil {
		return err
	}
	cb.waitAck = waitAck
	cb.remoteBusy = remoteBusy
	cb.windowClosed = windowClosed
	return nil
}

// SetPeerCredits sets the remaining LE credit-based flow-control credit
// count for the channel (peer_conn_cfg.credits).
func (c *Core) SetPeerCredits(cid uint16, credits int) error {
	cb, err := c.findCCBByCID(cid)
	if err != nil {
		return err
	}
	cb.peerCredits = credits
	return nil
}

// EnqueueRetransmit pushes a segment the channel owner has decided needs
// resending ahead of anything still queued for first transmission.
func (c *Core) EnqueueRetransmit(cid uint16, segment []byte) error {
	cb, err := c.findCCBByCID(cid)
	if err != nil {
		return err
	}
	cb.retransQ = append(cb.retransQ, segment)
	return nil
}

// RegisterTxComplete installs the callback invoked when count buffers
// queued by the channel have been handed to the controller. This only
// fires for basic-mode channels.
func (c *Core) RegisterTxComplete(cid uint16, cb func(cid uint16, count int)) error {
	chnl, err := c.findCCBByCID(cid)
	if err != nil {
		return err
	}
	chnl.txComplete = cb
	return nil
}

// RegisterCongestionChanged installs the callback invoked when the
// channel's queue depth crosses its buffer quota in either direction.
func (c *Core) RegisterCongestionChanged(cid uint16, cb func(cid uint16, congested bool)) error {
	chnl, err := c.findCCBByCID(cid)
	if err != nil {
		return err
	}
	chnl.congestionChanged = cb
	return nil
}

// SetPendingCCB designates the channel as the link's pending CCB,
// preserving it across a disconnect/reconnect race instead of letting
// HandleDisconnectionComplete tear it down with the rest of the link's
// channels. Only one channel per link can be pending; designating a new
// one replaces whatever was previously pending.
func (c *Core) SetPendingCCB(cid uint16) error {
	cb, err := c.findCCBByCID(cid)
	if err != nil {
		return err
	}
	cb.lcb.pendingCCB = cb
	return nil
}

// SecurityToken returns the opaque token issued for this channel, used to
// correlate a later SecurityComplete callback.
func (c *Core) SecurityToken(cid uint16) (SecurityToken, error) {
	cb, err := c.findCCBByCID(cid)
	if err != nil {
		return SecurityToken{}, err
	}
	return cb.secToken, nil
}
