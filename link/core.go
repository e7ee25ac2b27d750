// Package link implements the L2CAP ACL link management core: the LCB/CCB
// pools, the link state machine, the transmit scheduler, the per-link
// channel round-robin, and the credit/ack accountant. The root
// github.com/rigado/l2cap package defines the vocabulary; this package is
// the engine.
package link

import (
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/l2cap"
)

// DefaultTimeouts are the timer durations used when a Core is built
// without an explicit OptTimeouts.
var DefaultTimeouts = l2cap.Timeouts{
	LinkStartup:          30 * time.Second,
	LinkDisconnect:       1500 * time.Millisecond,
	LinkFlowControl:      3 * time.Second,
	LinkConnectExtension: 30 * time.Second,
	DelayCheckSM4:        1000 * time.Millisecond,
	WaitInfoRsp:          3 * time.Second,
	Retry1Sec:            1 * time.Second,
}

const (
	defaultMaxLinks        = 7
	defaultMaxChannels     = 32
	defaultFixedChannels   = 4
	defaultACLBufferCount  = 8
	defaultBLEBufferCount  = 8
	defaultHighPriQuota    = 12
	defaultDataRateQuota   = 2
	defaultDynamicCIDBase  = 0x0040
	firstFixedCID   uint16 = 0x0001
)

var defaultChannelPriorityQuotas = []int{12, 8, 4, 1}

// Core is the L2CB global state plus every LCB/CCB it owns. It's not safe
// for concurrent use: it expects to run on a single cooperative thread and
// relies on that, so there is no internal locking of LCB/CCB fields.
type Core struct {
	logger l2cap.Logger
	collab l2cap.Collaborators
	tmo    l2cap.Timeouts

	maxLinks      int
	maxChannels   int
	numFixedChnls int
	numLMACLBufs  int
	numLMBLEBufs  int // l2cap.SharedBufferPool means "shared with classic"
	highPriQuota  int
	chnlQuotas    []int
	dataRateQuota int

	lcbs []*lcb
	ccbs []*ccb

	nextDynamicCID uint16
	cidIndex       map[uint16]*ccb

	controllerXmitWindow   int
	controllerLEXmitWindow int

	roundRobinQuota, roundRobinUnacked       int
	bleRoundRobinQuota, bleRoundRobinUnacked int
	checkRoundRobin, bleCheckRoundRobin      bool

	// congCbackDepth tracks re-entrancy into the scheduler from inside a
	// TX-complete or congestion callback.
	congCbackDepth int

	tokens *securityTokens
	iot    *iotCounterCache
}

// NewCore builds a Core from the given options, applying package defaults
// for anything left unset.
func NewCore(opts ...l2cap.Option) (*Core, error) {
	c := &Core{
		logger:        l2cap.GetLogger().ChildLogger(map[string]interface{}{"component": "l2c_link"}),
		maxLinks:      defaultMaxLinks,
		maxChannels:   defaultMaxChannels,
		numFixedChnls: defaultFixedChannels,
		numLMACLBufs:  defaultACLBufferCount,
		numLMBLEBufs:  defaultBLEBufferCount,
		highPriQuota:  defaultHighPriQuota,
		chnlQuotas:    append([]int(nil), defaultChannelPriorityQuotas...),
		dataRateQuota: defaultDataRateQuota,
		tmo:           DefaultTimeouts,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(c); err != nil {
			return nil, errors.Wrap(err, "l2cap/link: apply option")
		}
	}

	c.lcbs = make([]*lcb, c.maxLinks)
	for i := range c.lcbs {
		c.lcbs[i] = &lcb{index: i, core: c}
	}
	c.ccbs = make([]*ccb, c.maxChannels)
	for i := range c.ccbs {
		c.ccbs[i] = &ccb{index: i}
	}
	c.cidIndex = make(map[uint16]*ccb, c.maxChannels)
	c.nextDynamicCID = defaultDynamicCIDBase

	c.controllerXmitWindow = c.numLMACLBufs
	if c.numLMBLEBufs != l2cap.SharedBufferPool {
		c.controllerLEXmitWindow = c.numLMBLEBufs
	}

	c.tokens = newSecurityTokens()
	c.iot = newIotCounterCache(c.collab.IotConfig, 128)

	if c.collab.FixedChannels != nil && len(c.collab.FixedChannels) != c.numFixedChnls {
		return nil, errors.Errorf("l2cap/link: fixed channel registry has %d entries, want %d",
			len(c.collab.FixedChannels), c.numFixedChnls)
	}

	return c, nil
}

func (c *Core) log() l2cap.Logger { return c.logger }

func (c *Core) isShareBuffer() bool {
	return c.numLMBLEBufs == l2cap.SharedBufferPool
}

// --- l2cap.CoreOption ---

func (c *Core) SetMaxLinks(n int) error {
	if n <= 0 {
		return errors.New("l2cap/link: max links must be positive")
	}
	c.maxLinks = n
	return nil
}

func (c *Core) SetMaxChannels(n int) error {
	if n <= 0 {
		return errors.New("l2cap/link: max channels must be positive")
	}
	c.maxChannels = n
	return nil
}

func (c *Core) SetFixedChannelCount(n int) error {
	if n < 0 {
		return errors.New("l2cap/link: fixed channel count must be non-negative")
	}
	c.numFixedChnls = n
	return nil
}

func (c *Core) SetACLBufferCount(n int) error {
	if n <= 0 {
		return errors.New("l2cap/link: acl buffer count must be positive")
	}
	c.numLMACLBufs = n
	return nil
}

func (c *Core) SetBLEBufferCount(n int) error {
	if n != l2cap.SharedBufferPool && n <= 0 {
		return errors.New("l2cap/link: ble buffer count must be positive or SharedBufferPool")
	}
	c.numLMBLEBufs = n
	return nil
}

func (c *Core) SetHighPriorityMinQuota(n int) error {
	if n <= 0 {
		return errors.New("l2cap/link: high priority quota must be positive")
	}
	c.highPriQuota = n
	return nil
}

func (c *Core) SetChannelPriorityQuotas(quotas []int) error {
	if len(quotas) == 0 {
		return errors.New("l2cap/link: channel priority quotas must be non-empty")
	}
	c.chnlQuotas = append([]int(nil), quotas...)
	return nil
}

func (c *Core) SetDataRateQuota(n int) error {
	if n <= 0 {
		return errors.New("l2cap/link: data rate quota must be positive")
	}
	c.dataRateQuota = n
	return nil
}

func (c *Core) SetCollaborators(collab l2cap.Collaborators) error {
	c.collab = collab
	return nil
}

func (c *Core) SetLogger(l l2cap.Logger) error {
	if l == nil {
		return errors.New("l2cap/link: logger must not be nil")
	}
	c.logger = l.ChildLogger(map[string]interface{}{"component": "l2c_link"})
	return nil
}

func (c *Core) SetTimeouts(t l2cap.Timeouts) error {
	d := DefaultTimeouts
	for _, f := range [][2]*time.Duration{
		{&t.LinkStartup, &d.LinkStartup},
		{&t.LinkDisconnect, &d.LinkDisconnect},
		{&t.LinkFlowControl, &d.LinkFlowControl},
		{&t.LinkConnectExtension, &d.LinkConnectExtension},
		{&t.DelayCheckSM4, &d.DelayCheckSM4},
		{&t.WaitInfoRsp, &d.WaitInfoRsp},
		{&t.Retry1Sec, &d.Retry1Sec},
	} {
		if *f[0] == 0 {
			*f[0] = *f[1]
		}
	}
	c.tmo = t
	return nil
}
