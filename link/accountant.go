package link

import "github.com/rigado/l2cap"

// PacketsCompleted is the credit/ack accountant's entry point, driven by
// the controller's Number Of Completed Packets event. It credits back the
// transport's controller window and the link's own unacked counter,
// re-drives the scheduler, and, for a high-priority link with a round
// robin backlog on its transport, also kicks a bare round-robin sweep so
// low-priority links blocked behind it get serviced once room frees up.
func (c *Core) PacketsCompleted(handle uint16, numSent int) {
	l := c.findByHandle(handle)
	if l == nil {
		return
	}

	if l.sentNotAcked >= numSent {
		l.sentNotAcked -= numSent
	} else {
		l.sentNotAcked = 0
	}

	switch l.transport {
	case l2cap.TransportBREDR:
		c.controllerXmitWindow += numSent
		if l.isRoundRobin() {
			c.updateOutstandingClassicPackets(numSent)
		}
	case l2cap.TransportLE:
		c.controllerLEXmitWindow += numSent
		if l.isRoundRobin() {
			c.updateOutstandingLEPackets(numSent)
		}
	default:
		c.log().Error("packets completed for link with unknown transport")
		return
	}

	c.checkSendPkts(l, 0, nil)

	if l.isHighPriority() {
		switch l.transport {
		case l2cap.TransportLE:
			if c.bleCheckRoundRobin && c.bleRoundRobinUnacked < c.bleRoundRobinQuota {
				c.checkSendPkts(nil, 0, nil)
			}
		case l2cap.TransportBREDR:
			if c.checkRoundRobin && c.roundRobinUnacked < c.roundRobinQuota {
				c.checkSendPkts(nil, 0, nil)
			}
		}
	}
}

func (c *Core) updateOutstandingClassicPackets(numSent int) {
	if c.roundRobinUnacked >= numSent {
		c.roundRobinUnacked -= numSent
	} else {
		c.roundRobinUnacked = 0
	}
}

func (c *Core) updateOutstandingLEPackets(numSent int) {
	if c.bleRoundRobinUnacked >= numSent {
		c.bleRoundRobinUnacked -= numSent
	} else {
		c.bleRoundRobinUnacked = 0
	}
}
