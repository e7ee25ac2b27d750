package link

import "github.com/rigado/l2cap"

// adjustAllocation recomputes every connected link's HCI transmit quota
// whenever a link is created or released: high-priority links get a
// fixed per-link quota, low-priority links split whatever's left, falling
// back to pure round robin when there isn't enough to give every
// low-priority link at least one buffer.
func (c *Core) adjustAllocation() {
	numUsed := 0
	for _, l := range c.lcbs {
		if l.inUse {
			numUsed++
		}
	}
	if numUsed == 0 {
		c.controllerXmitWindow = c.numLMACLBufs
		c.roundRobinQuota = 0
		c.roundRobinUnacked = 0
		return
	}

	controllerXmitQuota := c.numLMACLBufs
	hiPriLinkQuota := c.highPriQuota
	shareBuffer := c.isShareBuffer()

	numHiPri, numLoPri := 0, 0
	for _, l := range c.lcbs {
		if !l.inUse {
			continue
		}
		if !shareBuffer && l.transport == l2cap.TransportLE {
			continue
		}
		if l.isHighPriority() {
			numHiPri++
		} else {
			numLoPri++
		}
	}

	loQuotaFloor := 0
	if numLoPri > 0 {
		loQuotaFloor = 1
	}
	for numHiPri*hiPriLinkQuota+loQuotaFloor > controllerXmitQuota && hiPriLinkQuota > 0 {
		hiPriLinkQuota--
	}

	hiQuota := numHiPri * hiPriLinkQuota
	loQuota := 1
	if hiQuota < controllerXmitQuota {
		loQuota = controllerXmitQuota - hiQuota
	}

	var qq, qqRemainder int
	switch {
	case numLoPri > loQuota:
		c.roundRobinQuota = loQuota
		qq, qqRemainder = 0, 0
	case numLoPri > 0:
		c.roundRobinQuota = 0
		c.roundRobinUnacked = 0
		qq = loQuota / numLoPri
		qqRemainder = loQuota % numLoPri
	default:
		c.roundRobinQuota = 0
		c.roundRobinUnacked = 0
		qq, qqRemainder = 1, 1
	}

	for _, l := range c.lcbs {
		if !l.inUse {
			continue
		}
		if !shareBuffer && l.transport == l2cap.TransportLE {
			continue
		}

		if l.isHighPriority() {
			l.linkXmitQuota = hiPriLinkQuota
		} else {
			if l.linkXmitQuota > 0 && qq == 0 {
				c.roundRobinUnacked += l.sentNotAcked
			}
			l.linkXmitQuota = qq
			if qqRemainder > 0 {
				l.linkXmitQuota++
				qqRemainder--
			}
		}

		if l.state == l2cap.StateConnected && len(l.linkXmitDataQ) > 0 && l.sentNotAcked < l.linkXmitQuota {
			c.arm(&l.lcbTimer, c.tmo.LinkFlowControl, func() { c.checkSendPkts(l, 0, nil) })
		}
	}
}

// adjustChnlAllocation recomputes every channel's buffer quota from its
// declared data rate and re-checks its congestion state against the new
// quota.
func (c *Core) adjustChnlAllocation() {
	for _, cb := range c.ccbs {
		if !cb.inUse {
			continue
		}
		cb.buffQuota = c.dataRateQuota * (cb.txDataRate + cb.rxDataRate)
		c.checkChannelCongestion(cb)
	}
}

// checkPowerMode is the park-to-active gate: a BR/EDR link with something
// to send that's reported as pending-active by the PowerMonitor
// collaborator should not be serviced yet. LE links never consult it.
func (c *Core) checkPowerMode(l *lcb) bool {
	if l.transport == l2cap.TransportLE {
		return false
	}

	needActive := len(l.linkXmitDataQ) > 0
	if !needActive {
		for _, cb := range l.ccbs {
			if len(cb.xmitHoldQ) > 0 {
				needActive = true
				break
			}
		}
	}
	if !needActive {
		return false
	}

	if c.collab.Power == nil {
		return false
	}
	mode, ok := c.collab.Power.ReadPowerMode(l.peer)
	if ok && mode == l2cap.PowerPendingActive {
		return true
	}
	return false
}

// sendToLower hands a buffer to the HCI data sink, debiting the
// appropriate controller transmit window and round-robin-unacked counter.
func (c *Core) sendToLower(l *lcb, buf *Buffer, cbi *txCompleteInfo) {
	if l.linkXmitQuota == 0 {
		if l.transport == l2cap.TransportLE {
			c.bleRoundRobinUnacked++
		} else {
			c.roundRobinUnacked++
		}
	}
	l.sentNotAcked++

	buf.LayerSpecific = 0
	if l.handleValid {
		buf.Handle = l.handle
	}

	if c.collab.DataSink != nil {
		if l.transport == l2cap.TransportLE {
			c.controllerLEXmitWindow--
			_ = c.collab.DataSink.SendBLE(l.peer, buf.Data)
		} else {
			c.controllerXmitWindow--
			_ = c.collab.DataSink.SendBREDR(l.peer, buf.Data)
		}
	} else if l.transport == l2cap.TransportLE {
		c.controllerLEXmitWindow--
	} else {
		c.controllerXmitWindow--
	}

	if cbi != nil && cbi.callback != nil {
		// The callback may synchronously enqueue more data and call back
		// into checkSendPkts; congCbackDepth breaks that recursion.
		c.congCbackDepth++
		cbi.callback(cbi.cid, cbi.count)
		c.congCbackDepth--
	}
}

// checkSendPkts is the transmit scheduler's main entry point. localCID/buf
// let a caller push a single buffer onto the link queue and ask for it to
// be serviced in the same call; passing a nil lcb asks for a round-robin
// sweep across every link.
func (c *Core) checkSendPkts(l *lcb, localCID uint16, buf *Buffer) {
	singleWrite := false

	if buf != nil {
		buf.CID = localCID
		if localCID != 0 {
			singleWrite = true
		}
		buf.LayerSpecific = 0
		l.linkXmitDataQ = append(l.linkXmitDataQ, buf)

		if l.linkXmitQuota == 0 {
			if l.transport == l2cap.TransportLE {
				c.bleCheckRoundRobin = true
			} else {
				c.checkRoundRobin = true
			}
		}
	}

	if c.congCbackDepth > 0 {
		c.log().Warn("skipping checkSendPkts, congestion callback in progress")
		return
	}

	if l == nil || l.linkXmitQuota == 0 {
		c.roundRobinSweep(l, singleWrite)
		return
	}

	if l.state != l2cap.StateConnected || c.checkPowerMode(l) {
		c.log().Warn("cannot send, link not connected or power mode pending")
		return
	}

	for (l.transport == l2cap.TransportBREDR && c.controllerXmitWindow != 0 ||
		l.transport == l2cap.TransportLE && c.controllerLEXmitWindow != 0) &&
		l.sentNotAcked < l.linkXmitQuota {
		if len(l.linkXmitDataQ) == 0 {
			break
		}
		next := l.linkXmitDataQ[0]
		l.linkXmitDataQ = l.linkXmitDataQ[1:]
		c.sendToLower(l, next, nil)
	}

	if !singleWrite {
		for (l.transport == l2cap.TransportBREDR && c.controllerXmitWindow != 0 ||
			l.transport == l2cap.TransportLE && c.controllerLEXmitWindow != 0) &&
			l.sentNotAcked < l.linkXmitQuota {
			next, cbi := c.getNextBufferToSend(l)
			if next == nil {
				break
			}
			c.sendToLower(l, next, cbi)
		}
	}

	if len(l.linkXmitDataQ) > 0 && l.sentNotAcked < l.linkXmitQuota {
		c.arm(&l.lcbTimer, c.tmo.LinkFlowControl, func() { c.checkSendPkts(l, 0, nil) })
	}
}

// roundRobinSweep is the "not enough buffers for every link to have one"
// branch of checkSendPkts: round-robin across every link's pool slot,
// classic and LE windows tracked independently.
func (c *Core) roundRobinSweep(start *lcb, singleWrite bool) {
	c.log().Debug("round robin sweep")

	n := len(c.lcbs)
	if n == 0 {
		return
	}
	startIdx := 0
	if start != nil {
		startIdx = start.index
		if !singleWrite {
			startIdx = (startIdx + 1) % n
		}
	}

	var lastTransport l2cap.Transport
	for i := 0; i < n; i++ {
		l := c.lcbs[(startIdx+i)%n]
		lastTransport = l.transport

		if l.transport == l2cap.TransportBREDR &&
			(c.controllerXmitWindow == 0 || c.roundRobinUnacked >= c.roundRobinQuota) {
			continue
		}
		if l.transport == l2cap.TransportLE &&
			(c.bleRoundRobinUnacked >= c.bleRoundRobinQuota || c.controllerLEXmitWindow == 0) {
			continue
		}

		if !l.inUse || l.state != l2cap.StateConnected || l.linkXmitQuota != 0 || c.checkPowerMode(l) {
			continue
		}

		if len(l.linkXmitDataQ) > 0 {
			next := l.linkXmitDataQ[0]
			l.linkXmitDataQ = l.linkXmitDataQ[1:]
			c.sendToLower(l, next, nil)
		} else if singleWrite {
			break
		} else if next, cbi := c.getNextBufferToSend(l); next != nil {
			c.sendToLower(l, next, cbi)
		}
	}

	if c.controllerXmitWindow > 0 && c.roundRobinUnacked < c.roundRobinQuota && lastTransport == l2cap.TransportBREDR {
		c.checkRoundRobin = false
	}
	if c.controllerLEXmitWindow > 0 && c.bleRoundRobinUnacked < c.bleRoundRobinQuota && lastTransport == l2cap.TransportLE {
		c.bleCheckRoundRobin = false
	}
}

// SegmentsXmitted re-queues a segment whose transmission the lower layer
// reported complete at the front of the link's transmit queue, then
// re-drives the scheduler.
func (c *Core) SegmentsXmitted(handle uint16, buf *Buffer) {
	l := c.findByHandle(handle)
	if l == nil {
		c.log().Warn("segment complete for unknown handle")
		return
	}
	if l.state != l2cap.StateConnected {
		c.log().Info("segment complete for unconnected handle")
		return
	}

	l.linkXmitDataQ = append([]*Buffer{buf}, l.linkXmitDataQ...)
	c.checkSendPkts(l, 0, nil)
}

// ModeChangeToActive re-drives the scheduler for a link that just came
// back from park or sniff mode.
func (c *Core) ModeChangeToActive(peer l2cap.Address) {
	l := c.findByPeer(peer, l2cap.TransportBREDR)
	if l == nil {
		return
	}
	c.checkSendPkts(l, 0, nil)
}
