package link

import "github.com/rigado/l2cap"

// txCompleteInfo carries the basic-mode fixed-channel TX completion
// callback a dequeued buffer needs invoked once it's handed to the lower
// layer.
type txCompleteInfo struct {
	cid      uint16
	count    int
	callback func(cid uint16, count int)
}

// eligible reports whether cb currently has something it's allowed to
// send: LE credit-based channels gate purely on a non-empty hold queue;
// eRTM channels gate on wait-ack/remote-busy and window closure; basic
// mode gates only on a non-empty hold queue.
func (cb *ccb) eligible() bool {
	if cb.lcb.transport == l2cap.TransportLE {
		return len(cb.xmitHoldQ) > 0
	}
	if cb.fcrMode != l2cap.FCRBasic {
		if cb.waitAck || cb.remoteBusy {
			return false
		}
		if len(cb.retransQ) == 0 {
			if len(cb.xmitHoldQ) == 0 {
				return false
			}
			if cb.fcrMode == l2cap.FCRERTM && cb.windowClosed {
				return false
			}
		}
		return true
	}
	return len(cb.xmitHoldQ) > 0
}

// checkChannelCongestion flags a channel congested once its queued
// segment count reaches its data-rate-derived buffer quota, and
// uncongested once it drains back below it. Only the transition is
// reported, and the callback runs under the same congCbackDepth
// re-entrancy guard as a TxComplete callback.
func (c *Core) checkChannelCongestion(cb *ccb) {
	if cb.buffQuota <= 0 {
		return
	}

	queued := len(cb.xmitHoldQ) + len(cb.retransQ)
	congested := queued >= cb.buffQuota
	if congested == cb.congested {
		return
	}
	cb.congested = congested

	if cb.congestionChanged == nil {
		return
	}
	c.congCbackDepth++
	cb.congestionChanged(cb.localCID, congested)
	c.congCbackDepth--
}

// getNextChannelInRR picks the next channel to serve on the link,
// advancing the per-priority-group serve cursor and quota as it goes.
func (c *Core) getNextChannelInRR(l *lcb) *ccb {
	numPri := len(l.rrServ)
	if numPri == 0 {
		return nil
	}

	var served *ccb
	for i := 0; i < numPri && served == nil; i++ {
		g := &l.rrServ[l.rrPri]
		n := len(g.members)
		for j := 0; j < n && served == nil; j++ {
			if g.cursor >= len(g.members) {
				g.cursor = 0
			}
			cb := g.members[g.cursor]

			if g.cursor+1 >= len(g.members) {
				g.cursor = 0
			} else {
				g.cursor++
			}

			if cb.state != l2cap.ChannelOpen {
				continue
			}
			if !cb.eligible() {
				continue
			}

			served = cb
			g.quota--
		}

		if g.quota <= 0 || served == nil {
			l.rrPri = (l.rrPri + 1) % numPri
			l.rrServ[l.rrPri].quota = l.rrServ[l.rrPri].base
		}
	}
	return served
}

// nextSegment chunks the channel's next pending SDU into an MPS-sized
// piece, preferring anything already queued for retransmission. This is
// pure byte chunking, not L2CAP signalling PDU construction; the channel
// owner builds the PDU headers before or after this boundary as
// appropriate.
func (c *Core) nextSegment(cb *ccb) *Buffer {
	if len(cb.retransQ) > 0 {
		data := cb.retransQ[0]
		cb.retransQ = cb.retransQ[1:]
		return &Buffer{Data: data, CID: cb.localCID}
	}
	if len(cb.xmitHoldQ) == 0 {
		return nil
	}

	sdu := cb.xmitHoldQ[0]
	mps := cb.mps
	if mps <= 0 || mps > len(sdu) {
		mps = len(sdu)
	}
	start := cb.segmentOffset
	end := start + mps
	if end >= len(sdu) {
		end = len(sdu)
		cb.xmitHoldQ = cb.xmitHoldQ[1:]
		cb.segmentOffset = 0
	} else {
		cb.segmentOffset = end
	}
	return &Buffer{Data: sdu[start:end], CID: cb.localCID}
}

// getNextBufferToSend picks the next buffer to hand to the controller for
// l, serving fixed channels ahead of the dynamic-channel round-robin.
func (c *Core) getNextBufferToSend(l *lcb) (*Buffer, *txCompleteInfo) {
	for i, fc := range l.fixedCCBs {
		if fc == nil {
			continue
		}

		if fc.fcrMode != l2cap.FCRBasic {
			if fc.waitAck || fc.remoteBusy {
				continue
			}
			if len(fc.retransQ) == 0 {
				if len(fc.xmitHoldQ) == 0 {
					continue
				}
				if fc.fcrMode == l2cap.FCRERTM && fc.windowClosed {
					continue
				}
			}
			if buf := c.nextSegment(fc); buf != nil {
				c.checkChannelCongestion(fc)
				return buf, nil
			}
			continue
		}

		if len(fc.xmitHoldQ) == 0 {
			continue
		}
		buf := &Buffer{Data: fc.xmitHoldQ[0], CID: fc.localCID}
		fc.xmitHoldQ = fc.xmitHoldQ[1:]
		c.checkChannelCongestion(fc)

		var cbi *txCompleteInfo
		if i < len(c.collab.FixedChannels) && c.collab.FixedChannels[i].OnTxComplete != nil {
			cbi = &txCompleteInfo{cid: fc.localCID, count: 1, callback: c.collab.FixedChannels[i].OnTxComplete}
		}
		return buf, cbi
	}

	serve := c.getNextChannelInRR(l)
	if serve == nil {
		return nil, nil
	}

	var buf *Buffer
	if serve.lcb.transport == l2cap.TransportLE {
		if serve.peerCredits == 0 {
			return nil, nil
		}
		buf = c.nextSegment(serve)
		if buf == nil {
			return nil, nil
		}
		serve.peerCredits--
	} else if serve.fcrMode != l2cap.FCRBasic {
		buf = c.nextSegment(serve)
		if buf == nil {
			return nil, nil
		}
	} else {
		if len(serve.xmitHoldQ) == 0 {
			return nil, nil
		}
		buf = &Buffer{Data: serve.xmitHoldQ[0], CID: serve.localCID}
		serve.xmitHoldQ = serve.xmitHoldQ[1:]
	}

	c.checkChannelCongestion(serve)

	if serve.txComplete != nil && serve.fcrMode != l2cap.FCRERTM {
		serve.txComplete(serve.localCID, 1)
	}
	return buf, nil
}
