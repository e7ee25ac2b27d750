package link

import (
	"github.com/pkg/errors"
	"github.com/rigado/l2cap"
)

// HandleConnectionComplete is the BR/EDR HCI Connection Complete handler.
// It allocates an LCB if none exists yet, fans the confirmation or
// failure out to every attached channel's signalling FSM, and applies
// the bonding/collision/holding branches of the link-state transition
// table.
//
// Initiating a fresh ACL connection attempt is outside this core: this
// implementation leaves the LCB in the state a retry would have started
// from and relies on the external caller to re-drive it.
func (c *Core) HandleConnectionComplete(status l2cap.HCIStatus, handle uint16, peer l2cap.Address) {
	info := &l2cap.ConnInfo{Status: status, Address: peer}

	l := c.findByPeer(peer, l2cap.TransportBREDR)
	if l == nil {
		var err error
		l, err = c.allocate(peer, false, l2cap.TransportBREDR)
		if err != nil {
			c.log().Warn("failed to allocate LCB for connection complete")
			return
		}
		l.state = l2cap.StateConnecting
	}

	if l.state == l2cap.StateConnected && status == l2cap.HCIConnectionExists {
		l.log().Warn("connection already exists")
		return
	}
	if l.state != l2cap.StateConnecting {
		l.log().Error("unexpected connection complete for link state")
		if status != l2cap.HCISuccess {
			c.HandleDisconnectionComplete(handle, status)
		}
		return
	}

	c.setHandle(l, handle)

	switch {
	case status == l2cap.HCISuccess:
		l.state = l2cap.StateConnected

		if l.isBonding {
			l.log().Debug("link is dedicated bonding, starting post-bond timer")
			c.arm(&l.lcbTimer, c.tmo.LinkDisconnect, func() { c.linkTimeout(l) })
			return
		}

		cancelTimer(&l.lcbTimer)

		for _, cb := range append([]*ccb(nil), l.ccbs...) {
			c.dispatch(cb, l2cap.EventLPConnectCfm, info)
		}

		if len(l.ccbs) == 0 {
			c.arm(&l.lcbTimer, c.tmo.LinkStartup, func() { c.linkTimeout(l) })
		}

	case status == l2cap.HCIMaxConnections && c.anyLCBDisconnecting():
		l.log().Warn("delaying connection, reached max number of links")
		l.state = l2cap.StateConnectHolding
		c.invalidateHandle(l)

	default:
		l.state = l2cap.StateDisconnecting

		for _, cb := range append([]*ccb(nil), l.ccbs...) {
			c.dispatch(cb, l2cap.EventLPConnectCfmNeg, info)
		}

		l.setDisconnectReason(status)

		if len(l.ccbs) == 0 {
			c.release(l)
		} else {
			l.state = l2cap.StateConnecting
		}
	}
}

// dispatch fans a channel event out to the external signalling FSM, doing
// nothing if no ChannelStateMachine collaborator was supplied (so a Core
// built for scheduler-only tests doesn't need one).
func (c *Core) dispatch(cb *ccb, event l2cap.ChannelEvent, info *l2cap.ConnInfo) {
	if c.collab.Csm != nil {
		c.collab.Csm.Execute(cb.localCID, event, info)
	}
}

func (c *Core) anyLCBDisconnecting() bool {
	return c.findByState(l2cap.StateDisconnecting) != nil
}

// SecurityComplete correlates the security manager's callback to the
// channel that requested it via the opaque token issued by OpenChannel,
// rather than an identity-compared pointer.
func (c *Core) SecurityComplete(peer l2cap.Address, transport l2cap.Transport, token SecurityToken, status l2cap.SecurityStatus) {
	if status == l2cap.SecuritySuccessNoSecurity {
		status = l2cap.SecuritySuccess
	}
	info := &l2cap.ConnInfo{Address: peer}

	l := c.findByPeer(peer, transport)
	if l == nil {
		c.log().Warn("security complete for unknown peer")
		return
	}

	for _, cb := range l.ccbs {
		if cb.secToken != token {
			continue
		}

		switch status {
		case l2cap.SecuritySuccess:
			info.Status = l2cap.HCISuccess
			c.dispatch(cb, l2cap.EventSecComp, info)
		case l2cap.SecurityDelayCheck:
			c.arm(&cb.timer, c.tmo.DelayCheckSM4, func() {
				c.dispatch(cb, l2cap.EventSecCompNeg, &l2cap.ConnInfo{Status: l2cap.HCIPeerUser, Address: peer})
			})
		default:
			info.Status = l2cap.HCIPeerUser
			c.dispatch(cb, l2cap.EventSecCompNeg, info)
		}
		return
	}
}

// HandleDisconnectionComplete is the HCI Disconnection Complete handler.
// It returns false if the handle names no known LCB, which happens when
// the handle actually belongs to an SCO link the core doesn't track.
func (c *Core) HandleDisconnectionComplete(handle uint16, reason l2cap.HCIStatus) bool {
	l := c.findByHandle(handle)
	if l == nil {
		return false
	}

	c.iot.IncrementDiscCount(l.peer)
	if reason == l2cap.HCIConnectionTimeout {
		c.iot.IncrementDiscConnTimeoutCount(l.peer)
	}

	l.setDisconnectReason(reason)
	l.state = l2cap.StateDisconnecting

	if l.transport == l2cap.TransportLE && c.collab.Bookkeeper != nil {
		c.collab.Bookkeeper.DecrementLETopologyMask(l.role)
	}

	for _, cb := range append([]*ccb(nil), l.ccbs...) {
		if cb == l.pendingCCB {
			continue
		}
		c.dispatch(cb, l2cap.EventLPDisconnectInd, nil)
	}

	if l.transport == l2cap.TransportBREDR && c.collab.Bookkeeper != nil {
		c.collab.Bookkeeper.SCORemoved(l.peer)
	}

	lcbFreed := false

	if len(l.ccbs) > 0 || l.pendingCCB != nil {
		l.linkXmitDataQ = nil

		if l.transport == l2cap.TransportLE {
			if c.collab.Bookkeeper != nil {
				c.collab.Bookkeeper.Removed(handle)
			}
			c.invalidateHandle(l)
		} else {
			c.releaseFixedChannels(l, l.pendingCCB)
			if c.collab.Bookkeeper != nil {
				c.collab.Bookkeeper.Removed(l.handle)
			}
			c.invalidateHandle(l)
		}

		// Re-establishing a fresh ACL connection is outside this core;
		// leave the LCB (and its pending CCB) in the state a retry would
		// have started from instead of releasing the slot out from
		// under it.
		l.state = l2cap.StateConnecting
	} else {
		l.pendingCCB = nil
		c.release(l)
		lcbFreed = true
	}

	if lcbFreed {
		if next := c.findByState(l2cap.StateConnectHolding); next != nil {
			next.state = l2cap.StateConnecting
			next.handleValid = false
		}
	}

	return true
}

// linkTimeout is the link timer expiry handler, including the
// security-manager disconnect branch whose five-way tagged result
// replaces status-code polymorphism.
func (c *Core) linkTimeout(l *lcb) {
	l.log().Debug("link timer expired")

	switch l.state {
	case l2cap.StateConnectingWaitSwitch, l2cap.StateConnecting, l2cap.StateConnectHolding, l2cap.StateDisconnecting:
		l.pendingCCB = nil
		for _, cb := range append([]*ccb(nil), l.ccbs...) {
			c.dispatch(cb, l2cap.EventLPDisconnectInd, nil)
		}
		c.release(l)
		return
	}

	if l.state != l2cap.StateConnected {
		return
	}

	if len(l.ccbs) > 0 {
		c.checkSendPkts(l, 0, nil)
		return
	}

	startTimeout := true
	timeout := c.tmo.Retry1Sec

	if c.collab.Security != nil {
		handle, _ := l.Handle()
		switch c.collab.Security.Disconnect(handle, l2cap.HCIPeerUser, "l2cap/link: all channels closed") {
		case l2cap.DisconnectCmdStored:
			startTimeout = false
		case l2cap.DisconnectCmdStarted:
			l.state = l2cap.StateDisconnecting
			timeout = c.tmo.LinkDisconnect
		case l2cap.DisconnectSuccess:
			c.releaseFixedChannels(l, nil)
			l.state = l2cap.StateDisconnecting
			startTimeout = false
		case l2cap.DisconnectBusy:
			startTimeout = false
		default:
			if l.isBonding {
				handle, _ := l.Handle()
				if c.collab.Controller != nil {
					_ = c.collab.Controller.Disconnect(handle, l2cap.HCIPeerUser, "l2cap/link: timer expired while bonding")
				}
				c.releaseFixedChannels(l, nil)
				l.state = l2cap.StateDisconnecting
				timeout = c.tmo.LinkDisconnect
			}
		}
	}

	if startTimeout {
		c.arm(&l.lcbTimer, timeout, func() { c.linkTimeout(l) })
	}
}

// infoRespTimeout is the peer-feature info exchange timeout, armed by
// StartInfoRequest. Re-arming the timer while a channel is still
// mid-security is the signalling FSM's job, not this core's; once the
// timer fires, infoRespTimeout delivers the info-response event
// unconditionally and leaves any re-request to the FSM.
func (c *Core) infoRespTimeout(l *lcb) {
	if !l.w4InfoRsp {
		return
	}
	l.w4InfoRsp = false

	if l.state == l2cap.StateDisconnecting || l.state == l2cap.StateFree {
		return
	}

	info := &l2cap.ConnInfo{Status: l2cap.HCISuccess, Address: l.peer}
	for _, cb := range l.ccbs {
		c.dispatch(cb, l2cap.EventL2CAPInfoRsp, info)
	}
}

// StartInfoRequest arms the wait for an Information Response from the
// peer once the caller has sent the Information Request PDU over the
// wire. Building and sending that PDU is outside this core, matching the
// segmentation boundary documented on nextSegment.
func (c *Core) StartInfoRequest(peer l2cap.Address, transport l2cap.Transport) error {
	l := c.findByPeer(peer, transport)
	if l == nil {
		return errors.Wrap(l2cap.ErrNoLink, "l2cap/link: StartInfoRequest")
	}
	l.w4InfoRsp = true
	c.arm(&l.infoRespTimer, c.tmo.WaitInfoRsp, func() { c.infoRespTimeout(l) })
	return nil
}

// HandleRoleChanged is the hci_role_changed handler. peer is nil when the
// callback fires from an HCI Command Status, before the controller has
// named an address or a role. The role/priority update below is guarded
// on peer being non-nil, but the scan for LCBs waiting on a switch runs
// either way.
func (c *Core) HandleRoleChanged(peer *l2cap.Address, newRole l2cap.Role, status l2cap.HCIStatus) {
	if peer != nil {
		if l := c.findByPeer(*peer, l2cap.TransportBREDR); l != nil {
			l.role = newRole

			if status == l2cap.HCISuccess && c.collab.Power != nil {
				if err := c.collab.Power.SetACLPriority(*peer, l.aclPriority, true); err != nil {
					l.log().Warn("set_acl_priority failed")
				}
			}
		}
	}

	// Any LCB mid-switch resumes from the state a fresh connect attempt
	// would have started from; actually re-issuing that attempt is the
	// external caller's job.
	for _, l := range c.lcbs {
		if l.inUse && l.state == l2cap.StateConnectingWaitSwitch {
			l.state = l2cap.StateConnecting
		}
	}
}

// HandlePinCodeRequest is the pin_code_request handler: a BR/EDR link
// still waiting on its first channel gets its link timer extended so the
// extra pairing round trip doesn't trip the ordinary startup timeout.
func (c *Core) HandlePinCodeRequest(peer l2cap.Address) {
	l := c.findByPeer(peer, l2cap.TransportBREDR)
	if l == nil || len(l.ccbs) > 0 {
		return
	}
	c.arm(&l.lcbTimer, c.tmo.LinkConnectExtension, func() { c.linkTimeout(l) })
}

// UpdateSecurityAction is the LE side's role/security bookkeeping
// (l2cble_update_sec_act). It returns ErrNoLink when no LCB exists for
// the peer instead of dereferencing a nil pointer.
func (c *Core) UpdateSecurityAction(peer l2cap.Address, secAct uint16) error {
	l := c.findByPeer(peer, l2cap.TransportLE)
	if l == nil {
		return errors.Wrap(l2cap.ErrNoLink, "l2cap/link: UpdateSecurityAction")
	}
	l.secAct = secAct
	return nil
}
