package link

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/rigado/l2cap"
)

// LinkSnapshot is a JSON-serializable view of one LinkControlBlock, used
// by Core.Snapshot for diagnostics.
type LinkSnapshot struct {
	Peer             string `json:"peer"`
	Transport        string `json:"transport"`
	State            string `json:"state"`
	Role             string `json:"role"`
	Handle           uint16 `json:"handle,omitempty"`
	HandleValid      bool   `json:"handle_valid"`
	LinkXmitQuota    int    `json:"link_xmit_quota"`
	SentNotAcked     int    `json:"sent_not_acked"`
	QueuedBuffers    int    `json:"queued_buffers"`
	ChannelCount     int    `json:"channel_count"`
	DisconnectReason string `json:"disconnect_reason,omitempty"`
}

// ChannelSnapshot is a JSON-serializable view of one ChannelControlBlock,
// used by Core.Snapshot (one entry per live channel).
type ChannelSnapshot struct {
	LocalCID     uint16 `json:"local_cid"`
	Peer         string `json:"peer"`
	Fixed        bool   `json:"fixed"`
	Priority     int    `json:"priority"`
	Open         bool   `json:"open"`
	PeerCredits  int    `json:"peer_credits,omitempty"`
	QueuedSDUs   int    `json:"queued_sdus"`
	RetransCount int    `json:"retransmit_count"`
}

// CoreSnapshot is the full diagnostics dump returned by Core.Snapshot.
type CoreSnapshot struct {
	Links                []LinkSnapshot       `json:"links"`
	Channels             []ChannelSnapshot    `json:"channels"`
	ControllerXmitWindow int                  `json:"controller_xmit_window"`
	ControllerLEXmitWindow int                `json:"controller_le_xmit_window"`
	DisconnectCounts     map[string]discCounters `json:"disconnect_counts,omitempty"`
}

// Snapshot renders the current LCB/CCB pool state as JSON.
func (c *Core) Snapshot() ([]byte, error) {
	var snap CoreSnapshot
	snap.ControllerXmitWindow = c.controllerXmitWindow
	snap.ControllerLEXmitWindow = c.controllerLEXmitWindow

	for _, l := range c.lcbs {
		if !l.inUse {
			continue
		}
		ls := LinkSnapshot{
			Peer:          l.peer.String(),
			Transport:     l.transport.String(),
			State:         l.state.String(),
			Role:          l.role.String(),
			HandleValid:   l.handleValid,
			LinkXmitQuota: l.linkXmitQuota,
			SentNotAcked:  l.sentNotAcked,
			QueuedBuffers: len(l.linkXmitDataQ),
			ChannelCount:  len(l.ccbs),
		}
		if l.handleValid {
			ls.Handle = l.handle
		}
		if l.disconnectReason != l2cap.HCISuccess {
			ls.DisconnectReason = l.disconnectReason.String()
		}
		snap.Links = append(snap.Links, ls)
	}

	for _, cb := range c.ccbs {
		if !cb.inUse {
			continue
		}
		snap.Channels = append(snap.Channels, ChannelSnapshot{
			LocalCID:     cb.localCID,
			Peer:         cb.lcb.peer.String(),
			Fixed:        cb.fixed,
			Priority:     cb.priority,
			Open:         cb.state == l2cap.ChannelOpen,
			PeerCredits:  cb.peerCredits,
			QueuedSDUs:   len(cb.xmitHoldQ),
			RetransCount: len(cb.retransQ),
		})
	}

	if counts := c.iot.Snapshot(); len(counts) > 0 {
		snap.DisconnectCounts = make(map[string]discCounters, len(counts))
		for addr, dc := range counts {
			snap.DisconnectCounts[addr.String()] = dc
		}
	}

	return jsoniter.MarshalIndent(snap, "", "  ")
}
