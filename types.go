package l2cap

import (
	"fmt"
	"time"
)

// Transport distinguishes the BR/EDR (Classic) and LE logical transports.
// Every LinkControlBlock belongs to exactly one.
type Transport uint8

const (
	TransportBREDR Transport = iota
	TransportLE
)

func (t Transport) String() string {
	switch t {
	case TransportBREDR:
		return "BR/EDR"
	case TransportLE:
		return "LE"
	default:
		return fmt.Sprintf("Transport(%d)", uint8(t))
	}
}

// Role is the link-layer role of the local device on a given link.
type Role uint8

const (
	RoleCentral Role = iota
	RolePeripheral
)

func (r Role) String() string {
	if r == RoleCentral {
		return "central"
	}
	return "peripheral"
}

// Priority is the per-link ACL priority used by the transmit scheduler's
// quota assignment.
type Priority uint8

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

func (p Priority) String() string {
	if p == PriorityHigh {
		return "high"
	}
	return "normal"
}

// LinkState is the state of a LinkControlBlock's connection state machine.
type LinkState uint8

const (
	StateFree LinkState = iota
	StateConnecting
	StateConnectingWaitSwitch
	StateConnectHolding
	StateConnected
	StateDisconnecting
)

func (s LinkState) String() string {
	switch s {
	case StateFree:
		return "Free"
	case StateConnecting:
		return "Connecting"
	case StateConnectingWaitSwitch:
		return "ConnectingWaitSwitch"
	case StateConnectHolding:
		return "ConnectHolding"
	case StateConnected:
		return "Connected"
	case StateDisconnecting:
		return "Disconnecting"
	default:
		return fmt.Sprintf("LinkState(%d)", uint8(s))
	}
}

// ChannelState is the small slice of per-channel FSM state the scheduler
// needs to know about. The full signalling FSM lives outside this core;
// it drives ChannelState via ChannelControlBlock setters.
type ChannelState uint8

const (
	ChannelClosed ChannelState = iota
	ChannelOpen
)

// FCRMode is the flow-control/retransmission mode of a BR/EDR dynamic or
// fixed channel. LE credit-based channels don't have an FCR mode; they're
// modeled separately via PeerCredits.
type FCRMode uint8

const (
	FCRBasic FCRMode = iota
	FCRERTM
)

// HCIStatus mirrors the small vocabulary of controller status codes this
// core branches on. Any other non-zero value is treated as a
// generic failure.
type HCIStatus uint8

const (
	HCISuccess HCIStatus = 0x00
	// HCIConnectionExists signals a collision: the controller reports a
	// connection complete for a link the host already considers connected,
	// or already has CCBs queued for it.
	HCIConnectionExists HCIStatus = 0x0b
	// HCIMaxConnections signals the controller has no more ACL link slots.
	HCIMaxConnections HCIStatus = 0x09
	// HCIConnectionTimeout is the bucketed disconnect reason recognised by
	// the IoT counter store.
	HCIConnectionTimeout HCIStatus = 0x08
	// HCIPeerUser is the disconnect reason this core hands to the security
	// manager/controller when it initiates a disconnect itself.
	HCIPeerUser HCIStatus = 0x13
)

func (s HCIStatus) String() string {
	switch s {
	case HCISuccess:
		return "Success"
	case HCIConnectionExists:
		return "ConnectionExists"
	case HCIMaxConnections:
		return "MaxConnections"
	case HCIConnectionTimeout:
		return "ConnectionTimeout"
	default:
		return fmt.Sprintf("HCIStatus(0x%02x)", uint8(s))
	}
}

// SecurityStatus is the result reported by the external SecurityManager
// collaborator to SecurityComplete.
type SecurityStatus uint8

const (
	SecuritySuccess SecurityStatus = iota
	// SecuritySuccessNoSecurity is normalized to SecuritySuccess before
	// dispatch.
	SecuritySuccessNoSecurity
	SecurityDelayCheck
	SecurityFailed
)

// DisconnectStatus is the five-way tagged result of asking the security
// manager to disconnect a link, replacing status-code polymorphism with a
// total, explicit enum.
type DisconnectStatus uint8

const (
	DisconnectCmdStarted DisconnectStatus = iota
	DisconnectCmdStored
	DisconnectSuccess
	DisconnectBusy
	DisconnectOther
)

// ChannelEvent is an event delivered to the external channel-FSM
// collaborator.
type ChannelEvent uint8

const (
	EventLPConnectCfm ChannelEvent = iota
	EventLPConnectCfmNeg
	EventLPDisconnectInd
	EventSecComp
	EventSecCompNeg
	EventL2CAPInfoRsp
)

func (e ChannelEvent) String() string {
	switch e {
	case EventLPConnectCfm:
		return "LP_CONNECT_CFM"
	case EventLPConnectCfmNeg:
		return "LP_CONNECT_CFM_NEG"
	case EventLPDisconnectInd:
		return "LP_DISCONNECT_IND"
	case EventSecComp:
		return "SEC_COMP"
	case EventSecCompNeg:
		return "SEC_COMP_NEG"
	case EventL2CAPInfoRsp:
		return "L2CAP_INFO_RSP"
	default:
		return fmt.Sprintf("ChannelEvent(%d)", uint8(e))
	}
}

// ConnInfo is the payload passed alongside connect/disconnect/security
// channel events.
type ConnInfo struct {
	Status  HCIStatus
	Address Address
}

// Timeouts bundles every named duration constant. Zero fields are
// replaced with the package defaults (see link.DefaultTimeouts).
type Timeouts struct {
	// LinkStartup guards a freshly-connected link with no channels yet
	// (LINK_STARTUP_TOUT).
	LinkStartup time.Duration
	// LinkDisconnect bounds a security-manager-initiated disconnect
	// (LINK_DISCONNECT_TIMEOUT_MS).
	LinkDisconnect time.Duration
	// LinkFlowControl re-pokes the scheduler after a quota change
	// (LINK_FLOW_CONTROL_TIMEOUT_MS).
	LinkFlowControl time.Duration
	// LinkConnectExtension extends the startup timer on a pin-code
	// request (LINK_CONNECT_EXT_TIMEOUT_MS).
	LinkConnectExtension time.Duration
	// DelayCheckSM4 guards BTM_DELAY_CHECK (DELAY_CHECK_SM4_TIMEOUT_MS).
	DelayCheckSM4 time.Duration
	// WaitInfoRsp guards the peer-feature info exchange
	// (WAIT_INFO_RSP_TIMEOUT_MS).
	WaitInfoRsp time.Duration
	// Retry1Sec is the generic one-second retry backoff (1SEC_TIMEOUT_MS).
	Retry1Sec time.Duration
}
