// Package l2cap defines the shared vocabulary for an L2CAP ACL link
// management core: addresses, link/channel state enums, the external
// collaborator interfaces the core depends on, and the functional options
// used to configure it.
//
// The engine itself, the LCB/CCB pools, the link state machine, the
// transmit scheduler, and the credit accountant, lives in the link
// subpackage.
package l2cap
