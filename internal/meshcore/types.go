package meshcore

import (
	"encoding/hex"
	"time"
)

// RawKind identifies the transport class of a received message.
type RawKind uint8

const (
	// RawKindChannel is a message received on a shared channel slot.
	RawKindChannel RawKind = iota + 1
	// RawKindDirect is a message addressed to this node by a contact.
	RawKindDirect
)

// Wire values for the text type byte carried in message frames.
const (
	TxtTypePlain  = 0x00
	TxtTypeCLI    = 0x01
	TxtTypeSigned = 0x02
)

// PubKeyPrefixLen is the number of public key bytes the radio includes
// to identify the sender of a direct message.
const PubKeyPrefixLen = 6

// PubKeyLen is the length of a full contact public key.
const PubKeyLen = 32

// RawMessage is a single message as drained from the device queue.
//
// Fields are populated from the wire frame without interpretation.
// ChannelIdx is meaningful only for RawKindChannel, PubKeyPrefix and
// Signature only for RawKindDirect.
type RawMessage struct {
	Kind            RawKind
	ChannelIdx      int
	PubKeyPrefix    []byte // PubKeyPrefixLen bytes
	SenderTimestamp int64  // unix seconds, sender's clock
	PathLen         int    // mesh hops traversed
	SNR             float64

	TxtType   int
	Text      string
	Signature []byte
}

// ChannelInfo describes one configured channel slot on the radio.
// The channel secret never leaves the client.
type ChannelInfo struct {
	Index int
	Name  string
}

// ContactInfo describes one entry in the radio's contact list.
type ContactInfo struct {
	PubKey []byte // PubKeyLen bytes
	Name   string
}

// PubKeyPrefix returns the lowercase hex encoding of the first
// PubKeyPrefixLen bytes of the contact's public key, matching the
// prefix carried on direct message frames.
func (c ContactInfo) PubKeyPrefix() string {
	if len(c.PubKey) < PubKeyPrefixLen {
		return hex.EncodeToString(c.PubKey)
	}
	return hex.EncodeToString(c.PubKey[:PubKeyPrefixLen])
}

// SelfInfo describes the radio itself, reported in response to session
// start.
type SelfInfo struct {
	ProtocolVersion int
	NodeName        string
}

// Stats holds client counters. Snapshot via Client.Stats.
type Stats struct {
	CommandsSent     uint64
	MessagesReceived uint64
	ErrorsTotal      uint64
	LastActivity     time.Time
	Connected        bool
}
