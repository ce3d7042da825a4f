package message

import (
	"fmt"
	"time"
)

// MsgType classifies how a message reached this node.
type MsgType string

const (
	// MsgTypeChannel is a message received on a shared channel slot.
	MsgTypeChannel MsgType = "CHANNEL"
	// MsgTypeDirect is a message addressed to this node by a known contact.
	MsgTypeDirect MsgType = "DIRECT"
)

// Valid reports whether t is a known message type.
func (t MsgType) Valid() bool {
	return t == MsgTypeChannel || t == MsgTypeDirect
}

// TxtType classifies the message body.
type TxtType string

const (
	// TxtTypePlain is ordinary chat text.
	TxtTypePlain TxtType = "PLAIN"
	// TxtTypeSigned is text carrying a sender signature.
	TxtTypeSigned TxtType = "SIGNED"
	// TxtTypeOther is any body class this service does not interpret.
	TxtTypeOther TxtType = "OTHER"
)

// Valid reports whether t is a known text type.
func (t TxtType) Valid() bool {
	return t == TxtTypePlain || t == TxtTypeSigned || t == TxtTypeOther
}

// DirectChannelIdx is the channel_idx value stored for direct messages,
// which have no channel slot.
const DirectChannelIdx = -1

// Record is one normalized message as persisted and broadcast.
type Record struct {
	// ID is the auto-incremented primary key for the message row.
	ID int64 `json:"id"`

	// ReceivedAt is when this node received the message (UTC, server clock).
	ReceivedAt time.Time `json:"received_at"`

	// MsgType is CHANNEL or DIRECT.
	MsgType MsgType `json:"msg_type"`

	// ChannelIdx is the channel slot for CHANNEL messages,
	// DirectChannelIdx for DIRECT.
	ChannelIdx int `json:"channel_idx"`

	// ChannelName is the resolved channel name, empty when unresolved.
	ChannelName string `json:"channel_name,omitempty"`

	// SenderTimestamp is the sender's clock at transmit time (Unix seconds).
	SenderTimestamp int64 `json:"sender_timestamp"`

	// SenderPubkeyPrefix is the lowercase hex public key prefix for DIRECT
	// messages, empty for CHANNEL.
	SenderPubkeyPrefix string `json:"sender_pubkey_prefix,omitempty"`

	// SenderName is the resolved sender name, empty when unresolved.
	SenderName string `json:"sender_name,omitempty"`

	// PathLen is the number of mesh hops the message traversed.
	PathLen int `json:"path_len"`

	// SNR is the signal-to-noise ratio at the receiving radio, in dB.
	SNR float64 `json:"snr"`

	// Text is the message body.
	Text string `json:"text"`

	// TxtType is PLAIN, SIGNED or OTHER.
	TxtType TxtType `json:"txt_type"`

	// Signature is the hex-encoded sender signature for SIGNED messages.
	Signature string `json:"signature,omitempty"`
}

// IdentityKey returns the natural identity of the message. Two records
// with equal identity keys are the same logical message regardless of
// when or how often this node received it. The key mirrors the columns
// the merge job partitions on.
func (r Record) IdentityKey() string {
	return fmt.Sprintf("%s|%d|%d|%s|%s",
		r.MsgType, r.ChannelIdx, r.SenderTimestamp, r.SenderPubkeyPrefix, r.Text)
}
