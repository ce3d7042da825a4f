package meshcore

import (
	"encoding/binary"
	"fmt"
)

// Companion protocol framing. Every frame on the wire is:
//
//	[size uint16 BE][code uint8][payload ...]
//
// where size counts the code byte plus the payload, excluding the size
// field itself. Commands flow host to radio, responses radio to host;
// response codes have the high bit set.
const (
	cmdAppStart       = 0x01
	cmdSendChannelMsg = 0x02
	cmdGetContacts    = 0x04
	cmdGetChannel     = 0x05
	cmdSyncNextMsg    = 0x0A

	respOK            = 0x80
	respErr           = 0x81
	respSelfInfo      = 0x82
	respContactsStart = 0x84
	respContact       = 0x85
	respEndOfContacts = 0x86
	respChannelInfo   = 0x87
	respNoMoreMsgs    = 0x88
	respChannelMsg    = 0x89
	respContactMsg    = 0x8A
)

const (
	// protocolVersion is the companion protocol revision this client
	// speaks, sent with session start.
	protocolVersion = 1

	// maxFrameSize bounds a single frame body. Anything larger means the
	// stream is desynced, because no companion frame approaches this.
	maxFrameSize = 4096

	// channelSecretLen is the size of the shared channel secret embedded
	// in channel info frames. The secret is parsed past, never stored.
	channelSecretLen = 16
)

// encodeFrame wraps a command code and payload with the size header.
func encodeFrame(code byte, payload []byte) []byte {
	size := 1 + len(payload)
	buf := make([]byte, 2+size)
	binary.BigEndian.PutUint16(buf[0:2], uint16(size))
	buf[2] = code
	copy(buf[3:], payload)
	return buf
}

// splitFrame separates a frame body (size header already consumed) into
// response code and payload.
func splitFrame(body []byte) (byte, []byte, error) {
	if len(body) < 1 {
		return 0, nil, fmt.Errorf("%w: empty frame body", ErrInvalidFrame)
	}
	return body[0], body[1:], nil
}

// appStartPayload builds the session start payload: protocol version
// followed by the application name.
func appStartPayload(appName string) []byte {
	p := make([]byte, 1+len(appName))
	p[0] = protocolVersion
	copy(p[1:], appName)
	return p
}

// sendChannelMsgPayload builds the payload for sending a plain text
// message on a channel slot.
func sendChannelMsgPayload(channelIdx int, timestamp uint32, text string) []byte {
	p := make([]byte, 6+len(text))
	p[0] = TxtTypePlain
	p[1] = byte(channelIdx)
	binary.LittleEndian.PutUint32(p[2:6], timestamp)
	copy(p[6:], text)
	return p
}

func parseSelfInfo(payload []byte) (SelfInfo, error) {
	if len(payload) < 1 {
		return SelfInfo{}, fmt.Errorf("%w: self info too short (%d bytes)", ErrInvalidFrame, len(payload))
	}
	return SelfInfo{
		ProtocolVersion: int(payload[0]),
		NodeName:        string(payload[1:]),
	}, nil
}

// parseChannelInfo decodes a channel info frame. The second return
// value reports whether the slot is unconfigured (all-zero secret and
// empty name).
func parseChannelInfo(payload []byte) (ChannelInfo, bool, error) {
	if len(payload) < 1+channelSecretLen {
		return ChannelInfo{}, false, fmt.Errorf("%w: channel info too short (%d bytes)", ErrInvalidFrame, len(payload))
	}
	info := ChannelInfo{
		Index: int(payload[0]),
		Name:  string(payload[1+channelSecretLen:]),
	}
	empty := info.Name == ""
	for _, b := range payload[1 : 1+channelSecretLen] {
		if b != 0 {
			empty = false
			break
		}
	}
	return info, empty, nil
}

func parseContact(payload []byte) (ContactInfo, error) {
	if len(payload) < PubKeyLen {
		return ContactInfo{}, fmt.Errorf("%w: contact too short (%d bytes)", ErrInvalidFrame, len(payload))
	}
	pubkey := make([]byte, PubKeyLen)
	copy(pubkey, payload[:PubKeyLen])
	return ContactInfo{
		PubKey: pubkey,
		Name:   string(payload[PubKeyLen:]),
	}, nil
}

// parseChannelMsg decodes a drained channel message:
//
//	[0]    channel index
//	[1]    path length
//	[2]    text type
//	[3]    SNR in quarter dB, signed
//	[4:8]  sender timestamp, uint32 LE
//	[8:]   text
func parseChannelMsg(payload []byte) (*RawMessage, error) {
	if len(payload) < 8 {
		return nil, fmt.Errorf("%w: channel message too short (%d bytes)", ErrInvalidFrame, len(payload))
	}
	return &RawMessage{
		Kind:            RawKindChannel,
		ChannelIdx:      int(payload[0]),
		PathLen:         int(payload[1]),
		TxtType:         int(payload[2]),
		SNR:             float64(int8(payload[3])) / 4.0,
		SenderTimestamp: int64(binary.LittleEndian.Uint32(payload[4:8])),
		Text:            string(payload[8:]),
	}, nil
}

// parseContactMsg decodes a drained direct message:
//
//	[0:6]   sender public key prefix
//	[6]     path length
//	[7]     text type
//	[8]     SNR in quarter dB, signed
//	[9:13]  sender timestamp, uint32 LE
//	[13]    signature length
//	[14:n]  signature
//	[n:]    text
func parseContactMsg(payload []byte) (*RawMessage, error) {
	if len(payload) < 14 {
		return nil, fmt.Errorf("%w: direct message too short (%d bytes)", ErrInvalidFrame, len(payload))
	}
	sigLen := int(payload[13])
	if 14+sigLen > len(payload) {
		return nil, fmt.Errorf("%w: signature length %d exceeds payload", ErrInvalidFrame, sigLen)
	}
	prefix := make([]byte, PubKeyPrefixLen)
	copy(prefix, payload[0:PubKeyPrefixLen])
	var sig []byte
	if sigLen > 0 {
		sig = make([]byte, sigLen)
		copy(sig, payload[14:14+sigLen])
	}
	return &RawMessage{
		Kind:            RawKindDirect,
		PubKeyPrefix:    prefix,
		PathLen:         int(payload[6]),
		TxtType:         int(payload[7]),
		SNR:             float64(int8(payload[8])) / 4.0,
		SenderTimestamp: int64(binary.LittleEndian.Uint32(payload[9:13])),
		Signature:       sig,
		Text:            string(payload[14+sigLen:]),
	}, nil
}
