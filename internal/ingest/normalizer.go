package ingest

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/meshboard/meshboard-core/internal/meshcore"
	"github.com/meshboard/meshboard-core/internal/message"
)

// NameResolver supplies cached name lookups during normalization.
type NameResolver interface {
	ChannelName(idx int) (string, bool)
	ContactName(prefix string) (string, bool)
}

var _ NameResolver = (*Resolver)(nil)

// Normalizer turns raw radio messages into persisted records.
//
// Normalization is a pure transformation: each raw message yields
// either one record or an ErrDropped explaining why it was discarded.
// Missing name lookups are not a drop reason; the record keeps empty
// names.
type Normalizer struct {
	names NameResolver
}

// NewNormalizer creates a normalizer using the given name lookups.
// A nil resolver leaves all names empty.
func NewNormalizer(names NameResolver) *Normalizer {
	return &Normalizer{names: names}
}

// Normalize converts one raw message, stamping it with receivedAt.
func (n *Normalizer) Normalize(raw *meshcore.RawMessage, receivedAt time.Time) (*message.Record, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: nil message", ErrDropped)
	}

	txt := mapTxtType(raw.TxtType)
	if txt == message.TxtTypeSigned && len(raw.Signature) == 0 {
		return nil, fmt.Errorf("%w: signed message without signature", ErrDropped)
	}

	switch raw.Kind {
	case meshcore.RawKindChannel:
		// Channel senders identify themselves inside the text body.
		sender, body := splitChannelText(raw.Text)
		rec := &message.Record{
			ReceivedAt:      receivedAt,
			MsgType:         message.MsgTypeChannel,
			ChannelIdx:      raw.ChannelIdx,
			SenderTimestamp: raw.SenderTimestamp,
			SenderName:      sender,
			PathLen:         raw.PathLen,
			SNR:             raw.SNR,
			Text:            body,
			TxtType:         txt,
		}
		if n.names != nil {
			if name, ok := n.names.ChannelName(raw.ChannelIdx); ok {
				rec.ChannelName = name
			}
		}
		if len(raw.Signature) > 0 {
			rec.Signature = hex.EncodeToString(raw.Signature)
		}
		return rec, nil

	case meshcore.RawKindDirect:
		prefix := hex.EncodeToString(raw.PubKeyPrefix)
		rec := &message.Record{
			ReceivedAt:         receivedAt,
			MsgType:            message.MsgTypeDirect,
			ChannelIdx:         message.DirectChannelIdx,
			SenderTimestamp:    raw.SenderTimestamp,
			SenderPubkeyPrefix: prefix,
			PathLen:            raw.PathLen,
			SNR:                raw.SNR,
			Text:               raw.Text,
			TxtType:            txt,
		}
		if n.names != nil {
			if name, ok := n.names.ContactName(prefix); ok {
				rec.SenderName = name
			}
		}
		if len(raw.Signature) > 0 {
			rec.Signature = hex.EncodeToString(raw.Signature)
		}
		return rec, nil

	default:
		return nil, fmt.Errorf("%w: unknown message kind %d", ErrDropped, raw.Kind)
	}
}

// splitChannelText separates the sender prefix from the body. Channel
// text arrives as "sender: body"; without the separator the whole text
// is the body and the sender is unattributed.
func splitChannelText(text string) (sender, body string) {
	if i := strings.Index(text, ": "); i >= 0 {
		return text[:i], text[i+2:]
	}
	return "", text
}

func mapTxtType(raw int) message.TxtType {
	switch raw {
	case meshcore.TxtTypePlain:
		return message.TxtTypePlain
	case meshcore.TxtTypeSigned:
		return message.TxtTypeSigned
	default:
		return message.TxtTypeOther
	}
}
