package mqtt

import "fmt"

// DefaultTopicPrefix is the topic root used when config omits
// topic_prefix.
const DefaultTopicPrefix = "meshboard"

// Topics builds meshboard MQTT topic names.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	topic := topics.ChannelMessage(0)
//	// Returns: "meshboard/messages/channel/0"
//
// The zero value uses DefaultTopicPrefix; set Prefix to namespace
// several instances on one broker.
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// SystemStatus returns the retained online/offline status topic.
// The broker publishes the Last Will here on unexpected disconnect.
//
// Example: meshboard/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", t.prefix())
}

// ChannelMessage returns the mirror topic for one channel's messages.
//
// Example: meshboard/messages/channel/0
func (t Topics) ChannelMessage(channelIdx int) string {
	return fmt.Sprintf("%s/messages/channel/%d", t.prefix(), channelIdx)
}

// DirectMessage returns the mirror topic for direct messages from one
// sender, keyed by their public key prefix (lowercase hex).
//
// Example: meshboard/messages/direct/abcdef012345
func (t Topics) DirectMessage(pubkeyPrefix string) string {
	return fmt.Sprintf("%s/messages/direct/%s", t.prefix(), pubkeyPrefix)
}

// =============================================================================
// Wildcard Patterns for Subscribers
// =============================================================================

// AllChannelMessages returns a pattern matching every channel topic.
//
// Pattern: meshboard/messages/channel/+
func (t Topics) AllChannelMessages() string {
	return fmt.Sprintf("%s/messages/channel/+", t.prefix())
}

// AllDirectMessages returns a pattern matching every direct topic.
//
// Pattern: meshboard/messages/direct/+
func (t Topics) AllDirectMessages() string {
	return fmt.Sprintf("%s/messages/direct/+", t.prefix())
}

// AllMessages returns a pattern matching every mirrored message.
//
// Pattern: meshboard/messages/#
func (t Topics) AllMessages() string {
	return fmt.Sprintf("%s/messages/#", t.prefix())
}

// AllTopics returns a pattern matching all meshboard topics.
//
// Pattern: meshboard/#
func (t Topics) AllTopics() string {
	return fmt.Sprintf("%s/#", t.prefix())
}
