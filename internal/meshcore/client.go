package meshcore

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultCommandTimeout = 5 * time.Second
	defaultAppName        = "meshboard"

	// MaxChannelSlots is the number of channel slots the radio exposes.
	// Channel queries probe slots 0 through MaxChannelSlots-1.
	MaxChannelSlots = 8

	// maxContacts bounds a contact sync. A stream that keeps producing
	// contact frames past this is desynced.
	maxContacts = 1024

	// maxTextLen is the longest text the radio accepts in a single
	// message. The firmware truncates anything beyond it.
	maxTextLen = 160
)

// Config holds the connection settings for a companion radio.
type Config struct {
	Host string
	Port int

	// AppName is announced to the radio at session start.
	// Defaults to "meshboard".
	AppName string

	// ConnectTimeout bounds the TCP dial. Defaults to 10s.
	ConnectTimeout time.Duration

	// CommandTimeout bounds each request/response exchange.
	// Defaults to 5s.
	CommandTimeout time.Duration
}

// Client is a request/response client for a meshcore companion radio
// over TCP.
//
// The client covers exactly one connection. It never reconnects on its
// own: any transport error leaves the stream in an unknown state, so
// the caller is expected to Close the client and dial a fresh one.
// All methods are safe for concurrent use; exchanges are serialized
// because the radio answers strictly in order.
type Client struct {
	cfg  Config
	conn net.Conn

	// reqMu serializes request/response exchanges on the wire.
	reqMu sync.Mutex

	closeOnce sync.Once
	closed    atomic.Bool

	commandsSent     atomic.Uint64
	messagesReceived atomic.Uint64
	errorsTotal      atomic.Uint64
	lastActivity     atomic.Int64 // unix nanoseconds
}

// Dial connects to the companion radio. The returned client is ready
// for Start.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = defaultCommandTimeout
	}
	if cfg.AppName == "" {
		cfg.AppName = defaultAppName
	}

	d := net.Dialer{Timeout: cfg.ConnectTimeout}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
		tc.SetKeepAlive(true)
		tc.SetKeepAlivePeriod(30 * time.Second)
	}

	c := &Client{cfg: cfg, conn: conn}
	c.touch()
	return c, nil
}

// Start announces this application to the radio and returns the
// radio's self description. It must be called once, before any other
// command.
func (c *Client) Start(ctx context.Context) (SelfInfo, error) {
	code, payload, err := c.roundTrip(ctx, cmdAppStart, appStartPayload(c.cfg.AppName))
	if err != nil {
		return SelfInfo{}, err
	}
	switch code {
	case respSelfInfo:
		return parseSelfInfo(payload)
	case respErr:
		return SelfInfo{}, fmt.Errorf("%w: session start rejected", ErrDeviceError)
	default:
		return SelfInfo{}, fmt.Errorf("%w: unexpected response 0x%02X to session start", ErrInvalidFrame, code)
	}
}

// DrainOne pulls the next queued message off the radio. It returns
// ErrQueueEmpty once the device queue is exhausted; that ends a drain
// cycle and is not a failure.
func (c *Client) DrainOne(ctx context.Context) (*RawMessage, error) {
	code, payload, err := c.roundTrip(ctx, cmdSyncNextMsg, nil)
	if err != nil {
		return nil, err
	}
	switch code {
	case respChannelMsg:
		msg, err := parseChannelMsg(payload)
		if err != nil {
			return nil, err
		}
		c.messagesReceived.Add(1)
		return msg, nil
	case respContactMsg:
		msg, err := parseContactMsg(payload)
		if err != nil {
			return nil, err
		}
		c.messagesReceived.Add(1)
		return msg, nil
	case respNoMoreMsgs:
		return nil, ErrQueueEmpty
	case respErr:
		return nil, fmt.Errorf("%w: message sync failed", ErrDeviceError)
	default:
		return nil, fmt.Errorf("%w: unexpected response 0x%02X to message sync", ErrInvalidFrame, code)
	}
}

// Channels queries every channel slot and returns the configured ones
// in slot order. Unconfigured slots are skipped; the radio answering a
// slot query with an error frame marks the end of the slot table.
func (c *Client) Channels(ctx context.Context) ([]ChannelInfo, error) {
	channels := make([]ChannelInfo, 0, MaxChannelSlots)
	for idx := 0; idx < MaxChannelSlots; idx++ {
		code, payload, err := c.roundTrip(ctx, cmdGetChannel, []byte{byte(idx)})
		if err != nil {
			return nil, err
		}
		if code == respErr {
			break
		}
		if code != respChannelInfo {
			return nil, fmt.Errorf("%w: unexpected response 0x%02X to channel query", ErrInvalidFrame, code)
		}
		info, empty, err := parseChannelInfo(payload)
		if err != nil {
			return nil, err
		}
		if empty {
			continue
		}
		channels = append(channels, info)
	}
	return channels, nil
}

// Contacts retrieves the radio's full contact list.
func (c *Client) Contacts(ctx context.Context) ([]ContactInfo, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	if err := c.writeFrame(ctx, cmdGetContacts, nil); err != nil {
		return nil, err
	}

	code, _, err := c.readFrame(ctx)
	if err != nil {
		return nil, err
	}
	if code == respErr {
		return nil, fmt.Errorf("%w: contact sync failed", ErrDeviceError)
	}
	if code != respContactsStart {
		return nil, fmt.Errorf("%w: unexpected response 0x%02X to contact sync", ErrInvalidFrame, code)
	}

	// The start frame carries an advisory count; the end frame is
	// authoritative.
	var contacts []ContactInfo
	for {
		code, payload, err := c.readFrame(ctx)
		if err != nil {
			return nil, err
		}
		switch code {
		case respContact:
			info, err := parseContact(payload)
			if err != nil {
				return nil, err
			}
			contacts = append(contacts, info)
		case respEndOfContacts:
			return contacts, nil
		default:
			return nil, fmt.Errorf("%w: unexpected response 0x%02X during contact sync", ErrInvalidFrame, code)
		}
		if len(contacts) > maxContacts {
			return nil, fmt.Errorf("%w: contact list exceeds %d entries", ErrProtocolDesync, maxContacts)
		}
	}
}

// SendChannelMessage transmits a plain text message on the given
// channel slot, timestamped with the local clock.
func (c *Client) SendChannelMessage(ctx context.Context, channelIdx int, text string) error {
	if channelIdx < 0 || channelIdx >= MaxChannelSlots {
		return fmt.Errorf("%w: channel index %d out of range", ErrCommandFailed, channelIdx)
	}
	if text == "" || len(text) > maxTextLen {
		return fmt.Errorf("%w: text length %d out of range [1,%d]", ErrCommandFailed, len(text), maxTextLen)
	}
	ts := uint32(time.Now().Unix())
	code, _, err := c.roundTrip(ctx, cmdSendChannelMsg, sendChannelMsgPayload(channelIdx, ts, text))
	if err != nil {
		return err
	}
	switch code {
	case respOK:
		return nil
	case respErr:
		return fmt.Errorf("%w: send rejected", ErrDeviceError)
	default:
		return fmt.Errorf("%w: unexpected response 0x%02X to send", ErrInvalidFrame, code)
	}
}

// Close shuts down the connection. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		err = c.conn.Close()
	})
	return err
}

// IsConnected reports whether the client has not been closed.
func (c *Client) IsConnected() bool {
	return !c.closed.Load()
}

// RemoteAddr returns the radio's address, for logging.
func (c *Client) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Stats returns a snapshot of the client counters.
func (c *Client) Stats() Stats {
	return Stats{
		CommandsSent:     c.commandsSent.Load(),
		MessagesReceived: c.messagesReceived.Load(),
		ErrorsTotal:      c.errorsTotal.Load(),
		LastActivity:     time.Unix(0, c.lastActivity.Load()),
		Connected:        !c.closed.Load(),
	}
}

// roundTrip performs one serialized command/response exchange.
func (c *Client) roundTrip(ctx context.Context, code byte, payload []byte) (byte, []byte, error) {
	if c.closed.Load() {
		return 0, nil, ErrClientClosed
	}
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	if err := c.writeFrame(ctx, code, payload); err != nil {
		return 0, nil, err
	}
	return c.readFrame(ctx)
}

func (c *Client) writeFrame(ctx context.Context, code byte, payload []byte) error {
	if err := c.setDeadline(ctx); err != nil {
		return err
	}
	if _, err := c.conn.Write(encodeFrame(code, payload)); err != nil {
		c.errorsTotal.Add(1)
		if c.closed.Load() {
			return ErrClientClosed
		}
		return fmt.Errorf("%w: write: %v", ErrCommandFailed, err)
	}
	c.commandsSent.Add(1)
	c.touch()
	return nil
}

func (c *Client) readFrame(ctx context.Context) (byte, []byte, error) {
	if err := c.setDeadline(ctx); err != nil {
		return 0, nil, err
	}

	var header [2]byte
	if _, err := io.ReadFull(c.conn, header[:]); err != nil {
		c.errorsTotal.Add(1)
		if c.closed.Load() {
			return 0, nil, ErrClientClosed
		}
		return 0, nil, fmt.Errorf("%w: read header: %v", ErrCommandFailed, err)
	}
	size := int(binary.BigEndian.Uint16(header[:]))
	if size < 1 || size > maxFrameSize {
		c.errorsTotal.Add(1)
		return 0, nil, fmt.Errorf("%w: frame size %d", ErrProtocolDesync, size)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(c.conn, body); err != nil {
		c.errorsTotal.Add(1)
		if c.closed.Load() {
			return 0, nil, ErrClientClosed
		}
		return 0, nil, fmt.Errorf("%w: read body: %v", ErrCommandFailed, err)
	}
	c.touch()

	respCode, respPayload, err := splitFrame(body)
	if err != nil {
		c.errorsTotal.Add(1)
		return 0, nil, err
	}
	return respCode, respPayload, nil
}

// setDeadline applies the command timeout to the connection, tightened
// by the context deadline when that is sooner.
func (c *Client) setDeadline(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline := time.Now().Add(c.cfg.CommandTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		if c.closed.Load() {
			return ErrClientClosed
		}
		return fmt.Errorf("%w: set deadline: %v", ErrCommandFailed, err)
	}
	return nil
}

func (c *Client) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}
