// Package meshcore implements the companion radio protocol client for
// Meshboard.
//
// The companion radio is a LoRa mesh node running meshcore firmware,
// exposed over a TCP serial bridge. The radio buffers received mesh
// messages in an on-device queue; this package speaks the binary
// companion protocol to drain that queue and to issue commands.
//
// # Architecture
//
//	┌─────────────────┐          ┌─────────────────┐
//	│    Meshboard    │   TCP    │  Companion      │   LoRa
//	│     Poller      │◄────────►│  Radio          │◄────────► Mesh
//	└─────────────────┘  frames  └─────────────────┘
//
// # Key Responsibilities
//
//   - Dial the radio's TCP bridge and announce the application
//   - Drain queued channel and direct messages one at a time
//   - Query the configured channel slots and the contact list
//   - Send plain text messages on a channel slot
//   - Frame and parse the binary companion protocol
//
// # Wire Protocol
//
// Every frame is a 2-byte big-endian size followed by a 1-byte code and
// the payload. The size counts the code and payload, not itself.
// Commands flow host to radio; responses have the high bit of the code
// set. The radio answers strictly in order, so the client serializes
// exchanges.
//
// # Connection Lifecycle
//
// A Client covers exactly one connection and never reconnects on its
// own. After any transport error the stream state is unknown; the
// owner closes the client and dials a fresh one. Reconnection policy
// (backoff, retry counting) lives with the caller.
//
// Example:
//
//	client, err := meshcore.Dial(ctx, meshcore.Config{Host: "10.0.0.20", Port: 5000})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	self, err := client.Start(ctx)
//	if err != nil {
//	    return err
//	}
//	log.Printf("connected to %s", self.NodeName)
//
//	for {
//	    msg, err := client.DrainOne(ctx)
//	    if errors.Is(err, meshcore.ErrQueueEmpty) {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    handle(msg)
//	}
//
// # Thread Safety
//
// All Client methods are safe for concurrent use from multiple
// goroutines.
package meshcore
