// Package mqtt publishes mirrored mesh messages to an external broker.
//
// The mirror is strictly one-way. Each stored message is pushed onto
// the broker so home-automation stacks and dashboards can consume mesh
// traffic without speaking the radio protocol; nothing flows back in.
//
//	Radio → meshboard → MQTT Broker → automations / dashboards
//
// Topics (see Topics for builders):
//
//	meshboard/status                      retained online/offline status
//	meshboard/messages/channel/<idx>      mirrored channel messages
//	meshboard/messages/direct/<prefix>    mirrored direct messages
//
// The status topic carries a Last Will so consumers can tell a crashed
// mirror from a gracefully stopped one. Paho handles reconnection;
// publishes fail fast while the broker is away and the mirror does not
// queue, since the SQLite store is the durability layer.
//
// Payloads are plain JSON over the wire. Enable cfg.Broker.TLS for any
// broker that is not on localhost; anonymous access is for local
// development only.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topic := client.Topics().ChannelMessage(0)
//	client.Publish(topic, payload, 1, false)
package mqtt
