package homie

//
// This file contains code to interface with the paho mqtt client.
//

import (
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

func (d *Device) mqttSetup() {
	if d.connected {
		panic("called setup on a connected device")
	}

	// re-use the existing clientOptions and client if we are reinitializing an existing device
	if d.clientOptions == nil {
		d.clientOptions = mqtt.NewClientOptions()
	}

	d.clientOptions.SetKeepAlive(60 * time.Second)
	d.clientOptions.SetCleanSession(true)
	d.clientOptions.AddBroker(d.mqttBroker)
	d.clientOptions.SetClientID(d.mqttClientID)
	d.clientOptions.SetAutoReconnect(true)
	d.clientOptions.SetConnectRetry(true)
	d.clientOptions.SetConnectRetryInterval(time.Minute)
	d.clientOptions.SetConnectionLostHandler(func(c mqtt.Client, e error) {
		slog.Warn("mqtt connection lost", "device", d.id, "error", e)
		d.connectChannel <- false
	})
	d.clientOptions.SetOnConnectHandler(func(c mqtt.Client) { d.connectChannel <- true })
	d.clientOptions.SetOrderMatters(false)
	d.clientOptions.SetWill(d.topic("$state"), "lost", 1, true)

	if len(d.mqttUsername) > 0 {
		d.clientOptions.SetUsername(d.mqttUsername)
		d.clientOptions.SetPassword(d.mqttPassword)
	}

	if d.mqttTLS != nil {
		d.clientOptions.SetTLSConfig(d.mqttTLS)
	}

	if d.client == nil {
		d.client = mqtt.NewClient(d.clientOptions)
	}

	token := d.client.Connect()
	go func(t mqtt.Token) {
		t.Wait()
		if t.Error() != nil {
			slog.Error("mqtt connect failed", "device", d.id, "broker", d.mqttBroker, "error", t.Error())
		}
	}(token)
}

// publish sends a retained QoS 1 attribute message.  Publication errors
// are logged, not returned; the auto-reconnect logic will replay the
// attribute tree on the next connection anyway.
func (d *Device) publish(subtopic, payload string) {
	token := d.client.Publish(d.topic(subtopic), 1, true, payload)
	d.tokenFinalize(token)
}

// clearRetained deletes a retained topic by publishing an empty
// payload.  Takes the full topic, not a device subtopic.
func (d *Device) clearRetained(topic string) {
	token := d.client.Publish(topic, 1, true, "")
	d.tokenFinalize(token)
}

// tokenFinalize waits out a publish token off the hot path and logs any
// error it carried.
func (d *Device) tokenFinalize(t mqtt.Token) {
	go func() {
		t.Wait()
		if e := t.Error(); e != nil {
			slog.Warn("mqtt publish failed", "device", d.id, "error", e)
		}
	}()
}

func (d *Device) subscribeBroadcast() {
	prefix := d.topicBase + "/$broadcast/"
	d.client.Subscribe(prefix+"#", 1, func(c mqtt.Client, msg mqtt.Message) {
		level := strings.TrimPrefix(msg.Topic(), prefix)
		d.broadcastHandler(d, level, string(msg.Payload()))
	})
}

// shutdown performs a clean exit: $state goes to "disconnected" so
// controllers know this was deliberate, not the "lost" will message.
func (d *Device) shutdown() {
	if d.client == nil {
		return
	}
	token := d.client.Publish(d.topic("$state"), 1, true, "disconnected")
	token.WaitTimeout(2 * time.Second)
	d.client.Disconnect(250)
	d.mu.Lock()
	d.state = "disconnected"
	d.connected = false
	d.mu.Unlock()
}
