package homie

import (
	"context"
	"crypto/tls"
	"strconv"
	"strings"
	"time"
)

// NewDevice creates a device in the configuring state.  The id must be a
// valid Homie identifier; invalid ids and duplicate ids panic, as they
// are programming errors.
func NewDevice(id, name string) *Device {
	d := new(Device)

	id = validate(id, false)

	devicesMu.Lock()
	defer devicesMu.Unlock()
	if _, ok := devices[id]; ok {
		panic("Duplicate device id: " + id)
	}

	d.id = id
	d.protocol = protocolVersion
	d.name = name
	d.state = "init"
	d.nodes = make(map[string]*Node)
	d.implementation = implementationName
	d.configDone = false
	d.topicBase = defaultTopicBase
	d.mqttBroker = defaultMqttBroker
	d.mqttClientID = mqttClientIDPrefix + "-" + id
	d.statsInterval = defaultStatsInterval
	d.fwName = "unknown"
	d.fwVersion = "unknown"
	d.publishChannel = make(chan PropertyMessage, 16)
	d.connectChannel = make(chan bool, 4)

	devices[id] = d

	return d
}

// Destroy forgets a device, allowing its id to be reused.  Only call
// this after Run has returned.
func (d *Device) Destroy() {
	devicesMu.Lock()
	defer devicesMu.Unlock()
	delete(devices, d.id)
}

func (d *Device) Id() string   { return d.id }
func (d *Device) Name() string { return d.name }

// The setters below configure the device and may not be called once the
// device is running.

func (d *Device) SetTopicBase(base string) {
	d.checkConfiguring("SetTopicBase")
	d.topicBase = base
}

func (d *Device) SetMqttBroker(broker string) {
	d.checkConfiguring("SetMqttBroker")
	d.mqttBroker = broker
}

func (d *Device) SetMqttClientID(id string) {
	d.checkConfiguring("SetMqttClientID")
	d.mqttClientID = id
}

func (d *Device) SetMqttCredentials(username, password string) {
	d.checkConfiguring("SetMqttCredentials")
	d.mqttUsername = username
	d.mqttPassword = password
}

// SetMqttTLS enables TLS on the broker connection.  A nil config is
// accepted and means the platform defaults.
func (d *Device) SetMqttTLS(cfg *tls.Config) {
	d.checkConfiguring("SetMqttTLS")
	if cfg == nil {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	d.mqttTLS = cfg
}

func (d *Device) SetFirmware(name, version string) {
	d.checkConfiguring("SetFirmware")
	d.fwName = name
	d.fwVersion = version
}

func (d *Device) SetStatsInterval(interval time.Duration) {
	d.checkConfiguring("SetStatsInterval")
	d.statsInterval = interval
}

func (d *Device) SetGlobalHandler(handler Handler) {
	d.checkConfiguring("SetGlobalHandler")
	d.globalHandler = handler
}

func (d *Device) SetBroadcastHandler(handler func(d *Device, level, value string)) {
	d.checkConfiguring("SetBroadcastHandler")
	d.broadcastHandler = handler
}

func (d *Device) checkConfiguring(what string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.configDone {
		panic("Cannot " + what + " on device " + d.name + " after calling device.Run()")
	}
}

// NewNode creates a node and attaches it to the device.  Convenience
// for the common configure-then-run case; for runtime attachment build
// the node with homie.NewNode and use AddNode.
func (d *Device) NewNode(id, name, nType string, handler Handler) *Node {
	n := NewNode(id, name, nType, handler)
	d.AddNode(n)
	return n
}

// AddNode attaches a node to the device.  If the device is running and
// connected, the node subtree is announced immediately: the device
// drops to "init", publishes the node attributes and the updated $nodes
// list, and returns to "ready".
func (d *Device) AddNode(n *Node) {
	if n.device != nil {
		panic("Node " + n.id + " is already attached to device " + n.device.name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.nodes[n.id]; ok {
		panic("Device " + d.name + " already has a node " + n.id)
	}

	n.device = d
	d.nodes[n.id] = n
	d.nodeOrder = append(d.nodeOrder, n.id)

	if d.configDone && d.connected {
		d.state = "init"
		d.publish("$state", "init")
		n.processConnect()
		d.publish("$nodes", strings.Join(d.nodeOrder, ","))
		d.state = "ready"
		d.publish("$state", "ready")
	}
}

// RemoveNode detaches a node, clears its retained topics and publishes
// the shortened $nodes list.  If the broker connection is down the
// retained topics are remembered and cleared on the next connect.
// Removing an unknown node is a no-op; a removed node cannot be
// attached again.
func (d *Device) RemoveNode(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, ok := d.nodes[id]
	if !ok {
		return
	}

	delete(d.nodes, id)
	for i, nodeID := range d.nodeOrder {
		if nodeID == id {
			d.nodeOrder = append(d.nodeOrder[:i], d.nodeOrder[i+1:]...)
			break
		}
	}
	n.removed = true

	if !d.configDone {
		return
	}
	if d.connected {
		n.unpublish()
		d.publish("$nodes", strings.Join(d.nodeOrder, ","))
	} else {
		topics, subs := n.removalTopics()
		d.pendingRemovals = append(d.pendingRemovals, nodeRemoval{clear: topics, unsub: subs})
	}
}

func (d *Device) HasNode(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.nodes[id]
	return ok
}

func (d *Device) topic(t string) string {
	return d.topicBase + "/" + d.id + "/" + t
}

// Run runs the device until the context is cancelled.  waitChan is
// closed once the device has published $state "disconnected" and shut
// down its broker connection.
func (d *Device) RunWithContext(ctx context.Context, waitChan chan bool) {
	d.mu.Lock()
	d.configDone = true
	d.mu.Unlock()
	d.statsBootTime = time.Now()
	d.mqttSetup()

	ticker := time.NewTicker(d.statsInterval)
	defer ticker.Stop()

	for running := true; running; {
		select {
		case up := <-d.connectChannel:
			if up {
				d.processConnect()
			} else {
				d.mu.Lock()
				d.connected = false
				d.mu.Unlock()
			}
		case m := <-d.publishChannel:
			m.publish()
		case <-ticker.C:
			if d.connected {
				d.publishStats()
			}
		case <-ctx.Done():
			running = false
		}
	}

	// Drain anything handlers managed to queue before cancellation.
	for {
		select {
		case m := <-d.publishChannel:
			m.publish()
		default:
			d.shutdown()
			close(waitChan)
			return
		}
	}
}

// Run runs the device forever.
func (d *Device) Run() {
	d.RunWithContext(context.Background(), make(chan bool, 1))
}

// processConnect publishes the complete retained attribute tree.  Called
// from the run loop on every (re-)connection to the broker.
func (d *Device) processConnect() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.connected = true

	// Nodes removed while we were offline left retained topics behind.
	for _, r := range d.pendingRemovals {
		for _, topic := range r.unsub {
			d.client.Unsubscribe(topic)
		}
		for _, topic := range r.clear {
			d.clearRetained(topic)
		}
	}
	d.pendingRemovals = nil

	d.state = "init"
	d.publish("$state", "init")
	d.publish("$homie", d.protocol)
	d.publish("$name", d.name)
	d.publish("$extensions", extensions)
	d.publish("$implementation", d.implementation)
	d.publish("$fw/name", d.fwName)
	d.publish("$fw/version", d.fwVersion)
	d.publish("$stats/interval", strconv.Itoa(int(d.statsInterval/time.Second)))
	d.publish("$stats/uptime", d.uptime())
	d.publish("$nodes", strings.Join(d.nodeOrder, ","))

	for _, id := range d.nodeOrder {
		d.nodes[id].processConnect()
	}

	if d.broadcastHandler != nil {
		d.subscribeBroadcast()
	}

	d.state = "ready"
	d.publish("$state", "ready")
}

func (d *Device) publishStats() {
	d.publish("$stats/uptime", d.uptime())
}

func (d *Device) uptime() string {
	return strconv.Itoa(int(time.Since(d.statsBootTime) / time.Second))
}
