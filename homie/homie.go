// Package homie implements the device side of the Homie 4.0.0 MQTT
// convention. A Device owns an MQTT connection and a set of Nodes, each
// with Properties. Once running, the device publishes its attribute tree
// retained, republishes it on every reconnect, and dispatches inbound
// "set" messages to property handlers.
package homie

import (
	"crypto/tls"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const mqttClientIDPrefix = "homie"
const defaultTopicBase = "homie"
const defaultMqttBroker = "tcp://127.0.0.1:1883"

const protocolVersion = "4.0.0"
const implementationName = "bbqhomie 0.1.0"
const extensions = "org.homie.legacy-stats:0.1.1:[4.x],org.homie.legacy-firmware:0.1.1:[4.x]"

const defaultStatsInterval = 60 * time.Second

// These are the allowed Property data types, as per v4.0.0 convention
const (
	DtString = iota
	DtInteger
	DtFloat
	DtBoolean
	DtEnum
	DtColor
)

// These are the allowed Property units.  Units however, are optional.
var propertyUnits map[string]bool = map[string]bool{
	"°C":     true, // degrees C
	"°F":     true, // degrees F
	"°":      true, // degrees (angle)
	"L":      true, // liters
	"gal":    true, // gallons
	"V":      true, // volts
	"W":      true, // watts
	"A":      true, // amps
	"%":      true, // percentage
	"m":      true, // meters
	"ft":     true, // feet
	"pascal": true, // Pascal
	"psi":    true, // PSI
	"#":      true, // count or amount
}

// Handler is called when a settable property receives a "set" message.
// Returning true stops the handler chain (global, then node, then
// property). Handlers must not publish directly; acknowledge the new
// value with Property.SetProperty().Send().
type Handler func(d *Device, n *Node, p *Property, value string) bool

type Property struct {
	id       string
	name     string
	node     *Node
	settable bool
	retained bool // false suppresses the retain flag on value publication
	dataType int  // must be one of the defined data types
	handler  Handler
	format   string
	unit     string
	value    string
}

type PropertyMessage struct {
	property *Property
	Qos      byte // default value is 1
	Retained bool // default follows the property
}

type Node struct {
	id            string
	device        *Device
	name          string
	nType         string
	handler       Handler
	properties    map[string]*Property
	propertyOrder []string
	removed       bool // set under Device.mu; a removed node cannot be re-attached
}

// nodeRemoval records the broker footprint of a node removed while the
// connection was down, so it can be cleared on the next connect.
type nodeRemoval struct {
	clear []string // retained topics to empty
	unsub []string // set subscriptions to drop
}

type Device struct {
	id             string
	protocol       string // Homie level.  Always 4.0.0
	name           string // Friendly name
	state          string // Fixed set of states possible
	nodes          map[string]*Node
	nodeOrder      []string
	implementation string
	configDone     bool // 2 states, configuring and configured
	connected      bool
	topicBase      string // default is "homie"

	globalHandler    Handler
	broadcastHandler func(d *Device, level, value string)

	mqttBroker   string
	mqttClientID string
	mqttUsername string
	mqttPassword string
	mqttTLS      *tls.Config

	clientOptions *mqtt.ClientOptions
	client        mqtt.Client

	// Stuff for the stats extension.  At the moment all we do is publish uptime.
	statsInterval time.Duration // how often to publish stats
	statsBootTime time.Time     // used to compute uptime

	// Stuff for the firmware extension.
	fwName    string
	fwVersion string

	// Guards nodes, nodeOrder, configDone, connected, pendingRemovals
	// and property values once Run has started; nodes can be added and
	// removed, and values published, while the device is live.
	mu sync.Mutex

	// Nodes removed while the broker connection was down still have
	// retained topics on the broker; these are cleared on reconnect.
	pendingRemovals []nodeRemoval

	// This channel is used to ensure that messages are not sent from an event handler
	publishChannel chan PropertyMessage

	// This channel reflects connection status changes back to the run() method from the event handler.
	connectChannel chan bool
}

var (
	devices   map[string]*Device
	devicesMu sync.Mutex
)

func init() {
	devices = make(map[string]*Device)
}
