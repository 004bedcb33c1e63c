package homie

import (
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Property methods
// All of the public methods can be called from an event handler.
// Actual publication is deferred out of the event handler.
// Publication happens in Device.Run().

// Settable marks the property settable and installs its handler.
func (p *Property) Settable(handler Handler) *Property {
	p.settable = true
	p.handler = handler
	return p
}

// SetRetained controls whether value publications carry the retain
// flag.  Properties are retained by default; momentary properties
// (button presses, alarms) should not be.
func (p *Property) SetRetained(retained bool) *Property {
	p.retained = retained
	return p
}

func (p *Property) validateUnit(unit string) string {
	if _, ok := propertyUnits[unit]; !ok {
		panic("invalid unit " + unit + " for property " + p.id + " in node " + p.node.id)
	}
	return unit
}

func (p *Property) SetUnit(unit string) *Property {
	p.unit = p.validateUnit(unit)
	return p
}

// SetFormat sets the $format attribute: "min:max" for numeric types,
// the comma-separated value list for enums.
func (p *Property) SetFormat(format string) *Property {
	p.format = format
	return p
}

func (p *Property) Id() string    { return p.id }
func (p *Property) Value() string { return p.value }

// SetProperty returns a message primed for this property; override Qos
// or Retained before Send if needed.
func (p *Property) SetProperty() PropertyMessage {
	var m PropertyMessage

	m.Qos = 1
	m.Retained = p.retained
	m.property = p

	return m
}

func (p *Property) topic(t string) string {
	return p.node.topic(p.id + "/" + t)
}

func (p *Property) publish(topic, payload string) {
	p.node.publish(p.id+"/"+topic, payload)
}

func (p *Property) dataTypeString() string {
	switch p.dataType {
	case DtString:
		return "string"
	case DtInteger:
		return "integer"
	case DtFloat:
		return "float"
	case DtBoolean:
		return "boolean"
	case DtEnum:
		return "enum"
	case DtColor:
		return "color"
	}
	panic("unknown data type for property " + p.id)
}

func (p *Property) processConnect() {
	n := p.node
	d := n.device

	p.publish("$name", p.name)
	p.publish("$datatype", p.dataTypeString())

	if len(p.format) > 0 {
		p.publish("$format", p.format)
	}

	if p.settable {
		p.publish("$settable", "true")
	}

	if !p.retained {
		p.publish("$retained", "false")
	}

	if len(p.unit) > 0 {
		p.publish("$unit", p.unit)
	}

	// Spit out the current value of this property, if it has one.
	if p.retained && len(p.value) > 0 {
		n.publish(p.id, p.value)
	}

	// Is this property settable?  If so, subscribe to the set message.
	if p.settable {
		d.client.Subscribe(p.topic("set"), 1, func(c mqtt.Client, msg mqtt.Message) {
			p.setEvent(string(msg.Payload()))
		})
	}
}

// When a "set" message is received, this executes in some random paho
// go routine context.
func (p *Property) setEvent(value string) {
	n := p.node
	d := n.device

	if d.globalHandler != nil && d.globalHandler(d, n, p, value) {
		return
	}

	if n.handler != nil && n.handler(d, n, p, value) {
		return
	}

	if p.handler != nil {
		p.handler(d, n, p, value)
	}
}

// Send records the new value and schedules its publication.  Safe to
// call from event handlers and other goroutines while the device runs;
// the device run loop performs the publish.
func (m PropertyMessage) Send(value string) {
	p := m.property
	d := p.node.device
	if d == nil {
		// Detached node, the value is published once it is added.
		p.value = value
		return
	}

	d.mu.Lock()
	p.value = value
	queue := d.configDone && !p.node.removed
	d.mu.Unlock()

	if queue {
		d.publishChannel <- m
	}
}

// Called by Device.Run() to do the actual publication of a new property value.
func (m PropertyMessage) publish() {
	n := m.property.node
	d := n.device

	d.mu.Lock()
	removed := n.removed
	value := m.property.value
	d.mu.Unlock()
	if removed {
		// Node was removed between Send and publication.
		return
	}

	token := d.client.Publish(n.topic(m.property.id), m.Qos, m.Retained, value)
	d.tokenFinalize(token)
}
