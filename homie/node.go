package homie

import "strings"

// NewNode builds a detached node.  Advertise its properties, then
// attach it to a device with Device.AddNode (or build it attached via
// Device.NewNode).  The optional handler receives "set" messages for
// any settable property of this node.
func NewNode(id, name, nType string, handler Handler) *Node {
	n := new(Node)

	n.id = validate(id, false)
	n.name = name
	n.nType = nType
	n.handler = handler
	n.properties = make(map[string]*Property)

	return n
}

func (n *Node) Id() string   { return n.id }
func (n *Node) Name() string { return n.name }

// Advertise creates a property on the node.
func (n *Node) Advertise(id, name string, dataType int) *Property {
	p := new(Property)

	p.id = validate(id, false)

	if _, ok := n.properties[p.id]; ok {
		panic("Node " + n.id + " already has a property " + p.id)
	}

	p.name = name
	p.node = n
	p.dataType = dataType
	p.retained = true

	n.properties[p.id] = p
	n.propertyOrder = append(n.propertyOrder, p.id)

	return p
}

func (n *Node) Property(id string) *Property {
	return n.properties[id]
}

func (n *Node) topic(t string) string {
	return n.device.topic(n.id + "/" + t)
}

func (n *Node) publish(topic, payload string) {
	n.device.publish(n.id+"/"+topic, payload)
}

// processConnect publishes the node attributes and all its properties.
// Runs in the device run loop (or under the device lock from AddNode).
func (n *Node) processConnect() {
	n.publish("$name", n.name)
	n.publish("$type", n.nType)
	n.publish("$properties", strings.Join(n.propertyOrder, ","))

	for _, id := range n.propertyOrder {
		n.properties[id].processConnect()
	}
}

// removalTopics lists the node's footprint on the broker: the retained
// topics to clear and the set subscriptions to drop when the node goes
// away.
func (n *Node) removalTopics() (topics, subs []string) {
	topics = append(topics, n.topic("$name"), n.topic("$type"), n.topic("$properties"))

	for _, id := range n.propertyOrder {
		p := n.properties[id]
		topics = append(topics, p.topic("$name"), p.topic("$datatype"))
		if len(p.format) > 0 {
			topics = append(topics, p.topic("$format"))
		}
		if p.settable {
			topics = append(topics, p.topic("$settable"))
			subs = append(subs, p.topic("set"))
		}
		if !p.retained {
			topics = append(topics, p.topic("$retained"))
		}
		if len(p.unit) > 0 {
			topics = append(topics, p.topic("$unit"))
		}
		if p.retained {
			topics = append(topics, n.topic(id))
		}
	}
	return topics, subs
}

// unpublish clears the node's retained topics so controllers drop the
// node, and unsubscribes any set topics.
func (n *Node) unpublish() {
	d := n.device
	topics, subs := n.removalTopics()
	for _, topic := range subs {
		d.client.Unsubscribe(topic)
	}
	for _, topic := range topics {
		d.clearRetained(topic)
	}
}
