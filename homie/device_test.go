package homie

// tests that do not need a broker.

import (
	"testing"
)

func TestNewDeviceDefaults(t *testing.T) {
	d := NewDevice("Defaults-Device", "Defaults")
	defer d.Destroy()

	if d.Id() != "defaults-device" {
		t.Errorf("device id not folded to lower case: %s", d.Id())
	}
	if d.protocol != "4.0.0" {
		t.Errorf("unexpected protocol version %s", d.protocol)
	}
	if d.topicBase != "homie" {
		t.Errorf("unexpected topic base %s", d.topicBase)
	}
	if d.mqttClientID != "homie-defaults-device" {
		t.Errorf("unexpected client id %s", d.mqttClientID)
	}
	if d.topic("$state") != "homie/defaults-device/$state" {
		t.Errorf("unexpected topic %s", d.topic("$state"))
	}
}

func TestDuplicateDevicePanics(t *testing.T) {
	d := NewDevice("dup-device", "One")
	defer d.Destroy()

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("duplicate device id did not panic")
		}
	}()
	NewDevice("dup-device", "Two")
}

func TestNodeOrdering(t *testing.T) {
	d := NewDevice("order-device", "Order")
	defer d.Destroy()

	d.NewNode("zulu", "Z", "test", nil)
	d.NewNode("alpha", "A", "test", nil)
	d.NewNode("mike", "M", "test", nil)

	// $nodes reflects creation order, not map order
	want := []string{"zulu", "alpha", "mike"}
	for i, id := range d.nodeOrder {
		if id != want[i] {
			t.Errorf("node order position %d: expected %s got %s", i, want[i], id)
		}
	}

	d.RemoveNode("alpha")
	if d.HasNode("alpha") {
		t.Errorf("removed node still present")
	}
	if len(d.nodeOrder) != 2 || d.nodeOrder[0] != "zulu" || d.nodeOrder[1] != "mike" {
		t.Errorf("node order after removal: %v", d.nodeOrder)
	}
}

func TestRemovalTopics(t *testing.T) {
	d := NewDevice("removal-device", "Removal")
	defer d.Destroy()

	n := d.NewNode("probe0", "Probe 1", "test", nil)
	n.Advertise("temperature", "Temperature", DtFloat).SetUnit("°C")
	n.Advertise("mode", "Mode", DtEnum).SetFormat("None,Range").Settable(myTestHandler)
	n.Advertise("alarm", "Alarm", DtBoolean).SetRetained(false)

	topics, subs := n.removalTopics()

	got := make(map[string]bool)
	for _, topic := range topics {
		got[topic] = true
	}
	for _, topic := range []string{
		"homie/removal-device/probe0/$properties",
		"homie/removal-device/probe0/temperature/$unit",
		"homie/removal-device/probe0/temperature",
		"homie/removal-device/probe0/mode/$settable",
		"homie/removal-device/probe0/alarm/$retained",
	} {
		if !got[topic] {
			t.Errorf("removal does not clear %s", topic)
		}
	}
	if got["homie/removal-device/probe0/alarm"] {
		t.Errorf("removal clears the value topic of a non-retained property")
	}

	if len(subs) != 1 || subs[0] != "homie/removal-device/probe0/mode/set" {
		t.Errorf("unexpected set unsubscriptions: %v", subs)
	}
}

// Removing a node while the broker connection is down must remember the
// retained topics so they are cleared on the next connect.
func TestOfflineRemovalPending(t *testing.T) {
	d := NewDevice("offline-removal-device", "Offline Removal")
	defer d.Destroy()

	n := d.NewNode("probe0", "Probe 1", "test", nil)
	n.Advertise("temperature", "Temperature", DtFloat)

	// running but disconnected
	d.configDone = true
	d.connected = false

	d.RemoveNode("probe0")

	if len(d.pendingRemovals) != 1 {
		t.Fatalf("expected 1 pending removal, got %d", len(d.pendingRemovals))
	}
	found := false
	for _, topic := range d.pendingRemovals[0].clear {
		if topic == "homie/offline-removal-device/probe0/temperature" {
			found = true
		}
	}
	if !found {
		t.Errorf("pending removal does not clear the retained value topic")
	}
	if !n.removed {
		t.Errorf("removed node not flagged as removed")
	}
}

func TestPropertyAttributes(t *testing.T) {
	d := NewDevice("prop-device", "Props")
	defer d.Destroy()

	n := d.NewNode("a-node", "A Node", "test", nil)
	p := n.Advertise("mode", "Mode", DtEnum)
	p.SetFormat("None,Maximum only,Range")
	p.Settable(myTestHandler)

	if p.dataTypeString() != "enum" {
		t.Errorf("unexpected datatype %s", p.dataTypeString())
	}
	if !p.settable {
		t.Errorf("Settable did not stick")
	}
	if p.topic("set") != "homie/prop-device/a-node/mode/set" {
		t.Errorf("unexpected set topic %s", p.topic("set"))
	}

	alarm := n.Advertise("alarm", "Alarm", DtBoolean).SetRetained(false)
	if alarm.retained {
		t.Errorf("SetRetained(false) did not stick")
	}
	m := alarm.SetProperty()
	if m.Retained {
		t.Errorf("message for non-retained property defaults to retained")
	}
}

func TestInvalidUnitPanics(t *testing.T) {
	d := NewDevice("unit-device", "Units")
	defer d.Destroy()

	n := d.NewNode("a-node", "A Node", "test", nil)
	p := n.Advertise("speed", "Speed", DtFloat)

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("invalid unit did not panic")
		}
	}()
	p.SetUnit("furlongs-per-fortnight")
}
