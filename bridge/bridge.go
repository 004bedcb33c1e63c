// Package bridge mirrors one connected thermometer as a Homie device.
// Probe temperatures, battery level and alarm state flow from the
// thermometer to MQTT; display unit and target temperatures can be set
// the other way.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"bbqhomie/config"
	"bbqhomie/homie"
	"bbqhomie/ibbq"
)

const nodeIDBattery = "battery"
const propertyIDVoltage = "voltage"
const propertyIDPercentage = "percentage"

const nodeIDSettings = "settings"
const propertyIDDisplayUnit = "unit"
const propertyIDAlarm = "alarm"
const displayUnitCelsius = "°C"
const displayUnitFahrenheit = "°F"

const nodeIDProbePrefix = "probe"
const propertyIDTemperature = "temperature"
const propertyIDTargetMin = "target-min"
const propertyIDTargetMax = "target-max"
const propertyIDTargetMode = "mode"

// thermometer is the slice of the BLE device the bridge drives.
// *ibbq.Device implements it.
type thermometer interface {
	Subscribe() error
	EnableRealTimeData(enable bool) error
	RequestBatteryLevel() error
	SetTemperatureUnit(unit ibbq.TemperatureUnit) error
	SetTargetTemp(probe uint8, max float64) error
	SetTargetRange(probe uint8, min, max float64) error
	RemoveTarget(probe uint8) error
	SilenceAlarm() error
	RealTime() <-chan ibbq.RealTimeData
	SettingResults() <-chan ibbq.SettingResult
}

// Bridge ties one authenticated thermometer to one Homie device.
type Bridge struct {
	dev       thermometer
	cfg       config.Config
	devCfg    config.DeviceConfig
	mac       string // normalized AA:BB:CC:DD:EE:FF
	name      string
	fwName    string
	fwVersion string

	homie      *homie.Device
	voltage    *homie.Property
	percentage *homie.Property
	unitProp   *homie.Property
	alarmProp  *homie.Property

	// Guards targets and probes.  Property handlers run on paho's go
	// routines while real-time data is handled on the bridge's own.
	mu      sync.Mutex
	targets map[int]target
	probes  map[int]*probeNode
}

// probeNode is the Homie side of one plugged-in probe.
type probeNode struct {
	node        *homie.Node
	temperature *homie.Property
	targetMin   *homie.Property
	targetMax   *homie.Property
	mode        *homie.Property
}

// New builds a bridge for a connected, authenticated thermometer.
func New(dev *ibbq.Device, cfg config.Config, fwName, fwVersion string) (*Bridge, error) {
	mac, err := config.NormalizeMAC(dev.Address().String())
	if err != nil {
		return nil, fmt.Errorf("device address: %w", err)
	}

	devCfg := cfg.Device(mac)

	// Use the configured name if there is one, otherwise the Bluetooth device name.
	name := devCfg.Name
	if name == "" {
		name = dev.Name()
	}

	return &Bridge{
		dev:       dev,
		cfg:       cfg,
		devCfg:    devCfg,
		mac:       mac,
		name:      name,
		fwName:    fwName,
		fwVersion: fwVersion,
		targets:   make(map[int]target),
		probes:    make(map[int]*probeNode),
	}, nil
}

// Run publishes the Homie device and keeps it updated until the context
// is cancelled or the thermometer fails.
func (b *Bridge) Run(ctx context.Context) error {
	suffix := macSuffix(b.mac)

	d := homie.NewDevice(b.cfg.Homie.DeviceIDPrefix+"-"+suffix, b.name)
	defer d.Destroy()

	d.SetTopicBase(b.cfg.Homie.Prefix)
	d.SetMqttBroker(b.cfg.MQTT.URL())
	d.SetMqttClientID(b.cfg.MQTT.ClientPrefix + "-" + suffix)
	if b.cfg.MQTT.Username != "" {
		d.SetMqttCredentials(b.cfg.MQTT.Username, b.cfg.MQTT.Password)
	}
	if b.cfg.MQTT.UseTLS {
		d.SetMqttTLS(nil)
	}
	d.SetFirmware(b.fwName, b.fwVersion)
	b.homie = d

	battery := d.NewNode(nodeIDBattery, "Battery", "Battery level", nil)
	b.voltage = battery.Advertise(propertyIDVoltage, "Voltage", homie.DtInteger)
	b.percentage = battery.Advertise(propertyIDPercentage, "Percentage", homie.DtInteger).SetUnit("%")

	settings := d.NewNode(nodeIDSettings, "Settings", "Settings", nil)
	b.unitProp = settings.Advertise(propertyIDDisplayUnit, "Unit", homie.DtEnum).
		SetFormat(displayUnitCelsius + "," + displayUnitFahrenheit).
		Settable(b.handleUnitSet)
	b.alarmProp = settings.Advertise(propertyIDAlarm, "Alarm", homie.DtBoolean).
		SetRetained(false).
		Settable(b.handleAlarmSet)

	runCtx, cancel := context.WithCancel(ctx)
	waitChan := make(chan bool, 1)
	go d.RunWithContext(runCtx, waitChan)
	defer func() {
		cancel()
		<-waitChan
	}()

	// Default the display to Celsius.
	if err := b.dev.SetTemperatureUnit(ibbq.Celsius); err != nil {
		return err
	}
	b.unitProp.SetProperty().Send(displayUnitCelsius)

	if err := b.dev.Subscribe(); err != nil {
		return err
	}
	if err := b.dev.EnableRealTimeData(true); err != nil {
		return err
	}
	// Request an initial battery level reading.
	if err := b.dev.RequestBatteryLevel(); err != nil {
		return err
	}

	slog.Info("bridge running", "address", b.mac, "name", b.name)

	for {
		select {
		case data := <-b.dev.RealTime():
			b.handleRealTimeData(data)
		case result := <-b.dev.SettingResults():
			b.handleSettingResult(result)
		case <-ctx.Done():
			slog.Info("bridge stopping", "address", b.mac)
			return nil
		}
	}
}

// handleRealTimeData publishes probe temperatures and keeps the set of
// probe nodes in sync with the sockets that actually have a probe in
// them.
func (b *Bridge) handleRealTimeData(data ibbq.RealTimeData) {
	for i, reading := range data.Probes {
		b.mu.Lock()
		probe, exists := b.probes[i]
		b.mu.Unlock()

		if reading.Present {
			if !exists {
				probe = b.addProbe(i)
			}
			probe.temperature.SetProperty().Send(formatTemperature(reading.Celsius))
		} else if exists {
			slog.Info("probe unplugged", "address", b.mac, "probe", i)
			b.homie.RemoveNode(probeNodeID(i))
			b.mu.Lock()
			delete(b.probes, i)
			b.mu.Unlock()
		}
	}
}

func (b *Bridge) handleSettingResult(result ibbq.SettingResult) {
	switch r := result.(type) {
	case ibbq.BatteryLevel:
		percentage := int(r.CurrentVoltage) * 100 / int(r.MaxVoltage)
		b.voltage.SetProperty().Send(strconv.Itoa(int(r.CurrentVoltage)))
		b.percentage.SetProperty().Send(strconv.Itoa(percentage))
	case ibbq.SilencePressed:
		b.alarmProp.SetProperty().Send("false")
	case ibbq.Unknown:
		slog.Debug("unhandled setting result", "address", b.mac, "payload", fmt.Sprintf("%x", r.Payload))
	}
}

// addProbe announces a probe node and restores its remembered target.
func (b *Bridge) addProbe(index int) *probeNode {
	slog.Info("probe plugged in", "address", b.mac, "probe", index)

	n := homie.NewNode(probeNodeID(index), b.probeName(index), "Temperature probe", nil)
	probe := &probeNode{node: n}
	probe.temperature = n.Advertise(propertyIDTemperature, "Temperature", homie.DtFloat).
		SetUnit("°C")
	probe.targetMin = n.Advertise(propertyIDTargetMin, "Minimum temperature", homie.DtFloat).
		SetUnit("°C").
		Settable(b.targetHandler(index))
	probe.targetMax = n.Advertise(propertyIDTargetMax, "Target/maximum temperature", homie.DtFloat).
		SetUnit("°C").
		Settable(b.targetHandler(index))
	probe.mode = n.Advertise(propertyIDTargetMode, "Target mode", homie.DtEnum).
		SetFormat(targetModesFormat).
		Settable(b.targetHandler(index))

	b.homie.AddNode(n)

	b.mu.Lock()
	b.probes[index] = probe
	t := b.targets[index]
	b.mu.Unlock()

	// Restore the target temperature to its previous value, or none.
	if err := b.pushTarget(index, t); err != nil {
		slog.Error("failed to restore target temperature", "address", b.mac, "probe", index, "error", err)
	}
	probe.mode.SetProperty().Send(t.mode.String())
	probe.targetMin.SetProperty().Send(formatTemperature(t.min))
	probe.targetMax.SetProperty().Send(formatTemperature(t.max))

	return probe
}

// handleUnitSet pushes a display unit change to the thermometer.
func (b *Bridge) handleUnitSet(d *homie.Device, n *homie.Node, p *homie.Property, value string) bool {
	unit, ok := parseDisplayUnit(value)
	if !ok {
		slog.Warn("ignoring invalid display unit", "address", b.mac, "value", value)
		return true
	}
	if err := b.dev.SetTemperatureUnit(unit); err != nil {
		slog.Error("failed to set temperature unit", "address", b.mac, "error", err)
		return true
	}
	p.SetProperty().Send(value)
	return true
}

// handleAlarmSet silences the alarm when a controller publishes false.
// There is no way to make the unit ring on demand, so true is ignored.
func (b *Bridge) handleAlarmSet(d *homie.Device, n *homie.Node, p *homie.Property, value string) bool {
	state, err := strconv.ParseBool(value)
	if err != nil || state {
		return true
	}
	if err := b.dev.SilenceAlarm(); err != nil {
		slog.Error("failed to silence alarm", "address", b.mac, "error", err)
		return true
	}
	p.SetProperty().Send("false")
	return true
}

// targetHandler returns the set handler shared by a probe node's three
// target properties.
func (b *Bridge) targetHandler(index int) homie.Handler {
	return func(d *homie.Device, n *homie.Node, p *homie.Property, value string) bool {
		b.mu.Lock()
		t := b.targets[index]
		switch p.Id() {
		case propertyIDTargetMin:
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				b.mu.Unlock()
				return true
			}
			t.min = v
		case propertyIDTargetMax:
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				b.mu.Unlock()
				return true
			}
			t.max = v
		case propertyIDTargetMode:
			m, err := parseTargetMode(value)
			if err != nil {
				b.mu.Unlock()
				return true
			}
			t.mode = m
		default:
			b.mu.Unlock()
			return false
		}
		b.targets[index] = t
		b.mu.Unlock()

		if err := b.pushTarget(index, t); err != nil {
			slog.Error("failed to set target temperature", "address", b.mac, "probe", index, "error", err)
			return true
		}
		p.SetProperty().Send(value)
		return true
	}
}

func (b *Bridge) probeName(index int) string {
	if index < len(b.devCfg.ProbeNames) {
		return b.devCfg.ProbeNames[index]
	}
	return fmt.Sprintf("Probe %d", index+1)
}

func probeNodeID(index int) string {
	return fmt.Sprintf("%s%d", nodeIDProbePrefix, index)
}

func parseDisplayUnit(value string) (ibbq.TemperatureUnit, bool) {
	switch value {
	case displayUnitCelsius:
		return ibbq.Celsius, true
	case displayUnitFahrenheit:
		return ibbq.Fahrenheit, true
	}
	return ibbq.Celsius, false
}

func formatTemperature(celsius float64) string {
	return strconv.FormatFloat(celsius, 'f', 1, 64)
}

// macSuffix renders a normalized MAC as the lower-case hex string used
// in device and client ids.
func macSuffix(mac string) string {
	return strings.ToLower(strings.ReplaceAll(mac, ":", ""))
}
