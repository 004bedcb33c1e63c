package ibbq

import (
	"fmt"
	"log/slog"

	"tinygo.org/x/bluetooth"
)

// Device is a connected thermometer.  The usual sequence is Connect,
// Authenticate, Subscribe, EnableRealTimeData; after that readings
// arrive on RealTime() and command results on SettingResults().
type Device struct {
	name string
	addr bluetooth.Address
	dev  bluetooth.Device

	settingResult bluetooth.DeviceCharacteristic
	pair          bluetooth.DeviceCharacteristic
	realTime      bluetooth.DeviceCharacteristic
	settingUpdate bluetooth.DeviceCharacteristic

	realTimeCh chan RealTimeData
	settingCh  chan SettingResult
}

// Connect connects to a scanned thermometer and discovers its
// characteristics.
func Connect(adapter *bluetooth.Adapter, result bluetooth.ScanResult) (*Device, error) {
	dev, err := adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", result.Address, err)
	}

	services, err := dev.DiscoverServices([]bluetooth.UUID{serviceUUID})
	if err != nil {
		dev.Disconnect()
		return nil, fmt.Errorf("discover service %s on %s: %w", serviceUUID, result.Address, err)
	}
	if len(services) == 0 {
		dev.Disconnect()
		return nil, fmt.Errorf("device %s does not offer service %s", result.Address, serviceUUID)
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{
		settingResultUUID, pairUUID, realTimeUUID, settingUpdateUUID,
	})
	if err != nil {
		dev.Disconnect()
		return nil, fmt.Errorf("discover characteristics on %s: %w", result.Address, err)
	}
	if len(chars) != 4 {
		dev.Disconnect()
		return nil, fmt.Errorf("device %s is missing characteristics, found %d of 4", result.Address, len(chars))
	}

	return &Device{
		name:          result.LocalName(),
		addr:          result.Address,
		dev:           dev,
		settingResult: chars[0],
		pair:          chars[1],
		realTime:      chars[2],
		settingUpdate: chars[3],
		realTimeCh:    make(chan RealTimeData, 16),
		settingCh:     make(chan SettingResult, 16),
	}, nil
}

func (d *Device) Name() string               { return d.name }
func (d *Device) Address() bluetooth.Address { return d.addr }

// Authenticate writes the pairing credential.  Must be done before any
// command is accepted.
func (d *Device) Authenticate() error {
	if _, err := d.pair.WriteWithoutResponse(credential); err != nil {
		return fmt.Errorf("authenticate with %s: %w", d.addr, err)
	}
	return nil
}

// Subscribe enables notifications for real-time data and setting
// results.  Malformed notifications are dropped; notifications that
// arrive faster than the consumer drains them are dropped too.
func (d *Device) Subscribe() error {
	err := d.realTime.EnableNotifications(func(buf []byte) {
		data, err := decodeRealTimeData(buf)
		if err != nil {
			slog.Debug("dropping real-time notification", "device", d.addr.String(), "error", err)
			return
		}
		select {
		case d.realTimeCh <- data:
		default:
			slog.Debug("real-time channel full, dropping reading", "device", d.addr.String())
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe real-time data on %s: %w", d.addr, err)
	}

	err = d.settingResult.EnableNotifications(func(buf []byte) {
		result, err := decodeSettingResult(buf)
		if err != nil {
			slog.Debug("dropping setting result", "device", d.addr.String(), "error", err)
			return
		}
		select {
		case d.settingCh <- result:
		default:
			slog.Debug("setting-result channel full, dropping", "device", d.addr.String())
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe setting results on %s: %w", d.addr, err)
	}

	return nil
}

// RealTime delivers probe temperature notifications.
func (d *Device) RealTime() <-chan RealTimeData { return d.realTimeCh }

// SettingResults delivers command results and key presses.
func (d *Device) SettingResults() <-chan SettingResult { return d.settingCh }

func (d *Device) writeSetting(cmd []byte) error {
	if _, err := d.settingUpdate.WriteWithoutResponse(cmd); err != nil {
		return fmt.Errorf("write command %#02x to %s: %w", cmd[0], d.addr, err)
	}
	return nil
}

// EnableRealTimeData turns the temperature notification stream on or off.
func (d *Device) EnableRealTimeData(enable bool) error {
	var b byte
	if enable {
		b = 1
	}
	return d.writeSetting([]byte{cmdEnableRealTime, b, 0, 0, 0, 0})
}

// RequestBatteryLevel asks for a battery reading; the answer arrives as
// a BatteryLevel on SettingResults.
func (d *Device) RequestBatteryLevel() error {
	return d.writeSetting([]byte{cmdRequestSetting, resultBatteryLevel, 0, 0, 0, 0})
}

// SetTemperatureUnit switches the unit's own display between °C and °F.
func (d *Device) SetTemperatureUnit(unit TemperatureUnit) error {
	return d.writeSetting([]byte{cmdSetUnit, byte(unit), 0, 0, 0, 0})
}

// SetTargetTemp sets a maximum-only target for a probe; the unit alarms
// when the probe exceeds it.
func (d *Device) SetTargetTemp(probe uint8, max float64) error {
	cmd, err := encodeTargetRange(probe, MinTargetCelsius, max)
	if err != nil {
		return err
	}
	return d.writeSetting(cmd)
}

// SetTargetRange sets a target band for a probe; the unit alarms when
// the probe leaves it.
func (d *Device) SetTargetRange(probe uint8, min, max float64) error {
	cmd, err := encodeTargetRange(probe, min, max)
	if err != nil {
		return err
	}
	return d.writeSetting(cmd)
}

// RemoveTarget clears a probe's target by widening it to the full
// supported span.
func (d *Device) RemoveTarget(probe uint8) error {
	return d.SetTargetRange(probe, MinTargetCelsius, MaxTargetCelsius)
}

// SilenceAlarm silences a ringing alarm on the unit.
func (d *Device) SilenceAlarm() error {
	return d.writeSetting([]byte{cmdSilenceAlarm, 0xff, 0, 0, 0, 0})
}

// Disconnect drops the Bluetooth connection.
func (d *Device) Disconnect() error {
	return d.dev.Disconnect()
}
