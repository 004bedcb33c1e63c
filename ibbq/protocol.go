package ibbq

import (
	"encoding/binary"
	"fmt"
)

// Command opcodes, written to the setting-update characteristic as
// fixed six-byte frames.
const (
	cmdSetTarget      = 0x01
	cmdSetUnit        = 0x02
	cmdSilenceAlarm   = 0x04
	cmdRequestSetting = 0x08
	cmdEnableRealTime = 0x0b
)

// Setting-result opcodes, first byte of a notification on the
// setting-result characteristic.
const (
	resultBatteryLevel = 0x24
)

// A probe socket with nothing plugged in reads this sentinel.
const probeAbsent = 0xfff6

// Some firmware reports 0 for the maximum battery voltage; the real
// full-scale value on those units.
const defaultMaxVoltage = 6550

// Targets are sent as signed tenths of a degree C; this is the span the
// units accept.  "No target" is expressed as the full span.
const (
	MinTargetCelsius = -300.0
	MaxTargetCelsius = 302.0
)

// ProbeReading is the state of one probe socket.
type ProbeReading struct {
	Celsius float64
	Present bool // false when nothing is plugged into the socket
}

// RealTimeData is one real-time notification: a reading per probe
// socket, in socket order.
type RealTimeData struct {
	Probes []ProbeReading
}

// SettingResult is a notification on the setting-result characteristic.
// Concrete types: BatteryLevel, SilencePressed, Unknown.
type SettingResult interface {
	settingResult()
}

// BatteryLevel reports the battery voltage, in millivolts.
type BatteryLevel struct {
	CurrentVoltage uint16
	MaxVoltage     uint16
}

// SilencePressed reports that the alarm was silenced with the button on
// the unit itself.
type SilencePressed struct{}

// Unknown carries a notification this package does not decode, command
// acknowledgements mostly.
type Unknown struct {
	Payload []byte
}

func (BatteryLevel) settingResult()   {}
func (SilencePressed) settingResult() {}
func (Unknown) settingResult()        {}

func decodeRealTimeData(buf []byte) (RealTimeData, error) {
	if len(buf) == 0 || len(buf)%2 != 0 {
		return RealTimeData{}, fmt.Errorf("real-time payload has odd length %d", len(buf))
	}

	data := RealTimeData{Probes: make([]ProbeReading, len(buf)/2)}
	for i := range data.Probes {
		raw := binary.LittleEndian.Uint16(buf[2*i:])
		if raw == probeAbsent {
			continue
		}
		data.Probes[i] = ProbeReading{
			Celsius: float64(int16(raw)) / 10,
			Present: true,
		}
	}
	return data, nil
}

func decodeSettingResult(buf []byte) (SettingResult, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("empty setting-result payload")
	}

	switch buf[0] {
	case resultBatteryLevel:
		if len(buf) < 5 {
			return nil, fmt.Errorf("battery payload too short: %d bytes", len(buf))
		}
		level := BatteryLevel{
			CurrentVoltage: binary.LittleEndian.Uint16(buf[1:]),
			MaxVoltage:     binary.LittleEndian.Uint16(buf[3:]),
		}
		if level.MaxVoltage == 0 {
			level.MaxVoltage = defaultMaxVoltage
		}
		return level, nil
	case cmdSilenceAlarm:
		return SilencePressed{}, nil
	default:
		p := make([]byte, len(buf))
		copy(p, buf)
		return Unknown{Payload: p}, nil
	}
}

func encodeTargetRange(probe uint8, min, max float64) ([]byte, error) {
	if min > max {
		return nil, fmt.Errorf("target range inverted: %.1f > %.1f", min, max)
	}
	if min < MinTargetCelsius || max > MaxTargetCelsius {
		return nil, fmt.Errorf("target range %.1f..%.1f outside %.1f..%.1f",
			min, max, MinTargetCelsius, MaxTargetCelsius)
	}

	buf := []byte{cmdSetTarget, probe, 0, 0, 0, 0}
	binary.LittleEndian.PutUint16(buf[2:], uint16(int16(min*10)))
	binary.LittleEndian.PutUint16(buf[4:], uint16(int16(max*10)))
	return buf, nil
}
