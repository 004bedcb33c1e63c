// Package ibbq is a Bluetooth Low Energy client for the iBBQ family of
// barbecue thermometers (sold as iBBQ, Inkbird IBT-x, ThermoPro and
// others).  These units expose a single vendor service with write
// characteristics for pairing and commands, and notify characteristics
// for real-time probe temperatures and command results.
package ibbq

import "tinygo.org/x/bluetooth"

// Vendor GATT service and characteristics.
var (
	serviceUUID       = bluetooth.New16BitUUID(0xFFF0)
	settingResultUUID = bluetooth.New16BitUUID(0xFFF1) // notify: command results, key presses
	pairUUID          = bluetooth.New16BitUUID(0xFFF2) // write: pairing credential
	historyUUID       = bluetooth.New16BitUUID(0xFFF3) // notify: history download (unused here)
	realTimeUUID      = bluetooth.New16BitUUID(0xFFF4) // notify: probe temperatures
	settingUpdateUUID = bluetooth.New16BitUUID(0xFFF5) // write: commands
)

// The fixed credential every unit accepts.  Writing it to the pair
// characteristic is mandatory; until then the device ignores commands
// and sends no notifications.
var credential = []byte{
	0x21, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01,
	0xb8, 0x22, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// Advertised local names of known units.
var deviceNames = map[string]bool{
	"BBQ":   true,
	"iBBQ":  true,
	"xBBQ":  true,
	"sh683": true,
}

// TemperatureUnit selects the unit shown on the thermometer's own
// display.  Readings over the air are always tenths of a degree C.
type TemperatureUnit byte

const (
	Celsius    TemperatureUnit = 0x00
	Fahrenheit TemperatureUnit = 0x01
)
