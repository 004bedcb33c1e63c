// Package config loads the bridge configuration.  Everything is
// optional; an absent or empty file runs the bridge against the public
// test broker with default naming.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const DefaultFilename = "bbqhomie.yaml"

const (
	defaultHost           = "test.mosquitto.org"
	defaultPort           = 1883
	defaultClientPrefix   = "bbqhomie"
	defaultHomiePrefix    = "homie"
	defaultDeviceIDPrefix = "bbqhomie"
)

type Config struct {
	MQTT  MQTTConfig  `yaml:"mqtt"`
	Homie HomieConfig `yaml:"homie"`

	// Devices maps a thermometer's MAC address to its settings.  Keys
	// are normalized to upper-case colon-separated form.
	Devices map[string]DeviceConfig `yaml:"devices"`
}

type MQTTConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	UseTLS       bool   `yaml:"use_tls"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	ClientPrefix string `yaml:"client_prefix"`
}

type HomieConfig struct {
	// Prefix is the topic base all devices are published under.
	Prefix string `yaml:"prefix"`
	// DeviceIDPrefix is prepended to the MAC address to form the Homie
	// device id.
	DeviceIDPrefix string `yaml:"device_id_prefix"`
}

type DeviceConfig struct {
	// Name overrides the Bluetooth device name as the Homie friendly name.
	Name string `yaml:"name"`
	// ProbeNames name the probe sockets, in socket order.
	ProbeNames []string `yaml:"probe_names"`
}

// URL is the broker URL in the form the paho client wants.
func (m MQTTConfig) URL() string {
	scheme := "tcp"
	if m.UseTLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, m.Host, m.Port)
}

// Load reads the named config file.  When mustExist is false a missing
// file is not an error and yields the defaults; pass true when the user
// named the file explicitly, so a typo does not silently run with
// defaults.  Unknown fields are always errors.
func Load(filename string, mustExist bool) (Config, error) {
	config := defaults()

	file, err := os.Open(filename)
	if errors.Is(err, fs.ErrNotExist) && !mustExist {
		return config, nil
	}
	if err != nil {
		return config, fmt.Errorf("reading %s: %w", filename, err)
	}
	defer file.Close()

	if err := parse(file, &config); err != nil {
		return config, fmt.Errorf("parsing %s: %w", filename, err)
	}
	return config, nil
}

func defaults() Config {
	return Config{
		MQTT: MQTTConfig{
			Host:         defaultHost,
			Port:         defaultPort,
			ClientPrefix: defaultClientPrefix,
		},
		Homie: HomieConfig{
			Prefix:         defaultHomiePrefix,
			DeviceIDPrefix: defaultDeviceIDPrefix,
		},
		Devices: make(map[string]DeviceConfig),
	}
}

func parse(r io.Reader, config *Config) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	devices := make(map[string]DeviceConfig, len(config.Devices))
	for mac, device := range config.Devices {
		normalized, err := NormalizeMAC(mac)
		if err != nil {
			return err
		}
		devices[normalized] = device
	}
	config.Devices = devices

	return nil
}

// NormalizeMAC validates a MAC address and renders it in the canonical
// upper-case colon-separated form used as the Devices key.
func NormalizeMAC(mac string) (string, error) {
	hw, err := net.ParseMAC(mac)
	if err != nil {
		return "", fmt.Errorf("invalid MAC address %q: %w", mac, err)
	}
	return strings.ToUpper(hw.String()), nil
}

// Device looks up per-device settings by normalized MAC address,
// falling back to the zero value.
func (c Config) Device(mac string) DeviceConfig {
	return c.Devices[mac]
}
