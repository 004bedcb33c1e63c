package ibbq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRealTimeData(t *testing.T) {
	// two probes plugged in, two empty sockets
	buf := []byte{
		0xe8, 0x00, // 23.2 °C
		0x0a, 0x01, // 26.6 °C
		0xf6, 0xff, // absent
		0xf6, 0xff, // absent
	}

	data, err := decodeRealTimeData(buf)
	require.NoError(t, err)
	require.Len(t, data.Probes, 4)

	assert.True(t, data.Probes[0].Present)
	assert.InDelta(t, 23.2, data.Probes[0].Celsius, 0.001)
	assert.True(t, data.Probes[1].Present)
	assert.InDelta(t, 26.6, data.Probes[1].Celsius, 0.001)
	assert.False(t, data.Probes[2].Present)
	assert.False(t, data.Probes[3].Present)
}

func TestDecodeRealTimeDataNegative(t *testing.T) {
	// -5.0 °C, freezer probe
	data, err := decodeRealTimeData([]byte{0xce, 0xff})
	require.NoError(t, err)
	require.Len(t, data.Probes, 1)
	assert.True(t, data.Probes[0].Present)
	assert.InDelta(t, -5.0, data.Probes[0].Celsius, 0.001)
}

func TestDecodeRealTimeDataMalformed(t *testing.T) {
	_, err := decodeRealTimeData(nil)
	assert.Error(t, err)

	_, err = decodeRealTimeData([]byte{0xe8})
	assert.Error(t, err)
}

func TestDecodeSettingResultBattery(t *testing.T) {
	result, err := decodeSettingResult([]byte{0x24, 0x6f, 0x17, 0x96, 0x19, 0x00})
	require.NoError(t, err)

	level, ok := result.(BatteryLevel)
	require.True(t, ok)
	assert.Equal(t, uint16(5999), level.CurrentVoltage)
	assert.Equal(t, uint16(6550), level.MaxVoltage)
}

func TestDecodeSettingResultBatteryZeroMax(t *testing.T) {
	// firmware that reports max voltage 0 means full scale
	result, err := decodeSettingResult([]byte{0x24, 0x6f, 0x17, 0x00, 0x00, 0x00})
	require.NoError(t, err)

	level, ok := result.(BatteryLevel)
	require.True(t, ok)
	assert.Equal(t, uint16(defaultMaxVoltage), level.MaxVoltage)
}

func TestDecodeSettingResultSilence(t *testing.T) {
	result, err := decodeSettingResult([]byte{0x04, 0xff})
	require.NoError(t, err)
	assert.IsType(t, SilencePressed{}, result)
}

func TestDecodeSettingResultUnknown(t *testing.T) {
	result, err := decodeSettingResult([]byte{0x0b, 0x01})
	require.NoError(t, err)

	u, ok := result.(Unknown)
	require.True(t, ok)
	assert.Equal(t, []byte{0x0b, 0x01}, u.Payload)
}

func TestDecodeSettingResultMalformed(t *testing.T) {
	_, err := decodeSettingResult(nil)
	assert.Error(t, err)

	_, err = decodeSettingResult([]byte{0x24, 0x6f})
	assert.Error(t, err)
}

func TestEncodeTargetRange(t *testing.T) {
	cmd, err := encodeTargetRange(2, 60.0, 80.5)
	require.NoError(t, err)

	// 600 = 0x0258, 805 = 0x0325, little endian
	assert.Equal(t, []byte{0x01, 0x02, 0x58, 0x02, 0x25, 0x03}, cmd)
}

func TestEncodeTargetRangeNegativeMin(t *testing.T) {
	cmd, err := encodeTargetRange(0, MinTargetCelsius, 95.0)
	require.NoError(t, err)

	// -3000 = 0xf448 as signed little endian
	assert.Equal(t, []byte{0x01, 0x00, 0x48, 0xf4, 0xb6, 0x03}, cmd)
}

func TestEncodeTargetRangeInvalid(t *testing.T) {
	_, err := encodeTargetRange(0, 90, 60)
	assert.Error(t, err)

	_, err = encodeTargetRange(0, 0, 1000)
	assert.Error(t, err)
}
