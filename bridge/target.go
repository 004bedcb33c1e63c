package bridge

import "fmt"

// Target alarm handling for a probe.  The thermometer itself has no
// notion of "mode"; it only takes a min/max band.  The mode is a
// controller-side concept, kept here per probe index so it survives a
// probe being unplugged and plugged back in.

type targetMode int

const (
	targetNone targetMode = iota
	targetSingle
	targetRange
)

const (
	targetModeNone   = "None"
	targetModeSingle = "Maximum only"
	targetModeRange  = "Range"
)

const targetModesFormat = targetModeNone + "," + targetModeSingle + "," + targetModeRange

func parseTargetMode(s string) (targetMode, error) {
	switch s {
	case targetModeNone:
		return targetNone, nil
	case targetModeSingle:
		return targetSingle, nil
	case targetModeRange:
		return targetRange, nil
	}
	return targetNone, fmt.Errorf("invalid target mode %q", s)
}

func (m targetMode) String() string {
	switch m {
	case targetSingle:
		return targetModeSingle
	case targetRange:
		return targetModeRange
	}
	return targetModeNone
}

// target is the remembered alarm setting for one probe index.
type target struct {
	mode targetMode
	min  float64
	max  float64
}

// pushTarget tells the thermometer about a probe's target setting.
func (b *Bridge) pushTarget(probe int, t target) error {
	switch t.mode {
	case targetSingle:
		return b.dev.SetTargetTemp(uint8(probe), t.max)
	case targetRange:
		return b.dev.SetTargetRange(uint8(probe), t.min, t.max)
	}
	return b.dev.RemoveTarget(uint8(probe))
}
