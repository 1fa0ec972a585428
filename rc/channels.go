// Package rc turns raw radio channel frames into a filtered channel set that the rest of the
// flight core can trust, and tracks the radio link.
package rc

import (
	"fmt"
	"strings"
)

// Channel indexes a Channels array. The order is the receiver's channel order.
type Channel int

const (
	RX Channel = iota // right stick horizontal (roll)
	RY                // right stick vertical (pitch)
	LY                // left stick vertical (throttle)
	LX                // left stick horizontal (yaw)
	SA
	SB
	SC
	SD
	SE
	SL
	NumChannels
)

var channelNames = [NumChannels]string{"RX", "RY", "LY", "LX", "SA", "SB", "SC", "SD", "SE", "SL"}

func (c Channel) String() string {
	if c < 0 || c >= NumChannels {
		return fmt.Sprintf("Channel(%d)", int(c))
	}
	return channelNames[c]
}

// ParseChannel resolves a channel name such as "LY" or "sa".
func ParseChannel(name string) (Channel, error) {
	for i, n := range channelNames {
		if strings.EqualFold(n, name) {
			return Channel(i), nil
		}
	}
	return 0, fmt.Errorf("unknown channel %q", name)
}

// Kind is the hardware behaviour of a channel.
type Kind int

const (
	KindStick Kind = iota
	KindButton
	KindThreePosition
	KindSelfCentering
	KindWheel
)

// Layout declares the hardware behind every channel of the transmitter.
var Layout = [NumChannels]Kind{
	RX: KindStick,
	RY: KindStick,
	LY: KindStick,
	LX: KindStick,
	SA: KindButton,
	SB: KindThreePosition,
	SC: KindThreePosition,
	SD: KindButton,
	SE: KindSelfCentering,
	SL: KindWheel,
}

const (
	ValueMin int8 = -100
	ValueMax int8 = 100
)

// Channels holds one value per channel, nominally in [-100, 100].
type Channels [NumChannels]int8

func (c Channels) Get(ch Channel) int8 { return c[ch] }

// Sticks returns the four stick values in channel order.
func (c Channels) Sticks() [4]int8 {
	return [4]int8{c[RX], c[RY], c[LY], c[LX]}
}

// SticksInRange reports whether every stick is inside [-100, 100].
func (c Channels) SticksInRange() bool {
	for ch := RX; ch <= LX; ch++ {
		if c[ch] < ValueMin || c[ch] > ValueMax {
			return false
		}
	}
	return true
}

// Frame is one raw receiver frame.
type Frame struct {
	Channels  Channels
	Connected bool
}
