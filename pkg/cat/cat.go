// Package cat implements the Kenwood-style CAT command codec used on
// the serial side of the bridge. All functions are pure data
// transforms; serial I/O lives in pkg/gateway.
package cat

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Terminator ends every CAT command and response frame.
const Terminator = ';'

// MaxFrequency is the largest value representable in the 11-digit
// zero-padded wire format.
const MaxFrequency int64 = 99999999999

// ErrMalformed indicates a response that does not match the expected
// frame shape.
var ErrMalformed = errors.New("malformed CAT response")

// Mode is the radio operating mode enumeration.
type Mode int

const (
	ModeLSB Mode = iota + 1
	ModeUSB
	ModeCW
	ModeFM
	ModeAM
	ModeFSK
)

// String returns the display name for the mode.
func (m Mode) String() string {
	switch m {
	case ModeLSB:
		return "LSB"
	case ModeUSB:
		return "USB"
	case ModeCW:
		return "CW"
	case ModeFM:
		return "FM"
	case ModeAM:
		return "AM"
	case ModeFSK:
		return "FSK"
	default:
		return "UNKNOWN"
	}
}

// WireDigit returns the single-digit wire code for the mode.
func (m Mode) WireDigit() byte {
	return byte('0' + int(m))
}

// ParseMode parses a display-form mode name ("USB", "CW", ...).
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LSB":
		return ModeLSB, nil
	case "USB":
		return ModeUSB, nil
	case "CW":
		return ModeCW, nil
	case "FM":
		return ModeFM, nil
	case "AM":
		return ModeAM, nil
	case "FSK":
		return ModeFSK, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}

// ModeFromWireDigit maps a wire code back to a Mode. Codes outside
// 1..6 fall back to USB; the radio keeps working even when it reports
// a mode this bridge does not know about.
func ModeFromWireDigit(d byte) Mode {
	if d >= '1' && d <= '6' {
		return Mode(d - '0')
	}
	return ModeUSB
}

// FormatMHz renders a frequency in Hz as decimal MHz with six
// fractional digits, the display form used by the status surface.
func FormatMHz(hz int64) string {
	return fmt.Sprintf("%d.%06d", hz/1000000, hz%1000000)
}

// ParseMHz parses the MHz display form back to integer Hz.
func ParseMHz(s string) (int64, error) {
	s = strings.TrimSpace(s)
	mhz, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frequency %q: %w", s, err)
	}
	if mhz < 0 {
		return 0, fmt.Errorf("invalid frequency %q: negative", s)
	}
	hz := int64(mhz*1e6 + 0.5)
	if hz > MaxFrequency {
		return 0, fmt.Errorf("frequency %q exceeds wire format", s)
	}
	return hz, nil
}

// EncodeSetFrequency formats an FA set command: "FA" followed by the
// frequency as 11 zero-padded decimal digits and the terminator.
// hz must be in [0, MaxFrequency]; callers validate before encoding.
func EncodeSetFrequency(hz int64) []byte {
	return []byte(fmt.Sprintf("FA%011d;", hz))
}

// EncodeSetMode formats an MD set command.
func EncodeSetMode(m Mode) []byte {
	return []byte{'M', 'D', m.WireDigit(), Terminator}
}

// EncodeQuery formats a bare query frame for a two-letter mnemonic.
func EncodeQuery(mnemonic string) []byte {
	return []byte(mnemonic + string(Terminator))
}

// ParseFrequencyResponse parses an FA response. The payload must be
// at least 13 bytes, begin with "FA" and carry 11 ASCII digits.
func ParseFrequencyResponse(payload []byte) (int64, error) {
	if len(payload) < 13 || payload[0] != 'F' || payload[1] != 'A' {
		return 0, ErrMalformed
	}
	var hz int64
	for _, c := range payload[2:13] {
		if c < '0' || c > '9' {
			return 0, ErrMalformed
		}
		hz = hz*10 + int64(c-'0')
	}
	return hz, nil
}

// ParseModeResponse parses an MD response. The payload must be at
// least 4 bytes and begin with "MD"; an unrecognized mode digit maps
// to USB rather than failing.
func ParseModeResponse(payload []byte) (Mode, error) {
	if len(payload) < 4 || payload[0] != 'M' || payload[1] != 'D' {
		return 0, ErrMalformed
	}
	return ModeFromWireDigit(payload[2]), nil
}

// ParseAck reports whether payload begins with the expected
// two-letter command prefix.
func ParseAck(payload []byte, prefix string) bool {
	if len(payload) < len(prefix) {
		return false
	}
	return string(payload[:len(prefix)]) == prefix
}
