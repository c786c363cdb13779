// v0
// mm44.go
package sensor

import (
	"strconv"
	"strings"
)

// ChannelValue is one parsed MM44 channel: a pH or DO value.
type ChannelValue struct {
	Type  string // "pH" or "DO"
	Value float64
	OK    bool // numeric parse succeeded
}

// ParseMM44Line parses one MM44 transmitter frame into per-channel values.
// Frames look like "C1;PH;7.02;C2;DO;6.55;C3;PH;7.31"; token order inside a
// triple is channel, kind, value. Unknown kinds and malformed numbers are
// kept with OK=false so the caller can alarm instead of silently skipping.
func ParseMM44Line(line string) map[string]ChannelValue {
	parts := strings.Split(line, ";")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	parsed := map[string]ChannelValue{}
	for i := 0; i+2 < len(parts); i++ {
		if !isChannelToken(parts[i]) {
			continue
		}
		ch := strings.ToUpper(parts[i])
		kind := strings.ToUpper(parts[i+1])
		switch kind {
		case "PH":
			parsed[ch] = channelValue("pH", parts[i+2])
		case "DO", "OD":
			parsed[ch] = channelValue("DO", parts[i+2])
		}
	}
	return parsed
}

func channelValue(kind, raw string) ChannelValue {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return ChannelValue{Type: kind, OK: false}
	}
	return ChannelValue{Type: kind, Value: f, OK: true}
}

func isChannelToken(tok string) bool {
	return len(tok) == 2 && (tok[0] == 'C' || tok[0] == 'c') && tok[1] >= '0' && tok[1] <= '9'
}
