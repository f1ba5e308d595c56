package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Clock is a time of day expressed as minutes since midnight. Values above
// 24h are allowed for nightlife blocks that cross midnight.
type Clock int

func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

func ParseClock(s string) (Clock, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	var h, m int
	if _, err := fmt.Sscanf(parts[0]+" "+parts[1], "%d %d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", s, err)
	}
	if h < 0 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	return NewClock(h, m), nil
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour()%24, c.Minute())
}

// Minutes returns the raw minute count, useful for duration arithmetic.
func (c Clock) Minutes() int { return int(c) }

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
