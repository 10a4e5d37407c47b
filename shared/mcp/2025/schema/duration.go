package schema

import (
	"errors"
	"strconv"
	"time"
)

// Milliseconds is a duration that crosses the wire as a non-negative integer
// millisecond count.
type Milliseconds time.Duration

// DurationMs converts a time.Duration into its wire representation.
func DurationMs(d time.Duration) Milliseconds {
	return Milliseconds(d)
}

// Duration returns the native time.Duration value.
func (m Milliseconds) Duration() time.Duration {
	return time.Duration(m)
}

func (m Milliseconds) MarshalJSON() ([]byte, error) {
	ms := time.Duration(m).Milliseconds()
	if ms < 0 {
		return nil, errors.New("duration: negative values are not allowed on the wire")
	}
	return strconv.AppendInt(nil, ms, 10), nil
}

func (m *Milliseconds) UnmarshalJSON(data []byte) error {
	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return errors.New("duration: expected an integer millisecond count")
	}
	if ms < 0 {
		return errors.New("duration: negative values are not allowed on the wire")
	}
	*m = Milliseconds(time.Duration(ms) * time.Millisecond)
	return nil
}
