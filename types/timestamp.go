package types

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Timestamp is a point in time with one-second resolution, stored as
// seconds since the Unix epoch. Block time is the only clock the ledger uses.
type Timestamp uint32

// MaxTimestamp is the far-future sentinel used for "never".
const MaxTimestamp Timestamp = math.MaxUint32

const timestampLayout = "2006-01-02T15:04:05"

// TimestampOf truncates t to whole seconds.
func TimestampOf(t time.Time) Timestamp {
	sec := t.Unix()
	switch {
	case sec < 0:
		return 0
	case sec > math.MaxUint32:
		return MaxTimestamp
	default:
		return Timestamp(sec)
	}
}

// Time converts to time.Time in UTC.
func (ts Timestamp) Time() time.Time {
	return time.Unix(int64(ts), 0).UTC()
}

// Add returns ts+d, saturating at MaxTimestamp and 0.
func (ts Timestamp) Add(d time.Duration) Timestamp {
	sec := int64(ts) + int64(d/time.Second)
	switch {
	case sec < 0:
		return 0
	case sec > math.MaxUint32:
		return MaxTimestamp
	default:
		return Timestamp(sec)
	}
}

// SecondsSince returns the whole seconds between earlier and ts, or 0 when
// earlier is not before ts.
func (ts Timestamp) SecondsSince(earlier Timestamp) uint32 {
	if earlier >= ts {
		return 0
	}
	return uint32(ts - earlier)
}

// Before reports whether ts is before other.
func (ts Timestamp) Before(other Timestamp) bool { return ts < other }

// After reports whether ts is after other.
func (ts Timestamp) After(other Timestamp) bool { return ts > other }

// String renders the chain text form, e.g. "2016-03-24T16:05:00".
func (ts Timestamp) String() string {
	return ts.Time().Format(timestampLayout)
}

// ParseTimestamp parses the chain text form.
func ParseTimestamp(s string) (Timestamp, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return 0, fmt.Errorf("timestamp: parse %q: %w", s, err)
	}
	if t.Unix() < 0 || t.Unix() > math.MaxUint32 {
		return 0, fmt.Errorf("timestamp: parse %q: out of range", s)
	}
	return Timestamp(t.Unix()), nil
}

// MarshalJSON renders the chain text form.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(ts.String())
}

// UnmarshalJSON parses the chain text form.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*ts = parsed
	return nil
}

// MarshalYAML renders the chain text form.
func (ts Timestamp) MarshalYAML() (any, error) { return ts.String(), nil }

// UnmarshalYAML parses the chain text form.
func (ts *Timestamp) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*ts = parsed
	return nil
}
