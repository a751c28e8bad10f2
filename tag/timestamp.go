package tag

import (
	"fmt"
	"time"
)

// Timestamp is the decoded form of the reserved timestamp ext type:
// seconds since the Unix epoch plus a nanosecond component in
// [0, 999999999].
type Timestamp struct {
	Seconds     int64
	Nanoseconds uint32
}

// FromTime converts t to a Timestamp, truncating the monotonic clock.
func FromTime(t time.Time) Timestamp {
	return Timestamp{
		Seconds:     t.Unix(),
		Nanoseconds: uint32(t.Nanosecond()),
	}
}

// Time converts ts to a time.Time in UTC.
func (ts Timestamp) Time() time.Time {
	return time.Unix(ts.Seconds, int64(ts.Nanoseconds)).UTC()
}

func (ts Timestamp) String() string {
	if ts.Nanoseconds == 0 {
		return fmt.Sprintf("timestamp(%d)", ts.Seconds)
	}
	return fmt.Sprintf("timestamp(%d.%09d)", ts.Seconds, ts.Nanoseconds)
}
