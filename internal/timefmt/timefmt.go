package timefmt

import "time"

// ISO8601 is the format used for timestamp serialization in trace and
// feedback exports.
const ISO8601 = "2006-01-02T15:04:05.000Z"

// Format formats a time.Time to the standard string representation.
func Format(t time.Time) string {
	return t.UTC().Format(ISO8601)
}

// DayKey returns the UTC date key ("YYYY-MM-DD") a feedback record with
// timestamp ts belongs to.
func DayKey(ts time.Time) string {
	return ts.UTC().Format("2006-01-02")
}

// EpochMillis returns t as epoch milliseconds, the unit every timestamp
// in the data model is expressed in.
func EpochMillis(t time.Time) int64 {
	return t.UnixMilli()
}
