package httpapi

import (
	"math/rand/v2"
	"strconv"
	"time"
)

// newEpoch mints a process epoch token in the spec's
// "{ms-b36}-{rand-b36}" format. Computed once at startup and held
// immutable for the process lifetime so clients can detect restarts.
func newEpoch() string {
	ms := time.Now().UnixMilli()
	r := rand.Int64()
	if r < 0 {
		r = -r
	}
	return strconv.FormatInt(ms, 36) + "-" + strconv.FormatInt(r, 36)
}
