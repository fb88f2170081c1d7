// Package id mints the identifiers stamped on positions and audit rows.
package id

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu sync.Mutex

	// monotonic entropy keeps ids minted within one millisecond strictly
	// increasing
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New mints a ULID. Ids order by creation time under a plain string sort,
// so position history and journal rows need no separate sequence column.
func New() string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy).String()
}
