package icapclient

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// requestTag generates a short best-effort-unique correlation tag for one
// Validate call, per §4.6: HEX(hash(now || mode || source)) followed by a
// uuid suffix so concurrent calls against the same source on the same
// host never collide even when the hash does (two calls landing in the
// same time-resolution bucket against the same request source).
func requestTag(now time.Time, mode Mode, requestSource string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", now.UTC().Format(time.RFC3339Nano), mode.String(), requestSource)))
	return hex.EncodeToString(sum[:8]) + "-" + uuid.NewString()[:8]
}
