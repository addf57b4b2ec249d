package xid

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const receiptAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// New returns a time-ordered identifier such as "sale_0192c4a1-...".
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return fmt.Sprintf("%s_%s", prefix, id.String())
}

// Receipt returns a caller-facing receipt number: the year, the unix
// millisecond and a random suffix, e.g. "RX-2026-1792281600123-7KQ2".
func Receipt(at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("RX-%d-%d-%s", at.Year(), at.UnixMilli(), randomSuffix(4))
}

func randomSuffix(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		nanos := time.Now().UnixNano()
		for i := range buf {
			buf[i] = byte(nanos >> (8 * i))
		}
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = receiptAlphabet[int(b)%len(receiptAlphabet)]
	}
	return string(out)
}
