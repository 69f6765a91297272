package ids

import (
	cryptorand "crypto/rand"
	"fmt"
	"math/big"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier suitable for storage keys.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

var codeSpace = big.NewInt(1000000)

// NewCode returns a short numeric code meant to be typed by a human,
// for example from a password-reset email. Drawn uniformly from crypto
// randomness, so no code value is likelier than another.
func NewCode() (string, error) {
	n, err := cryptorand.Int(cryptorand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return fmt.Sprintf("%06d", n), nil
}
