package classifier

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrChecksumMismatch is returned when a model file does not hash to the
// configured digest.
var ErrChecksumMismatch = errors.New("model checksum mismatch")

// VerifyChecksum hashes the file at path and compares it with the hex
// digest want. An empty want skips the check.
func VerifyChecksum(path, want string) error {
	want = strings.TrimSpace(want)
	if want == "" {
		return nil
	}

	fh, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer fh.Close()

	h := sha256.New()
	if _, err := io.Copy(h, fh); err != nil {
		return fmt.Errorf("hash %s: %w", path, err)
	}
	sum := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(sum, want) {
		return fmt.Errorf("%w for %s: expected %s got %s", ErrChecksumMismatch, path, want, sum)
	}
	return nil
}
