package classifier

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ulap.onnx")
	body := []byte("not really a model")
	require.NoError(t, os.WriteFile(path, body, 0o644))

	sum := sha256.Sum256(body)
	digest := hex.EncodeToString(sum[:])

	assert.NoError(t, VerifyChecksum(path, ""))
	assert.NoError(t, VerifyChecksum(path, digest))
	assert.NoError(t, VerifyChecksum(path, " "+strings.ToUpper(digest)+" "))

	err := VerifyChecksum(path, strings.Repeat("0", 64))
	assert.ErrorIs(t, err, ErrChecksumMismatch)
	assert.Contains(t, err.Error(), digest)

	assert.Error(t, VerifyChecksum(filepath.Join(t.TempDir(), "missing.onnx"), digest))
}
