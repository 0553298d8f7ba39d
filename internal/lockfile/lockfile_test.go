package lockfile_test

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillci/matrun/internal/lockfile"
)

func digestOf(data []byte) string {
	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:])
}

func TestParsePinnedWithHash(t *testing.T) {
	t.Parallel()

	content := `
# typing toolchain
mypy==1.10.0 \
    --hash=sha256:` + strings.Repeat("ab", 32) + ` \
    --hash=sha256:` + strings.Repeat("cd", 32) + `
typing-extensions==4.12.0 --hash=sha256:` + strings.Repeat("ef", 32) + `
`
	lf, err := lockfile.Parse(strings.NewReader(content))
	require.NoError(t, err)
	require.Len(t, lf.Requirements, 2)

	assert.Equal(t, "mypy", lf.Requirements[0].Name)
	assert.Equal(t, "1.10.0", lf.Requirements[0].Version)
	assert.Len(t, lf.Requirements[0].Hashes, 2)
	assert.Equal(t, "typing-extensions", lf.Requirements[1].Name)
}

func TestParseRejectsUnpinned(t *testing.T) {
	t.Parallel()

	_, err := lockfile.Parse(strings.NewReader("mypy>=1.0 --hash=sha256:" + strings.Repeat("ab", 32)))
	require.ErrorIs(t, err, lockfile.ErrUnpinned)
}

func TestParseRejectsMissingHash(t *testing.T) {
	t.Parallel()

	_, err := lockfile.Parse(strings.NewReader("mypy==1.10.0"))
	require.ErrorIs(t, err, lockfile.ErrMissingHash)
}

func TestParseRejectsShortDigest(t *testing.T) {
	t.Parallel()

	_, err := lockfile.Parse(strings.NewReader("mypy==1.10.0 --hash=sha256:abcd"))
	require.ErrorIs(t, err, lockfile.ErrBadHash)
}

func TestParseRejectsNonSHA256(t *testing.T) {
	t.Parallel()

	_, err := lockfile.Parse(strings.NewReader("mypy==1.10.0 --hash=md5:abcd"))
	require.ErrorIs(t, err, lockfile.ErrBadHash)
}

func TestVerify(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	artifact := []byte("not a real wheel")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mypy-1.10.0-py3-none-any.whl"), artifact, 0o600))

	lf, err := lockfile.Parse(strings.NewReader("mypy==1.10.0 --hash=sha256:" + digestOf(artifact)))
	require.NoError(t, err)

	assert.NoError(t, lf.Verify(dir))
}

func TestVerifyDigestMismatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mypy-1.10.0.tar.gz"), []byte("tampered"), 0o600))

	lf, err := lockfile.Parse(strings.NewReader("mypy==1.10.0 --hash=sha256:" + strings.Repeat("ab", 32)))
	require.NoError(t, err)

	err = lf.Verify(dir)
	require.ErrorIs(t, err, lockfile.ErrDigestMismatch)
}

func TestVerifyMissingArtifact(t *testing.T) {
	t.Parallel()

	lf, err := lockfile.Parse(strings.NewReader("mypy==1.10.0 --hash=sha256:" + strings.Repeat("ab", 32)))
	require.NoError(t, err)

	err = lf.Verify(t.TempDir())
	require.ErrorIs(t, err, lockfile.ErrMissingArtifact)
}
