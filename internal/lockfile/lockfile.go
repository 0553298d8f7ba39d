// Package lockfile parses pinned requirements files and verifies package
// artifacts against their recorded sha256 digests before installation.
package lockfile

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

var (
	ErrUnpinned       = errors.New("requirement is not pinned to an exact version")
	ErrMissingHash    = errors.New("requirement has no sha256 hash")
	ErrBadHash        = errors.New("malformed hash option")
	ErrDigestMismatch = errors.New("artifact digest does not match lockfile")
	ErrMissingArtifact = errors.New("artifact not found in package directory")
)

// Requirement is one pinned entry of a lockfile. Several hashes may be
// allowed for one requirement (one per published artifact).
type Requirement struct {
	Name    string
	Version string
	Hashes  []string
}

// Lockfile is a parsed requirements file where every entry is pinned and
// hash-locked.
type Lockfile struct {
	Requirements []Requirement
}

// Parse reads a requirements-style lockfile. Lines may continue with a
// trailing backslash; comments and blank lines are skipped. Every entry must
// be pinned with == and carry at least one --hash=sha256:<hex> option.
func Parse(r io.Reader) (*Lockfile, error) {
	lf := &Lockfile{}
	scanner := bufio.NewScanner(r)

	var logical string
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if strings.HasSuffix(line, "\\") {
			logical += strings.TrimSuffix(line, "\\") + " "

			continue
		}
		logical += line

		entry := strings.TrimSpace(logical)
		logical = ""
		if entry == "" || strings.HasPrefix(entry, "#") {
			continue
		}

		req, err := parseEntry(entry)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNo)
		}
		lf.Requirements = append(lf.Requirements, req)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "unable to read lockfile")
	}
	if logical != "" {
		return nil, errors.Errorf("line %d: dangling continuation", lineNo)
	}

	return lf, nil
}

// Load parses the lockfile at path.
func Load(path string) (*Lockfile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open lockfile %s", path)
	}
	defer file.Close()

	lf, err := Parse(file)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to parse lockfile %s", path)
	}

	return lf, nil
}

func parseEntry(entry string) (Requirement, error) {
	fields := strings.Fields(entry)

	spec := fields[0]
	name, version, ok := strings.Cut(spec, "==")
	if !ok || name == "" || version == "" {
		return Requirement{}, errors.Wrap(ErrUnpinned, spec)
	}

	req := Requirement{Name: name, Version: version}
	for _, field := range fields[1:] {
		value, found := strings.CutPrefix(field, "--hash=")
		if !found {
			// other pip options (e.g. markers) are not part of the
			// verification contract
			continue
		}
		digest, found := strings.CutPrefix(value, "sha256:")
		if !found {
			return Requirement{}, errors.Wrap(ErrBadHash, field)
		}
		if len(digest) != sha256.Size*2 {
			return Requirement{}, errors.Wrap(ErrBadHash, field)
		}
		if _, err := hex.DecodeString(digest); err != nil {
			return Requirement{}, errors.Wrap(ErrBadHash, field)
		}
		req.Hashes = append(req.Hashes, strings.ToLower(digest))
	}

	if len(req.Hashes) == 0 {
		return Requirement{}, errors.Wrap(ErrMissingHash, spec)
	}

	return req, nil
}

const verifyParallelism = 4

// Verify checks every requirement against the artifacts in dir. An artifact
// is any file named "<name>-<version>*". Verification fails closed: a
// missing artifact or a digest outside the allowed set is an error.
func (lf *Lockfile) Verify(dir string) error {
	grp := errgroup.Group{}
	grp.SetLimit(verifyParallelism)
	for _, req := range lf.Requirements {
		req := req
		grp.Go(func() error {
			return req.verify(dir)
		})
	}

	return grp.Wait()
}

func (req Requirement) verify(dir string) error {
	pattern := filepath.Join(dir, fmt.Sprintf("%s-%s*", req.Name, req.Version))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return errors.Wrapf(err, "unable to glob %s", pattern)
	}
	if len(matches) == 0 {
		return errors.Wrapf(ErrMissingArtifact, "%s==%s", req.Name, req.Version)
	}

	for _, path := range matches {
		digest, err := fileDigest(path)
		if err != nil {
			return err
		}
		if !req.allows(digest) {
			return errors.Wrapf(ErrDigestMismatch, "%s (got sha256:%s)", filepath.Base(path), digest)
		}
	}

	return nil
}

func (req Requirement) allows(digest string) bool {
	for _, want := range req.Hashes {
		if want == digest {
			return true
		}
	}

	return false
}

func fileDigest(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "unable to open artifact %s", path)
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", errors.Wrapf(err, "unable to hash artifact %s", path)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
