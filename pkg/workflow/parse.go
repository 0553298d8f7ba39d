package workflow

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Load reads and validates a workflow definition from a file.
func Load(path string) (*Workflow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open workflow %s", path)
	}
	defer file.Close()

	wf, err := Parse(file)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to parse workflow %s", path)
	}

	return wf, nil
}

// Parse decodes and validates a workflow definition. Unknown fields are
// rejected so typos in definitions surface immediately.
func Parse(r io.Reader) (*Workflow, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read workflow")
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	wf := &Workflow{}
	err = dec.Decode(wf)
	if err != nil {
		return nil, errors.Wrap(err, "unable to decode workflow")
	}

	err = wf.Validate()
	if err != nil {
		return nil, err
	}

	return wf, nil
}
