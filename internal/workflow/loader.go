package workflow

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	wferrors "github.com/maxkimambo/xenopipe/internal/errors"
)

// Load reads a workflow declaration from a YAML file. Relative external
// input paths are resolved against the file's directory.
func Load(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}

	wf, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i := range wf.Inputs {
		if wf.Inputs[i].Path != "" && !filepath.IsAbs(wf.Inputs[i].Path) {
			wf.Inputs[i].Path = filepath.Join(base, wf.Inputs[i].Path)
		}
	}
	return wf, nil
}

// Parse decodes a workflow declaration. Unknown fields are rejected.
func Parse(data []byte) (*Workflow, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var wf Workflow
	if err := dec.Decode(&wf); err != nil {
		return nil, wferrors.NewInvalidDeclarationError(wferrors.CodeDeclarationName, "",
			"workflow file does not parse").WithOriginalError(err)
	}
	return &wf, nil
}

// StatInputs fills in SizeBytes for external inputs that do not declare
// one, using the size on disk.
func StatInputs(inputs []ExternalInput) error {
	for i := range inputs {
		if inputs[i].SizeBytes > 0 {
			continue
		}
		info, err := os.Stat(inputs[i].Path)
		if err != nil {
			return wferrors.NewUnresolvedInputError(wferrors.CodeGraphMissingInput, "", inputs[i].Name,
				External(inputs[i].Name).String(), "file is not accessible").WithOriginalError(err)
		}
		inputs[i].SizeBytes = info.Size()
	}
	return nil
}
