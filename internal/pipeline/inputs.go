package pipeline

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	wferrors "github.com/maxkimambo/xenopipe/internal/errors"
)

// Inputs is everything provided before the workflow runs
type Inputs struct {
	SampleBAM string `yaml:"sample_bam"`
	Reference string `yaml:"reference"`
	// ReferenceIndex lists the bwa index files. Empty means
	// <reference>.{amb,ann,bwt,pac,sa}.
	ReferenceIndex []string       `yaml:"reference_index,omitempty"`
	Sample         SampleMetadata `yaml:"sample"`
}

type SampleMetadata struct {
	ID           string `yaml:"id"`
	ReadGroupID  string `yaml:"read_group_id"`
	PlatformUnit string `yaml:"platform_unit"`
	Name         string `yaml:"name"`
	Platform     string `yaml:"platform"`
}

var sampleIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// LoadInputs reads an inputs file. Relative paths are resolved against the
// directory of the file.
func LoadInputs(path string) (*Inputs, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wferrors.NewConfigFileError(path, err)
	}

	var in Inputs
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&in); err != nil {
		return nil, wferrors.NewConfigFileError(path, err)
	}

	base := filepath.Dir(path)
	in.SampleBAM = resolve(base, in.SampleBAM)
	in.Reference = resolve(base, in.Reference)
	for i := range in.ReferenceIndex {
		in.ReferenceIndex[i] = resolve(base, in.ReferenceIndex[i])
	}

	in.applyDefaults()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return &in, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func (in *Inputs) applyDefaults() {
	if len(in.ReferenceIndex) == 0 && in.Reference != "" {
		for _, suffix := range indexSuffixes {
			in.ReferenceIndex = append(in.ReferenceIndex, in.Reference+"."+suffix)
		}
	}
	if in.Sample.Platform == "" {
		in.Sample.Platform = "ILLUMINA"
	}
	if in.Sample.Name == "" {
		in.Sample.Name = in.Sample.ID
	}
	if in.Sample.ReadGroupID == "" {
		in.Sample.ReadGroupID = in.Sample.ID
	}
}

func (in *Inputs) Validate() error {
	switch {
	case in == nil:
		return wferrors.NewConfigurationError("inputs", "no inputs provided")
	case in.SampleBAM == "":
		return wferrors.NewConfigurationError("sample_bam", "must be set")
	case in.Reference == "":
		return wferrors.NewConfigurationError("reference", "must be set")
	case !sampleIDPattern.MatchString(in.Sample.ID):
		return wferrors.NewConfigurationError("sample.id",
			fmt.Sprintf("'%s' must start with a letter or digit and contain only letters, digits, '.', '_' or '-'", in.Sample.ID))
	}

	for field, v := range map[string]string{
		"sample.read_group_id": in.Sample.ReadGroupID,
		"sample.name":          in.Sample.Name,
		"sample.platform":      in.Sample.Platform,
		"sample.platform_unit": in.Sample.PlatformUnit,
	} {
		if bytes.ContainsAny([]byte(v), "\t\n") {
			return wferrors.NewConfigurationError(field, "must not contain tabs or newlines")
		}
	}
	if in.Sample.ReadGroupID == "" || in.Sample.Name == "" || in.Sample.Platform == "" {
		return wferrors.NewConfigurationError("sample", "read_group_id, name and platform must be set")
	}
	return nil
}
