// Package pipeline declares the built-in xenograft contamination removal
// workflow: reads are re-aligned to a chimeric (graft + host) reference and
// alignments to host contigs are dropped.
package pipeline

import (
	"fmt"
	"strings"

	wferrors "github.com/maxkimambo/xenopipe/internal/errors"
	"github.com/maxkimambo/xenopipe/internal/workflow"
)

const WorkflowName = "xenograft"

// Task names
const (
	TaskBamToFastq       = "bam_to_fastq"
	TaskAlign            = "align"
	TaskSortByName       = "sort_by_name"
	TaskFilterByOrigin   = "filter_by_origin"
	TaskSortByCoordinate = "sort_by_coordinate"
	TaskIndexBam         = "index_bam"
	TaskFlagstat         = "flagstat"
	TaskExtractHeader    = "extract_header"
)

// bwa index files expected next to the reference FASTA
var indexSuffixes = []string{"amb", "ann", "bwt", "pac", "sa"}

type Images struct {
	Samtools string `yaml:"samtools"`
	// Aligner must provide both bwa and samtools
	Aligner string `yaml:"aligner"`
}

type Options struct {
	Images Images `yaml:"images"`

	// ContaminantPrefix is the reference-name substring marking host
	// contigs in the chimeric reference. It is passed to the filter as is.
	ContaminantPrefix string `yaml:"contaminant_prefix"`

	Preemptible bool `yaml:"preemptible"`
	MaxRetries  int  `yaml:"max_retries"`

	// PublishBAM adds the cleaned, indexed BAM to the final outputs
	PublishBAM bool `yaml:"publish_bam"`
}

func DefaultOptions() Options {
	return Options{
		Images: Images{
			Samtools: "quay.io/biocontainers/samtools:1.17--h00cdaf9_0",
			Aligner:  "quay.io/biocontainers/mulled-v2-fe8faa35dbf6dc65a0f7f5d4ea12e31a79f73e40:219b6c272b25e7e642ae3ff0bf0c5c81a5135ab4-0",
		},
		ContaminantPrefix: "mm10_",
		Preemptible:       true,
		MaxRetries:        3,
	}
}

// Xenograft declares the workflow for one sample
func Xenograft(opts Options, in *Inputs) (*workflow.Workflow, error) {
	if in == nil {
		return nil, wferrors.NewConfigurationError("inputs", "no inputs provided")
	}
	resolved := *in
	resolved.ReferenceIndex = append([]string(nil), in.ReferenceIndex...)
	resolved.applyDefaults()
	if err := resolved.Validate(); err != nil {
		return nil, err
	}
	in = &resolved

	if opts.ContaminantPrefix == "" {
		return nil, wferrors.NewConfigurationError("contaminant_prefix", "must not be empty")
	}
	if opts.MaxRetries < 0 {
		return nil, wferrors.NewConfigurationError("max_retries", "must not be negative")
	}

	s := in.Sample
	b := workflow.NewBuilder(WorkflowName).
		SetParam("sample_id", s.ID).
		SetParam("read_group_id", s.ReadGroupID).
		SetParam("platform_unit", s.PlatformUnit).
		SetParam("sample_name", s.Name).
		SetParam("platform", s.Platform).
		SetParam("read_group", s.ReadGroupLine()).
		SetParam("contaminant_prefix", opts.ContaminantPrefix).
		AddInput("sample_bam", in.SampleBAM, 0).
		AddInput("reference", in.Reference, 0)

	alignInputs := []workflow.Input{
		{Name: "reads", Ref: workflow.OutputOf(TaskBamToFastq, "reads")},
		{Name: "reference", Ref: workflow.External("reference")},
	}
	for i, p := range in.ReferenceIndex {
		name := fmt.Sprintf("reference_index_%d", i)
		b.AddInput(name, p, 0)
		alignInputs = append(alignInputs, workflow.Input{Name: name, Ref: workflow.External(name)})
	}

	retrying := func(spec workflow.TaskSpec) workflow.TaskSpec {
		spec.Preemptible = opts.Preemptible
		spec.MaxRetries = opts.MaxRetries
		return spec
	}

	b.AddTask(retrying(workflow.TaskSpec{
		Name:        TaskBamToFastq,
		Description: "Convert the sample BAM back to paired FASTQ",
		Inputs:      []workflow.Input{{Name: "bam", Ref: workflow.External("sample_bam")}},
		Outputs:     []workflow.OutputDecl{{Name: "reads", Glob: "*.fastq"}},
		Command: `samtools collate -u -O -@ {{.CPU}} {{shq .In.bam}} {{shq .WorkDir}}/collate |` +
			` samtools fastq -n -0 /dev/null -s /dev/null -1 {{shq .WorkDir}}/reads_1.fastq -2 {{shq .WorkDir}}/reads_2.fastq -`,
		Resources: workflow.ResourceProfile{
			CPU: 2, MemoryGB: 4,
			Disk:  workflow.DiskFormula{BaseGB: 10, Multiplier: 5},
			Image: opts.Images.Samtools,
		},
	}))

	b.AddTask(retrying(workflow.TaskSpec{
		Name:        TaskAlign,
		Description: "Align reads to the chimeric reference",
		Inputs:      alignInputs,
		Outputs:     []workflow.OutputDecl{{Name: "bam", Path: "aligned.bam"}},
		Command: `bwa mem -t {{.CPU}} -R {{shq .Params.read_group}} {{shq .In.reference}}` +
			` {{shq (index .Inputs.reads 0)}} {{shq (index .Inputs.reads 1)}}` +
			` | samtools view -b -o {{shq .Out.bam}} -`,
		Resources: workflow.ResourceProfile{
			CPU: 8, MemoryGB: 16,
			Disk:  workflow.DiskFormula{BaseGB: 20, Multiplier: 1.5},
			Image: opts.Images.Aligner,
		},
	}))

	b.AddTask(retrying(workflow.TaskSpec{
		Name:        TaskSortByName,
		Description: "Group alignments by read name",
		Inputs:      []workflow.Input{{Name: "bam", Ref: workflow.OutputOf(TaskAlign, "bam")}},
		Outputs:     []workflow.OutputDecl{{Name: "bam", Path: "name_sorted.bam"}},
		Command:     `samtools sort -n -@ {{.CPU}} -T {{shq .WorkDir}}/sort -o {{shq .Out.bam}} {{shq .In.bam}}`,
		Resources: workflow.ResourceProfile{
			CPU: 4, MemoryGB: 8,
			Disk:  workflow.DiskFormula{BaseGB: 10, Multiplier: 4},
			Image: opts.Images.Samtools,
		},
	}))

	b.AddTask(retrying(workflow.TaskSpec{
		Name:        TaskFilterByOrigin,
		Description: "Drop alignments to contaminant contigs",
		Inputs:      []workflow.Input{{Name: "bam", Ref: workflow.OutputOf(TaskSortByName, "bam")}},
		Outputs:     []workflow.OutputDecl{{Name: "bam", Path: "filtered.bam"}},
		Command: `samtools view -h {{shq .In.bam}}` +
			` | awk -v prefix={{shq .Params.contaminant_prefix}} '/^@/ || index($3, prefix) == 0'` +
			` | samtools view -b -o {{shq .Out.bam}} -`,
		Resources: workflow.ResourceProfile{
			CPU: 2, MemoryGB: 4,
			Disk:  workflow.DiskFormula{BaseGB: 10, Multiplier: 2},
			Image: opts.Images.Samtools,
		},
	}))

	b.AddTask(retrying(workflow.TaskSpec{
		Name:        TaskSortByCoordinate,
		Description: "Coordinate sort the cleaned alignments",
		Inputs:      []workflow.Input{{Name: "bam", Ref: workflow.OutputOf(TaskFilterByOrigin, "bam")}},
		Outputs:     []workflow.OutputDecl{{Name: "bam", Path: s.ID + ".bam"}},
		Command:     `samtools sort -@ {{.CPU}} -T {{shq .WorkDir}}/sort -o {{shq .Out.bam}} {{shq .In.bam}}`,
		Resources: workflow.ResourceProfile{
			CPU: 4, MemoryGB: 8,
			Disk:  workflow.DiskFormula{BaseGB: 10, Multiplier: 3},
			Image: opts.Images.Samtools,
		},
	}))

	b.AddTask(retrying(workflow.TaskSpec{
		Name:    TaskIndexBam,
		Inputs:  []workflow.Input{{Name: "bam", Ref: workflow.OutputOf(TaskSortByCoordinate, "bam")}},
		Outputs: []workflow.OutputDecl{{Name: "index", Path: s.ID + ".bam.bai"}},
		Command: `samtools index -@ {{.CPU}} -o {{shq .Out.index}} {{shq .In.bam}}`,
		Resources: workflow.ResourceProfile{
			CPU: 1, MemoryGB: 2,
			Disk:  workflow.DiskFormula{BaseGB: 5, Multiplier: 0.1},
			Image: opts.Images.Samtools,
		},
	}))

	b.AddTask(retrying(workflow.TaskSpec{
		Name:        TaskFlagstat,
		Description: "Summary report of the cleaned alignments",
		Inputs: []workflow.Input{
			{Name: "bam", Ref: workflow.OutputOf(TaskSortByCoordinate, "bam")},
			{Name: "index", Ref: workflow.OutputOf(TaskIndexBam, "index")},
		},
		Outputs: []workflow.OutputDecl{{Name: "report", Path: s.ID + ".flagstat"}},
		Command: `samtools flagstat -@ {{.CPU}} {{shq .In.bam}} > {{shq .Out.report}}`,
		Resources: workflow.ResourceProfile{
			CPU: 1, MemoryGB: 2,
			Disk:  workflow.DiskFormula{BaseGB: 1},
			Image: opts.Images.Samtools,
		},
	}))

	b.AddTask(retrying(workflow.TaskSpec{
		Name:        TaskExtractHeader,
		Description: "Keep the original header for provenance",
		Inputs:      []workflow.Input{{Name: "bam", Ref: workflow.External("sample_bam")}},
		Outputs:     []workflow.OutputDecl{{Name: "header", Path: "header.sam"}},
		Command:     `samtools view -H {{shq .In.bam}} > {{shq .Out.header}}`,
		Resources: workflow.ResourceProfile{
			CPU: 1, MemoryGB: 1,
			Disk:  workflow.DiskFormula{BaseGB: 1},
			Image: opts.Images.Samtools,
		},
	}))

	b.AddFinalOutput(workflow.OutputOf(TaskFlagstat, "report"))
	if opts.PublishBAM {
		b.AddFinalOutput(workflow.OutputOf(TaskSortByCoordinate, "bam"))
		b.AddFinalOutput(workflow.OutputOf(TaskIndexBam, "index"))
	}

	return b.Workflow(), nil
}

// ReadGroupLine renders the @RG header line passed to the aligner. Tabs
// are written as \t escapes, which bwa expands.
func (s SampleMetadata) ReadGroupLine() string {
	fields := []string{
		"@RG",
		"ID:" + s.ReadGroupID,
		"SM:" + s.Name,
		"PL:" + s.Platform,
	}
	if s.PlatformUnit != "" {
		fields = append(fields, "PU:"+s.PlatformUnit)
	}
	return strings.Join(fields, `\t`)
}
