package resources

import (
	"fmt"
	"math"

	wferrors "github.com/maxkimambo/xenopipe/internal/errors"
	"github.com/maxkimambo/xenopipe/internal/workflow"
)

// GiB is the byte size of one disk/memory unit
const GiB = 1 << 30

// Allocation is the concrete request for one attempt of a task
type Allocation struct {
	CPU      int    `json:"cpu"`
	MemoryGB int    `json:"memory_gb"`
	DiskGB   int    `json:"disk_gb"`
	Image    string `json:"image,omitempty"`
}

func (a Allocation) String() string {
	return fmt.Sprintf("cpu=%d mem=%dGB disk=%dGB", a.CPU, a.MemoryGB, a.DiskGB)
}

// ImageRequirement is the minimum a container image needs to run at all
type ImageRequirement struct {
	MinCPU      int     `yaml:"min_cpu" json:"min_cpu"`
	MinMemoryGB float64 `yaml:"min_memory_gb" json:"min_memory_gb"`
}

// Estimator turns a resource profile and input sizes into an Allocation.
// It is pure: the same spec and sizes always give the same allocation.
type Estimator struct {
	images          map[string]ImageRequirement
	exhaustionScale float64
}

// NewEstimator creates an estimator. exhaustionScale multiplies memory and
// disk on Reestimate; values <= 1 disable growth.
func NewEstimator(images map[string]ImageRequirement, exhaustionScale float64) *Estimator {
	copied := make(map[string]ImageRequirement, len(images))
	for k, v := range images {
		copied[k] = v
	}
	return &Estimator{images: copied, exhaustionScale: exhaustionScale}
}

// DiskGB evaluates ceil(base + multiplier * sum(sizes in GiB))
func DiskGB(formula workflow.DiskFormula, sizes []int64) int {
	var total int64
	for _, s := range sizes {
		total += s
	}
	gb := formula.BaseGB + formula.Multiplier*float64(total)/GiB
	return int(math.Ceil(gb))
}

// Estimate computes the allocation for a task given the sizes of its
// resolved input artifacts.
func (e *Estimator) Estimate(spec workflow.TaskSpec, sizes []int64) (Allocation, error) {
	p := spec.Resources

	if p.Disk.Multiplier < 0 || p.Disk.BaseGB < 0 {
		return Allocation{}, wferrors.NewEstimationError(wferrors.CodeEstimationInvalid, spec.Name,
			"disk formula terms must not be negative")
	}
	for _, s := range sizes {
		if s < 0 {
			return Allocation{}, wferrors.NewEstimationError(wferrors.CodeEstimationInvalid, spec.Name,
				fmt.Sprintf("input size %d is negative", s))
		}
	}

	alloc := Allocation{
		CPU:      p.CPU,
		MemoryGB: int(math.Ceil(p.MemoryGB)),
		DiskGB:   DiskGB(p.Disk, sizes),
		Image:    p.Image,
	}
	if err := e.validate(spec.Name, alloc); err != nil {
		return Allocation{}, err
	}
	return alloc, nil
}

// Reestimate recomputes the allocation for a retry after the backend
// reported resource exhaustion. Memory and disk never shrink below prev.
func (e *Estimator) Reestimate(spec workflow.TaskSpec, sizes []int64, prev Allocation) (Allocation, error) {
	alloc, err := e.Estimate(spec, sizes)
	if err != nil {
		return Allocation{}, err
	}
	if e.exhaustionScale <= 1 {
		return alloc, nil
	}

	grown := int(math.Ceil(float64(prev.MemoryGB) * e.exhaustionScale))
	if grown > alloc.MemoryGB {
		alloc.MemoryGB = grown
	}
	grown = int(math.Ceil(float64(prev.DiskGB) * e.exhaustionScale))
	if grown > alloc.DiskGB {
		alloc.DiskGB = grown
	}
	return alloc, nil
}

func (e *Estimator) validate(task string, a Allocation) error {
	if a.CPU <= 0 {
		return wferrors.NewEstimationError(wferrors.CodeEstimationInvalid, task,
			fmt.Sprintf("cpu must be positive, got %d", a.CPU))
	}
	if a.MemoryGB <= 0 {
		return wferrors.NewEstimationError(wferrors.CodeEstimationInvalid, task,
			fmt.Sprintf("memory must be positive, got %dGB", a.MemoryGB))
	}
	if a.DiskGB <= 0 {
		return wferrors.NewEstimationError(wferrors.CodeEstimationInvalid, task,
			fmt.Sprintf("disk must be positive, got %dGB", a.DiskGB))
	}

	req, ok := e.images[a.Image]
	if !ok {
		return nil
	}
	if a.CPU < req.MinCPU {
		return wferrors.NewEstimationError(wferrors.CodeEstimationImage, task,
			fmt.Sprintf("image %s needs at least %d cpu, got %d", a.Image, req.MinCPU, a.CPU)).
			WithContext("image", a.Image)
	}
	if float64(a.MemoryGB) < req.MinMemoryGB {
		return wferrors.NewEstimationError(wferrors.CodeEstimationImage, task,
			fmt.Sprintf("image %s needs at least %gGB memory, got %dGB", a.Image, req.MinMemoryGB, a.MemoryGB)).
			WithContext("image", a.Image)
	}
	return nil
}
