package archive

import (
	"database/sql"
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/maxkimambo/xenopipe/internal/artifact"
	"github.com/maxkimambo/xenopipe/internal/resources"
)

const (
	RunRunning   string = "RUNNING"
	RunSucceeded string = "SUCCEEDED"
	RunFailed    string = "FAILED"
)

type RunRecord struct {
	RunID    string `gorm:"primaryKey;size:64"`
	Workflow string `gorm:"not null"`
	Backend  string `gorm:"size:20"`
	RunDir   string
	Status   string `gorm:"size:20;not null"`

	TaskCount int
	Succeeded int `gorm:"default:0"`
	Failed    int `gorm:"default:0"`
	Cancelled int `gorm:"default:0"`

	FinalOutputs datatypes.JSON // {"flagstat.report": [{"path": …, "size_bytes": …}]}
	Error        sql.NullString

	StartTime time.Time
	EndTime   sql.NullTime

	Tasks []TaskRecord `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

type TaskRecord struct {
	RunID string `gorm:"primaryKey;size:64"`
	Task  string `gorm:"primaryKey"`

	State     string `gorm:"size:20;not null"`
	Attempts  int
	ExitCode  int
	ErrorKind string `gorm:"size:40"`
	Error     sql.NullString

	Allocation datatypes.JSON // resources.Allocation
	Outputs    datatypes.JSON // output name -> []artifact.Artifact

	StdoutPath string
	StderrPath string
	Collected  bool

	StartTime  sql.NullTime
	EndTime    sql.NullTime
	DurationMs int64
}

// Duration is the wall time of the task across all attempts
func (t TaskRecord) Duration() time.Duration {
	return time.Duration(t.DurationMs) * time.Millisecond
}

func (t TaskRecord) DecodeAllocation() (resources.Allocation, error) {
	var alloc resources.Allocation
	if len(t.Allocation) == 0 {
		return alloc, nil
	}
	err := json.Unmarshal(t.Allocation, &alloc)
	return alloc, err
}

func (t TaskRecord) DecodeOutputs() (map[string][]artifact.Artifact, error) {
	outputs := map[string][]artifact.Artifact{}
	if len(t.Outputs) == 0 {
		return outputs, nil
	}
	err := json.Unmarshal(t.Outputs, &outputs)
	return outputs, err
}

func (r RunRecord) DecodeFinalOutputs() (map[string][]artifact.Artifact, error) {
	outputs := map[string][]artifact.Artifact{}
	if len(r.FinalOutputs) == 0 {
		return outputs, nil
	}
	err := json.Unmarshal(r.FinalOutputs, &outputs)
	return outputs, err
}

// Duration is the wall time of the run, or zero while it is still running
func (r RunRecord) Duration() time.Duration {
	if !r.EndTime.Valid {
		return 0
	}
	return r.EndTime.Time.Sub(r.StartTime)
}
