package pipeline

import (
	"time"

	"github.com/0xmhha/txsubmit/internal/batcher"
	"github.com/0xmhha/txsubmit/internal/collector"
)

// Stage represents a pipeline stage
type Stage int

const (
	StageInit Stage = iota
	StageFund
	StageBuild
	StageSubmit
	StageReport
	StageComplete
)

func (s Stage) String() string {
	switch s {
	case StageInit:
		return "INITIALIZE"
	case StageFund:
		return "FUND"
	case StageBuild:
		return "BUILD"
	case StageSubmit:
		return "SUBMIT"
	case StageReport:
		return "REPORT"
	case StageComplete:
		return "COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// StageResult represents the result of a pipeline stage
type StageResult struct {
	Stage    Stage
	Success  bool
	Skipped  bool
	Duration time.Duration
	Message  string
	Error    error
}

// RunConfig holds runtime configuration for the pipeline
type RunConfig struct {
	// Skip funding even when a minimum balance is configured
	SkipFunding bool

	// Build calls but do not submit them
	DryRun bool
}

// DefaultRunConfig returns default run configuration
func DefaultRunConfig() *RunConfig {
	return &RunConfig{}
}

// Result represents the complete pipeline execution result
type Result struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	StageResults []*StageResult

	// Batch outcome; nil until the submit stage ran
	Summary *batcher.Summary

	// Aggregated report; nil until the report stage ran
	Report *collector.Report

	// Files written by the export
	Exported []string

	Errors []error
}

// NewResult creates a new pipeline result
func NewResult() *Result {
	return &Result{
		StartTime:    time.Now(),
		StageResults: make([]*StageResult, 0),
		Errors:       make([]error, 0),
	}
}

// AddStageResult adds a stage result
func (r *Result) AddStageResult(sr *StageResult) {
	r.StageResults = append(r.StageResults, sr)
	if sr.Error != nil {
		r.Errors = append(r.Errors, sr.Error)
	}
}

// Finalize completes the result
func (r *Result) Finalize() {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
}

// Success returns true if all stages succeeded
func (r *Result) Success() bool {
	for _, sr := range r.StageResults {
		if !sr.Success {
			return false
		}
	}
	return true
}

// AllConfirmed reports whether every stage succeeded and every submission
// reached its commitment.
func (r *Result) AllConfirmed() bool {
	return r.Success() && r.Summary != nil && r.Summary.AllConfirmed()
}
