package analyzer

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
)

// Client defines the interface for cluster throughput analysis
type Client interface {
	// RecentPerformanceSamples returns the node's samples, newest first
	RecentPerformanceSamples(ctx context.Context, limit uint) ([]*rpc.GetRecentPerformanceSamplesResult, error)
}

// Config holds configuration for the analyzer
type Config struct {
	Samples uint // Number of recent samples to analyze (one per minute)
}

// DefaultConfig returns default analyzer configuration
func DefaultConfig() *Config {
	return &Config{
		Samples: 30,
	}
}

// SampleInfo holds information about a single performance sample
type SampleInfo struct {
	Slot         uint64
	Transactions uint64
	Slots        uint64
	Period       time.Duration
	TPS          float64
	SlotTime     time.Duration // Average time per slot in the sample
}

// AnalysisResult holds the complete analysis results
type AnalysisResult struct {
	StartSlot     uint64
	EndSlot       uint64
	Samples       []SampleInfo
	TotalTxs      uint64
	TotalSlots    uint64
	TotalDuration time.Duration
	AverageTPS    float64
	AvgSlotTime   time.Duration
	MinTPS        float64
	MaxTPS        float64
}
