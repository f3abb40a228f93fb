// Package config holds the settings of a specialization run.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/docker/go-units"

	"github.com/mabhi256/paramspec/internal/profile"
	"github.com/mabhi256/paramspec/internal/specialization"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	// Sampling
	BufferCapacity   int  // bytes
	SampleQuota      int  // samples per window
	ProfileVMMethods bool // also sample VM-internal methods
	VerifyAssertions bool // integrity failures are fatal

	// Profiles
	Summarized    bool
	CandidateType string // all, values or types

	// Specialization
	OraclePolicy string
	MaxOptLevel  int
	Targets      []specialization.FixedTarget // fixed policy only

	// Simulated workload
	Threads      int
	Invocations  int // per thread
	Seed         uint64
	OptLevel     int // level hot methods are recompiled at
	HotThreshold int // samples before a method counts as hot

	// Output
	DecisionLog string // path, optional
	ProfileDump string // path, optional; .lz4 and .xz are compressed

	Interval int // ms, watch refresh
}

func Default() *Config {
	return &Config{
		BufferCapacity: 20000,
		SampleQuota:    1000,
		Summarized:     true,
		CandidateType:  profile.CandidatesAll.String(),
		OraclePolicy:   string(specialization.PolicyDefault),
		MaxOptLevel:    2,
		Threads:        4,
		Invocations:    20000,
		Seed:           1,
		OptLevel:       2,
		HotThreshold:   500,
		Interval:       500,
	}
}

// ParseBufferSize accepts plain byte counts and human sizes such as "20kB".
func ParseBufferSize(s string) (int, error) {
	n, err := units.FromHumanSize(s)
	if err != nil {
		return 0, fmt.Errorf("%w: buffer size %q: %w", ErrInvalidConfig, s, err)
	}
	return int(n), nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.BufferCapacity <= 0 {
		errs = append(errs, fmt.Errorf("%w: buffer capacity must be positive, got %d", ErrInvalidConfig, c.BufferCapacity))
	}
	if c.SampleQuota <= 0 {
		errs = append(errs, fmt.Errorf("%w: sample quota must be positive, got %d", ErrInvalidConfig, c.SampleQuota))
	}
	if _, err := profile.ParseCandidateType(c.CandidateType); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalidConfig, err))
	}
	if _, err := specialization.ParsePolicy(c.OraclePolicy); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalidConfig, err))
	}
	if c.MaxOptLevel < 0 || c.OptLevel < 0 {
		errs = append(errs, fmt.Errorf("%w: opt levels must not be negative", ErrInvalidConfig))
	}
	if c.Threads <= 0 {
		errs = append(errs, fmt.Errorf("%w: need at least one mutator thread", ErrInvalidConfig))
	}
	if c.Invocations < 0 || c.HotThreshold < 0 {
		errs = append(errs, fmt.Errorf("%w: invocation counts must not be negative", ErrInvalidConfig))
	}
	return errors.Join(errs...)
}

func (c *Config) GetInterval() time.Duration {
	return time.Duration(c.Interval) * time.Millisecond
}

func (c *Config) String() string {
	return fmt.Sprintf("buffer %s, %d samples/window, oracle %s, %d threads x %d calls",
		units.HumanSize(float64(c.BufferCapacity)), c.SampleQuota, c.OraclePolicy, c.Threads, c.Invocations)
}
