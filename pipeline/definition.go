// Package pipeline builds streams from YAML pipeline files. A pipeline is a
// source of int64 values followed by a chain of operator steps.
package pipeline

import "time"

// Source kinds.
const (
	SourceRange = "range"
	SourceTimer = "timer"
	SourceCron  = "cron"
)

// Step operations.
const (
	OpMap      = "map"
	OpFilter   = "filter"
	OpSkip     = "skip"
	OpLimit    = "limit"
	OpReduce   = "reduce"
	OpCount    = "count"
	OpCoalesce = "coalesce"
	OpSplit    = "split"
	OpFlatMap  = "flatmap"
	OpPaused   = "paused"
)

// Definition is the parsed form of a pipeline file.
type Definition struct {
	Name   string `yaml:"name" json:"name"`
	Buffer int    `yaml:"buffer,omitempty" json:"buffer,omitempty"`
	Source Source `yaml:"source" json:"source"`
	Steps  []Step `yaml:"steps,omitempty" json:"steps,omitempty"`
}

// Source describes where values come from.
//
// A range source produces Count values starting at Start. Timer and cron
// sources produce tick numbers starting at Start, one per tick, and stop
// after Count ticks when Count is positive.
type Source struct {
	Kind     string        `yaml:"kind" json:"kind"`
	Start    int64         `yaml:"start,omitempty" json:"start,omitempty"`
	Count    int64         `yaml:"count,omitempty" json:"count,omitempty"`
	Interval time.Duration `yaml:"interval,omitempty" json:"interval,omitempty"`
	Schedule string        `yaml:"schedule,omitempty" json:"schedule,omitempty"`
}

// Step is one operator in the chain. Which fields apply depends on Op.
type Step struct {
	Op          string `yaml:"op" json:"op"`
	Fn          string `yaml:"fn,omitempty" json:"fn,omitempty"`
	Value       int64  `yaml:"value,omitempty" json:"value,omitempty"`
	Count       int64  `yaml:"count,omitempty" json:"count,omitempty"`
	Branches    int    `yaml:"branches,omitempty" json:"branches,omitempty"`
	Repeat      int64  `yaml:"repeat,omitempty" json:"repeat,omitempty"`
	Order       string `yaml:"order,omitempty" json:"order,omitempty"`
	DelayErrors bool   `yaml:"delay_errors,omitempty" json:"delay_errors,omitempty"`

	// Line is the source line of the step, 0 if unknown.
	Line int `yaml:"-" json:"-"`
}
