package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-taskcore/internal/scenario"
	"github.com/joeycumines/go-taskcore/task"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/spf13/pflag"
)

// runConfig is the resolved configuration of a run.
type runConfig struct {
	logLevel string
	only     []string
	tasks    int
	times    int
	tick     time.Duration
	scale    float64
	preempt  bool
}

// fileConfig is the TOML config file format. Durations are strings, as
// accepted by time.ParseDuration.
type fileConfig struct {
	LogLevel string   `toml:"log_level"`
	Tick     string   `toml:"tick"`
	Only     []string `toml:"only"`
	Tasks    int      `toml:"tasks"`
	Times    int      `toml:"times"`
	Scale    float64  `toml:"scale"`
	Preempt  bool     `toml:"preempt"`
}

// applyFile merges the config file at path into cfg. Keys the file does not
// define, and keys whose flag was set explicitly, are left alone.
func (x *runConfig) applyFile(path string, flags *pflag.FlagSet) error {
	var file fileConfig
	meta, err := toml.DecodeFile(path, &file)
	if err != nil {
		return fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) != 0 {
		return fmt.Errorf("%s: unknown keys: %v", path, undecoded)
	}
	use := func(key, flag string) bool {
		return meta.IsDefined(key) && !flags.Changed(flag)
	}
	if use(`tasks`, `tasks`) {
		x.tasks = file.Tasks
	}
	if use(`times`, `times`) {
		x.times = file.Times
	}
	if use(`tick`, `tick`) {
		tick, err := time.ParseDuration(file.Tick)
		if err != nil {
			return fmt.Errorf("%s: tick: %w", path, err)
		}
		x.tick = tick
	}
	if use(`scale`, `scale`) {
		x.scale = file.Scale
	}
	if use(`preempt`, `preempt`) {
		x.preempt = file.Preempt
	}
	if use(`log_level`, `log-level`) {
		x.logLevel = file.LogLevel
	}
	if use(`only`, `only`) {
		x.only = file.Only
	}
	return nil
}

// validate checks the configuration, resolving the log level and the
// scenarios to run.
func (x *runConfig) validate() (logiface.Level, []scenario.Scenario, error) {
	switch {
	case x.tasks <= 0:
		return 0, nil, fmt.Errorf(`tasks must be positive, got %d`, x.tasks)
	case x.times <= 0:
		return 0, nil, fmt.Errorf(`times must be positive, got %d`, x.times)
	case x.tick <= 0:
		return 0, nil, fmt.Errorf(`tick must be positive, got %s`, x.tick)
	case x.scale <= 0:
		return 0, nil, fmt.Errorf(`scale must be positive, got %v`, x.scale)
	}
	level, err := parseLevel(x.logLevel)
	if err != nil {
		return 0, nil, err
	}
	scenarios, err := scenario.Lookup(x.only...)
	if err != nil {
		return 0, nil, err
	}
	return level, scenarios, nil
}

// scenarioConfig builds the scenario configuration, logging to logger.
func (x *runConfig) scenarioConfig(logger *logiface.Logger[logiface.Event]) scenario.Config {
	return scenario.Config{
		Logger: logger,
		Tasks:  x.tasks,
		Times:  x.times,
	}.Scale(x.scale)
}

// schedulerOptions builds the scheduler options.
func (x *runConfig) schedulerOptions(logger *logiface.Logger[logiface.Event]) []task.Option {
	return []task.Option{
		task.WithLogger(logger),
		task.WithTickPeriod(x.tick),
		task.WithPreemption(x.preempt),
		// repeated warnings at most once per second, ten per minute
		task.WithWarningLimiter(catrate.NewLimiter(map[time.Duration]int{
			time.Second: 1,
			time.Minute: 10,
		})),
	}
}

func newLogger(w io.Writer, level logiface.Level) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	).Logger()
}

func parseLevel(s string) (logiface.Level, error) {
	for level := logiface.LevelDisabled; level <= logiface.LevelTrace; level++ {
		if strings.EqualFold(s, level.String()) {
			return level, nil
		}
	}
	switch strings.ToLower(s) {
	case `warn`:
		return logiface.LevelWarning, nil
	case `error`:
		return logiface.LevelError, nil
	}
	return 0, fmt.Errorf(`unknown log level %q`, s)
}
