package main

import (
	"fmt"
	"time"

	"github.com/joeycumines/go-taskcore/clock"
	"github.com/joeycumines/go-taskcore/internal/scenario"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command of the irqstate CLI.
func NewRootCmd() *cobra.Command {
	var (
		cfg = runConfig{
			logLevel: `info`,
			tasks:    16,
			times:    100,
			tick:     clock.DefaultTickPeriod,
			scale:    1,
		}
		configPath string
	)

	root := &cobra.Command{
		Use:   `irqstate`,
		Short: `Check interrupt state across task suspension points`,
		Long: `irqstate runs the yield storm, sleep storm and wait queue rendezvous scenarios
against a fresh scheduler, asserting that interrupts are always enabled in task code.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath != `` {
				if err := cfg.applyFile(configPath, cmd.Flags()); err != nil {
					return err
				}
			}
			level, scenarios, err := cfg.validate()
			if err != nil {
				return err
			}
			logger := newLogger(cmd.ErrOrStderr(), level)

			start := time.Now()
			if err := scenario.Run(cmd.Context(), cfg.scenarioConfig(logger), scenarios, cfg.schedulerOptions(logger)...); err != nil {
				logger.Err().Err(err).Log(`irq state tests failed`)
				return err
			}
			logger.Info().
				Int(`scenarios`, len(scenarios)).
				Dur(`elapsed`, time.Since(start)).
				Log(`all irq state tests passed`)
			fmt.Fprintln(cmd.OutOrStdout(), `All IRQ state tests run OK!`)
			return nil
		},
	}

	flags := root.Flags()
	flags.StringVar(&configPath, `config`, ``, `TOML config file, overridden by explicitly set flags`)
	flags.IntVar(&cfg.tasks, `tasks`, cfg.tasks, `number of tasks per scenario`)
	flags.IntVar(&cfg.times, `times`, cfg.times, `yields per task in the yield storm`)
	flags.DurationVar(&cfg.tick, `tick`, cfg.tick, `timer tick period`)
	flags.Float64Var(&cfg.scale, `scale`, cfg.scale, `factor applied to every scenario sleep and timeout`)
	flags.BoolVar(&cfg.preempt, `preempt`, cfg.preempt, `preempt tasks at tick boundaries`)
	flags.StringVar(&cfg.logLevel, `log-level`, cfg.logLevel, `log level (trace, debug, info, warning, err, disabled)`)
	flags.StringSliceVar(&cfg.only, `only`, nil, `run only the named scenarios (yield, sleep, wait)`)

	return root
}
