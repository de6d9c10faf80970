package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iago/reportflow/internal/domain"
)

func newNextRunCmd() *cobra.Command {
	var (
		cfg        domain.ScheduleConfig
		frequency  string
		dayOfWeek  int
		dayOfMonth int
		from       string
		count      int
	)
	cmd := &cobra.Command{
		Use:   "next-run",
		Short: "Print upcoming execution times for a schedule",
		Long: `Compute the next execution times of a schedule without touching storage.

Times are printed in UTC and in the schedule's timezone.

Examples:
  reportctl next-run --frequency DAILY --hour 7 --minute 30 --timezone Europe/Lisbon
  reportctl next-run --frequency MONTHLY --day-of-month 31 --count 4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg.Frequency = domain.Frequency(strings.ToUpper(frequency))
			if cmd.Flags().Changed("day-of-week") {
				cfg.DayOfWeek = &dayOfWeek
			}
			if cmd.Flags().Changed("day-of-month") || cfg.Frequency == domain.FrequencyMonthly {
				cfg.DayOfMonth = &dayOfMonth
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if count < 1 {
				return fmt.Errorf("--count must be at least 1")
			}

			start := time.Now().UTC()
			if from != "" {
				parsed, err := time.Parse(time.RFC3339, from)
				if err != nil {
					return fmt.Errorf("--from: %w", err)
				}
				start = parsed
			}
			location, err := time.LoadLocation(cfg.Timezone)
			if err != nil {
				return fmt.Errorf("--timezone: %w", err)
			}

			out := cmd.OutOrStdout()
			for i := 0; i < count; i++ {
				next, err := domain.NextExecution(cfg, start)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s  (%s)\n", next.UTC().Format(time.RFC3339), next.In(location).Format("2006-01-02 15:04 MST"))
				start = next
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&frequency, "frequency", string(domain.FrequencyDaily), "DAILY, WEEKLY, MONTHLY, QUARTERLY or YEARLY")
	flags.IntVar(&cfg.Hour, "hour", 0, "Hour of day, 0-23")
	flags.IntVar(&cfg.Minute, "minute", 0, "Minute of hour, 0-59")
	flags.StringVar(&cfg.Timezone, "timezone", "UTC", "IANA timezone the schedule runs in")
	flags.IntVar(&dayOfWeek, "day-of-week", 0, "Day of week for WEEKLY, 0 is Sunday")
	flags.IntVar(&dayOfMonth, "day-of-month", 1, "Day of month for MONTHLY and later")
	flags.StringVar(&from, "from", "", "RFC3339 instant to compute from; defaults to now")
	flags.IntVar(&count, "count", 1, "Number of executions to print")
	return cmd
}
