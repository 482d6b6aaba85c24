package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var envFile string

	rootCmd := &cobra.Command{
		Use:          "jobqueue",
		Short:        "Queue worker daemon with cron-scheduled tasks",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), envFile, false)
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "optional dotenv file")

	rootCmd.AddCommand(onceCmd(&envFile))
	rootCmd.AddCommand(tasksCmd())
	return rootCmd
}

func onceCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Drain every queue and run due tasks once, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), *envFile, true)
		},
	}
}

func tasksCmd() *cobra.Command {
	tasksCmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect task definition files",
	}

	validateCmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Parse a tasks file and check every definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defs, err := loadTasksFile(args[0])
			if err != nil {
				return err
			}
			for _, d := range defs {
				task, err := d.build()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", d.Name, task.Schedule, task.Work.Kind)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d task(s) ok\n", len(defs))
			return nil
		},
	}

	tasksCmd.AddCommand(validateCmd)
	return tasksCmd
}
