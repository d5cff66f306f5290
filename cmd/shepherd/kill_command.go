package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"shepherd/internal/procs"
	"shepherd/internal/scheduler"
)

func newKillCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "kill <record>",
		Short: "Kill every job running against a record",
		Long: "Kill terminates the processes behind a record's claims and RUNNING\n" +
			"status lines, clears the claims, and marks the lines DEAD. The daemon\n" +
			"notices the freed capacity on its next tick.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.store()
			if err != nil {
				return err
			}
			rec, err := store.Find(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			killed, err := scheduler.KillRecordJobs(cmd.Context(), store, procs.System(), rec.Project, rec.Name, time.Now(), ctx.cliLogger())
			if err != nil {
				return err
			}
			if killed == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No running jobs on %s\n", rec.Name)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Killed %d job(s) on %s\n", killed, rec.Name)
			return nil
		},
	}
}
