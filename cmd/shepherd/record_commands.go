package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"shepherd/internal/changespec"
	"shepherd/internal/query"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var filterFlag string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List records across every project",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.store()
			if err != nil {
				return err
			}
			q, err := query.Compile(filterFlag)
			if err != nil {
				return err
			}

			records, errs := store.Load(cmd.Context())
			for _, loadErr := range errs {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", loadErr)
			}

			var rows [][]string
			for _, rec := range records {
				if !q.Matches(rec) {
					continue
				}
				rows = append(rows, []string{
					rec.Name,
					rec.Project,
					string(rec.Status),
					rec.LatestEntryID().String(),
					strconv.Itoa(len(rec.Claims)),
					rec.Attention.String(),
				})
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No records found")
				return nil
			}
			sort.Slice(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })

			headers := []string{"NAME", "PROJECT", "STATUS", "LATEST", "CLAIMS", "ATTENTION"}
			aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, aligns))
			return nil
		},
	}
	listCmd.Flags().StringVarP(&filterFlag, "filter", "f", "", "Filter expression, e.g. '\"WIP\" AND !\"blocked\"'")
	return listCmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <record>",
		Short: "Print a record in its on-disk form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.store()
			if err != nil {
				return err
			}
			rec, err := store.Find(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), rec.Serialize())
			return nil
		},
	}
}

func newQueryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "query <expression>",
		Short: "Print names of records matching a filter expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.store()
			if err != nil {
				return err
			}
			q, err := query.Compile(args[0])
			if err != nil {
				return err
			}

			records, _ := store.Load(cmd.Context())
			var names []string
			for _, rec := range records {
				if q.Matches(rec) {
					names = append(names, rec.Name)
				}
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newAcceptCommand(ctx *commandContext) *cobra.Command {
	var notes []string
	acceptCmd := &cobra.Command{
		Use:   "accept <record> <proposal>...",
		Short: "Accept proposals, renumbering them into the commit history",
		Long: "Accept promotes the named proposals to accepted entries after the\n" +
			"current highest number, in argument order. Sibling proposals on the\n" +
			"same base are archived. Status lines follow their entries.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.store()
			if err != nil {
				return err
			}

			ids := make([]changespec.EntryID, 0, len(args)-1)
			for _, raw := range args[1:] {
				id, err := changespec.ParseEntryID(raw)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}

			rec, err := store.Find(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			var mapping changespec.IDMapping
			err = store.UpdateRecord(cmd.Context(), rec.Project, rec.Name, func(fresh *changespec.Record) (bool, error) {
				mapping, err = fresh.RenumberAcceptedProposals(ids, notes)
				if err != nil {
					return false, err
				}
				return true, nil
			})
			if err != nil {
				return err
			}

			printMapping(cmd, mapping)
			return nil
		},
	}
	acceptCmd.Flags().StringArrayVar(&notes, "note", nil, "Replacement note for the promoted entry at the same position")
	return acceptCmd
}

func printMapping(cmd *cobra.Command, mapping changespec.IDMapping) {
	type move struct{ from, to changespec.EntryID }
	var moves []move
	for from, to := range mapping {
		if to == nil || *to == from {
			continue
		}
		moves = append(moves, move{from: from, to: *to})
	}
	sort.Slice(moves, func(i, j int) bool { return moves[i].from.Compare(moves[j].from) < 0 })
	for _, m := range moves {
		verb := "renumbered"
		if m.to.IsArchived() {
			verb = "archived"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s -> %s\n", verb, m.from, m.to)
	}
}
