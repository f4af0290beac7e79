package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tmr-array/tmrsim/internal/store"
)

func newArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect archived campaign results",
	}

	cmd.PersistentFlags().String("db", "tmrsim.db", "Path to the campaign archive database")

	cmd.AddCommand(
		newArchiveListCmd(),
		newArchiveShowCmd(),
		newArchiveDeleteCmd(),
	)

	return cmd
}

func openArchive(cmd *cobra.Command) (*store.Archive, error) {
	path, _ := cmd.Flags().GetString("db")
	return store.Open(path)
}

func newArchiveListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List archived campaigns",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.ListCampaigns(cmd.Context())
			if err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"campaigns": records,
					"count":     len(records),
				})
			}

			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No archived campaigns.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Archived campaigns (%d):\n\n", len(records))
			for i, rec := range records {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s [%s]\n", i+1, rec.ID, rec.State)
				fmt.Fprintf(cmd.OutOrStdout(), "   seed %d, %d scenarios, took %s",
					rec.Seed, rec.Scenarios, rec.Elapsed.Round(time.Millisecond))
				if rec.Excluded > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), ", %d excluded runs", rec.Excluded)
				}
				fmt.Fprintln(cmd.OutOrStdout())
				if !rec.CreatedAt.IsZero() {
					fmt.Fprintf(cmd.OutOrStdout(), "   archived %s\n", rec.CreatedAt.Format(time.RFC3339))
				}
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		},
	}
}

func newArchiveShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <campaign-id>",
		Short: "Show one archived campaign in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.LoadResult(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(res)
			}
			printCampaignResult(cmd, res)
			return nil
		},
	}
}

func newArchiveDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <campaign-id>",
		Short: "Delete one archived campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.DeleteCampaign(cmd.Context(), args[0]); err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
					"status": "deleted",
					"id":     args[0],
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted campaign %s\n", args[0])
			return nil
		},
	}
}
