package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/oneshot/internal/database"
	"github.com/GriffinCanCode/oneshot/internal/relay"
	"github.com/GriffinCanCode/oneshot/internal/server"
)

var outcomeCmd = &cobra.Command{
	Use:   "outcome",
	Short: "Show the latest capture outcome",
	Long: `Print the most recent capture outcome. With --local the outcome is read
straight from the database, which works while the server is down.`,
	RunE: runOutcome,
}

func init() {
	rootCmd.AddCommand(outcomeCmd)
	outcomeCmd.Flags().Bool("local", false, "Read the outcome from the local database")
	outcomeCmd.Flags().Bool("json", false, "Print the outcome as JSON")
}

func runOutcome(cmd *cobra.Command, _ []string) error {
	local, _ := cmd.Flags().GetBool("local")
	asJSON, _ := cmd.Flags().GetBool("json")

	var (
		out server.OutcomeMessage
		err error
	)
	if local {
		out, err = localOutcome(cmd.Context(), databasePath())
	} else {
		out, err = fetchOutcome(cmd.Context(), serverURL)
	}
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	printOutcome(cmd.OutOrStdout(), out)
	return nil
}

func localOutcome(ctx context.Context, path string) (server.OutcomeMessage, error) {
	db, err := database.Open(path)
	if err != nil {
		return server.OutcomeMessage{}, err
	}
	defer func() { _ = database.Close(db) }()

	rel := relay.New(database.NewMailboxStore(db), relay.Options{})
	rec, ok, err := rel.Latest(ctx)
	if err != nil {
		return server.OutcomeMessage{}, err
	}
	if !ok {
		return server.OutcomeMessage{}, fmt.Errorf("no outcome recorded in %s", path)
	}
	return server.OutcomeMessage{
		Type:      "outcome",
		Success:   rec.Success,
		FileName:  rec.FileName,
		Error:     rec.Error,
		Timestamp: rec.Timestamp,
	}, nil
}
