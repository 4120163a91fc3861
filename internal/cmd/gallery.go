package cmd

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/oneshot/internal/database"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "List stored screenshots",
	Long:  `List the most recent screenshots recorded in the gallery index.`,
	RunE:  runGallery,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.Flags().Int("limit", 20, "Maximum number of screenshots to list")
}

func runGallery(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	db, err := database.Open(databasePath())
	if err != nil {
		return err
	}
	defer func() { _ = database.Close(db) }()

	shots, err := database.NewGallery(db).List(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(shots) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No screenshots stored")
		return nil
	}
	renderGallery(cmd.OutOrStdout(), shots)
	return nil
}

func renderGallery(w io.Writer, shots []*database.Screenshot) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"File", "Label", "Size", "KB", "Captured", "Similar To"})
	for _, s := range shots {
		similar := "-"
		if s.SimilarTo != "" {
			similar = s.SimilarTo
		}
		t.AppendRow(table.Row{
			s.FileName,
			s.Label,
			fmt.Sprintf("%dx%d", s.Width, s.Height),
			s.Bytes / 1024,
			s.CapturedAt.Format("2006-01-02 15:04:05"),
			similar,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "Total", len(shots)})
	t.Render()
}
