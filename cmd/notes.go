package cmd

import (
	"github.com/spf13/cobra"

	"github.com/derickschaefer/opendosm/internal/query"
)

var notesFlags stateFlags

var notesCmd = &cobra.Command{
	Use:     "notes",
	Aliases: []string{"technical-notes"},
	Short:   "List technical notes",
	Example: `  opendosm notes
  opendosm notes --search methodology --page 2`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := pageDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		result, err := runPage(cmd.Context(), deps, query.TechnicalNotes.Name, notesFlags.raw(cmd, query.TechnicalNotes))
		if err != nil {
			return err
		}
		return emit(cmd, deps, result)
	},
}

func init() {
	rootCmd.AddCommand(notesCmd)
	notesFlags.bind(notesCmd, query.TechnicalNotes)
}
