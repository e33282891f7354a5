package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/wavecheck/internal/config"
	"github.com/dusk-indust/wavecheck/internal/pending"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Manage the pending-verification markers",
	Long: `Pending markers name the files an editor hook changed since the last
successful run. 'wavecheck run' without files verifies them and clears them
on SUCCESS.`,
}

var pendingMarkCmd = &cobra.Command{
	Use:   "mark FILE...",
	Short: "Mark files as pending verification",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := loadMarkers()
		if err != nil {
			return err
		}
		return m.Mark(args...)
	},
}

var pendingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the pending files",
	RunE: func(cmd *cobra.Command, _ []string) error {
		m, err := loadMarkers()
		if err != nil {
			return err
		}
		paths, err := m.List()
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

var pendingClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every pending marker",
	RunE: func(cmd *cobra.Command, _ []string) error {
		m, err := loadMarkers()
		if err != nil {
			return err
		}
		n, err := m.Clear()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cleared %d markers\n", n)
		return nil
	},
}

func init() {
	pendingCmd.AddCommand(pendingMarkCmd, pendingListCmd, pendingClearCmd)
}

// loadMarkers needs only the paths section, so it skips the full wiring.
func loadMarkers() (*pending.Markers, error) {
	cfg, err := config.Load(flagDir)
	if err != nil {
		return nil, err
	}
	return pending.New(cfg.Dir, cfg.Paths.Pending), nil
}
