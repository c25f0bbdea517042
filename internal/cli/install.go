package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Jython1415/mathnasium-session-notes/internal/browser"
)

func init() {
	rootCmd.AddCommand(installCmd)
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Download the Playwright driver and Chromium",
	Long: `Download what the playwright engine needs. The default chromedp engine uses
the Chrome or Chromium already installed on the machine and needs no install.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), "Installing Playwright driver and Chromium...")
		if err := browser.InstallPlaywright(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Done. Use --engine playwright or set browser.engine = \"playwright\".")
		return nil
	},
}
