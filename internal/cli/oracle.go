package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Jython1415/mathnasium-session-notes/internal/oracle"
	"github.com/Jython1415/mathnasium-session-notes/internal/output"
)

var flagOracleYAML bool

func init() {
	oracleShowCmd.Flags().BoolVar(&flagOracleYAML, "yaml", false, "print the fixture as YAML")

	oracleCmd.AddCommand(oracleShowCmd)
	oracleCmd.AddCommand(oracleCheckCmd)
	rootCmd.AddCommand(oracleCmd)
}

var oracleCmd = &cobra.Command{
	Use:   "oracle",
	Short: "Inspect the case oracle",
}

var oracleShowCmd = &cobra.Command{
	Use:   "show [fixture]",
	Short: "Print the expected outcome of every case row",
	Long: `Print the case oracle: which workbook rows must be flagged (positive, with a
minimum confidence) and which must not be (negative, with a maximum
confidence). Without an argument the built-in fixture is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		o, err := oracle.LoadFile(path)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()

		switch {
		case output.IsJSON():
			return output.WriteJSON(w, map[string]any{
				"positive": o.Positive(),
				"negative": o.Negative(),
			}, true)
		case flagOracleYAML:
			data, err := o.Marshal()
			if err != nil {
				return err
			}
			_, err = w.Write(data)
			return err
		}

		rows := make([][]string, 0, o.Len())
		for _, e := range o.Entries() {
			bound := fmt.Sprintf(">= %.2f", e.Bound())
			if e.Set() == oracle.SetNegative {
				bound = fmt.Sprintf("<= %.2f", e.Bound())
			}
			rows = append(rows, []string{fmt.Sprint(e.RowID), string(e.Set()), string(e.Category), bound})
		}
		output.Table(w, []string{"ROW", "SET", "CATEGORY", "CONFIDENCE"}, rows)
		fmt.Fprintf(w, "\n%d positive, %d negative\n", len(o.Positive()), len(o.Negative()))
		return nil
	},
}

var oracleCheckCmd = &cobra.Command{
	Use:   "check <fixture>",
	Short: "Validate a case oracle fixture",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := oracle.LoadFile(args[0])
		if err != nil {
			return err
		}
		if output.IsJSON() {
			return output.WriteJSON(cmd.OutOrStdout(), map[string]any{
				"valid":    true,
				"positive": len(o.Positive()),
				"negative": len(o.Negative()),
			}, true)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: valid (%d positive, %d negative)\n", args[0], len(o.Positive()), len(o.Negative()))
		return nil
	},
}
