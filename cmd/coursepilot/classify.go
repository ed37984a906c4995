package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/coursepilot/coursepilot"
)

var (
	classifyConfig     string
	classifyNoComplete bool
)

var classifyCmd = &cobra.Command{
	Use:   "classify <page.html>",
	Short: "Run the classifier and the clickability gate over a saved page",
	Long: `Parse a saved HTML page and report which "mark as complete" and "next"
controls a scan would find, whether each looks clickable and which one would be
activated. Rendering is read from inline styles and attributes only.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := coursepilot.DefaultConfig()
		if classifyConfig != "" {
			c, err := coursepilot.LoadConfigFile(classifyConfig)
			if err != nil {
				return err
			}
			cfg = c
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		rep, err := coursepilot.ClassifyHTML(cmd.Context(), f, cfg, !classifyNoComplete, logger)
		if err != nil {
			return err
		}
		return printJSON(rep)
	},
}

func init() {
	classifyCmd.Flags().StringVarP(&classifyConfig, "config", "c", "", "config file with profile and gate overrides")
	classifyCmd.Flags().BoolVar(&classifyNoComplete, "no-complete", false, "behave as if mark-as-complete were off")
	rootCmd.AddCommand(classifyCmd)
}
