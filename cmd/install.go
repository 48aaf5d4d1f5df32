package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/uiharness/internal/browser"
	"github.com/xkilldash9x/uiharness/internal/browser/cdpdriver"
	"github.com/xkilldash9x/uiharness/internal/browser/pwdriver"
)

// installBrowsers is swapped out in tests.
var installBrowsers = pwdriver.Install

func newInstallCommand(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the playwright driver and the configured browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.Driver.Name == cdpdriver.Name {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "The cdp driver uses the locally installed Chrome; nothing to install.")
				return err
			}
			variants := []browser.Variant{a.cfg.Variant()}
			if all {
				variants = browser.Variants
			}
			if err := installBrowsers(cmd.Context(), variants, a.cfg.Driver.InstallTimeout, a.logger); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Installed %v.\n", variants)
			return err
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "install chromium, firefox and webkit")
	return cmd
}
