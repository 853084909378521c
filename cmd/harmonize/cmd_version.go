package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/triagekit/harmonize/internal/version"
)

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				fmt.Println(version.JSON())
				return nil
			}
			fmt.Println(version.String())
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Print version info as JSON")
	return cmd
}
