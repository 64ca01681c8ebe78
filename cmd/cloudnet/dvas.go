package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var dvasCmd = &cobra.Command{
	Use:   "dvas",
	Short: "Manage the DVAS federation",
}

var dvasPurgeYes bool

var dvasPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every CLU record from the DVAS federation",
	Long: `Delete the full CLU provider namespace from the DVAS metadata
portal. The portal's dvasId bookkeeping is left in place; the next
upload round rewrites it. Used before a coordinated re-federation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !dvasPurgeYes {
			return fmt.Errorf("refusing to purge without --yes")
		}
		cfg, err := loadConfig(nil)
		if err != nil {
			return err
		}
		c := buildClients(cfg)
		if err := c.dvas.DeleteAll(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Purged all CLU records from DVAS")
		return nil
	},
}

func init() {
	dvasCmd.AddCommand(dvasPurgeCmd)
	dvasPurgeCmd.Flags().BoolVar(&dvasPurgeYes, "yes", false, "Confirm the purge")
}
