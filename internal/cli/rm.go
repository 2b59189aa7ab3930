package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rm [id]",
		Short: "Delete a memory",
		Long:  "Soft-delete a memory (sets valid_to). Use --hard to remove the row entirely.",
		Args:  cobra.ExactArgs(1),
		Run:   runRm,
	}

	cmd.Flags().Bool("hard", false, "Remove the row instead of soft-deleting")

	RootCmd.AddCommand(cmd)
}

func runRm(cmd *cobra.Command, args []string) {
	hard, _ := cmd.Flags().GetBool("hard")

	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	deleted, err := a.manager.Delete(cmd.Context(), args[0], getOwner(), hard)
	if err != nil {
		exitErr("rm", err)
	}
	if !deleted {
		fmt.Println(`{"deleted": false}`)
		return
	}
	fmt.Println(`{"deleted": true}`)
}
