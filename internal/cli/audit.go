package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "audit [id]",
		Short: "Show the audit trail of a memory",
		Args:  cobra.ExactArgs(1),
		Run:   runAudit,
	}

	RootCmd.AddCommand(cmd)
}

func runAudit(cmd *cobra.Command, args []string) {
	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	entries, err := a.manager.AuditTrail(cmd.Context(), args[0], getOwner())
	if err != nil {
		exitErr("audit", err)
	}

	b, _ := json.MarshalIndent(entries, "", "  ")
	fmt.Println(string(b))
}
