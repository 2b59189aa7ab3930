package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the owner's memories as JSON lines",
		Long:  "Export memories, one JSON object per line. Includes superseded versions unless --active-only.",
		Run:   runExport,
	}

	cmd.Flags().Bool("active-only", false, "Export only active records")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	activeOnly, _ := cmd.Flags().GetBool("active-only")

	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	records, err := a.store.ExportAll(cmd.Context(), getOwner(), activeOnly)
	if err != nil {
		exitErr("export", err)
	}

	for _, r := range records {
		b, _ := json.Marshal(r)
		fmt.Println(string(b))
	}
}
