package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/memcore/memcore/internal/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "update [id]",
		Short: "Update a memory's content or metadata",
		Long:  "Update content, tags, importance, or confidence. Record type and scope are immutable.",
		Args:  cobra.ExactArgs(1),
		Run:   runUpdate,
	}

	cmd.Flags().String("content", "", "New content (re-embeds)")
	cmd.Flags().String("tags", "", "Comma-separated tags")
	cmd.Flags().IntP("importance", "i", 0, "Importance 1-5")
	cmd.Flags().Float64P("confidence", "c", 0, "Confidence 0.0-1.0")

	RootCmd.AddCommand(cmd)
}

func runUpdate(cmd *cobra.Command, args []string) {
	p := memory.UpdateParams{ID: args[0], OwnerID: getOwner()}

	if cmd.Flags().Changed("content") {
		v, _ := cmd.Flags().GetString("content")
		p.Content = &v
	}
	if cmd.Flags().Changed("tags") {
		v, _ := cmd.Flags().GetString("tags")
		p.Tags = splitTags(v)
	}
	if cmd.Flags().Changed("importance") {
		v, _ := cmd.Flags().GetInt("importance")
		p.Importance = &v
	}
	if cmd.Flags().Changed("confidence") {
		v, _ := cmd.Flags().GetFloat64("confidence")
		p.Confidence = &v
	}

	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	rec, err := a.manager.Update(cmd.Context(), p)
	if err != nil {
		exitErr("update", err)
	}

	b, _ := json.MarshalIndent(rec, "", "  ")
	fmt.Println(string(b))
}
