package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/memcore/memcore/internal/memory"
	"github.com/memcore/memcore/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "context [query]",
		Short: "Synthesize a context summary for a query",
		Long:  "Retrieve ranked memories for a query and condense them into a summary with bullet points.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runContext,
	}

	cmd.Flags().String("scope", "global", "Visibility scope: global or agent")
	cmd.Flags().String("agent", "", "Agent id (required for agent scope)")
	cmd.Flags().IntP("limit", "l", 10, "Max memories to synthesize from")

	RootCmd.AddCommand(cmd)
}

func runContext(cmd *cobra.Command, args []string) {
	scope, _ := cmd.Flags().GetString("scope")
	agent, _ := cmd.Flags().GetString("agent")
	limit, _ := cmd.Flags().GetInt("limit")
	query := strings.Join(args, " ")

	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	out, warnings, err := a.manager.BuildContext(cmd.Context(), getOwner(), query, memory.SearchParams{
		Scope:         model.Scope(scope),
		AgentID:       agent,
		IncludeGlobal: true,
		Limit:         limit,
	})
	if err != nil {
		exitErr("context", err)
	}

	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, "warning: "+w)
	}
	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
}
