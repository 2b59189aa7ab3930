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
		Use:   "search [query]",
		Short: "Search memories",
		Long:  "Retrieve ranked active memories. With a query, results are ordered by relevance score; without one, most recent first.",
		Run:   runSearch,
	}

	cmd.Flags().String("tags", "", "Comma-separated tag filters")
	cmd.Flags().StringP("type", "t", "", "Filter by record type")
	cmd.Flags().String("scope", "global", "Visibility scope: global or agent")
	cmd.Flags().String("agent", "", "Agent id (required for agent scope)")
	cmd.Flags().Bool("include-global", true, "Include global records in agent-scoped searches")
	cmd.Flags().IntP("limit", "l", 0, "Max results (default from config)")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	tagsStr, _ := cmd.Flags().GetString("tags")
	typ, _ := cmd.Flags().GetString("type")
	scope, _ := cmd.Flags().GetString("scope")
	agent, _ := cmd.Flags().GetString("agent")
	includeGlobal, _ := cmd.Flags().GetBool("include-global")
	limit, _ := cmd.Flags().GetInt("limit")

	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	results, warnings, err := a.manager.Search(cmd.Context(), memory.SearchParams{
		OwnerID:       getOwner(),
		Query:         strings.Join(args, " "),
		Tags:          splitTags(tagsStr),
		Type:          model.RecordType(typ),
		Scope:         model.Scope(scope),
		AgentID:       agent,
		IncludeGlobal: includeGlobal,
		Limit:         limit,
	})
	if err != nil {
		exitErr("search", err)
	}

	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, "warning: "+w)
	}
	if len(results) == 0 {
		fmt.Println("[]")
		return
	}
	b, _ := json.MarshalIndent(results, "", "  ")
	fmt.Println(string(b))
}
