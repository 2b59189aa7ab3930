package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/memcore/memcore/internal/memory"
	"github.com/memcore/memcore/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "remember [content]",
		Short: "Store a memory",
		Long:  "Store a memory directly. Content can be a positional arg or piped via stdin.",
		Run:   runRemember,
	}

	cmd.Flags().StringP("type", "t", "fact", "Record type: fact, state, episode, policy")
	cmd.Flags().String("tags", "", "Comma-separated tags")
	cmd.Flags().String("scope", "global", "Visibility scope: global or agent")
	cmd.Flags().String("agent", "", "Agent id (required for agent scope)")
	cmd.Flags().IntP("importance", "i", 3, "Importance 1-5")
	cmd.Flags().Float64P("confidence", "c", 0.7, "Confidence 0.0-1.0")
	cmd.Flags().String("source", "", "Source attribution")
	cmd.Flags().Bool("skip-dedup", false, "Skip duplicate detection")

	RootCmd.AddCommand(cmd)
}

func runRemember(cmd *cobra.Command, args []string) {
	typ, _ := cmd.Flags().GetString("type")
	tagsStr, _ := cmd.Flags().GetString("tags")
	scope, _ := cmd.Flags().GetString("scope")
	agent, _ := cmd.Flags().GetString("agent")
	importance, _ := cmd.Flags().GetInt("importance")
	confidence, _ := cmd.Flags().GetFloat64("confidence")
	source, _ := cmd.Flags().GetString("source")
	skipDedup, _ := cmd.Flags().GetBool("skip-dedup")

	content := readContent(args)
	if strings.TrimSpace(content) == "" {
		exitErr("remember", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	result, err := a.manager.Create(cmd.Context(), memory.CreateParams{
		OwnerID:      getOwner(),
		Content:      strings.TrimSpace(content),
		Type:         model.RecordType(typ),
		Tags:         splitTags(tagsStr),
		Scope:        model.Scope(scope),
		AgentID:      agent,
		Importance:   importance,
		Confidence:   confidence,
		Source:       source,
		InputChannel: model.ChannelManual,
		SkipDedup:    skipDedup,
	})
	if err != nil {
		exitErr("remember", err)
	}

	b, _ := json.Marshal(result)
	fmt.Println(string(b))
}

// readContent takes positional args first, then falls back to stdin.
func readContent(args []string) string {
	if len(args) > 0 {
		return strings.Join(args, " ")
	}
	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitErr("read stdin", err)
		}
		return string(b)
	}
	return ""
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
