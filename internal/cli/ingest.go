package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/memcore/memcore/internal/ingest"
	"github.com/memcore/memcore/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ingest [text]",
		Short: "Extract and store memories from raw text",
		Long:  "Submit raw text for asynchronous extraction and batch storage. Waits for the job to finish by default.",
		Run:   runIngest,
	}

	cmd.Flags().String("source", "", "Source attribution (e.g. chat)")
	cmd.Flags().String("scope", "global", "Visibility scope: global or agent")
	cmd.Flags().String("agent", "", "Agent id (required for agent scope)")
	cmd.Flags().Bool("no-wait", false, "Print the job id immediately instead of waiting")

	RootCmd.AddCommand(cmd)
}

func runIngest(cmd *cobra.Command, args []string) {
	source, _ := cmd.Flags().GetString("source")
	scope, _ := cmd.Flags().GetString("scope")
	agent, _ := cmd.Flags().GetString("agent")
	noWait, _ := cmd.Flags().GetBool("no-wait")

	text := readContent(args)
	if strings.TrimSpace(text) == "" {
		exitErr("ingest", fmt.Errorf("text is required (positional arg or stdin)"))
	}

	a, err := openApp()
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	orch := a.orchestrator()
	defer orch.Close()

	jobID, err := orch.Submit(ingest.Request{
		OwnerID: getOwner(),
		Text:    text,
		Source:  source,
		Scope:   model.Scope(scope),
		AgentID: agent,
	})
	if err != nil {
		exitErr("ingest", err)
	}

	if noWait {
		fmt.Printf("{\"job_id\": %q}\n", jobID)
		return
	}

	// The orchestrator is in-process here, so poll until terminal.
	var job *model.IngestJob
	for {
		job, err = orch.Job(jobID)
		if err != nil {
			exitErr("job", err)
		}
		if job.Status.Terminal() {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	b, _ := json.MarshalIndent(job, "", "  ")
	fmt.Println(string(b))
}
