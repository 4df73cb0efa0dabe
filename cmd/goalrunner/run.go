package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/goalrunner/internal/backend"
	"github.com/example/goalrunner/internal/models"
	"github.com/example/goalrunner/internal/orchestrator"
	"github.com/example/goalrunner/internal/runstate"
)

var (
	runSummarize bool
	runImage     string
	runChat      []string
)

var runCmd = &cobra.Command{
	Use:   "run <goal...>",
	Short: "Run a goal to completion and print progress",
	Long: `Runs the goal until no tasks are pending, printing each message as it is
added and streaming task output as it arrives.

Examples:
  goalrunner run "Plan a product launch"
  goalrunner run --image sketch.png --summarize "Turn this sketch into a plan"
  goalrunner run --chat "Which task was hardest?" "Plan a launch"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGoal,
}

func init() {
	runCmd.Flags().BoolVar(&runSummarize, "summarize", false, "Stream a summary once the run is done")
	runCmd.Flags().StringVar(&runImage, "image", "", "Image file to upload before starting")
	runCmd.Flags().StringArrayVar(&runChat, "chat", nil, "Follow-up message to send after the run (repeatable)")
}

func runGoal(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := backend.New(cfg.BackendClient(logger))
	orch := orchestrator.New(client,
		orchestrator.WithModels(cfg.RunModels()),
		orchestrator.WithPacer(orchestrator.FixedPacing(cfg.Pacing.Interval)),
		orchestrator.WithLogger(logger),
	)

	events, unsubscribe := orch.State().SubscribeBuffered(feedBuffer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		printEvents(cmd.OutOrStdout(), events)
	}()
	defer func() {
		unsubscribe()
		<-done
	}()

	if runImage != "" {
		data, err := os.ReadFile(runImage)
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
		if err := orch.SubmitImage(ctx, data); err != nil {
			return err
		}
	}

	if err := orch.SubmitGoalOrChatText(ctx, strings.Join(args, " ")); err != nil {
		return err
	}
	for _, msg := range runChat {
		if err := orch.SubmitGoalOrChatText(ctx, msg); err != nil {
			return err
		}
	}
	if runSummarize {
		if !orch.ReadyToSummarize() {
			return fmt.Errorf("nothing to summarize")
		}
		if err := orch.RequestSummary(ctx); err != nil {
			return err
		}
	}
	return nil
}

// feedBuffer sizes the terminal's subscription. The terminal has no snapshot
// to fall back on, so it gets far more room than a network subscriber.
const feedBuffer = 4096

// printEvents renders the message feed until the channel closes. Events the
// feed dropped because the terminal fell behind are marked in the output.
func printEvents(w io.Writer, events <-chan runstate.Event) {
	streaming := ""
	var last int64
	for ev := range events {
		if last > 0 && ev.Seq > last+1 {
			fmt.Fprint(w, skippedStyle.Sprintf(" [%d updates skipped] ", ev.Seq-last-1))
		}
		last = ev.Seq
		switch ev.Kind {
		case runstate.EventMessageAdded:
			if streaming != "" {
				fmt.Fprintln(w)
			}
			streaming = ""
			printMessage(w, *ev.Message)
			if ev.Message.Type.Streamed() {
				streaming = ev.MessageID
			}
		case runstate.EventDetailAppended:
			if ev.MessageID == streaming {
				fmt.Fprint(w, ev.Chunk)
			}
		}
	}
	if streaming != "" {
		fmt.Fprintln(w)
	}
}

var (
	userStyle     = color.New(color.FgCyan, color.Bold)
	taskStyle     = color.New(color.FgYellow)
	startStyle    = color.New(color.FgGreen, color.Bold)
	analyzeStyle  = color.New(color.FgBlue)
	executeStyle  = color.New(color.FgMagenta, color.Bold)
	responseStyle = color.New(color.FgGreen)
	skippedStyle  = color.New(color.FgRed)
)

func printMessage(w io.Writer, m models.Message) {
	switch m.Type {
	case models.MessageUserInput:
		if m.ImageURL != "" {
			fmt.Fprintf(w, "%s %s (%s)\n", userStyle.Sprint(">"), m.Text, m.ImageURL)
			return
		}
		fmt.Fprintf(w, "%s %s\n", userStyle.Sprint(">"), m.Text)
	case models.MessageStartingTask:
		fmt.Fprintf(w, "%s %s\n", startStyle.Sprint("Embarking on goal:"), m.Text)
	case models.MessageTaskAdded:
		fmt.Fprintf(w, "  %s %s\n", taskStyle.Sprint("+ task"), m.Text)
	case models.MessageAnalyzingTask:
		fmt.Fprintf(w, "%s %s\n", analyzeStyle.Sprint("Analyzing:"), m.Text)
	case models.MessageExecutingTask:
		fmt.Fprintf(w, "%s %s\n", executeStyle.Sprint("Executing:"), m.Text)
	case models.MessageGeneratedReport:
		fmt.Fprintf(w, "%s\n", responseStyle.Sprint("Response:"))
	}
}
