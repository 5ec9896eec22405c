package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/agentd-ai/agentd/internal/logging"
	"github.com/agentd-ai/agentd/internal/session"
	"github.com/agentd-ai/agentd/pkg/types"
)

var (
	runSession string
	runModel   string
)

var runCmd = &cobra.Command{
	Use:   "run [message...]",
	Short: "Start an interactive conversation",
	Long: `Start an interactive conversation. With a message argument the reply is
printed and the command exits; without one an interactive prompt opens.

Examples:
  agentd run "hello"
  agentd run --session 4f7c… "pick up where we left off"
  agentd run --model loopback/echo-2`,
	RunE: runConversation,
}

func init() {
	runCmd.Flags().StringVarP(&runSession, "session", "s", "", "Session ID to resume")
	runCmd.Flags().StringVarP(&runModel, "model", "m", "", "Model to use (provider/model format)")
}

func runConversation(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := app.manager.Create(ctx, runSession)
	if err != nil {
		return err
	}

	if runModel != "" {
		cfg, err := parseModelFlag(runModel)
		if err != nil {
			return err
		}
		if err := sess.SwitchLLM(ctx, cfg); err != nil {
			return err
		}
	}

	// One-shot mode: send the message, print the reply, exit.
	if message := strings.Join(args, " "); message != "" {
		result, err := sess.Stream(ctx, message)
		if err != nil {
			return err
		}
		fmt.Println(result.Content)
		return nil
	}

	fmt.Printf("session %s (%s/%s). /help for commands.\n",
		sess.ID(), sess.Config().ProviderID, sess.Config().ModelID)

	compactor := session.NewCompactionService(app.manager, transcriptSummarizer{}, app.bus, logging.Nop())

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			done, err := handleCommand(ctx, app, &sess, compactor, line)
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
			}
			if done {
				return nil
			}
			continue
		}

		result, err := sess.Stream(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		fmt.Println(result.Content)
	}
	return scanner.Err()
}

// handleCommand dispatches a /slash command. sess is a pointer so /compact
// can swap the live session for its continuation.
func handleCommand(ctx context.Context, app *app, sess **session.ChatSession, compactor *session.CompactionService, line string) (bool, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/exit", "/quit":
		return true, nil

	case "/help":
		fmt.Println(`/reset            clear the conversation history
/compact          summarize and continue in a fresh session
/switch p/m       switch to another provider/model
/usage            show accumulated token usage
/exit             leave`)
		return false, nil

	case "/reset":
		return false, app.manager.Reset(ctx, (*sess).ID())

	case "/compact":
		result, err := compactor.Compact(ctx, *sess, "manual")
		if err != nil {
			return false, err
		}
		if result == nil {
			fmt.Println("nothing to compact")
			return false, nil
		}
		*sess = result.Session
		fmt.Printf("continued as session %s (%d messages summarized)\n",
			result.NewSessionID, result.OriginalMessages)
		return false, nil

	case "/switch":
		if len(fields) != 2 {
			return false, fmt.Errorf("usage: /switch provider/model")
		}
		cfg, err := parseModelFlag(fields[1])
		if err != nil {
			return false, err
		}
		if err := (*sess).SwitchLLM(ctx, cfg); err != nil {
			return false, err
		}
		fmt.Printf("switched to %s/%s\n", cfg.ProviderID, cfg.ModelID)
		return false, nil

	case "/usage":
		record, err := app.manager.Record(ctx, (*sess).ID())
		if err != nil {
			return false, err
		}
		printUsage(record)
		return false, nil

	default:
		return false, fmt.Errorf("unknown command %s", fields[0])
	}
}

// parseModelFlag splits "provider/model" into an LLMConfig.
func parseModelFlag(value string) (types.LLMConfig, error) {
	providerID, modelID, ok := strings.Cut(value, "/")
	if !ok || providerID == "" || modelID == "" {
		return types.LLMConfig{}, fmt.Errorf("invalid model %q, expected provider/model", value)
	}
	return types.LLMConfig{ProviderID: providerID, ModelID: modelID}, nil
}

func printUsage(record *types.SessionRecord) {
	if record.TokenUsage == nil {
		fmt.Println("no usage recorded")
		return
	}
	u := record.TokenUsage
	fmt.Printf("tokens: %d in, %d out, %d total\n", u.InputTokens, u.OutputTokens, u.TotalTokens)
	if record.EstimatedCost != nil {
		fmt.Printf("estimated cost: $%.4f\n", *record.EstimatedCost)
	}
	for _, stats := range record.ModelStats {
		fmt.Printf("  %s: %d tokens over %d responses\n",
			types.ModelKey(stats.ProviderID, stats.ModelID), stats.Usage.TotalTokens, stats.MessageCount)
	}
}

// transcriptSummarizer is the built-in summarization strategy: a plain-text
// digest of the conversation. Provider-backed strategies can replace it where
// a real LLM is available.
type transcriptSummarizer struct{}

func (transcriptSummarizer) Summarize(ctx context.Context, messages []*types.Message) (string, error) {
	var b strings.Builder
	b.WriteString("Conversation summary:\n")
	for _, msg := range messages {
		content := msg.Content
		if len(content) > 120 {
			cut := 120
			for cut > 0 && !utf8.RuneStart(content[cut]) {
				cut--
			}
			content = content[:cut] + "…"
		}
		fmt.Fprintf(&b, "- %s: %s\n", msg.Role, content)
	}
	return b.String(), nil
}
