package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"campusqa/internal/app"
	"campusqa/internal/httpapi"
	"campusqa/internal/service"
	"campusqa/internal/tui"
)

var (
	askJSON   bool
	serveAddr string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question from the index",
	Long: `Retrieves candidate passages for the question, reranks them and asks the
language model for an answer grounded in the best ones. Sources are printed
with an excerpt after the answer.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat in the terminal",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat API over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the collection's embedding model and size",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the result as JSON")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address; overrides server.addr")
	rootCmd.AddCommand(askCmd, chatCmd, serveCmd, statsCmd)
}

// openQuery opens the query-time resources; the caller closes them.
func openQuery(ctx context.Context) (*app.Resources, *service.Pipeline, error) {
	res, err := app.Open(ctx, cfg, app.NeedQuery)
	if err != nil {
		return nil, nil, err
	}
	p, err := res.Pipeline()
	if err != nil {
		res.Close()
		return nil, nil, err
	}
	return res, p, nil
}

func requestTimeout() time.Duration {
	return time.Duration(cfg.Server.RequestTimeoutSecs) * time.Second
}

// withRequestTimeout bounds one question the way the server and chat do.
func withRequestTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := requestTimeout(); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	res, p, err := openQuery(ctx)
	if err != nil {
		return err
	}
	defer res.Close()

	askCtx, cancelAsk := withRequestTimeout(ctx)
	defer cancelAsk()
	result, err := p.Ask(askCtx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	if askJSON {
		return printJSON(cmd, result)
	}

	cmd.Println(result.Answer)
	if len(result.Sources) == 0 {
		return nil
	}
	cmd.Println()
	cmd.Println("Sources:")
	for i, s := range result.Sources {
		cmd.Printf("  [%d] %s (%.3f)\n", i+1, s.Passage.SourceURL, float64(s.Relevance))
		if s.Excerpt != "" {
			cmd.Printf("      %q\n", s.Excerpt)
		}
	}
	return nil
}

func printJSON(cmd *cobra.Command, r *service.Result) error {
	type source struct {
		ID        string  `json:"id"`
		SourceURL string  `json:"source_url"`
		Score     float64 `json:"score"`
		Excerpt   string  `json:"excerpt"`
	}
	out := struct {
		Query   string   `json:"query"`
		Answer  string   `json:"answer"`
		Sources []source `json:"sources"`
	}{Query: r.Query, Answer: r.Answer, Sources: make([]source, len(r.Sources))}
	for i, s := range r.Sources {
		out.Sources[i] = source{s.Passage.ID, s.Passage.SourceURL, float64(s.Relevance), s.Excerpt}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	res, p, err := openQuery(ctx)
	if err != nil {
		return err
	}
	defer res.Close()

	info, err := p.Stats(ctx)
	if err != nil {
		return err
	}
	summary := fmt.Sprintf("%d passages in %s, embedded with %s, reranked by %s, answered by %s",
		info.Count, info.Name, info.Model.Name, res.Scorer.Name(), res.LLM.Name())
	prog := tea.NewProgram(tui.New(p, summary, requestTimeout()), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = prog.Run()
	return err
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	res, p, err := openQuery(ctx)
	if err != nil {
		return err
	}
	defer res.Close()

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	gin.SetMode(cfg.Server.Mode)
	return httpapi.Run(ctx, addr, httpapi.NewRouter(p, requestTimeout()))
}

func runStats(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	store, err := app.NewStore(ctx, cfg.VectorStore, true)
	if err != nil {
		return err
	}
	defer store.Close()

	p, err := service.New(service.Deps{Store: store, Collection: cfg.VectorStore.Collection})
	if err != nil {
		return err
	}
	info, err := p.Stats(ctx)
	if err != nil {
		return err
	}
	cmd.Printf("Collection: %s\n", info.Name)
	cmd.Printf("Model:      %s\n", info.Model.Name)
	cmd.Printf("Dimension:  %d\n", info.Model.Dimension)
	cmd.Printf("Entries:    %d\n", info.Count)
	return nil
}
