// Package main is the chronicle entrypoint: an interactive chat session
// backed by an OpenAI-compatible model and a Neo4j temporal fact store.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/entrhq/chronicle/pkg/agent"
	"github.com/entrhq/chronicle/pkg/agent/tools"
	"github.com/entrhq/chronicle/pkg/config"
	"github.com/entrhq/chronicle/pkg/executor/cli"
	"github.com/entrhq/chronicle/pkg/graph"
	"github.com/entrhq/chronicle/pkg/llm/openai"
	"github.com/entrhq/chronicle/pkg/logging"
)

const version = "0.1.0"

var (
	bannerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	infoStyle   = lipgloss.NewStyle().Faint(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

type cliFlags struct {
	clearData   bool
	checkOnly   bool
	markdown    bool
	tokenUsage  bool
	showVersion bool
}

func parseFlags() *cliFlags {
	f := &cliFlags{}
	flag.BoolVar(&f.clearData, "clear", false, "Clear all graph data and rebuild indices before starting")
	flag.BoolVar(&f.checkOnly, "check", false, "Check connectivity to the model backend and Neo4j, then exit")
	flag.BoolVar(&f.markdown, "markdown", false, "Render answers as markdown instead of streaming raw text")
	flag.BoolVar(&f.tokenUsage, "tokens", false, "Print per-turn token usage estimates")
	flag.BoolVar(&f.showVersion, "version", false, "Show version and exit")
	flag.Parse()
	return f
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		fmt.Printf("chronicle v%s\n", version)
		return
	}

	cfg := config.FromEnv()
	if flags.clearData {
		cfg.ClearOnStart = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flags.checkOnly {
		if err := runChecks(ctx, cfg); err != nil {
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, cfg, flags); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, flags *cliFlags) error {
	log, _ := logging.NewLogger("main")
	defer log.Close()

	printBanner(cfg)

	provider, err := openai.NewProvider(
		cfg.APIKey,
		openai.WithModel(cfg.Model),
		openai.WithBaseURL(cfg.BaseURL),
	)
	if err != nil {
		return fmt.Errorf("failed to create model provider: %w", err)
	}

	store, err := graph.NewNeo4jStore(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword,
		graph.WithSearchLimit(cfg.SearchLimit))
	if err != nil {
		printNeo4jHints(cfg)
		return fmt.Errorf("failed to connect to the fact store: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			log.Errorf("failed to close fact store: %v", err)
		}
	}()

	if err := graph.Prepare(ctx, store, cfg.ClearOnStart); err != nil {
		return fmt.Errorf("failed to prepare the fact store: %w", err)
	}
	if cfg.ClearOnStart {
		fmt.Println(infoStyle.Render("Graph data cleared, indices rebuilt."))
	}

	ag := agent.NewDefaultAgent(provider)
	if err := ag.RegisterTool(tools.NewSearchFactsTool(store)); err != nil {
		return fmt.Errorf("failed to register search tool: %w", err)
	}

	executor := cli.NewExecutor(ag,
		cli.WithMarkdownRendering(flags.markdown),
		cli.WithTokenUsage(flags.tokenUsage),
	)

	log.Infof("session starting: model=%s base_url=%s neo4j=%s", cfg.Model, cfg.BaseURL, cfg.Neo4jURI)

	if err := executor.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("session ended with error: %w", err)
	}
	return nil
}

func printBanner(cfg *config.Config) {
	fmt.Println(bannerStyle.Render("chronicle") + infoStyle.Render("  v"+version))
	fmt.Println(infoStyle.Render(fmt.Sprintf("model: %s @ %s", cfg.Model, cfg.BaseURL)))
	fmt.Println(infoStyle.Render(fmt.Sprintf("graph: %s (limit %d)", cfg.Neo4jURI, cfg.SearchLimit)))
	fmt.Println()
}

func printNeo4jHints(cfg *config.Config) {
	fmt.Fprintln(os.Stderr, failStyle.Render("Could not reach Neo4j at "+cfg.Neo4jURI))
	fmt.Fprintln(os.Stderr, "Troubleshooting:")
	fmt.Fprintln(os.Stderr, "  - Is Neo4j running? (docker: docker ps, desktop: check the database status)")
	fmt.Fprintln(os.Stderr, "  - Are NEO4J_URI, NEO4J_USER and NEO4J_PASSWORD set correctly?")
	fmt.Fprintln(os.Stderr, "  - Default credentials are neo4j/password on bolt://localhost:7687")
}

// runChecks probes both backing services and reports each result. Run via
// -check before a session to diagnose setup problems.
func runChecks(ctx context.Context, cfg *config.Config) error {
	fmt.Println(bannerStyle.Render("chronicle connectivity check"))
	fmt.Println()

	var failed bool

	fmt.Printf("Neo4j (%s): ", cfg.Neo4jURI)
	store, err := graph.NewNeo4jStore(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
	if err != nil {
		fmt.Println(failStyle.Render("FAIL"))
		fmt.Printf("  %v\n", err)
		failed = true
	} else {
		fmt.Println(okStyle.Render("OK"))
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		store.Close(closeCtx)
		cancel()
	}

	fmt.Printf("Model backend (%s): ", cfg.BaseURL)
	if err := probeModels(ctx, cfg); err != nil {
		fmt.Println(failStyle.Render("FAIL"))
		fmt.Printf("  %v\n", err)
		fmt.Println("  Is the inference server running and serving an OpenAI-compatible API?")
		failed = true
	} else {
		fmt.Println(okStyle.Render("OK"))
	}

	fmt.Println()
	if failed {
		fmt.Println(failStyle.Render("Some checks failed."))
		return fmt.Errorf("connectivity check failed")
	}
	fmt.Println(okStyle.Render("All checks passed."))
	return nil
}

// probeModels hits the backend's model listing endpoint, the cheapest
// request an OpenAI-compatible server answers.
func probeModels(ctx context.Context, cfg *config.Config) error {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, cfg.BaseURL+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s/models", resp.StatusCode, cfg.BaseURL)
	}
	return nil
}
