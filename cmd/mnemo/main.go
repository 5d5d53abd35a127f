// mnemo ingests conversation text into an encrypted, deduplicated
// memory vault.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mnemolabs/mnemo/core"
	"github.com/mnemolabs/mnemo/embedding"
	"github.com/mnemolabs/mnemo/gateway"
	"github.com/mnemolabs/mnemo/internal/profile"
	"github.com/mnemolabs/mnemo/pipeline"
	"github.com/mnemolabs/mnemo/pipeline/preprocess"
	"github.com/mnemolabs/mnemo/redact"
	"github.com/mnemolabs/mnemo/store"
	"github.com/mnemolabs/mnemo/vector"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "mnemo",
		Short:         "Encrypted memory vault with LLM-driven ingestion",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	loadProfile := func() (*profile.Profile, error) {
		p, err := profile.Load(configFile)
		if err != nil {
			return nil, err
		}
		p.Version = version
		if err := p.Validate(); err != nil {
			return nil, err
		}
		initLogger(p)
		return p, nil
	}

	root.AddCommand(
		newIngestCmd(loadProfile),
		newAddCmd(loadProfile),
		newListCmd(loadProfile),
		newStatsCmd(loadProfile),
	)
	return root
}

func initLogger(p *profile.Profile) {
	level := slog.LevelInfo
	if p.IsDev() {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func newIngestCmd(loadProfile func() (*profile.Profile, error)) *cobra.Command {
	var (
		source  string
		session string
		format  string
	)

	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Extract and store memories from conversation text",
		Long: `Reads conversation text from a file (or stdin when no file is given),
extracts memory candidates, deduplicates them against the vault, and
commits the survivors.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProfile()
			if err != nil {
				return err
			}

			text, err := readInput(args)
			if err != nil {
				return err
			}

			var content preprocess.Content
			switch format {
			case "raw":
				content = preprocess.RawText(text)
			case "chatlog":
				content = preprocess.ChatLog(text)
			default:
				return fmt.Errorf("unsupported format %q (raw, chatlog)", format)
			}

			pipe, closer, err := buildPipeline(p)
			if err != nil {
				return err
			}
			defer closer()

			result, err := pipe.IngestText(cmd.Context(), content, source, session, p.PipelineConfig())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&source, "source", "cli", "origin tag recorded with the ingestion")
	cmd.Flags().StringVar(&session, "session", "", "session identifier (generated when empty)")
	cmd.Flags().StringVar(&format, "format", "raw", "input format: raw or chatlog")
	return cmd
}

func newAddCmd(loadProfile func() (*profile.Profile, error)) *cobra.Command {
	var (
		class       string
		tags        []string
		noSummarize bool
		noDedup     bool
		source      string
		session     string
	)

	cmd := &cobra.Command{
		Use:   "add <content>...",
		Short: "Add memories directly, bypassing extraction",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProfile()
			if err != nil {
				return err
			}

			inputs := make([]core.RawMemoryInput, 0, len(args))
			for _, content := range args {
				inputs = append(inputs, core.RawMemoryInput{
					Content: content,
					Class:   core.MemoryClass(strings.ToLower(class)),
					Tags:    tags,
				})
			}

			pipe, closer, err := buildPipeline(p)
			if err != nil {
				return err
			}
			defer closer()

			result, err := pipe.AddMemories(cmd.Context(), inputs, source, session,
				!noSummarize, !noDedup, p.PipelineConfig())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&class, "class", "", "memory class (classified automatically when empty)")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "tags attached to each memory")
	cmd.Flags().BoolVar(&noSummarize, "no-summarize", false, "store content verbatim without summarization")
	cmd.Flags().BoolVar(&noDedup, "no-conflict-check", false, "skip duplicate detection (bulk import)")
	cmd.Flags().StringVar(&source, "source", "cli", "origin tag recorded with the ingestion")
	cmd.Flags().StringVar(&session, "session", "", "session identifier (generated when empty)")
	return cmd
}

func newListCmd(loadProfile func() (*profile.Profile, error)) *cobra.Command {
	var class string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored memories of a class",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProfile()
			if err != nil {
				return err
			}

			memories, closer, err := openStore(p)
			if err != nil {
				return err
			}
			defer closer()

			list, err := memories.List(cmd.Context(), core.ParseClass(class))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), list)
		},
	}

	cmd.Flags().StringVar(&class, "class", "other", "memory class to list")
	return cmd
}

func newStatsCmd(loadProfile func() (*profile.Profile, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show memory counts per class",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProfile()
			if err != nil {
				return err
			}

			memories, closer, err := openStore(p)
			if err != nil {
				return err
			}
			defer closer()

			counts := make(map[string]int)
			for _, class := range []core.MemoryClass{
				core.ClassPersonal, core.ClassWork, core.ClassHealth,
				core.ClassFinancial, core.ClassOther, core.ClassCustom,
			} {
				list, err := memories.List(cmd.Context(), class)
				if err != nil {
					return err
				}
				if len(list) > 0 {
					counts[string(class)] = len(list)
				}
			}
			return printJSON(cmd.OutOrStdout(), counts)
		},
	}
}

// buildPipeline wires the full ingestion stack from the profile.
func buildPipeline(p *profile.Profile) (*pipeline.Pipeline, func(), error) {
	gw, err := gateway.New(gateway.Config{
		Provider:          p.LLMProvider,
		Model:             p.LLMModel,
		APIKey:            p.LLMAPIKey,
		BaseURL:           p.LLMBaseURL,
		RequestsPerSecond: p.LLMRPS,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init gateway: %w", err)
	}

	embedder, err := embedding.NewService(embedding.Config{
		Provider:   p.EmbeddingProvider,
		Model:      p.EmbeddingModel,
		Dimensions: p.EmbeddingDims,
		APIKey:     p.EmbeddingAPIKey,
		BaseURL:    p.EmbeddingBaseURL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init embedding service: %w", err)
	}

	var closers []func() error

	var index vector.Index
	switch p.VectorBackend {
	case "pgvector":
		pg, err := vector.NewPgIndex(p.VectorDSN, p.EmbeddingDims)
		if err != nil {
			return nil, nil, fmt.Errorf("init pgvector index: %w", err)
		}
		closers = append(closers, pg.Close)
		index = pg
	default:
		chromem, err := vector.NewPersistentChromemIndex(filepath.Join(p.Data, "vectors"), false)
		if err != nil {
			return nil, nil, fmt.Errorf("init vector index: %w", err)
		}
		index = chromem
	}

	memories, storeCloser, err := openStore(p)
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, func() error { storeCloser(); return nil })

	var redactor redact.Redactor
	if p.RedactPII {
		redactor = redact.NewScrubber()
	}

	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				slog.Warn("close failed", "error", err)
			}
		}
	}
	return pipeline.New(gw, embedder, index, memories, redactor), closeAll, nil
}

func openStore(p *profile.Profile) (store.Store, func(), error) {
	key, err := p.MasterKeyBytes()
	if err != nil {
		return nil, nil, err
	}

	var memories store.Store
	switch p.Driver {
	case "postgres":
		memories, err = store.NewPostgresStore(p.DSN, key)
	default:
		memories, err = store.NewSQLiteStore(p.DSN, key)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open memory store: %w", err)
	}

	closer := func() {
		if err := memories.Close(); err != nil {
			slog.Warn("close store failed", "error", err)
		}
	}
	return memories, closer, nil
}

func readInput(args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
