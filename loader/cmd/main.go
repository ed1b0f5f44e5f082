package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"docqa/config"
	"docqa/loader"
	"docqa/loader/watcher"
	"docqa/model"
	"docqa/store"

	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/llms"
)

type options struct {
	configPath string
	envFile    string
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "docqa-loader",
		Short:        "Ingest documents from a drop folder or the command line",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "path to a .env file (./.env is read when present)")

	root.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Watch the source folder and ingest files as they settle (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context(), opts)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "ingest <files...>",
		Short: "Ingest the given files once",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), opts, args)
		},
	})

	return root
}

type pipeline struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    store.DBStorer
	ingestor *loader.Ingestor
}

func setup(ctx context.Context, opts *options) (*pipeline, error) {
	cfg, err := config.Load(opts.configPath, opts.envFile)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	st, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	embedder, err := model.NewEmbedder(ctx, cfg, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	// only the llm OCR backend talks to the chat model
	var llm llms.Model
	if cfg.OCR.Backend == config.OCRLLM {
		if llm, err = model.NewLLM(ctx, cfg, logger); err != nil {
			st.Close()
			return nil, err
		}
	}
	ocr, err := model.NewTextRecognizer(cfg, llm, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &pipeline{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		ingestor: loader.NewFromConfig(cfg, st, embedder, ocr, logger),
	}, nil
}

func (p *pipeline) close() {
	p.logger.Info("closing store")
	if err := p.store.Close(); err != nil {
		p.logger.Error("error closing store", "err", err)
	}
}

func runWatch(ctx context.Context, opts *options) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer p.close()

	w := watcher.New(watcher.Config{
		SourceDir:  p.cfg.Loader.SourceDir,
		ArchiveDir: p.cfg.Loader.ArchiveDir,
		BadDir:     p.cfg.Loader.BadDir,
		SettleTime: p.cfg.Loader.SettleTime,
	}, p.ingestor, p.logger)
	return w.Run(ctx)
}

func runIngest(ctx context.Context, opts *options, paths []string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer p.close()

	var errs []error
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		doc, err := p.ingestor.Ingest(ctx, path, data)
		if err != nil {
			p.logger.Error("ingest failed", "path", path, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		fmt.Printf("%s\t%s\t%d pages\t%d chunks\n", doc.ID, doc.Filename, doc.PageCount, len(doc.Chunks))
	}
	return errors.Join(errs...)
}
