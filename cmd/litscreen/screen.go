package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fentz26/litscreen/internal/dedup"
	"github.com/fentz26/litscreen/internal/export"
	"github.com/fentz26/litscreen/internal/ingest"
	"github.com/fentz26/litscreen/internal/pipeline"
	"github.com/fentz26/litscreen/internal/screening"
	"github.com/fentz26/litscreen/internal/tui"
	"github.com/spf13/cobra"
)

var screenOpts struct {
	taKeywordsFile      string
	journalKeywordsFile string
	format              string
	outDir              string
	noDedup             bool
	criteria            string
	apiKey              string
	model               string
	verify              bool
}

var screenCmd = &cobra.Command{
	Use:   "screen FILE...",
	Short: "Screen files locally without a server",
	Long: `Parses the given bibliographic files, removes duplicates, applies the
keyword blacklists and, when criteria and an API key are available, the AI
stage. The kept and removed records are written to the output directory.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScreen,
}

func init() {
	f := screenCmd.Flags()
	f.StringVar(&screenOpts.taKeywordsFile, "ta-keywords-file", "", "file with one title/abstract blacklist term per line (default from config)")
	f.StringVar(&screenOpts.journalKeywordsFile, "journal-keywords-file", "", "file with one journal blacklist term per line (default from config)")
	f.StringVar(&screenOpts.format, "format", "", "output format: csv, tsv, xlsx, xls, ris, bib, yaml (default from config)")
	f.StringVarP(&screenOpts.outDir, "out", "o", ".", "output directory")
	f.BoolVar(&screenOpts.noDedup, "no-dedup", false, "keep duplicate records")
	f.StringVar(&screenOpts.criteria, "criteria", "", "exclusion criteria for the AI stage")
	f.StringVar(&screenOpts.apiKey, "api-key", "", "API key for the AI stage (default from config or LITSCREEN_AI_API_KEY)")
	f.StringVar(&screenOpts.model, "model", "", "model for the AI stage (default from config)")
	f.BoolVar(&screenOpts.verify, "verify", false, "verify AI exclusions with a second scope check")
	rootCmd.AddCommand(screenCmd)
}

func runScreen(cmd *cobra.Command, args []string) error {
	formatName := screenOpts.format
	if formatName == "" {
		formatName = cfg.Screening.OutputFormat
	}
	format, err := export.ParseFormat(formatName)
	if err != nil {
		return err
	}

	uploads, err := readUploads(args)
	if err != nil {
		return err
	}
	batch, err := ingest.ParseFiles(uploads)
	if err != nil {
		return err
	}
	if len(batch.Records) == 0 {
		return fmt.Errorf("no valid records in %s", strings.Join(batch.Files, ", "))
	}
	if batch.Skipped > 0 {
		slog.Warn("malformed rows skipped", "skipped", batch.Skipped)
	}

	opts, err := screenOptions()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	job := pipeline.Job{Records: batch.Records, Columns: batch.Columns, Files: batch.Files, Options: opts}
	res, err := pipeline.Run(ctx, job, func(progress int, message string) {
		slog.Info(message, "progress", progress)
	})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(screenOpts.outDir, 0755); err != nil {
		return err
	}
	for _, ds := range []export.Dataset{export.DatasetKept, export.DatasetRemoved} {
		file, err := export.Export(res, ds, format)
		if err != nil {
			return err
		}
		path := filepath.Join(screenOpts.outDir, file.Name)
		if err := os.WriteFile(path, file.Data, 0644); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
	}
	fmt.Println(tui.RenderStats(res.Stats))
	return nil
}

func readUploads(paths []string) ([]ingest.Upload, error) {
	uploads := make([]ingest.Upload, 0, len(paths))
	for _, p := range paths {
		if !ingest.IsSupported(p) {
			return nil, fmt.Errorf("unsupported file format: %s (supported: %s)", p, strings.Join(ingest.SupportedExtensions, " "))
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, ingest.Upload{Name: filepath.Base(p), Data: data})
	}
	return uploads, nil
}

func screenOptions() (pipeline.Options, error) {
	bl := cfg.Screening.Blacklists
	if screenOpts.taKeywordsFile != "" {
		terms, err := readKeywords(screenOpts.taKeywordsFile)
		if err != nil {
			return pipeline.Options{}, err
		}
		bl.TitleAbstract = terms
	}
	if screenOpts.journalKeywordsFile != "" {
		terms, err := readKeywords(screenOpts.journalKeywordsFile)
		if err != nil {
			return pipeline.Options{}, err
		}
		bl.Journal = terms
	}

	opts := pipeline.Options{
		Blacklists: bl,
		Dedup:      cfg.Screening.DedupMethod(),
		AI: screening.AIOptions{
			Criteria:    strings.TrimSpace(screenOpts.criteria),
			Verify:      cfg.AI.Verify || screenOpts.verify,
			CallTimeout: cfg.AI.CallTimeout,
			Logger:      slog.Default(),
		},
	}
	if screenOpts.noDedup {
		opts.Dedup = dedup.MethodNone
	}
	if opts.AI.Criteria != "" {
		opts.Delegate = cfg.AI.NewDelegate(screenOpts.apiKey, screenOpts.model)
		if opts.Delegate == nil {
			slog.Info("AI criteria given without an API key, AI stage skipped")
		}
	}
	return opts, nil
}

func readKeywords(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return screening.ParseKeywords(string(data)), nil
}
