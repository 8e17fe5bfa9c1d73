// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/transcripts"
	"github.com/poiesic/transcripts/config"
	"github.com/poiesic/transcripts/ingestion"
	"github.com/poiesic/transcripts/storage"
)

// systemOptions are appended when opening the system. Tests use it to
// inject a mock provider.
var systemOptions []transcripts.Option

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "transcripts",
		Usage: "Incremental ingestion and search of transcript corpora",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				Value:   config.DefaultPath,
				EnvVars: []string{"TRANSCRIPTS_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Set log output format (text, json)",
				Value: "text",
			},
		},
		Before: func(c *cli.Context) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to load .env: %w", err)
			}
			return setupLogger(c)
		},
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Ingest new and changed transcripts",
				ArgsUsage: "[root...]",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Re-ingest every document regardless of the manifest",
					},
					&cli.IntFlag{
						Name:    "workers",
						Aliases: []string{"w"},
						Usage:   "Number of documents processed concurrently (overrides config)",
					},
					&cli.BoolFlag{
						Name:  "watch",
						Usage: "Keep running and re-ingest when files change",
					},
					&cli.DurationFlag{
						Name:  "debounce",
						Usage: "Quiet period before a watch run starts",
						Value: ingestion.DefaultDebounce,
					},
					&cli.BoolFlag{
						Name:    "quiet",
						Aliases: []string{"q"},
						Usage:   "Do not report progress",
					},
				},
			},
			{
				Name:      "prune",
				Usage:     "Remove vectors and manifest entries of deleted transcripts",
				ArgsUsage: "[root...]",
				Action:    pruneCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Only list stale documents",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Find the passages most similar to a query",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags:     searchFlags(),
			},
			{
				Name:      "ask",
				Usage:     "Answer a question from the ingested transcripts",
				ArgsUsage: "<question>",
				Action:    askCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "top-k",
						Aliases: []string{"k"},
						Usage:   "Number of passages given to the model (overrides config)",
					},
				},
			},
			{
				Name:      "stats",
				Usage:     "Show corpus and index statistics",
				ArgsUsage: "[root...]",
				Action:    statsCommand,
			},
			{
				Name:   "manifest",
				Usage:  "List ingested documents",
				Action: manifestCommand,
			},
			{
				Name:   "init",
				Usage:  "Write a default configuration file",
				Action: initCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "overwrite",
						Usage: "Replace an existing configuration file",
					},
				},
			},
		},
	}
}

func searchFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "top-k",
			Aliases: []string{"k"},
			Usage:   "Number of results (overrides config)",
		},
		&cli.StringFlag{
			Name:  "channel",
			Usage: "Only return passages from this channel",
		},
		&cli.StringFlag{
			Name:  "source",
			Usage: "Only return passages from this document identity",
		},
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch format := strings.ToLower(c.String("log-format")); format {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("invalid log format %q: must be one of text, json", format)
	}
	slog.SetDefault(slog.New(handler))

	return nil
}

func openSystem(c *cli.Context) (*transcripts.System, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	opts := append([]transcripts.Option{transcripts.WithLogger(slog.Default())}, systemOptions...)
	return transcripts.Open(c.Context, cfg, opts...)
}

func ingestCommand(c *cli.Context) error {
	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	roots := sys.Roots(c.Args().Slice())
	opts := []ingestion.Option{ingestion.WithForce(c.Bool("force"))}
	if c.IsSet("workers") {
		opts = append(opts, ingestion.WithPoolSize(c.Int("workers")))
	}
	if !c.Bool("quiet") {
		opts = append(opts, ingestion.WithProgress(c.App.ErrWriter))
	}

	pipeline, err := sys.NewPipeline(opts...)
	if err != nil {
		return err
	}
	defer pipeline.Release()

	if c.Bool("watch") {
		watcher, err := ingestion.NewWatcher(pipeline, roots,
			ingestion.WithDebounce(c.Duration("debounce")),
			ingestion.WithRunHook(func(summary *ingestion.RunSummary, err error) {
				if summary != nil {
					fmt.Fprint(c.App.Writer, summary.String())
				}
			}))
		if err != nil {
			return err
		}
		err = watcher.Watch(c.Context)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	summary, err := pipeline.Run(c.Context, roots)
	if summary != nil {
		fmt.Fprint(c.App.Writer, summary.String())
	}
	if err != nil {
		return err
	}
	if summary.FilesFailed > 0 {
		return cli.Exit(fmt.Sprintf("%d documents failed", summary.FilesFailed), 1)
	}
	return nil
}

func pruneCommand(c *cli.Context) error {
	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	pipeline, err := sys.NewPipeline()
	if err != nil {
		return err
	}
	defer pipeline.Release()

	summary, err := pipeline.Prune(c.Context, sys.Roots(c.Args().Slice()), c.Bool("dry-run"))
	if err != nil {
		return err
	}

	w := c.App.Writer
	if summary.DryRun {
		fmt.Fprintf(w, "%d stale documents\n", len(summary.Stale))
		for _, identity := range summary.Stale {
			fmt.Fprintf(w, "  %s\n", identity)
		}
		return nil
	}
	fmt.Fprintf(w, "Removed %d manifest entries and %s vectors\n",
		summary.EntriesRemoved, humanize.Comma(int64(summary.VectorsDeleted)))
	for _, f := range summary.Failures {
		fmt.Fprintf(w, "  - %s\n", f.Error())
	}
	if len(summary.Failures) > 0 {
		return cli.Exit(fmt.Sprintf("%d documents could not be pruned", len(summary.Failures)), 1)
	}
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return errors.New("search requires a query")
	}

	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	searcher, err := sys.NewSearcher()
	if err != nil {
		return err
	}

	var filter *storage.Filter
	if c.IsSet("channel") || c.IsSet("source") {
		filter = &storage.Filter{Channel: c.String("channel"), Source: c.String("source")}
	}
	topK := sys.Config().Search.TopK
	if c.IsSet("top-k") {
		topK = c.Int("top-k")
	}

	start := time.Now()
	results, err := searcher.Search(c.Context, query, topK, filter)
	if err != nil {
		return err
	}

	w := c.App.Writer
	if len(results) == 0 {
		fmt.Fprintln(w, "No matches.")
		return nil
	}
	for i, m := range results {
		fmt.Fprintf(w, "%d. %s #%d (score %.3f)\n", i+1, m.Metadata.Source, m.Metadata.Sequence, m.Score)
		if m.Metadata.Text != "" {
			fmt.Fprintf(w, "   %s\n", m.Metadata.Text)
		}
	}
	fmt.Fprintf(w, "%d results in %s\n", len(results), time.Since(start).Round(time.Millisecond))
	return nil
}

func askCommand(c *cli.Context) error {
	question := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(question) == "" {
		return errors.New("ask requires a question")
	}

	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	searcher, err := sys.NewSearcher()
	if err != nil {
		return err
	}
	topK := sys.Config().Search.TopK
	if c.IsSet("top-k") {
		topK = c.Int("top-k")
	}

	answer, err := searcher.Ask(c.Context, question, topK)
	if err != nil {
		return err
	}

	w := c.App.Writer
	fmt.Fprintln(w, answer.Text)
	fmt.Fprintln(w, "\nSources:")
	for _, m := range answer.Sources {
		fmt.Fprintf(w, "  - %s #%d\n", m.Metadata.Source, m.Metadata.Sequence)
	}
	return nil
}

func statsCommand(c *cli.Context) error {
	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	stats, err := sys.Stats(c.Context, sys.Roots(c.Args().Slice()))
	if err != nil {
		return err
	}

	w := c.App.Writer
	for _, ch := range stats.Channels {
		name := ch.Channel
		if name == "" {
			name = "(root)"
		}
		fmt.Fprintf(w, "%-30s %6s files %10s words %8s chunks %10s\n", name,
			humanize.Comma(int64(ch.Files)), humanize.Comma(int64(ch.Words)),
			humanize.Comma(int64(ch.Chunks)), humanize.Bytes(uint64(ch.Bytes)))
	}
	fmt.Fprintf(w, "Total: %s files, %s words, %s chunks, %s\n",
		humanize.Comma(int64(stats.Files)), humanize.Comma(int64(stats.Words)),
		humanize.Comma(int64(stats.Chunks)), humanize.Bytes(uint64(stats.Bytes)))
	fmt.Fprintf(w, "Manifest: %s documents\n", humanize.Comma(int64(stats.Manifest)))
	fmt.Fprintf(w, "Index: %s vectors, dimension %d\n", humanize.Comma(stats.Index.VectorCount), stats.Index.Dimension)
	return nil
}

func manifestCommand(c *cli.Context) error {
	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	entries, err := sys.Manifest().Load(c.Context)
	if err != nil {
		return err
	}
	identities := make([]string, 0, len(entries))
	for identity := range entries {
		identities = append(identities, identity)
	}
	slices.Sort(identities)

	w := c.App.Writer
	for _, identity := range identities {
		e := entries[identity]
		_, fp, _ := strings.Cut(e.Fingerprint, ":")
		if len(fp) > 12 {
			fp = fp[:12]
		}
		fmt.Fprintf(w, "%s  %3d chunks  %s  %s\n", fp, e.ChunkCount, humanize.Time(e.LastIngestedAt), identity)
	}
	fmt.Fprintf(w, "%d documents\n", len(identities))
	return nil
}

func initCommand(c *cli.Context) error {
	path := c.String("config")
	if _, err := os.Stat(path); err == nil && !c.Bool("overwrite") {
		return fmt.Errorf("%s already exists, use --overwrite to replace it", path)
	}
	if err := config.Save(path, config.Default()); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Wrote %s\n", path)
	return nil
}
