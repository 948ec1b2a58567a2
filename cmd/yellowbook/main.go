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
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/yellowbook"
	"github.com/poiesic/yellowbook/ai"
	"github.com/poiesic/yellowbook/core"
	"github.com/poiesic/yellowbook/ingestion"
	"github.com/poiesic/yellowbook/reembed"
	"github.com/urfave/cli/v2"
)

const closeLogKey = "closeLog"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	defaults := ai.DefaultConfig()
	return &cli.App{
		Name:     "yellowbook",
		Usage:    "Natural-language search over a business directory",
		Metadata: map[string]interface{}{},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory",
				Value:   "./yellowbook_db",
				EnvVars: []string{"YELLOWBOOK_DB"},
			},
			&cli.StringFlag{
				Name:    "postgres",
				Usage:   "PostgreSQL connection string; stores records there instead of BadgerDB",
				EnvVars: []string{"YELLOWBOOK_POSTGRES_URL"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"YELLOWBOOK_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-file",
				Usage:   "Also write JSON logs to this file",
				EnvVars: []string{"YELLOWBOOK_LOG_FILE"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load environment variables from this file",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:    "backend",
				Usage:   "AI client backend (langchain, ollama, openai)",
				Value:   defaults.Backend,
				EnvVars: []string{"YELLOWBOOK_BACKEND"},
			},
			&cli.StringFlag{
				Name:    "host",
				Usage:   "Host URL for both embedding and completion services",
				EnvVars: []string{"YELLOWBOOK_HOST"},
			},
			&cli.StringFlag{
				Name:    "embedding-host",
				Usage:   "Embedding service host URL",
				Value:   defaults.EmbeddingHost,
				EnvVars: []string{"YELLOWBOOK_EMBEDDING_HOST"},
			},
			&cli.StringFlag{
				Name:    "completion-host",
				Usage:   "Completion service host URL",
				Value:   defaults.CompletionHost,
				EnvVars: []string{"YELLOWBOOK_COMPLETION_HOST"},
			},
			&cli.StringFlag{
				Name:    "embedding-model",
				Usage:   "Embedding model name",
				Value:   defaults.EmbeddingModel,
				EnvVars: []string{"YELLOWBOOK_EMBEDDING_MODEL"},
			},
			&cli.StringFlag{
				Name:    "completion-model",
				Usage:   "Completion model name",
				Value:   defaults.CompletionModel,
				EnvVars: []string{"YELLOWBOOK_COMPLETION_MODEL"},
			},
			&cli.IntFlag{
				Name:    "dimension",
				Usage:   "Embedding vector dimension",
				Value:   defaults.Dimension,
				EnvVars: []string{"YELLOWBOOK_DIMENSION"},
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "API key for hosted providers",
				EnvVars: []string{"YELLOWBOOK_API_KEY", "OPENAI_API_KEY"},
			},
			&cli.DurationFlag{
				Name:    "request-timeout",
				Usage:   "Timeout for a single provider call",
				Value:   defaults.RequestTimeout,
				EnvVars: []string{"YELLOWBOOK_REQUEST_TIMEOUT"},
			},
		},
		Before: func(c *cli.Context) error {
			if err := loadEnvFile(c); err != nil {
				return err
			}
			return setupLogger(c)
		},
		After: func(c *cli.Context) error {
			if closeLog, ok := c.App.Metadata[closeLogKey].(func() error); ok {
				return closeLog()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "add",
				Usage:  "Add a business to the directory",
				Action: addCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "Business name", Required: true},
					&cli.StringFlag{Name: "description", Usage: "What the business does", Required: true},
					&cli.StringSliceFlag{Name: "category", Usage: "Category (repeatable)", Required: true},
					&cli.StringFlag{Name: "street", Usage: "Street address"},
					&cli.StringFlag{Name: "city", Usage: "City", Required: true},
					&cli.StringFlag{Name: "state", Usage: "State or region"},
					&cli.StringFlag{Name: "postal-code", Usage: "Postal code"},
					&cli.StringFlag{Name: "country", Usage: "Country"},
					&cli.StringFlag{Name: "phone", Usage: "Phone number"},
					&cli.StringFlag{Name: "email", Usage: "Email address"},
					&cli.StringFlag{Name: "website", Usage: "Website URL"},
				},
			},
			{
				Name:      "seed",
				Usage:     "Add every business in a JSON file",
				ArgsUsage: "<file.json>",
				Action:    seedCommand,
			},
			{
				Name:      "search",
				Usage:     "Ask a question about the directory",
				ArgsUsage: "<question>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "city", Usage: "Only consider businesses in this city"},
				},
			},
			{
				Name:   "worker",
				Usage:  "Run the embedding job worker",
				Action: workerCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "concurrency",
						Usage:   "Number of jobs processed at once",
						Value:   1,
						EnvVars: []string{"YELLOWBOOK_CONCURRENCY"},
					},
					&cli.BoolFlag{
						Name:  "once",
						Usage: "Process the jobs that are due and exit",
					},
				},
			},
			{
				Name:   "backfill",
				Usage:  "Embed businesses that have no vector",
				Action: backfillCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "direct",
						Usage: "Embed in this process instead of enqueueing jobs",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of records to process in each batch",
						Value: reembed.DefaultBatchSize,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N records",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
			{
				Name:   "jobs",
				Usage:  "List embedding jobs in a state",
				Action: jobsCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "state",
						Usage: "Job state (enqueued, processing, retrying, completed, dead-lettered)",
						Value: core.JobStateDeadLettered.String(),
					},
				},
			},
			{
				Name:      "replay",
				Usage:     "Return a dead-lettered job to the queue",
				ArgsUsage: "<job-id>",
				Action:    replayCommand,
			},
		},
	}
}

// loadEnvFile reads the env file and applies its values to flags that
// were not given on the command line. A missing default file is ignored.
func loadEnvFile(c *cli.Context) error {
	path := c.String("env-file")
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !c.IsSet("env-file") {
			return nil
		}
		return fmt.Errorf("failed to load env file: %w", err)
	}

	for _, flag := range c.App.Flags {
		envFlag, ok := flag.(cli.DocGenerationFlag)
		if !ok {
			continue
		}
		name := flag.Names()[0]
		if c.IsSet(name) {
			continue
		}
		for _, env := range envFlag.GetEnvVars() {
			if value, ok := os.LookupEnv(env); ok {
				if err := c.Set(name, value); err != nil {
					return fmt.Errorf("invalid value for %s from %s: %w", name, env, err)
				}
				break
			}
		}
	}
	return nil
}

func setupLogger(c *cli.Context) error {
	level, err := parseLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(c.App.ErrWriter, c.String("log-file"), level)
	if err != nil {
		return err
	}
	c.App.Metadata[closeLogKey] = closeLog
	slog.SetDefault(logger)
	return nil
}

func aiConfig(c *cli.Context) *ai.Config {
	embeddingHost, completionHost := c.String("embedding-host"), c.String("completion-host")
	if c.IsSet("host") {
		if !c.IsSet("embedding-host") {
			embeddingHost = c.String("host")
		}
		if !c.IsSet("completion-host") {
			completionHost = c.String("host")
		}
	}
	return ai.NewConfig(
		ai.WithBackend(c.String("backend")),
		ai.WithEmbeddingHost(embeddingHost),
		ai.WithCompletionHost(completionHost),
		ai.WithEmbeddingModel(c.String("embedding-model")),
		ai.WithCompletionModel(c.String("completion-model")),
		ai.WithDimension(c.Int("dimension")),
		ai.WithAPIKey(c.String("api-key")),
		ai.WithRequestTimeout(c.Duration("request-timeout")),
	)
}

func openDirectory(c *cli.Context, opts ...yellowbook.DirectoryOption) (*yellowbook.Directory, error) {
	config := aiConfig(c)
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}

	opts = append([]yellowbook.DirectoryOption{
		yellowbook.WithAIConfig(config),
		yellowbook.WithLogger(slog.Default()),
	}, opts...)
	if url := c.String("postgres"); url != "" {
		opts = append(opts, yellowbook.WithPostgres(url))
	}

	d, err := yellowbook.NewDirectory(c.Context, c.String("db"), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open directory: %w", err)
	}
	return d, nil
}

func addCommand(c *cli.Context) error {
	d, err := openDirectory(c)
	if err != nil {
		return err
	}
	defer d.Close()

	record, err := d.CreateRecord(c.Context, core.RecordFields{
		Name:        c.String("name"),
		Description: c.String("description"),
		Categories:  c.StringSlice("category"),
		Address: core.Address{
			Street:     c.String("street"),
			City:       c.String("city"),
			State:      c.String("state"),
			PostalCode: c.String("postal-code"),
			Country:    c.String("country"),
		},
		Contact: core.Contact{
			Phone:   c.String("phone"),
			Email:   c.String("email"),
			Website: c.String("website"),
		},
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(c.App.Writer, record.Id)
	return nil
}

func seedCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("seed requires exactly one file argument")
	}
	records, err := readSeedFile(c.Args().First())
	if err != nil {
		return err
	}

	d, err := openDirectory(c)
	if err != nil {
		return err
	}
	defer d.Close()

	added, rejected := 0, 0
	for i, fields := range records {
		if _, err := d.CreateRecord(c.Context, fields); err != nil {
			if !core.IsValidationError(err) {
				return fmt.Errorf("seed record %d: %w", i, err)
			}
			slog.Warn("skipping invalid record", "index", i, "name", fields.Name, "err", err)
			rejected++
			continue
		}
		added++
	}

	fmt.Fprintf(c.App.Writer, "Seeded %d records (%d rejected)\n", added, rejected)
	return nil
}

func searchCommand(c *cli.Context) error {
	question := strings.Join(c.Args().Slice(), " ")

	d, err := openDirectory(c)
	if err != nil {
		return err
	}
	defer d.Close()

	result, err := d.Search(c.Context, question, c.String("city"))
	if err != nil {
		return err
	}

	w := c.App.Writer
	fmt.Fprintln(w, result.Answer)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Found %d businesses (%s)\n", len(result.Businesses), result.Mode)
	for i, b := range result.Businesses {
		fmt.Fprintf(w, "%d: %s, %s [%0.3f]\n", i+1, b.Record.Name, b.Record.Address.City, b.Relevance)
	}
	return nil
}

func workerCommand(c *cli.Context) error {
	d, err := openDirectory(c,
		yellowbook.WithPipelineOptions(ingestion.WithConcurrency(c.Int("concurrency"))))
	if err != nil {
		return err
	}
	defer d.Close()

	if c.Bool("once") {
		if _, err := d.Jobs().RecoverProcessing(c.Context, time.Now().UTC()); err != nil {
			return err
		}
		outcomes, err := d.Pipeline().ProcessOnce(c.Context)
		for _, o := range outcomes {
			line := fmt.Sprintf("%d\t%s\tattempt %d", o.JobID, o.State, o.Attempt)
			if o.Err != nil {
				line += "\t" + o.Err.Error()
			}
			fmt.Fprintln(c.App.Writer, line)
		}
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.Pipeline().Start(ctx); err != nil {
		return err
	}
	slog.Info("worker started", "concurrency", c.Int("concurrency"))
	<-ctx.Done()
	d.Pipeline().Stop()
	slog.Info("worker stopped")
	return nil
}

func backfillCommand(c *cli.Context) error {
	config := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
		Direct:         c.Bool("direct"),
	}

	// Validate config
	if config.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if config.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if config.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	d, err := openDirectory(c)
	if err != nil {
		return err
	}
	defer d.Close()

	backfiller, err := d.NewBackfiller(config, c.App.ErrWriter)
	if err != nil {
		return err
	}
	summary, err := backfiller.Run(c.Context)
	if err != nil {
		return fmt.Errorf("backfill failed: %w", err)
	}

	if config.Direct {
		fmt.Fprintf(c.App.Writer, "Embedded %d of %d records\n", summary.Embedded, summary.Pending)
	} else {
		fmt.Fprintf(c.App.Writer, "Enqueued %d jobs (%d already pending) for %d records\n",
			summary.Enqueued, summary.Coalesced, summary.Pending)
	}
	return nil
}

func jobsCommand(c *cli.Context) error {
	state, ok := core.ParseJobState(c.String("state"))
	if !ok {
		return fmt.Errorf("unknown job state %q", c.String("state"))
	}

	d, err := openDirectory(c)
	if err != nil {
		return err
	}
	defer d.Close()

	jobs, err := d.Jobs().ListJobs(c.Context, state)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		fmt.Fprintf(c.App.Writer, "%d\t%s\t%s\tattempt %d\t%s\n",
			job.Id, job.State, job.RecordId, job.Attempt, job.LastError)
	}
	return nil
}

func replayCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("replay requires exactly one job id")
	}
	id, err := strconv.ParseUint(c.Args().First(), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid job id %q: %w", c.Args().First(), err)
	}

	d, err := openDirectory(c)
	if err != nil {
		return err
	}
	defer d.Close()

	job, err := d.ReplayJob(c.Context, core.ID(id))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Replayed job %d for record %s\n", job.Id, job.RecordId)
	return nil
}
