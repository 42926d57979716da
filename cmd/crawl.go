package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/seo-crawler/internal/crawler"
)

type crawlFlags struct {
	urls     []string
	standard string
	project  string
	maxPages int
	maxDepth int
	mode     string
	output   string
	pretty   bool
	html     bool
}

// newCrawlCmd creates the one-shot 'crawl' subcommand. It runs a single job
// through the full pipeline and prints the result as JSON.
func newCrawlCmd() *cobra.Command {
	var flags crawlFlags
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl a site once and print the result",
		Long: `Runs one crawl job in-process, either from --url seeds or from a named
standard job in the config file. Events still flow to the configured store,
blob archive and publisher. The crawl result is written as JSON to stdout
or --output.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, flags)
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&flags.urls, "url", nil, "seed URL (repeatable)")
	f.StringVar(&flags.standard, "standard", "", "name of a standard job from the config")
	f.StringVar(&flags.project, "project", "", "project ID attached to the job")
	f.IntVar(&flags.maxPages, "max-pages", 0, "maximum pages to crawl (0 uses the default)")
	f.IntVar(&flags.maxDepth, "max-depth", -1, "maximum path depth (-1 uses the default)")
	f.StringVar(&flags.mode, "mode", "", "fetch mode: http, rendered or auto")
	f.StringVarP(&flags.output, "output", "o", "", "write the JSON result to this file")
	f.BoolVar(&flags.pretty, "pretty", false, "indent the JSON output")
	f.BoolVar(&flags.html, "html", false, "include raw page HTML in the output")
	cmd.MarkFlagsMutuallyExclusive("url", "standard")
	return cmd
}

func runCrawl(cmd *cobra.Command, flags crawlFlags) error {
	cfg, err := configFrom(cmd.Context())
	if err != nil {
		return err
	}

	job, err := flags.job(func(name string) (crawler.Job, bool) { return cfg.StandardJob(name) })
	if err != nil {
		return err
	}
	if err := job.Validate(); err != nil {
		return err
	}

	svc, err := newService(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	result, crawlErr := svc.Crawl(cmd.Context(), job)
	closeErr := svc.Close(context.WithoutCancel(cmd.Context()))
	if crawlErr != nil {
		return crawlErr
	}
	if closeErr != nil {
		return fmt.Errorf("close: %w", closeErr)
	}

	if !flags.html {
		for i := range result.Pages {
			result.Pages[i].HTML = ""
		}
	}

	out := cmd.OutOrStdout()
	if flags.output != "" {
		file, err := os.Create(flags.output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer func() { _ = file.Close() }()
		out = file
	}
	return writeResult(out, result, flags.pretty)
}

// job assembles the crawl job from flags, starting from a standard job when
// one is named.
func (f crawlFlags) job(standard func(string) (crawler.Job, bool)) (crawler.Job, error) {
	var job crawler.Job
	switch {
	case f.standard != "":
		found, ok := standard(f.standard)
		if !ok {
			return crawler.Job{}, fmt.Errorf("unknown standard job %q", f.standard)
		}
		job = found
	case len(f.urls) > 0:
		job.URLs = f.urls
	default:
		return crawler.Job{}, errors.New("one of --url or --standard is required")
	}

	if f.project != "" {
		job.ProjectID = f.project
	}
	if f.maxPages > 0 {
		job.MaxPages = f.maxPages
	}
	if f.maxDepth >= 0 {
		depth := f.maxDepth
		job.MaxDepth = &depth
	}
	if f.mode != "" {
		job.Mode = crawler.FetchMode(f.mode)
	}
	return job, nil
}

func writeResult(w io.Writer, result crawler.Result, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}
