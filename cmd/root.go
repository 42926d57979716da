// Package cmd defines the CLI commands for the seo-crawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/seo-crawler/internal/config"
	"github.com/JakeFAU/seo-crawler/internal/crawler"
	"github.com/JakeFAU/seo-crawler/internal/server"
)

// Service is the application surface the commands drive. It lets tests swap
// in a fake application.
type Service interface {
	Run(ctx context.Context) error
	Crawl(ctx context.Context, job crawler.Job) (crawler.Result, error)
	Close(ctx context.Context) error
}

type cfgKeyType struct{}

// newService is the application factory. It's a variable so tests can replace
// it.
var newService = func(ctx context.Context, cfg config.Config) (Service, error) {
	return server.Build(ctx, cfg)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile, envFile string
	cmd := &cobra.Command{
		Use:   "seo-crawler",
		Short: "SEO-focused web crawler and audit service.",
		Long: `seo-crawler walks a site breadth-first, honoring robots.txt and crawl
delays, extracts page content and scores every page for SEO, performance and
accessibility. Run it as an HTTP service with "serve" or crawl once with "crawl".`,
		SilenceUsage: true,

		// Loads .env and the config file once, before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnvFile(envFile); err != nil {
				return err
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), cfgKeyType{}, cfg))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCrawlCmd())
	return cmd
}

// loadEnvFile loads path into the process environment. A missing file is not
// an error; variables already set win.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func configFrom(ctx context.Context) (config.Config, error) {
	cfg, ok := ctx.Value(cfgKeyType{}).(config.Config)
	if !ok {
		return config.Config{}, errors.New("configuration not loaded")
	}
	return cfg, nil
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		return fmt.Errorf("seo-crawler: %w", err)
	}
	return nil
}
