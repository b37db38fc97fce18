package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/gh-backup/internal/archive"
	"github.com/randalmurphal/gh-backup/internal/config"
	"github.com/randalmurphal/gh-backup/internal/errors"
	"github.com/randalmurphal/gh-backup/internal/export"
	"github.com/randalmurphal/gh-backup/internal/git"
	"github.com/randalmurphal/gh-backup/internal/github"
	"github.com/randalmurphal/gh-backup/internal/retry"
)

// newExportCmd creates the export command
func newExportCmd() *cobra.Command {
	var noCompress bool

	cfg := config.Default()

	cmd := &cobra.Command{
		Use:   "export <account>",
		Short: "Back up all repositories of an organization or user",
		Long: `Export mirrors every repository of the account into bare clones under a
timestamped directory, exports issues and pull requests as JSON, and
compresses the result into a single archive.

Examples:
  gh-backup export my-org
  gh-backup export my-org -o /backups -w 8 --format xz
  gh-backup export me -t user --skip-forks --visibility public
  gh-backup export my-org -r api -r web --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if path := configPath(); path != "" {
				loaded, err := config.Load(path)
				if err != nil {
					return Exitf(1, err)
				}
				overlayUnsetFlags(cmd, loaded, cfg)
			}
			cfg.Account = args[0]
			if noCompress {
				cfg.Compress = false
			}
			if err := cfg.Validate(); err != nil {
				return Exitf(1, err)
			}
			return runExport(cfg)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&cfg.OutputDir, "output", "o", cfg.OutputDir, "directory for export output")
	f.IntVarP(&cfg.Workers, "workers", "w", cfg.Workers, "concurrent repository workers (1-32)")
	f.StringVarP((*string)(&cfg.AccountType), "type", "t", string(cfg.AccountType), "account type: auto, org, or user")
	f.StringArrayVarP(&cfg.OnlyRepos, "repos", "r", nil, "export only the named repositories (repeatable)")
	f.BoolVar(&cfg.SkipForks, "skip-forks", cfg.SkipForks, "exclude forked repositories")
	f.BoolVar(&cfg.SkipArchived, "skip-archived", cfg.SkipArchived, "exclude archived repositories")
	f.StringVar((*string)(&cfg.Visibility), "visibility", string(cfg.Visibility), "restrict to public or private repositories")
	f.BoolVar(&cfg.Shallow, "shallow", cfg.Shallow, "shallow mirrors (--depth 1)")
	f.BoolVar(&cfg.GC, "gc", cfg.GC, "run git gc --aggressive on each clone")
	f.BoolVar(&cfg.SkipIssues, "skip-issues", cfg.SkipIssues, "skip issue and pull request export")
	f.BoolVar(&noCompress, "no-compress", false, "leave the export directory uncompressed")
	f.StringVar(&cfg.Format, "format", cfg.Format, "archive format: zst, gz, or xz")
	f.BoolVar(&cfg.KeepDir, "keep-dir", cfg.KeepDir, "keep the uncompressed directory after archiving")
	f.BoolVar(&cfg.KeepPartial, "keep-partial", cfg.KeepPartial, "keep a partially written archive after failure")
	f.BoolVar(&cfg.Verify, "verify", cfg.Verify, "re-read the archive after writing to check integrity")
	f.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "list the repositories that would be exported, then exit")

	return cmd
}

// configPath returns the config file to overlay, or "" for none.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(home, ".config", "gh-backup", "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// overlayUnsetFlags copies file-backed settings into cfg for every flag
// the user did not set on the command line. Flags always win over file.
func overlayUnsetFlags(cmd *cobra.Command, file, cfg *config.Config) {
	set := func(name string) bool { return cmd.Flags().Changed(name) }
	if !set("output") && file.OutputDir != "" {
		cfg.OutputDir = file.OutputDir
	}
	if !set("workers") && file.Workers != 0 {
		cfg.Workers = file.Workers
	}
	if !set("type") && file.AccountType != "" {
		cfg.AccountType = file.AccountType
	}
	if !set("skip-forks") {
		cfg.SkipForks = file.SkipForks
	}
	if !set("skip-archived") {
		cfg.SkipArchived = file.SkipArchived
	}
	if !set("visibility") && file.Visibility != "" {
		cfg.Visibility = file.Visibility
	}
	if !set("shallow") {
		cfg.Shallow = file.Shallow
	}
	if !set("gc") {
		cfg.GC = file.GC
	}
	if !set("skip-issues") {
		cfg.SkipIssues = file.SkipIssues
	}
	if !set("no-compress") {
		cfg.Compress = file.Compress
	}
	if !set("format") && file.Format != "" {
		cfg.Format = file.Format
	}
	if !set("keep-dir") {
		cfg.KeepDir = file.KeepDir
	}
	if !set("keep-partial") {
		cfg.KeepPartial = file.KeepPartial
	}
	if !set("verify") {
		cfg.Verify = file.Verify
	}
	cfg.Retry = file.Retry
}

func runExport(cfg *config.Config) error {
	log := slog.Default()

	format, err := archive.ParseFormat(cfg.Format)
	if err != nil {
		return Exitf(1, err)
	}

	auth, err := github.CheckAuth()
	if err != nil {
		return Exitf(1, err)
	}
	if !auth.LoggedIn {
		return Exitf(1, fmt.Errorf("not logged in to GitHub; run 'gh auth login' first"))
	}
	for _, warning := range auth.MissingScopeWarnings() {
		log.Warn(warning)
	}
	token, err := github.Token()
	if err != nil {
		return Exitf(1, err)
	}

	client, err := github.NewClient(token, "")
	if err != nil {
		return Exitf(1, err)
	}

	ctx, cancel := SetupSignalHandler()
	defer cancel()

	accountType := cfg.AccountType
	if accountType == config.AccountAuto {
		accountType, err = client.ResolveAccountType(ctx, cfg.Account)
		if err != nil {
			if errors.IsCancelled(err) {
				return Exit(130)
			}
			return Exitf(1, redacted(err, token))
		}
		log.Debug("resolved account type", "account", cfg.Account, "type", accountType)
	}

	repos, err := client.ListRepos(ctx, cfg.Account, accountType)
	if err != nil {
		if errors.IsCancelled(err) {
			return Exit(130)
		}
		return Exitf(1, redacted(err, token))
	}
	repos, err = export.FilterRepos(repos, cfg)
	if err != nil {
		return Exitf(1, err)
	}
	log.Info("repositories selected", "account", cfg.Account, "count", len(repos))

	if cfg.DryRun {
		printDryRun(cfg.Account, repos)
		return nil
	}

	exportDir := filepath.Join(cfg.OutputDir, fmt.Sprintf("%s-%s", cfg.Account, time.Now().Format("20060102-150405")))
	if err := os.MkdirAll(filepath.Join(exportDir, "repos"), 0o755); err != nil {
		return Exitf(1, fmt.Errorf("create output directory: %w", err))
	}

	meta := export.NewMetadata(Version, cfg.Account, accountType, repos, cfg)
	if err := meta.Write(exportDir); err != nil {
		return Exitf(1, err)
	}

	runner, err := retry.New(retry.Policy{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: cfg.Retry.InitialDelay,
		Multiplier:   cfg.Retry.Multiplier,
		Jitter:       cfg.Retry.Jitter,
		MaxDelay:     cfg.Retry.MaxDelay,
	})
	if err != nil {
		return Exitf(1, err)
	}

	cloner := git.NewCloner(nil, token)
	worker := export.NewWorker(cfg.Account, cloner, client, runner, cfg, log)
	coord := export.NewCoordinator(worker, cfg.Workers, log)
	if isatty.IsTerminal(os.Stderr.Fd()) {
		coord.OnOutcome = func(out export.Outcome, finished, total int) {
			fmt.Fprintf(os.Stderr, "[%d/%d] %s: %s\n", finished, total, out.Repo, out.Status)
		}
	}

	summary := coord.Run(ctx, cfg.Account, accountType, export.BuildJobs(repos, exportDir))

	meta.Finalize(summary)
	if err := meta.Write(exportDir); err != nil {
		log.Error("write final metadata", "error", errors.Redact(err.Error(), token))
	}

	printSummary(summary)

	done, _, _, _ := summary.Counts()
	if cfg.Compress && ctx.Err() == nil {
		if err := compressExport(ctx, exportDir, format, cfg, log); err != nil {
			return Exitf(1, redacted(err, token))
		}
	}

	if ctx.Err() != nil && done == 0 {
		return Exit(130)
	}
	if code := summary.Overall().ExitCode(); code != 0 {
		return Exit(code)
	}
	return nil
}

// compressExport archives exportDir, optionally verifies the result, and
// removes the staging directory unless it is configured to stay.
func compressExport(ctx context.Context, exportDir string, format archive.Format, cfg *config.Config, log *slog.Logger) error {
	archivePath := exportDir + format.Suffix()
	log.Info("writing archive", "path", archivePath)
	if err := archive.Compress(ctx, exportDir, archivePath, archive.Options{
		Format:      format,
		KeepPartial: cfg.KeepPartial,
	}); err != nil {
		return err
	}
	if cfg.Verify {
		entries, err := archive.Verify(archivePath)
		if err != nil {
			return err
		}
		log.Info("archive verified", "entries", entries)
	}
	if !cfg.KeepDir {
		if err := os.RemoveAll(exportDir); err != nil {
			log.Warn("remove staging directory", "error", err)
		}
	}
	fmt.Printf("Archive written to %s\n", archivePath)
	return nil
}

func printDryRun(account string, repos []github.Repo) {
	fmt.Printf("Would export %d repositories from %s:\n", len(repos), account)
	for _, r := range repos {
		tags := ""
		if r.Private {
			tags += " [private]"
		}
		if r.Fork {
			tags += " [fork]"
		}
		if r.Archived {
			tags += " [archived]"
		}
		size := ""
		if r.DiskUsageKB > 0 {
			size = fmt.Sprintf(" (%d KB)", r.DiskUsageKB)
		}
		fmt.Printf("  %s%s%s\n", r.Name, tags, size)
	}
}

func printSummary(s *export.Summary) {
	done, failed, cancelled, skipped := s.Counts()
	for _, out := range s.Failed() {
		if out.Error != "" {
			fmt.Fprintf(os.Stderr, "  %s: %s (%s)\n", out.Repo, out.Status, out.Error)
		} else {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", out.Repo, out.Status)
		}
	}
	issues, pulls := s.IssueTotals()
	fmt.Printf("%s: %d done, %d failed, %d cancelled, %d skipped (%d issues, %d pull requests)\n",
		s.Overall(), done, failed, cancelled, skipped, issues, pulls)
}

// redacted makes sure the auth token never reaches an error surface.
func redacted(err error, token string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s", errors.Redact(err.Error(), token))
}
