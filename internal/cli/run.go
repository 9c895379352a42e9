package cli

import (
	"context"
	"errors"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/kodidev/kodidev/internal/addon"
	"github.com/kodidev/kodidev/internal/config"
	"github.com/kodidev/kodidev/internal/display"
	"github.com/kodidev/kodidev/internal/env"
	"github.com/kodidev/kodidev/internal/nav"
	"github.com/kodidev/kodidev/internal/repo"
	"github.com/kodidev/kodidev/internal/sandbox"
)

var (
	runContentType string
	runDetailed    bool
	runNoCrop      bool
	runPreselect   []int
	runRemoteRepos []string
	runLocalRepos  []string
	runCacheDir    string
	runCleanSlate  bool
	runSingleShot  bool
)

var runCmd = &cobra.Command{
	Use:   "run <addon-id>",
	Short: "Run an addon interactively",
	Long: `Run resolves the addon and its dependencies, starts it in a sandboxed
worker process, and walks its directory listings on the terminal. An
empty answer at any listing ends the session.`,
	Args: cobra.ExactArgs(1),
	RunE: runAddon,
}

func init() {
	runCmd.Flags().StringVar(&runContentType, "content-type", "", "content type passed to the addon on the first invocation (e.g. video, audio)")
	runCmd.Flags().BoolVar(&runDetailed, "detailed", false, "show full item details instead of the compact listing")
	runCmd.Flags().BoolVar(&runNoCrop, "no-crop", false, "do not trim listing lines to the terminal width")
	runCmd.Flags().IntSliceVar(&runPreselect, "preselect", nil, "entry indexes to choose automatically, one per listing")
	runCmd.Flags().StringSliceVar(&runRemoteRepos, "remote-repos", nil, "remote repository mirrors, in priority order")
	runCmd.Flags().StringSliceVar(&runLocalRepos, "local-repos", nil, "local directories scanned for addons before the cache")
	runCmd.Flags().StringVar(&runCacheDir, "cache-dir", "", "addon cache directory")
	runCmd.Flags().BoolVar(&runCleanSlate, "clean-slate", false, "discard the cache before starting")
	runCmd.Flags().BoolVar(&runSingleShot, "single-shot", false, "spawn a fresh worker for every invocation")
}

func runAddon(cmd *cobra.Command, args []string) error {
	id := args[0]
	log := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	environment, err := newEnvironment(cfg, log, runCacheDir, runCleanSlate)
	if err != nil {
		return err
	}
	defer environment.Close()

	local, err := newLocalRepo(ctx, cfg, log, environment, runRemoteRepos, runLocalRepos)
	if err != nil {
		return err
	}

	// Resolve eagerly so language packs are available for $LOCALIZE
	// before the first listing renders.
	root, err := local.Request(ctx, id)
	if err != nil {
		return err
	}
	deps, err := local.LoadDependencies(ctx, root)
	if err != nil {
		return err
	}

	console := display.NewConsole(log, display.Options{
		Detailed: runDetailed,
		NoCrop:   runNoCrop,
		Localize: localizeFunc(log, deps),
	})

	reuse := cfg.Worker.Reuse && !runSingleShot
	pool := sandbox.NewPool(environment, log, local, console, reuse)
	defer pool.Close()

	start := &url.URL{Scheme: "plugin", Host: id, Path: "/"}
	if runContentType != "" {
		start.RawQuery = url.Values{"content_type": {runContentType}}.Encode()
	}

	loop := nav.NewLoop(pool, console, log, runPreselect)
	if err := loop.Run(ctx, start); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newEnvironment(cfg *config.Config, log hclog.Logger, cacheDir string, cleanSlate bool) (*env.Environment, error) {
	if cacheDir == "" {
		cacheDir = cfg.CacheDir
	}
	return env.New(env.Options{
		CacheRoot:  cacheDir,
		BundledDir: cfg.BundledDir,
		CleanSlate: cleanSlate,
	}, log)
}

func newLocalRepo(ctx context.Context, cfg *config.Config, log hclog.Logger, environment *env.Environment, mirrors, localDirs []string) (*repo.LocalRepo, error) {
	if len(mirrors) == 0 {
		mirrors = cfg.Mirrors
	}
	maxAge := time.Duration(cfg.Catalog.MaxAge) * time.Second
	remote := repo.NewRemote(environment, log, mirrors, maxAge)
	return repo.NewLocal(environment, log, remote, localDirs)
}

// localizeFunc finds a language pack among the resolved dependencies and
// exposes its string table for $LOCALIZE tags.
func localizeFunc(log hclog.Logger, deps []*addon.Addon) display.Localize {
	for _, a := range deps {
		if a.Type != addon.ExtLanguage {
			continue
		}
		if err := a.EnsureLoaded(); err != nil {
			log.Warn("could not load language pack", "addon", a.ID, "error", err)
			continue
		}
		return a.LocalizedString
	}
	return nil
}
