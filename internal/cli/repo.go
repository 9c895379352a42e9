package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kodidev/kodidev/internal/config"
)

var (
	repoRemoteRepos []string
	repoLocalRepos  []string
	repoCacheDir    string
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Manage the addon cache",
}

var repoUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Refresh the catalog and update cached addons",
	Long: `Update fetches the catalog from each mirror and re-downloads any cached
addon for which a newer version is available, regardless of how fresh
the catalog sentinel is.`,
	RunE: repoUpdate,
}

var repoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached addons",
	RunE:  repoList,
}

func init() {
	for _, cmd := range []*cobra.Command{repoUpdateCmd, repoListCmd} {
		cmd.Flags().StringSliceVar(&repoRemoteRepos, "remote-repos", nil, "remote repository mirrors, in priority order")
		cmd.Flags().StringSliceVar(&repoLocalRepos, "local-repos", nil, "local directories scanned for addons before the cache")
		cmd.Flags().StringVar(&repoCacheDir, "cache-dir", "", "addon cache directory")
	}
	repoCmd.AddCommand(repoUpdateCmd)
	repoCmd.AddCommand(repoListCmd)
}

func repoUpdate(cmd *cobra.Command, args []string) error {
	log := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	environment, err := newEnvironment(cfg, log, repoCacheDir, false)
	if err != nil {
		return err
	}
	defer environment.Close()

	local, err := newLocalRepo(ctx, cfg, log, environment, repoRemoteRepos, repoLocalRepos)
	if err != nil {
		return err
	}

	remote := local.Remote()
	if err := remote.Refresh(ctx, local.Cached()); err != nil {
		return err
	}

	fmt.Printf("%d addons cached\n", len(local.Cached()))
	return nil
}

func repoList(cmd *cobra.Command, args []string) error {
	log := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	environment, err := newEnvironment(cfg, log, repoCacheDir, false)
	if err != nil {
		return err
	}
	defer environment.Close()

	local, err := newLocalRepo(ctx, cfg, log, environment, repoRemoteRepos, repoLocalRepos)
	if err != nil {
		return err
	}

	cached := local.Cached()
	if len(cached) == 0 {
		fmt.Println("No addons cached.")
		return nil
	}

	ids := make([]string, 0, len(cached))
	for id := range cached {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	table := NewTable([]string{"ID", "Version", "Type", "Name"})
	table.SetColumnMaxWidth(3, 40)
	for _, id := range ids {
		a := cached[id]
		table.AddRow([]string{a.ID, a.Version, a.Type, a.Name})
	}
	fmt.Print(table.Render())
	return nil
}
