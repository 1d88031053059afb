package cli

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/stillmind/stillmind/internal/assets"
	"github.com/stillmind/stillmind/internal/source"
)

func newAssetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assets",
		Short: "Inspect and fetch configured sounds",
	}
	cmd.AddCommand(newAssetsListCmd(), newAssetsFetchCmd())
	return cmd
}

func newAssetsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the configured ambience and bell sounds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			catalog, err := a.openCatalog()
			if err != nil {
				return err
			}

			for _, kind := range []source.Kind{source.Ambience, source.Bell} {
				entries := catalog.List(kind)
				cmd.Printf("%s (%d):\n", kind, len(entries))
				for _, e := range entries {
					cmd.Printf("  %-20s %s%s\n", e.ID, e.Source.URI(), lo.Ternary(e.Cached, " (cached)", ""))
				}
			}
			return nil
		},
	}
}

func newAssetsFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch [id...]",
		Short: "Download remote sounds into the local cache",
		Long: `Download the named remote sounds into the local cache. With no
arguments, every remote sound is fetched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			catalog, err := a.openCatalog()
			if err != nil {
				return err
			}

			targets := fetchTargets(catalog, args)
			if len(targets) == 0 {
				cmd.Println("Nothing to fetch")
				return nil
			}

			for _, t := range targets {
				if err := catalog.Fetch(cmd.Context(), t.ID, t.Kind); err != nil {
					return fmt.Errorf("fetch %s: %w", t.ID, err)
				}
				cmd.Printf("Fetched %s\n", t.ID)
			}
			return nil
		},
	}
}

// fetchTargets selects the remote assets to download: the named ones,
// or all of them when no names are given.
func fetchTargets(catalog *assets.Catalog, ids []string) []assets.Asset {
	all := append(catalog.List(source.Ambience), catalog.List(source.Bell)...)
	remote := lo.Filter(all, func(a assets.Asset, _ int) bool {
		_, ok := a.Source.(source.RemoteStream)
		return ok
	})
	if len(ids) == 0 {
		return remote
	}
	wanted := lo.SliceToMap(ids, func(id string) (string, bool) { return id, true })
	return lo.Filter(remote, func(a assets.Asset, _ int) bool { return wanted[a.ID] })
}
