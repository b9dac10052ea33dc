package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nicholas-fedor/registry-cleaner/internal/flags"
	"github.com/nicholas-fedor/registry-cleaner/pkg/registry"
	"github.com/nicholas-fedor/registry-cleaner/pkg/types"
)

// newListCommand creates the list subcommand.
func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the images selected by the current filters",
		Long:  "Lists the repositories and tags the filters select, one repository:tag per line, without resolving digests or deleting.",
		RunE:  runList,
		Args:  cobra.NoArgs,
	}
}

// runList prints the selected image references.
func runList(cmd *cobra.Command, _ []string) error {
	cfg, err := flags.ReadConfig(cmd.Root().PersistentFlags())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	client, err := registry.New(ctx, cfg.RegistryURL, cfg.CAFile, cfg.Timeout)
	if err != nil {
		return err
	}
	defer client.Close()

	return listImages(ctx, client, cfg, cmd.OutOrStdout())
}

// listImages writes every selected "repository:tag" to out.
//
// Repositories whose tags cannot be listed are logged and skipped.
func listImages(ctx context.Context, client types.RegistryClient, cfg types.Config, out io.Writer) error {
	repositories, err := client.ListRepositories(ctx, cfg.MaxImages, cfg.ImagesFilter)
	if err != nil {
		return err
	}

	for _, repository := range repositories {
		tags, err := client.ListTags(ctx, repository, cfg.TagsFilter)
		if err != nil {
			logrus.WithError(err).WithField("repository", repository).Warn("Failed to list tags")

			continue
		}

		for _, tag := range tags {
			if _, err := fmt.Fprintln(out, tag); err != nil {
				return fmt.Errorf("failed to write image list: %w", err)
			}
		}
	}

	return nil
}
