package actions

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/registry-cleaner/pkg/registry/helpers"
	"github.com/nicholas-fedor/registry-cleaner/pkg/session"
	"github.com/nicholas-fedor/registry-cleaner/pkg/types"
)

// Cleanup deletes every tag matching the configured filters.
//
// Repositories are processed in catalog order and their tags in sorted order.
// A repository whose tags cannot be listed is logged and skipped; its error is
// joined into the returned error once every repository has been processed.
// Tags without a resolvable digest are skipped. In dry-run mode nothing is
// deleted.
//
// Parameters:
//   - ctx: Context for registry requests.
//   - client: Registry client.
//   - cfg: Run configuration.
//
// Returns:
//   - *session.Result: Outcomes, also returned alongside a non-nil error for partial runs.
//   - error: Non-nil if the catalog or any tag list could not be read.
func Cleanup(ctx context.Context, client types.RegistryClient, cfg types.Config) (*session.Result, error) {
	result := session.NewResult()

	repositories, err := client.ListRepositories(ctx, cfg.MaxImages, cfg.ImagesFilter)
	if err != nil {
		return result, fmt.Errorf("%w: %w", errListRepositoriesFailed, err)
	}

	logrus.WithField("count", len(repositories)).Info("💡 Listed matching repositories")

	var errs []error

	for _, repository := range repositories {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)

			break
		}

		if err := cleanupRepository(ctx, client, cfg, repository, result); err != nil {
			errs = append(errs, err)
		}
	}

	return result, errors.Join(errs...)
}

// cleanupRepository processes the tags of one repository.
func cleanupRepository(
	ctx context.Context,
	client types.RegistryClient,
	cfg types.Config,
	repository string,
	result *session.Result,
) error {
	fields := logrus.Fields{
		"repository":  repository,
		"tags_filter": cfg.TagsFilter,
	}

	imageRefs, err := client.ListTags(ctx, repository, cfg.TagsFilter)
	if err != nil {
		logrus.WithError(err).WithFields(fields).Error("Failed to list tags")

		return fmt.Errorf("%w: %s: %w", errListTagsFailed, repository, err)
	}

	result.AddScanned(repository)

	logrus.WithFields(fields).WithField("count", len(imageRefs)).Info("💡 Tags marked for deletion")

	if len(imageRefs) == 0 {
		logrus.WithFields(fields).Warn("🤡 No tags found")

		return nil
	}

	sorted := slices.Clone(imageRefs)
	slices.Sort(sorted)

	for _, imageRef := range sorted {
		cleanupTag(ctx, client, cfg, repository, imageRef, result)
	}

	return nil
}

// cleanupTag resolves and deletes one tag.
func cleanupTag(
	ctx context.Context,
	client types.RegistryClient,
	cfg types.Config,
	repository string,
	imageRef string,
	result *session.Result,
) {
	ref := helpers.SplitImageRef(imageRef)
	fields := logrus.Fields{
		"repository": repository,
		"tag":        ref.Tag,
		"image":      imageRef,
	}

	digest, ok := client.ResolveDigest(ctx, imageRef)
	if !ok {
		logrus.WithFields(fields).Warn("❌ Cannot get digest, skipping")
		result.AddSkipped(imageRef)

		return
	}

	fields["digest"] = digest

	if cfg.DryRun {
		logrus.WithFields(fields).Info("🔫 Deleting image (DRY-RUN)")
		result.AddDryRun(imageRef, digest)

		return
	}

	logrus.WithFields(fields).Info("🔫 Deleting image")

	if client.Delete(ctx, repository, digest) {
		logrus.WithFields(fields).Info("✅ Image deleted")
		result.AddDeleted(imageRef, digest)

		return
	}

	logrus.WithFields(fields).Warn("❌ Image deletion failed")
	result.AddFailed(imageRef, digest)
}
