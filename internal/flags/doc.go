// Package flags manages command-line flags and environment variables for registry-cleaner.
// It binds the registry connection, image selection, logging and notification settings via Cobra and Viper.
//
// Key components:
//   - RegisterRegistryFlags: Adds registry URL, CA file and timeout flags.
//   - RegisterCleanupFlags: Adds filter, dry-run, force and scheduling flags.
//   - RegisterSystemFlags: Adds logging flags.
//   - RegisterNotificationFlags: Adds notification settings.
//   - RegisterAPIFlags: Adds the HTTP API endpoints, token and address.
//   - ReadConfig: Builds and validates the immutable types.Config.
//
// Usage example:
//
//	cmd := &cobra.Command{}
//	flags.SetDefaults()
//	flags.RegisterRegistryFlags(cmd)
//	cfg, err := flags.ReadConfig(cmd.PersistentFlags())
//	if err != nil {
//	    logrus.WithError(err).Fatal("Invalid configuration")
//	}
//
// Environment variable names are DOCKER_REGISTRY_URL,
// DOCKER_IMAGES_FILTER, DRY_RUN, FORCE, LOGGING_LEVEL and so on.
package flags
