package flags

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	cerrdefs "github.com/containerd/errdefs"

	"github.com/nicholas-fedor/registry-cleaner/internal/scheduling"
	"github.com/nicholas-fedor/registry-cleaner/internal/util"
	"github.com/nicholas-fedor/registry-cleaner/pkg/filters"
	"github.com/nicholas-fedor/registry-cleaner/pkg/registry"
	"github.com/nicholas-fedor/registry-cleaner/pkg/types"
)

// defaultMaxImages caps the catalog listing unless configured.
const defaultMaxImages = 1000

// defaultAPIPort is the port of the HTTP API unless configured.
const defaultAPIPort = "8080"

// defaultTimeoutSeconds bounds connection setup and requests unless configured.
const defaultTimeoutSeconds = 3

// ErrInvalidConfig indicates a flag or environment value that cannot be used.
var ErrInvalidConfig = fmt.Errorf("invalid configuration: %w", cerrdefs.ErrInvalidArgument)

// errInvalidLogFormat indicates an unsupported log format.
var errInvalidLogFormat = errors.New("invalid log format specified")

// errInvalidLogLevel indicates an unsupported log level.
var errInvalidLogLevel = errors.New("invalid log level specified")

// errOpenFileFailed indicates a secret file could not be opened.
var errOpenFileFailed = errors.New("failed to open secret file")

// errCloseFileFailed indicates a secret file could not be closed.
var errCloseFileFailed = errors.New("failed to close secret file")

// errReplaceSliceFailed indicates a slice flag could not be rewritten.
var errReplaceSliceFailed = errors.New("failed to replace slice value in flag")

// errReadFileFailed indicates a secret file could not be read.
var errReadFileFailed = errors.New("failed to read secret file")

// errSetFlagFailed indicates a flag could not be read or set.
var errSetFlagFailed = errors.New("failed to set flag value")

// errInvalidFlagName indicates a lookup of an undefined flag.
var errInvalidFlagName = errors.New("invalid flag name provided")

// errNotSliceValue indicates a slice operation on a scalar flag.
var errNotSliceValue = errors.New("flag does not support slice values")

// RegisterRegistryFlags adds the flags describing the registry connection.
func RegisterRegistryFlags(rootCmd *cobra.Command) {
	flags := rootCmd.PersistentFlags()

	flags.StringP(
		"registry-url",
		"r",
		envString("DOCKER_REGISTRY_URL"),
		"Registry base URL, must start with https://")

	flags.String(
		"ca-file",
		envString("DOCKER_REGISTRY_CA_FILE"),
		"PEM bundle trusted instead of the system certificate authorities")

	flags.IntP(
		"timeout",
		"t",
		envInt("HTTP_CONNECTION_TIMEOUT"),
		"Connection and read timeout (in seconds)")
}

// RegisterCleanupFlags adds the flags that select and delete images.
func RegisterCleanupFlags(rootCmd *cobra.Command) {
	flags := rootCmd.PersistentFlags()

	flags.StringP(
		"images-filter",
		"i",
		envString("DOCKER_IMAGES_FILTER"),
		"Regular expression selecting repositories")

	flags.StringP(
		"tags-filter",
		"f",
		envString("DOCKER_TAGS_FILTER"),
		"Regular expression selecting tags")

	flags.IntP(
		"max-images",
		"n",
		envInt("IMAGE_LIST_NBR_MAX"),
		"Maximum number of repositories requested from the catalog")

	flags.String(
		"dry-run",
		envString("DRY_RUN"),
		"Resolve digests without deleting (yes/no)")

	flags.String(
		"force",
		envString("FORCE"),
		"Skip the confirmation for filters matching everything (yes/no)")

	flags.StringP(
		"schedule",
		"s",
		envString("SCHEDULE"),
		"Cron expression repeating the cleanup; empty runs once")

	flags.String(
		"metrics-textfile",
		envString("METRICS_TEXTFILE"),
		"Write run metrics to this file in the Prometheus textfile format")
}

// RegisterSystemFlags adds the flags controlling logging.
func RegisterSystemFlags(rootCmd *cobra.Command) {
	flags := rootCmd.PersistentFlags()

	flags.StringP(
		"log-level",
		"l",
		envString("LOGGING_LEVEL"),
		"The maximum log level that will be written to STDERR. Possible values: panic, fatal, error, warn(ing), info, debug or trace")

	flags.String(
		"log-format",
		envString("LOG_FORMAT"),
		"Sets what logging format to use for console output. Possible values: Auto, LogFmt, Pretty, JSON")

	flags.Bool(
		"no-color",
		envBool("NO_COLOR"),
		"Disable ANSI color escape codes in log output")

	flags.BoolP(
		"debug",
		"d",
		envBool("DEBUG"),
		"Enable debug mode with verbose logging")

	flags.Bool(
		"trace",
		envBool("TRACE"),
		"Enable trace mode with very verbose logging - caution, exposes credentials")

	flags.String(
		"porcelain",
		envString("PORCELAIN"),
		"Write the run summary to stdout using a stable, machine-readable format. Possible values: v1")
}

// RegisterNotificationFlags adds the flags configuring summary notifications.
func RegisterNotificationFlags(rootCmd *cobra.Command) {
	flags := rootCmd.PersistentFlags()

	flags.StringArray(
		"notification-url",
		envStringSlice("NOTIFICATION_URL"),
		"The shoutrrr URL to send the run summary to")

	flags.String(
		"notification-template",
		envString("NOTIFICATION_TEMPLATE"),
		"The builtin template name or Go text/template used to render the run summary")

	flags.String(
		"notification-title",
		envString("NOTIFICATION_TITLE"),
		"Title of the summary notification")

	flags.Bool(
		"notification-log-stdout",
		envBool("NOTIFICATION_LOG_STDOUT"),
		"Write notification logs to stdout instead of logging (to stderr)")
}

// RegisterAPIFlags adds the flags configuring the HTTP API.
func RegisterAPIFlags(rootCmd *cobra.Command) {
	flags := rootCmd.PersistentFlags()

	flags.Bool(
		"http-api-cleanup",
		envBool("HTTP_API_CLEANUP"),
		"Serve POST /v1/cleanup to trigger a cleanup and keep running")

	flags.Bool(
		"http-api-metrics",
		envBool("HTTP_API_METRICS"),
		"Serve Prometheus metrics on /v1/metrics")

	flags.String(
		"http-api-token",
		envString("HTTP_API_TOKEN"),
		"Bearer token required by every HTTP API request")

	flags.String(
		"http-api-host",
		envString("HTTP_API_HOST"),
		"Address the HTTP API binds to; empty binds all interfaces")

	flags.String(
		"http-api-port",
		envString("HTTP_API_PORT"),
		"Port of the HTTP API")
}

// envString retrieves a string value from an environment variable via Viper.
func envString(key string) string {
	viper.MustBindEnv(key)

	return viper.GetString(key)
}

// envStringSlice retrieves a string slice from an environment variable via Viper.
func envStringSlice(key string) []string {
	viper.MustBindEnv(key)

	return viper.GetStringSlice(key)
}

// envInt retrieves an integer value from an environment variable via Viper.
func envInt(key string) int {
	viper.MustBindEnv(key)

	return viper.GetInt(key)
}

// envBool retrieves a boolean value from an environment variable via Viper.
func envBool(key string) bool {
	viper.MustBindEnv(key)

	return viper.GetBool(key)
}

// SetDefaults configures default values for environment variables.
// It must run before the Register functions, which read the defaults.
func SetDefaults() {
	viper.AutomaticEnv()
	viper.SetDefault("DOCKER_IMAGES_FILTER", filters.MatchAll)
	viper.SetDefault("DOCKER_TAGS_FILTER", filters.MatchAll)
	viper.SetDefault("IMAGE_LIST_NBR_MAX", defaultMaxImages)
	viper.SetDefault("HTTP_CONNECTION_TIMEOUT", defaultTimeoutSeconds)
	viper.SetDefault("DRY_RUN", "YES")
	viper.SetDefault("FORCE", "NO")
	viper.SetDefault("LOGGING_LEVEL", "INFO")
	viper.SetDefault("LOG_FORMAT", "auto")
	viper.SetDefault("NOTIFICATION_URL", []string{})
	viper.SetDefault("HTTP_API_PORT", defaultAPIPort)
}

// GetSecretsFromFiles replaces flag values with file contents if they reference files.
func GetSecretsFromFiles(rootCmd *cobra.Command) error {
	flags := rootCmd.PersistentFlags()

	for _, secret := range []string{"notification-url", "http-api-token"} {
		if err := getSecretFromFile(flags, secret); err != nil {
			return fmt.Errorf("failed to get secret from flag %v: %w", secret, err)
		}
	}

	return nil
}

// getSecretFromFile updates a flag's value with file contents if it references a file.
// Slice flags receive one value per non-empty line.
func getSecretFromFile(flags *pflag.FlagSet, secret string) error {
	flag := flags.Lookup(secret)
	if flag == nil {
		return fmt.Errorf("%w: %q", errInvalidFlagName, secret)
	}

	if sliceValue, ok := flag.Value.(pflag.SliceValue); ok {
		oldValues := sliceValue.GetSlice()
		values := make([]string, 0, len(oldValues))

		for _, value := range oldValues {
			if value == "" || !isFilePath(value) {
				values = append(values, value)

				continue
			}

			lines, err := readLines(value)
			if err != nil {
				return err
			}

			values = append(values, lines...)
		}

		if err := sliceValue.Replace(values); err != nil {
			return fmt.Errorf("%w: %w", errReplaceSliceFailed, err)
		}

		return nil
	}

	value := flag.Value.String()
	if value != "" && isFilePath(value) {
		content, err := os.ReadFile(value)
		if err != nil {
			return fmt.Errorf("%w: %w", errReadFileFailed, err)
		}

		if err := flags.Set(secret, strings.TrimSpace(string(content))); err != nil {
			return fmt.Errorf("%w: %w", errSetFlagFailed, err)
		}
	}

	return nil
}

// readLines returns the non-empty lines of a file.
func readLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errOpenFileFailed, err)
	}

	var lines []string

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}

	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("%w: %w", errCloseFileFailed, err)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", errReadFileFailed, err)
	}

	return lines, nil
}

// isFilePath determines if a string likely represents an existing file.
// Values with a colon past the second character, such as URLs, are never files.
func isFilePath(path string) bool {
	firstColon := strings.IndexRune(path, ':')
	if firstColon != 1 && firstColon != -1 {
		return false
	}

	_, err := os.Stat(path)

	return !errors.Is(err, os.ErrNotExist)
}

// ProcessFlagAliases applies the helper flags to the flags they stand for.
//
// --porcelain v1 adds a logger:// notification with the porcelain template
// written to stdout; --debug and --trace raise the log level.
func ProcessFlagAliases(flags *pflag.FlagSet) error {
	porcelain, err := flags.GetString("porcelain")
	if err != nil {
		return fmt.Errorf("%w: %w", errSetFlagFailed, err)
	}

	if porcelain != "" {
		if porcelain != "v1" {
			return fmt.Errorf("%w: unknown porcelain version %q, supported values: \"v1\"", ErrInvalidConfig, porcelain)
		}

		if err := appendFlagValue(flags, "notification-url", "logger://"); err != nil {
			return err
		}

		setFlagIfDefault(flags, "notification-log-stdout", "true")
		setFlagIfDefault(flags, "notification-template", fmt.Sprintf("porcelain.%s.summary", porcelain))
	}

	if flagIsEnabled(flags, "debug") {
		if err := flags.Set("log-level", "debug"); err != nil {
			return fmt.Errorf("%w: %w", errSetFlagFailed, err)
		}
	}

	if flagIsEnabled(flags, "trace") {
		if err := flags.Set("log-level", "trace"); err != nil {
			return fmt.Errorf("%w: %w", errSetFlagFailed, err)
		}
	}

	return nil
}

// SetupLogging configures the global logger based on log-related flags.
func SetupLogging(flags *pflag.FlagSet) error {
	logFormat, err := flags.GetString("log-format")
	if err != nil {
		return fmt.Errorf("%w: %w", errSetFlagFailed, err)
	}

	noColor, err := flags.GetBool("no-color")
	if err != nil {
		return fmt.Errorf("%w: %w", errSetFlagFailed, err)
	}

	if err := configureLogFormat(logFormat, noColor); err != nil {
		return err
	}

	rawLogLevel, err := flags.GetString("log-level")
	if err != nil {
		return fmt.Errorf("%w: %w", errSetFlagFailed, err)
	}

	logLevel, err := ParseLogLevel(rawLogLevel)
	if err != nil {
		return err
	}

	logrus.SetLevel(logLevel)

	return nil
}

// ParseLogLevel parses a level name case-insensitively. "WARNING" is accepted as warn.
func ParseLogLevel(raw string) (logrus.Level, error) {
	level, err := logrus.ParseLevel(strings.TrimSpace(raw))
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("%w: %w", errInvalidLogLevel, err)
	}

	return level, nil
}

// configureLogFormat sets the logrus formatter based on the specified format and color preference.
func configureLogFormat(logFormat string, noColor bool) error {
	switch strings.ToLower(logFormat) {
	case "auto":
		logrus.SetFormatter(&logrus.TextFormatter{
			DisableColors:             noColor,
			EnvironmentOverrideColors: true,
		})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "logfmt":
		logrus.SetFormatter(&logrus.TextFormatter{
			DisableColors: true,
			FullTimestamp: true,
		})
	case "pretty":
		logrus.SetFormatter(&logrus.TextFormatter{
			ForceColors:   !noColor,
			FullTimestamp: false,
		})
	default:
		return fmt.Errorf("%w: %s", errInvalidLogFormat, logFormat)
	}

	return nil
}

// ReadConfig reads and validates the run configuration from the parsed flags.
//
// Parameters:
//   - flags: Parsed persistent flags of the root command.
//
// Returns:
//   - types.Config: Immutable run configuration.
//   - error: ErrInvalidConfig for unusable values.
func ReadConfig(flags *pflag.FlagSet) (types.Config, error) {
	var (
		cfg  types.Config
		errs []error
	)

	getString := func(name string) string {
		value, err := flags.GetString(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %w", errSetFlagFailed, err))
		}

		return value
	}

	getInt := func(name string) int {
		value, err := flags.GetInt(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %w", errSetFlagFailed, err))
		}

		return value
	}

	getBool := func(name string) bool {
		value, err := flags.GetBool(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %w", errSetFlagFailed, err))
		}

		return value
	}

	cfg.RegistryURL = getString("registry-url")
	cfg.CAFile = getString("ca-file")
	cfg.ImagesFilter = getString("images-filter")
	cfg.TagsFilter = getString("tags-filter")
	cfg.MaxImages = getInt("max-images")
	cfg.Timeout = time.Duration(getInt("timeout")) * time.Second
	cfg.DryRun = util.ParseYesNo(getString("dry-run"))
	cfg.Force = util.ParseYesNo(getString("force"))
	cfg.Schedule = strings.TrimSpace(getString("schedule"))
	cfg.MetricsTextfile = getString("metrics-textfile")
	cfg.NotificationTemplate = getString("notification-template")
	cfg.NotificationTitle = getString("notification-title")
	cfg.APIToken = getString("http-api-token")
	cfg.APIHost = getString("http-api-host")
	cfg.APIPort = getString("http-api-port")
	cfg.APICleanup = getBool("http-api-cleanup")
	cfg.APIMetrics = getBool("http-api-metrics")

	urls, err := flags.GetStringArray("notification-url")
	if err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", errSetFlagFailed, err))
	}

	cfg.NotificationURLs = urls
	cfg.NotificationLogStdout = getBool("notification-log-stdout")

	if len(errs) > 0 {
		return types.Config{}, errors.Join(errs...)
	}

	if err := Validate(cfg); err != nil {
		return types.Config{}, err
	}

	return cfg, nil
}

// Validate checks the values a run cannot start without.
func Validate(cfg types.Config) error {
	var errs []error

	if cfg.RegistryURL == "" {
		errs = append(errs, fmt.Errorf("%w: registry URL is required (--registry-url or DOCKER_REGISTRY_URL)", ErrInvalidConfig))
	} else if _, err := registry.ParseEndpoint(cfg.RegistryURL); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalidConfig, err))
	}

	if cfg.MaxImages <= 0 {
		errs = append(errs, fmt.Errorf("%w: max images must be positive, got %d", ErrInvalidConfig, cfg.MaxImages))
	}

	if cfg.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: timeout must be positive, got %s", ErrInvalidConfig, cfg.Timeout))
	}

	for _, pattern := range []string{cfg.ImagesFilter, cfg.TagsFilter} {
		if _, err := filters.FilterByPattern(pattern); err != nil {
			errs = append(errs, fmt.Errorf("%w: %w", ErrInvalidConfig, err))
		}
	}

	if (cfg.APICleanup || cfg.APIMetrics) && cfg.APIToken == "" {
		errs = append(errs, fmt.Errorf("%w: the HTTP API requires a token (--http-api-token or HTTP_API_TOKEN)", ErrInvalidConfig))
	}

	if cfg.Schedule != "" {
		if err := scheduling.ValidateSchedule(cfg.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("%w: %w", ErrInvalidConfig, err))
		}
	}

	return errors.Join(errs...)
}

// flagIsEnabled reports whether a boolean flag is set; undefined flags read as false.
func flagIsEnabled(flags *pflag.FlagSet, name string) bool {
	value, err := flags.GetBool(name)
	if err != nil {
		logrus.WithError(err).WithField("flag", name).Debug("Flag is not defined")

		return false
	}

	return value
}

// appendFlagValue appends values to a slice-type flag.
func appendFlagValue(flags *pflag.FlagSet, name string, values ...string) error {
	flag := flags.Lookup(name)
	if flag == nil {
		return fmt.Errorf("%w: %q", errInvalidFlagName, name)
	}

	flagValues, ok := flag.Value.(pflag.SliceValue)
	if !ok {
		return fmt.Errorf("%w: %q", errNotSliceValue, name)
	}

	for _, value := range values {
		if err := flagValues.Append(value); err != nil {
			return fmt.Errorf("%w: %q: %w", errSetFlagFailed, name, err)
		}
	}

	return nil
}

// setFlagIfDefault sets a flag's value if it hasn't been explicitly changed.
func setFlagIfDefault(flags *pflag.FlagSet, name string, value string) {
	if flags.Changed(name) {
		return
	}

	if err := flags.Set(name, value); err != nil {
		logrus.WithError(err).WithField("flag", name).Error("Failed to set flag")
	}
}
