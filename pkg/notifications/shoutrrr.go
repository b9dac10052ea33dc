package notifications

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"strings"
	"text/template"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/sirupsen/logrus"

	shoutrrrTypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/nicholas-fedor/registry-cleaner/pkg/notifications/templates"
	"github.com/nicholas-fedor/registry-cleaner/pkg/session"
	"github.com/nicholas-fedor/registry-cleaner/pkg/types"
)

// DefaultTitle is the notification title used unless overridden.
const DefaultTitle = "Registry cleanup summary"

// LocalLog is a logrus entry for the notifier's own messages.
var LocalLog = logrus.WithField("notify", "no")

// router defines the interface for sending Shoutrrr notifications.
type router interface {
	Send(message string, params *shoutrrrTypes.Params) []error
}

// shoutrrrNotifier implements types.Notifier by rendering a report and sending it
// to every configured service.
type shoutrrrNotifier struct {
	urls     []string
	router   router
	template *template.Template
	params   *shoutrrrTypes.Params
	data     StaticData
}

// GetScheme extracts the scheme part of a Shoutrrr URL.
// It returns "invalid" if no scheme is found.
func GetScheme(url string) string {
	schemeEnd := strings.Index(url, ":")
	if schemeEnd <= 0 {
		return "invalid"
	}

	return url[:schemeEnd]
}

// NewNotifier creates a notifier for the configured services.
//
// Parameters:
//   - cfg: Run configuration; NotificationURLs, NotificationTemplate and NotificationTitle are used.
//
// Returns:
//   - types.Notifier: Notifier, or nil when no URL is configured.
//   - error: Non-nil if a URL or the template is invalid.
func NewNotifier(cfg types.Config) (types.Notifier, error) {
	if len(cfg.NotificationURLs) == 0 {
		return nil, nil //nolint:nilnil // No services configured.
	}

	var logger shoutrrrTypes.StdLogger
	if cfg.NotificationLogStdout {
		logger = log.New(os.Stdout, "", 0)
	} else {
		logger = log.New(logrus.StandardLogger().WriterLevel(logrus.TraceLevel), "Shoutrrr: ", 0)
	}

	sender, err := shoutrrr.NewSender(logger, cfg.NotificationURLs...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize notification services: %w", err)
	}

	host, _ := os.Hostname()

	data := StaticData{
		Title:    cfg.NotificationTitle,
		Host:     host,
		Registry: cfg.RegistryURL,
	}

	notifier, err := newShoutrrrNotifier(cfg.NotificationURLs, sender, cfg.NotificationTemplate, data)
	if err != nil {
		return nil, err
	}

	return notifier, nil
}

// newShoutrrrNotifier assembles a notifier around a router.
func newShoutrrrNotifier(
	urls []string,
	sender router,
	tplString string,
	data StaticData,
) (*shoutrrrNotifier, error) {
	tpl, err := getShoutrrrTemplate(tplString)
	if err != nil {
		return nil, err
	}

	if data.Title == "" {
		data.Title = DefaultTitle
	}

	params := &shoutrrrTypes.Params{}
	params.SetTitle(data.Title)

	logrus.WithFields(logrus.Fields{
		"services": len(urls),
		"title":    data.Title,
	}).Debug("Created notifier")

	return &shoutrrrNotifier{
		urls:     urls,
		router:   sender,
		template: tpl,
		params:   params,
		data:     data,
	}, nil
}

// GetNames returns the notification service names derived from URL schemes.
func (n *shoutrrrNotifier) GetNames() []string {
	names := make([]string, len(n.urls))
	for i, u := range n.urls {
		names[i] = GetScheme(u)
	}

	return names
}

// GetURLs returns the configured service URLs.
func (n *shoutrrrNotifier) GetURLs() []string {
	return n.urls
}

// SendReport renders the report and sends it to every service.
// Failures are logged per service and never returned.
func (n *shoutrrrNotifier) SendReport(report types.Report) {
	msg, err := n.buildMessage(report)
	if err != nil {
		LocalLog.WithError(err).Error("Failed to render notification")

		return
	}

	if strings.TrimSpace(msg) == "" {
		LocalLog.Debug("Skipping notification due to empty message")

		return
	}

	errs := n.router.Send(msg, n.params)

	for i, err := range errs {
		if err == nil {
			continue
		}

		service := "unknown"
		if i < len(n.urls) {
			service = GetScheme(n.urls[i])
		}

		LocalLog.WithFields(logrus.Fields{
			"service": service,
			"index":   i,
		}).WithError(err).Error("Failed to send shoutrrr notification")
	}
}

// buildMessage renders the report with the configured template.
func (n *shoutrrrNotifier) buildMessage(report types.Report) (string, error) {
	data := Data{
		StaticData: n.data,
		Summary:    session.Summarize(report),
		Deleted:    report.Deleted(),
		Failed:     report.Failed(),
		Skipped:    report.Skipped(),
		DryRun:     report.DryRun(),
		Scanned:    report.Scanned(),
	}

	var body bytes.Buffer
	if err := n.template.Execute(&body, data); err != nil {
		return "", fmt.Errorf("failed to execute notification template: %w", err)
	}

	return body.String(), nil
}

// getShoutrrrTemplate resolves a builtin template name or parses a custom template.
// An empty string selects the default template.
func getShoutrrrTemplate(tplString string) (*template.Template, error) {
	tplBase := template.New("").Funcs(templates.Funcs)

	if tplString == "" {
		tplString = "default"
	}

	if builtin, found := commonTemplates[tplString]; found {
		logrus.WithField("template", tplString).Debug("Using common template")
		tplString = builtin
	}

	tpl, err := tplBase.Parse(tplString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse notification template string: %w", err)
	}

	return tpl, nil
}
