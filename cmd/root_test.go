package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nicholas-fedor/registry-cleaner/internal/actions"
	"github.com/nicholas-fedor/registry-cleaner/internal/flags"
	"github.com/nicholas-fedor/registry-cleaner/pkg/registry"
	registryMocks "github.com/nicholas-fedor/registry-cleaner/pkg/registry/mocks"
	"github.com/nicholas-fedor/registry-cleaner/pkg/types"
)

// newTestCommand builds a root command wired like rootCmd.
func newTestCommand(stdin string, args ...string) (*cobra.Command, *bytes.Buffer) {
	command := NewRootCommand()

	flags.SetDefaults()
	flags.RegisterRegistryFlags(command)
	flags.RegisterCleanupFlags(command)
	flags.RegisterSystemFlags(command)
	flags.RegisterNotificationFlags(command)
	flags.RegisterAPIFlags(command)
	command.AddCommand(newListCommand())

	out := &bytes.Buffer{}
	command.SetIn(strings.NewReader(stdin))
	command.SetOut(out)
	command.SetErr(out)
	command.SetArgs(args)

	return command, out
}

var _ = ginkgo.Describe("the root command", func() {
	var (
		server  *ghttp.Server
		caFile  string
		fake    *registryMocks.Registry
		baseArg []string
	)

	ginkgo.BeforeEach(func() {
		logrus.SetOutput(ginkgo.GinkgoWriter)

		server, caFile = registryMocks.NewTLSRegistry()
		fake = registryMocks.NewRegistry().
			AddRepository("team/api", "0.9", "1.0").
			AddRepository("team/web", "0.1").
			AddRepository("infra/proxy", "2.0")
		fake.Serve(server)

		baseArg = []string{"--registry-url", server.URL(), "--ca-file", caFile, "--timeout", "2"}
	})

	ginkgo.AfterEach(func() {
		server.Close()
		logrus.SetOutput(os.Stderr)
		logrus.SetLevel(logrus.InfoLevel)
	})

	ginkgo.It("deletes the selected images and writes the metrics textfile", func() {
		textfile := filepath.Join(ginkgo.GinkgoT().TempDir(), "registry_cleaner.prom")
		args := append(baseArg,
			"--images-filter", "^team/",
			"--tags-filter", "^0\\.",
			"--dry-run", "no",
			"--metrics-textfile", textfile,
		)

		command, _ := newTestCommand("", args...)
		gomega.Expect(command.ExecuteContext(context.Background())).To(gomega.Succeed())

		gomega.Expect(fake.Deleted()).To(gomega.ConsistOf(
			"team/api@"+fake.Digest("team/api:0.9"),
			"team/web@"+fake.Digest("team/web:0.1"),
		))

		content, err := os.ReadFile(textfile)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(string(content)).To(gomega.ContainSubstring("registry_cleaner_images_deleted 2"))
		gomega.Expect(string(content)).To(gomega.ContainSubstring("registry_cleaner_runs_total 1"))
	})

	ginkgo.It("deletes nothing by default", func() {
		args := append(baseArg, "--images-filter", "^team/", "--tags-filter", "^0\\.")

		command, _ := newTestCommand("", args...)
		gomega.Expect(command.ExecuteContext(context.Background())).To(gomega.Succeed())

		gomega.Expect(fake.Deleted()).To(gomega.BeEmpty())
		gomega.Expect(fake.HeadRequests()).To(gomega.BeNumerically(">=", 2))
	})

	ginkgo.It("aborts when a dangerous filter is not confirmed", func() {
		args := append(baseArg, "--dry-run", "no")

		command, out := newTestCommand("n\n", args...)
		err := command.ExecuteContext(context.Background())

		gomega.Expect(err).To(gomega.MatchError(actions.ErrAborted))
		gomega.Expect(out.String()).To(gomega.ContainSubstring(actions.ConfirmPrompt))
		gomega.Expect(fake.Deleted()).To(gomega.BeEmpty())
	})

	ginkgo.It("proceeds when dangerous filters are confirmed", func() {
		args := append(baseArg, "--dry-run", "no")

		command, _ := newTestCommand("y\nyes\n", args...)
		gomega.Expect(command.ExecuteContext(context.Background())).To(gomega.Succeed())

		gomega.Expect(fake.Deleted()).To(gomega.HaveLen(4))
	})

	ginkgo.It("rejects an invalid configuration", func() {
		command, _ := newTestCommand("", "--registry-url", "http://registry.example.com")

		gomega.Expect(command.ExecuteContext(context.Background())).To(gomega.MatchError(flags.ErrInvalidConfig))
	})

	ginkgo.It("fails when the registry cannot be reached", func() {
		url := server.URL()
		server.Close()

		command, _ := newTestCommand("", "--registry-url", url, "--ca-file", caFile, "--timeout", "1", "--force", "yes")

		gomega.Expect(command.ExecuteContext(context.Background())).To(gomega.MatchError(registry.ErrConnection))
	})

	ginkgo.It("stops serving cleanups over the API when the context ends", func() {
		cfg := types.Config{
			RegistryURL:  server.URL(),
			CAFile:       caFile,
			ImagesFilter: ".*",
			TagsFilter:   ".*",
			MaxImages:    1000,
			Timeout:      2 * time.Second,
			DryRun:       true,
			APICleanup:   true,
			APIToken:     "token",
			APIHost:      "127.0.0.1",
			APIPort:      "0",
		}

		r, err := newRunner(cfg, prometheus.NewRegistry())
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		gomega.Expect(r.serve(ctx)).To(gomega.Succeed())
		gomega.Expect(fake.HeadRequests()).To(gomega.BeZero())
	})

	ginkgo.It("records the metrics of a cleanup run", func() {
		cfg := types.Config{
			RegistryURL:  server.URL(),
			CAFile:       caFile,
			ImagesFilter: "^infra/",
			TagsFilter:   ".*",
			MaxImages:    1000,
			Timeout:      2 * time.Second,
		}

		r, err := newRunner(cfg, prometheus.NewRegistry())
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		metric, err := r.runCleanup(context.Background())
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(metric.Deleted).To(gomega.Equal(1))
		gomega.Expect(metric.Scanned).To(gomega.Equal(1))
	})

	ginkgo.It("lists the selected images", func() {
		args := append([]string{"list"}, baseArg...)
		args = append(args, "--images-filter", "^team/")

		command, out := newTestCommand("", args...)
		gomega.Expect(command.ExecuteContext(context.Background())).To(gomega.Succeed())

		gomega.Expect(strings.Fields(out.String())).To(gomega.ConsistOf("team/api:0.9", "team/api:1.0", "team/web:0.1"))
		gomega.Expect(fake.HeadRequests()).To(gomega.BeZero())
		gomega.Expect(fake.Deleted()).To(gomega.BeEmpty())
	})
})
