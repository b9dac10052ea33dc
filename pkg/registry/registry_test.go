package registry_test

import (
	"context"
	"net/http"
	"net/url"
	"path/filepath"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	cerrdefs "github.com/containerd/errdefs"

	"github.com/nicholas-fedor/registry-cleaner/pkg/registry"
	"github.com/nicholas-fedor/registry-cleaner/pkg/registry/digest"
	"github.com/nicholas-fedor/registry-cleaner/pkg/registry/manifest"
	"github.com/nicholas-fedor/registry-cleaner/pkg/registry/mocks"
	"github.com/nicholas-fedor/registry-cleaner/pkg/types"
)

const (
	dockerDigest = "sha256:1111111111111111111111111111111111111111111111111111111111111111"
	ociDigest    = "sha256:2222222222222222222222222222222222222222222222222222222222222222"
)

var _ = ginkgo.Describe("ParseEndpoint", func() {
	ginkgo.It("should default the port to 443", func() {
		endpoint, err := registry.ParseEndpoint("https://registry.example.com")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(endpoint).To(gomega.Equal(types.Endpoint{Host: "registry.example.com", Port: 443}))
	})

	ginkgo.It("should keep an explicit port and trim the base path", func() {
		endpoint, err := registry.ParseEndpoint("https://registry.example.com:5000/mirror/")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(endpoint).To(gomega.Equal(types.Endpoint{
			Host:     "registry.example.com",
			Port:     5000,
			BasePath: "/mirror",
		}))
	})

	ginkgo.It("should keep a base path that starts with a double slash", func() {
		endpoint, err := registry.ParseEndpoint("https://registry.example.com//mirror")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(endpoint).To(gomega.Equal(types.Endpoint{
			Host:     "registry.example.com",
			Port:     443,
			BasePath: "//mirror",
		}))
	})

	ginkgo.DescribeTable("should reject unusable URLs",
		func(rawURL string) {
			_, err := registry.ParseEndpoint(rawURL)
			gomega.Expect(err).To(gomega.MatchError(registry.ErrInvalidConfig))
			gomega.Expect(cerrdefs.IsInvalidArgument(err)).To(gomega.BeTrue())
		},
		ginkgo.Entry("plain http", "http://registry.example.com"),
		ginkgo.Entry("no scheme", "registry.example.com"),
		ginkgo.Entry("no host", "https://"),
		ginkgo.Entry("bad port", "https://registry.example.com:port"),
		ginkgo.Entry("empty", ""),
	)
})

var _ = ginkgo.Describe("Client", func() {
	var (
		server *ghttp.Server
		caFile string
		client *registry.Client
		ctx    context.Context
	)

	connect := func(basePath string) *registry.Client {
		connected, err := registry.New(ctx, server.URL()+basePath, caFile, 2*time.Second)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		return connected
	}

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		server, caFile = mocks.NewTLSRegistry()
	})

	ginkgo.AfterEach(func() {
		if client != nil {
			client.Close()
			client = nil
		}

		server.Close()
	})

	ginkgo.Describe("New", func() {
		ginkgo.It("should report an unreadable CA file as invalid configuration", func() {
			missing := filepath.Join(ginkgo.GinkgoT().TempDir(), "missing.pem")
			_, err := registry.New(ctx, server.URL(), missing, time.Second)
			gomega.Expect(err).To(gomega.MatchError(registry.ErrInvalidConfig))
		})

		ginkgo.It("should report an untrusted registry as a connection failure", func() {
			_, err := registry.New(ctx, server.URL(), "", time.Second)
			gomega.Expect(err).To(gomega.MatchError(registry.ErrConnection))
			gomega.Expect(cerrdefs.IsUnavailable(err)).To(gomega.BeTrue())
		})

		ginkgo.It("should expose the parsed endpoint", func() {
			client = connect("/mirror/")
			gomega.Expect(client.Endpoint().BasePath).To(gomega.Equal("/mirror"))
		})
	})

	ginkgo.Describe("ListRepositories", func() {
		ginkgo.It("should cap the catalog and filter names", func() {
			server.AppendHandlers(mocks.RespondWithCatalog("", 10, "team/api", "team/web", "other/db"))
			client = connect("")

			repositories, err := client.ListRepositories(ctx, 10, "^team/")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(repositories).To(gomega.Equal([]string{"team/api", "team/web"}))
		})

		ginkgo.It("should search the pattern anywhere in the name", func() {
			server.AppendHandlers(mocks.RespondWithCatalog("", 1000, "team/api", "team/web", "other/db"))
			client = connect("")

			repositories, err := client.ListRepositories(ctx, 1000, "web")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(repositories).To(gomega.Equal([]string{"team/web"}))
		})

		ginkgo.It("should prefix the base path", func() {
			server.AppendHandlers(mocks.RespondWithCatalog("/mirror", 5, "alpine"))
			client = connect("/mirror")

			repositories, err := client.ListRepositories(ctx, 5, ".*")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(repositories).To(gomega.Equal([]string{"alpine"}))
		})

		ginkgo.It("should leave out catalog entries that are not valid repository names", func() {
			server.AppendHandlers(mocks.RespondWithCatalog("", 10, "team/api", "Team/Web", "team/../etc", "team/db"))
			client = connect("")

			repositories, err := client.ListRepositories(ctx, 10, ".*")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(repositories).To(gomega.Equal([]string{"team/api", "team/db"}))
		})

		ginkgo.It("should send a double slash base path to the configured host", func() {
			server.AppendHandlers(mocks.RespondWithCatalog("//mirror", 5, "alpine"))
			client = connect("//mirror")

			repositories, err := client.ListRepositories(ctx, 5, ".*")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(repositories).To(gomega.Equal([]string{"alpine"}))
			gomega.Expect(server.ReceivedRequests()).To(gomega.HaveLen(1))
		})

		ginkgo.It("should return an empty list for an empty body", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, ""))
			client = connect("")

			repositories, err := client.ListRepositories(ctx, 5, ".*")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(repositories).To(gomega.BeEmpty())
		})

		ginkgo.It("should classify protocol errors", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusNotFound, ""))
			client = connect("")

			_, err := client.ListRepositories(ctx, 5, ".*")

			var protocolErr *registry.ProtocolError
			gomega.Expect(err).To(gomega.BeAssignableToTypeOf(protocolErr))
			gomega.Expect(err.(*registry.ProtocolError).StatusCode).To(gomega.Equal(http.StatusNotFound))
			gomega.Expect(err.(*registry.ProtocolError).Reason).To(gomega.Equal("Not Found"))
			gomega.Expect(cerrdefs.IsNotFound(err)).To(gomega.BeTrue())
		})

		ginkgo.It("should reject a body that is not JSON", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, "<html>"))
			client = connect("")

			_, err := client.ListRepositories(ctx, 5, ".*")
			gomega.Expect(err).To(gomega.MatchError(registry.ErrInvalidResponse))
		})

		ginkgo.It("should reject an invalid pattern before sending a request", func() {
			client = connect("")

			_, err := client.ListRepositories(ctx, 5, "(")
			gomega.Expect(err).To(gomega.MatchError(registry.ErrInvalidConfig))
			gomega.Expect(server.ReceivedRequests()).To(gomega.BeEmpty())
		})

		ginkgo.It("should follow a redirect to the same registry", func() {
			server.AppendHandlers(
				ghttp.CombineHandlers(
					ghttp.VerifyRequest(http.MethodGet, "/v2/_catalog"),
					ghttp.RespondWith(http.StatusMovedPermanently, nil, http.Header{
						"Location": []string{server.URL() + "/mirror/v2/_catalog?n=5"},
					}),
				),
				mocks.RespondWithCatalog("/mirror", 5, "alpine"),
			)
			client = connect("")

			repositories, err := client.ListRepositories(ctx, 5, ".*")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(repositories).To(gomega.Equal([]string{"alpine"}))
			gomega.Expect(server.ReceivedRequests()).To(gomega.HaveLen(2))
		})

		ginkgo.It("should resolve a relative redirect location", func() {
			server.AppendHandlers(
				ghttp.RespondWith(http.StatusTemporaryRedirect, nil, http.Header{
					"Location": []string{"/mirror/v2/_catalog?n=5"},
				}),
				mocks.RespondWithCatalog("/mirror", 5, "alpine"),
			)
			client = connect("")

			repositories, err := client.ListRepositories(ctx, 5, ".*")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(repositories).To(gomega.Equal([]string{"alpine"}))
		})

		ginkgo.It("should treat a redirect without location as a protocol error", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusFound, nil))
			client = connect("")

			_, err := client.ListRepositories(ctx, 5, ".*")

			var protocolErr *registry.ProtocolError
			gomega.Expect(err).To(gomega.BeAssignableToTypeOf(protocolErr))
		})
	})

	ginkgo.Describe("ListTags", func() {
		ginkgo.It("should render matching tags as references", func() {
			server.AppendHandlers(mocks.RespondWithTags("", "team/api", "1.0", "1.1", "latest"))
			client = connect("")

			tags, err := client.ListTags(ctx, "team/api", `^1\.`)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(tags).To(gomega.Equal([]string{"team/api:1.0", "team/api:1.1"}))
		})

		ginkgo.It("should return an empty list when tags are null", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, `{"name":"team/api","tags":null}`))
			client = connect("")

			tags, err := client.ListTags(ctx, "team/api", ".*")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(tags).NotTo(gomega.BeNil())
			gomega.Expect(tags).To(gomega.BeEmpty())
		})

		ginkgo.It("should return an empty list when tags are missing", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, `{"name":"team/api"}`))
			client = connect("")

			tags, err := client.ListTags(ctx, "team/api", ".*")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(tags).To(gomega.BeEmpty())
		})

		ginkgo.It("should leave out tags that are not valid tag names", func() {
			server.AppendHandlers(mocks.RespondWithTags("", "team/api", "1.0", "bad tag!", "1.1?x=y"))
			client = connect("")

			tags, err := client.ListTags(ctx, "team/api", ".*")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(tags).To(gomega.Equal([]string{"team/api:1.0"}))
		})

		ginkgo.It("should reject an invalid repository name before sending a request", func() {
			client = connect("")

			_, err := client.ListTags(ctx, "Upper/Case", ".*")
			gomega.Expect(err).To(gomega.MatchError(registry.ErrInvalidName))
			gomega.Expect(cerrdefs.IsInvalidArgument(err)).To(gomega.BeTrue())
			gomega.Expect(server.ReceivedRequests()).To(gomega.BeEmpty())
		})

		ginkgo.It("should report an unknown repository", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusNotFound, `{"errors":[{"code":"NAME_UNKNOWN"}]}`))
			client = connect("")

			_, err := client.ListTags(ctx, "missing", ".*")
			gomega.Expect(cerrdefs.IsNotFound(err)).To(gomega.BeTrue())
		})
	})

	ginkgo.Describe("ResolveDigest", func() {
		ginkgo.It("should request the Docker manifest first", func() {
			server.AppendHandlers(
				mocks.RespondWithDigest("", "team/api", "1.0", manifest.MediaTypeDockerManifest, dockerDigest),
			)
			client = connect("")

			value, ok := client.ResolveDigest(ctx, "team/api:1.0")
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(value).To(gomega.Equal(dockerDigest))
			gomega.Expect(server.ReceivedRequests()).To(gomega.HaveLen(1))
		})

		ginkgo.It("should fall back to the OCI manifest", func() {
			server.AppendHandlers(
				ghttp.CombineHandlers(
					ghttp.VerifyHeaderKV("Accept", manifest.MediaTypeDockerManifest),
					ghttp.RespondWith(http.StatusNotFound, nil),
				),
				mocks.RespondWithDigest("", "team/api", "1.0", manifest.MediaTypeOCIManifest, ociDigest),
			)
			client = connect("")

			value, ok := client.ResolveDigest(ctx, "team/api:1.0")
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(value).To(gomega.Equal(ociDigest))
		})

		ginkgo.It("should fall back when the Docker answer has no digest header", func() {
			server.AppendHandlers(
				ghttp.RespondWith(http.StatusOK, nil),
				mocks.RespondWithDigest("", "team/api", "1.0", manifest.MediaTypeOCIManifest, ociDigest),
			)
			client = connect("")

			value, ok := client.ResolveDigest(ctx, "team/api:1.0")
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(value).To(gomega.Equal(ociDigest))
		})

		ginkgo.It("should fall back when the Docker digest is not an OCI digest", func() {
			server.AppendHandlers(
				ghttp.RespondWith(http.StatusOK, nil, http.Header{digest.ContentDigestHeader: {"sha256:../other"}}),
				mocks.RespondWithDigest("", "team/api", "1.0", manifest.MediaTypeOCIManifest, ociDigest),
			)
			client = connect("")

			value, ok := client.ResolveDigest(ctx, "team/api:1.0")
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(value).To(gomega.Equal(ociDigest))
		})

		ginkgo.It("should resolve latest when the reference has no tag", func() {
			server.AppendHandlers(
				mocks.RespondWithDigest("/mirror", "alpine", "latest", manifest.MediaTypeDockerManifest, dockerDigest),
			)
			client = connect("/mirror")

			value, ok := client.ResolveDigest(ctx, "alpine")
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(value).To(gomega.Equal(dockerDigest))
		})

		ginkgo.It("should report absence when both media types fail", func() {
			server.AppendHandlers(
				ghttp.RespondWith(http.StatusNotFound, nil),
				ghttp.RespondWith(http.StatusNotFound, nil),
			)
			client = connect("")

			value, ok := client.ResolveDigest(ctx, "team/api:gone")
			gomega.Expect(ok).To(gomega.BeFalse())
			gomega.Expect(value).To(gomega.BeEmpty())
			gomega.Expect(server.ReceivedRequests()).To(gomega.HaveLen(2))
		})

		ginkgo.It("should not follow redirects", func() {
			header := http.Header{
				"Location":                  []string{server.URL() + "/elsewhere"},
				digest.ContentDigestHeader: []string{dockerDigest},
			}
			server.AppendHandlers(
				ghttp.RespondWith(http.StatusTemporaryRedirect, nil, header),
				ghttp.RespondWith(http.StatusTemporaryRedirect, nil, header),
			)
			client = connect("")

			_, ok := client.ResolveDigest(ctx, "team/api:1.0")
			gomega.Expect(ok).To(gomega.BeFalse())
			gomega.Expect(server.ReceivedRequests()).To(gomega.HaveLen(2))
		})
	})

	ginkgo.Describe("Delete", func() {
		ginkgo.It("should delete by digest", func() {
			server.AppendHandlers(mocks.RespondWithDelete("", "team/api", dockerDigest, http.StatusAccepted))
			client = connect("")

			gomega.Expect(client.Delete(ctx, "team/api", dockerDigest)).To(gomega.BeTrue())
		})

		ginkgo.It("should report a refused deletion", func() {
			server.AppendHandlers(mocks.RespondWithDelete("", "team/api", dockerDigest, http.StatusMethodNotAllowed))
			client = connect("")

			gomega.Expect(client.Delete(ctx, "team/api", dockerDigest)).To(gomega.BeFalse())
		})

		ginkgo.It("should re-issue DELETE at the redirect location", func() {
			server.AppendHandlers(
				ghttp.RespondWith(http.StatusTemporaryRedirect, nil, http.Header{
					"Location": []string{"/mirror/v2/team/api/manifests/" + dockerDigest},
				}),
				mocks.RespondWithDelete("/mirror", "team/api", dockerDigest, http.StatusAccepted),
			)
			client = connect("")

			gomega.Expect(client.Delete(ctx, "team/api", dockerDigest)).To(gomega.BeTrue())
		})

		ginkgo.It("should stop a redirect loop", func() {
			var hits atomic.Int32

			server.RouteToHandler(http.MethodDelete, regexp.MustCompile(`^/v2/`), func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.Header().Set("Location", r.URL.Path)
				w.WriteHeader(http.StatusTemporaryRedirect)
			})
			client = connect("")

			gomega.Expect(client.Delete(ctx, "team/api", dockerDigest)).To(gomega.BeFalse())
			gomega.Expect(hits.Load()).To(gomega.Equal(int32(registry.MaxRedirects + 1)))
		})

		ginkgo.It("should refuse a redirect to plain http", func() {
			insecure := &url.URL{Scheme: "http", Host: server.Addr(), Path: "/v2/team/api/manifests/" + dockerDigest}
			server.AppendHandlers(
				ghttp.RespondWith(http.StatusTemporaryRedirect, nil, http.Header{"Location": []string{insecure.String()}}),
			)
			client = connect("")

			gomega.Expect(client.Delete(ctx, "team/api", dockerDigest)).To(gomega.BeFalse())
			gomega.Expect(server.ReceivedRequests()).To(gomega.HaveLen(1))
		})
	})
})
