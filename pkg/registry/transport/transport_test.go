package transport_test

import (
	"context"
	"encoding/pem"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	cerrdefs "github.com/containerd/errdefs"

	"github.com/nicholas-fedor/registry-cleaner/pkg/registry/transport"
	"github.com/nicholas-fedor/registry-cleaner/pkg/types"
)

// writeCAFile stores the test server certificate as a PEM bundle.
func writeCAFile(server *ghttp.Server) string {
	path := filepath.Join(ginkgo.GinkgoT().TempDir(), "ca.pem")
	block := &pem.Block{Type: "CERTIFICATE", Bytes: server.HTTPTestServer.Certificate().Raw}
	gomega.Expect(os.WriteFile(path, pem.EncodeToMemory(block), 0o600)).To(gomega.Succeed())

	return path
}

// endpointOf parses the test server URL into an endpoint.
func endpointOf(rawURL string, basePath string) types.Endpoint {
	parsed, err := url.Parse(rawURL)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())

	port, err := strconv.Atoi(parsed.Port())
	gomega.Expect(err).NotTo(gomega.HaveOccurred())

	return types.Endpoint{Host: parsed.Hostname(), Port: port, BasePath: basePath}
}

var _ = ginkgo.Describe("Session", func() {
	var (
		server *ghttp.Server
		caFile string
		ctx    context.Context
	)

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		server = ghttp.NewTLSServer()
		caFile = writeCAFile(server)
	})

	ginkgo.AfterEach(func() {
		server.Close()
	})

	ginkgo.When("opening a session", func() {
		ginkgo.It("should trust the configured CA file", func() {
			session, err := transport.Open(ctx, endpointOf(server.URL(), ""), types.TrustConfig{CAFile: caFile}, time.Second)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			session.Close()
		})

		ginkgo.It("should reject a missing CA file", func() {
			missing := filepath.Join(ginkgo.GinkgoT().TempDir(), "missing.pem")
			_, err := transport.Open(ctx, endpointOf(server.URL(), ""), types.TrustConfig{CAFile: missing}, time.Second)
			gomega.Expect(err).To(gomega.MatchError(transport.ErrTrustConfig))
			gomega.Expect(cerrdefs.IsInvalidArgument(err)).To(gomega.BeTrue())
		})

		ginkgo.It("should reject a CA file without certificates", func() {
			garbage := filepath.Join(ginkgo.GinkgoT().TempDir(), "garbage.pem")
			gomega.Expect(os.WriteFile(garbage, []byte("not a certificate"), 0o600)).To(gomega.Succeed())

			_, err := transport.Open(ctx, endpointOf(server.URL(), ""), types.TrustConfig{CAFile: garbage}, time.Second)
			gomega.Expect(err).To(gomega.MatchError(transport.ErrTrustConfig))
		})

		ginkgo.It("should fail the handshake when the server is not trusted", func() {
			_, err := transport.Open(ctx, endpointOf(server.URL(), ""), types.TrustConfig{}, time.Second)
			gomega.Expect(err).To(gomega.MatchError(transport.ErrConnection))
			gomega.Expect(cerrdefs.IsUnavailable(err)).To(gomega.BeTrue())
		})

		ginkgo.It("should fail when nothing listens on the port", func() {
			listener, err := net.Listen("tcp", "127.0.0.1:0")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			address := listener.Addr().(*net.TCPAddr)
			gomega.Expect(listener.Close()).To(gomega.Succeed())

			endpoint := types.Endpoint{Host: "127.0.0.1", Port: address.Port}
			_, err = transport.Open(ctx, endpoint, types.TrustConfig{CAFile: caFile}, time.Second)
			gomega.Expect(err).To(gomega.MatchError(transport.ErrConnection))
		})
	})

	ginkgo.When("sending requests", func() {
		var session *transport.Session

		ginkgo.BeforeEach(func() {
			var err error
			session, err = transport.Open(ctx, endpointOf(server.URL(), ""), types.TrustConfig{CAFile: caFile}, time.Second)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
		})

		ginkgo.AfterEach(func() {
			session.Close()
		})

		ginkgo.It("should return status, headers and the complete body", func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodGet, "/base/v2/_catalog", "n=10"),
				ghttp.VerifyHeaderKV("Accept", "application/json"),
				ghttp.VerifyHeaderKV("User-Agent", transport.UserAgent),
				ghttp.RespondWith(http.StatusOK, `{"repositories":["a"]}`, http.Header{"X-Test": {"yes"}}),
			))

			resp, err := session.Do(ctx, http.MethodGet, "/base/v2/_catalog?n=10", http.Header{"Accept": {"application/json"}})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(resp.StatusCode).To(gomega.Equal(http.StatusOK))
			gomega.Expect(resp.Reason()).To(gomega.Equal("OK"))
			gomega.Expect(resp.IsSuccess()).To(gomega.BeTrue())
			gomega.Expect(resp.Header.Get("X-Test")).To(gomega.Equal("yes"))
			gomega.Expect(string(resp.Body)).To(gomega.Equal(`{"repositories":["a"]}`))
		})

		ginkgo.It("should not follow redirects", func() {
			server.AppendHandlers(
				ghttp.RespondWith(http.StatusMovedPermanently, "moved", http.Header{"Location": {"/elsewhere"}}),
			)

			resp, err := session.Do(ctx, http.MethodGet, "/v2/_catalog", nil)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(resp.IsRedirect()).To(gomega.BeTrue())
			gomega.Expect(resp.Header.Get("Location")).To(gomega.Equal("/elsewhere"))
			gomega.Expect(resp.Reason()).To(gomega.Equal("Moved Permanently"))
			gomega.Expect(server.ReceivedRequests()).To(gomega.HaveLen(1))
		})

		ginkgo.It("should return an empty body for HEAD requests", func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodHead, "/v2/alpine/manifests/latest"),
				ghttp.RespondWith(http.StatusOK, "", http.Header{"Docker-Content-Digest": {"sha256:abc"}}),
			))

			resp, err := session.Do(ctx, http.MethodHead, "/v2/alpine/manifests/latest", nil)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(resp.Body).To(gomega.BeEmpty())
			gomega.Expect(resp.Header.Get("Docker-Content-Digest")).To(gomega.Equal("sha256:abc"))
		})

		ginkgo.It("should accept absolute https targets", func() {
			server.AppendHandlers(ghttp.VerifyRequest(http.MethodDelete, "/v2/alpine/manifests/sha256:abc"))

			resp, err := session.Do(ctx, http.MethodDelete, server.URL()+"/v2/alpine/manifests/sha256:abc", nil)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(resp.StatusCode).To(gomega.Equal(http.StatusOK))
		})

		ginkgo.It("should report a timeout as a connection error", func() {
			server.AppendHandlers(func(http.ResponseWriter, *http.Request) {
				time.Sleep(1500 * time.Millisecond)
			})

			_, err := session.Do(ctx, http.MethodGet, "/v2/_catalog", nil)
			gomega.Expect(err).To(gomega.MatchError(transport.ErrConnection))
		})
	})

	ginkgo.When("a response body arrives slowly", func() {
		var session *transport.Session

		ginkgo.BeforeEach(func() {
			var err error
			session, err = transport.Open(ctx, endpointOf(server.URL(), ""), types.TrustConfig{CAFile: caFile}, time.Second)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
		})

		ginkgo.AfterEach(func() {
			session.Close()
		})

		ginkgo.It("should keep reading while each chunk arrives within the timeout", func() {
			chunks := []string{`{"repo`, `sitories":`, `["a",`, `"b",`, `"c"]}`}

			server.AppendHandlers(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)

				for _, chunk := range chunks {
					_, _ = w.Write([]byte(chunk))
					w.(http.Flusher).Flush()
					time.Sleep(400 * time.Millisecond)
				}
			})

			resp, err := session.Do(ctx, http.MethodGet, "/v2/_catalog?n=10", nil)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(string(resp.Body)).To(gomega.Equal(`{"repositories":["a","b","c"]}`))
		})

		ginkgo.It("should fail when the body stalls longer than the timeout", func() {
			server.AppendHandlers(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"repositories":`))
				w.(http.Flusher).Flush()
				time.Sleep(1500 * time.Millisecond)
				_, _ = w.Write([]byte(`[]}`))
			})

			_, err := session.Do(ctx, http.MethodGet, "/v2/_catalog", nil)
			gomega.Expect(err).To(gomega.MatchError(transport.ErrConnection))
		})

		ginkgo.It("should keep an idle connection usable past the timeout", func() {
			server.AppendHandlers(
				ghttp.RespondWith(http.StatusOK, `{"repositories":[]}`),
				ghttp.RespondWith(http.StatusAccepted, ""),
			)

			_, err := session.Do(ctx, http.MethodGet, "/v2/_catalog", nil)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			time.Sleep(1500 * time.Millisecond)

			resp, err := session.Do(ctx, http.MethodDelete, "/v2/a/manifests/sha256:abc", nil)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(resp.StatusCode).To(gomega.Equal(http.StatusAccepted))
		})
	})

	ginkgo.When("the base path starts with a double slash", func() {
		ginkgo.It("should send the request to the session endpoint", func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodGet, "//mirror/v2/_catalog", "n=10"),
				ghttp.RespondWith(http.StatusOK, `{"repositories":[]}`),
			))

			session, err := transport.Open(ctx, endpointOf(server.URL(), "//mirror"), types.TrustConfig{CAFile: caFile}, time.Second)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			defer session.Close()

			resp, err := session.Do(ctx, http.MethodGet, "//mirror/v2/_catalog?n=10", nil)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(resp.URL.Host).To(gomega.Equal(endpointOf(server.URL(), "").Address()))
			gomega.Expect(resp.URL.Path).To(gomega.Equal("//mirror/v2/_catalog"))
			gomega.Expect(server.ReceivedRequests()).To(gomega.HaveLen(1))
		})
	})

	ginkgo.When("several requests share a session", func() {
		ginkgo.It("should reuse the connection opened eagerly", func() {
			server.Close()

			var newConnections int32

			server = ghttp.NewUnstartedServer()
			server.HTTPTestServer.Config.ConnState = func(_ net.Conn, state http.ConnState) {
				if state == http.StateNew {
					atomic.AddInt32(&newConnections, 1)
				}
			}
			server.HTTPTestServer.StartTLS()
			caFile = writeCAFile(server)

			server.AppendHandlers(
				ghttp.RespondWith(http.StatusOK, `{"repositories":[]}`),
				ghttp.RespondWith(http.StatusNotFound, `{"errors":[]}`),
				ghttp.RespondWith(http.StatusAccepted, ""),
			)

			session, err := transport.Open(ctx, endpointOf(server.URL(), ""), types.TrustConfig{CAFile: caFile}, time.Second)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			defer session.Close()

			for _, method := range []string{http.MethodGet, http.MethodGet, http.MethodDelete} {
				_, err := session.Do(ctx, method, "/v2/_catalog", nil)
				gomega.Expect(err).NotTo(gomega.HaveOccurred())
			}

			gomega.Expect(server.ReceivedRequests()).To(gomega.HaveLen(3))
			gomega.Expect(atomic.LoadInt32(&newConnections)).To(gomega.Equal(int32(1)))
		})
	})
})
