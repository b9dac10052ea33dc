package transport

import (
	"crypto/tls"
	"fmt"

	"github.com/docker/go-connections/tlsconfig"
	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/registry-cleaner/pkg/types"
)

// NewTLSConfig builds the client TLS configuration for a trust source.
//
// Certificate verification is always required. When a CA file is configured it
// becomes the only trusted root pool; otherwise the system roots are used.
func NewTLSConfig(trust types.TrustConfig) (*tls.Config, error) {
	options := tlsconfig.Options{
		CAFile:             trust.CAFile,
		ExclusiveRootPools: trust.CAFile != "",
	}

	config, err := tlsconfig.Client(options)
	if err != nil {
		logrus.WithError(err).
			WithField("ca_file", trust.CAFile).
			Debug("Failed to load certificate authority")

		return nil, fmt.Errorf("%w: %w", ErrTrustConfig, err)
	}

	if trust.CAFile == "" {
		logrus.Debug("Using system trust store")
	} else {
		logrus.WithField("ca_file", trust.CAFile).Debug("Using custom certificate authority")
	}

	return config, nil
}
