// Package mocks provides mock implementations for testing registry-cleaner actions.
package mocks

import (
	"context"
	"sort"
	"strings"

	"github.com/nicholas-fedor/registry-cleaner/pkg/filters"
	"github.com/nicholas-fedor/registry-cleaner/pkg/types"
)

// TestData holds the registry content and the results MockClient serves.
type TestData struct {
	Repositories []string            // Catalog in registry order.
	Tags         map[string][]string // Repository -> tags.
	Digests      map[string]string   // "repository:tag" -> digest; missing means unresolvable.
	FailDeletes  map[string]bool     // Digests whose deletion fails.
	CatalogErr   error               // Returned by ListRepositories when set.
	TagsErr      map[string]error    // Returned by ListTags for a repository when set.

	ListTagsCalls      []string // Repositories passed to ListTags.
	ResolveDigestCalls []string // References passed to ResolveDigest.
	DeleteCalls        []string // "repository@digest" passed to Delete.
}

// MockClient is a mock implementation of types.RegistryClient.
type MockClient struct {
	TestData *TestData
}

// CreateMockClient constructs a MockClient over data.
func CreateMockClient(data *TestData) MockClient {
	return MockClient{TestData: data}
}

// ListRepositories returns the filtered catalog capped at maxCount.
func (client MockClient) ListRepositories(_ context.Context, maxCount int, pattern string) ([]string, error) {
	if client.TestData.CatalogErr != nil {
		return nil, client.TestData.CatalogErr
	}

	repositories := client.TestData.Repositories
	if maxCount < len(repositories) {
		repositories = repositories[:maxCount]
	}

	filter, err := filters.FilterByPattern(pattern)
	if err != nil {
		return nil, err
	}

	return filters.Apply(repositories, filter), nil
}

// ListTags returns the filtered tags of a repository as "repository:tag" references.
func (client MockClient) ListTags(_ context.Context, repository string, pattern string) ([]string, error) {
	client.TestData.ListTagsCalls = append(client.TestData.ListTagsCalls, repository)

	if err := client.TestData.TagsErr[repository]; err != nil {
		return nil, err
	}

	filter, err := filters.FilterByPattern(pattern)
	if err != nil {
		return nil, err
	}

	matched := filters.Apply(client.TestData.Tags[repository], filter)

	imageRefs := make([]string, 0, len(matched))
	for _, tag := range matched {
		imageRefs = append(imageRefs, repository+":"+tag)
	}

	return imageRefs, nil
}

// ResolveDigest looks the reference up in TestData.Digests.
func (client MockClient) ResolveDigest(_ context.Context, imageRef string) (string, bool) {
	client.TestData.ResolveDigestCalls = append(client.TestData.ResolveDigestCalls, imageRef)

	if !strings.Contains(imageRef, ":") {
		imageRef += ":" + types.DefaultTag
	}

	digest, found := client.TestData.Digests[imageRef]

	return digest, found
}

// Delete records the call and succeeds unless the digest is in FailDeletes.
func (client MockClient) Delete(_ context.Context, repository string, digest string) bool {
	client.TestData.DeleteCalls = append(client.TestData.DeleteCalls, repository+"@"+digest)

	return !client.TestData.FailDeletes[digest]
}

// SortedDeleteCalls returns the recorded deletions in sorted order.
func (testdata *TestData) SortedDeleteCalls() []string {
	calls := append([]string(nil), testdata.DeleteCalls...)
	sort.Strings(calls)

	return calls
}
