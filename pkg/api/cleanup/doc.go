// Package cleanup provides an HTTP API handler triggering registry cleanups.
// At most one cleanup runs at a time; concurrent requests get 429.
//
// Usage example:
//
//	handler := cleanup.New(runFn, lock)
//	api.RegisterFunc(handler.Path, handler.Handle)
package cleanup
