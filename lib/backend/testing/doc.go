// Package testing provides a standardized conformance test suite for
// implementations of the backend.Backend interface.
//
//   - RunBackendTests: validates CAS semantics, absence handling and
//     create-only writes against a factory of fresh backend instances.
package testing
