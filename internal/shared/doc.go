// Package shared provides common utilities and test helpers used across the
// pipeline codebase. It is a home for functionality that doesn't belong to
// any specific domain or architectural layer.
//
// The testutil subpackage provides a buffered slog handler and assertions
// for verifying structured log output in tests. This package should not
// contain business logic, external dependencies beyond the standard
// library, or circular dependencies with other internal packages.
package shared
