// Package domain contains the core types of the Arbiter engine: action
// requests, authority levels, roll correlation, workflow outcomes and the
// events exchanged with the host.
//
// The package has no internal dependencies by design so that adapters
// (HTTP, MCP, Redis) and the runtime can share types without import cycles.
package domain
