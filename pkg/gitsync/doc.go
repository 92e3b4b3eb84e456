// Package gitsync is the public face of the Conveyor git synchronization
// engine. It keeps workspace directories in sync with their git remotes
// using a pure in-process object store implementation: no git binary is ever
// executed, and remote credentials are held in memory only for the duration
// of a single fetch or push.
//
// Supported authentication methods:
//   - Personal access tokens (bearer)
//   - Basic HTTP authentication
//   - SSH keys with host fingerprint validation
//   - GitHub App installation tokens (minted on demand, cached briefly)
//
// The primary type is Engine. Engines are NOT safe for concurrent mutating
// calls against the same workspace; callers serialize, typically with one
// queue consumer per workspace.
//
// Example usage:
//
//	cfg := map[string]any{
//	    "repo":       "https://github.com/myorg/flows.git",
//	    "branch":     "main",
//	    "credential": "github-token",
//	}
//	engine, err := gitsync.NewFromConfig("/srv/workspaces/acme", cfg, provider)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := engine.Sync(ctx)
package gitsync
