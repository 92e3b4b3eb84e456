// Package sync defines the contracts between the git synchronization engine
// and the surrounding workflow backend. The queue that delivers jobs, the
// secret store that holds remote credentials, the pub/sub layer that carries
// progress events and the package installer invoked after a workspace replace
// all live outside this module; they integrate by implementing these
// interfaces.
package sync

import "context"

// JobKind enumerates the operations the engine accepts from the job layer.
// It is a closed set on purpose: dispatch switches over JobKind and new kinds
// require touching every switch.
type JobKind int

const (
	JobSync JobKind = iota
	JobRefresh
)

func (k JobKind) String() string {
	switch k {
	case JobSync:
		return "sync"
	case JobRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

// Job is the already-authenticated unit of work handed to the engine. The
// engine never parses transport envelopes; the queue layer validates and
// strips them before constructing a Job.
type Job struct {
	Kind         JobKind
	WorkspaceID  string
	ConnectionID string
	// CredentialRef is an opaque reference resolved through the
	// SecretProvider. The engine never persists the resolved token.
	CredentialRef string
}

// SecretProvider abstracts the source of remote credentials. The returned map
// must include a "type" field naming the credential type plus the fields that
// type requires:
//
//	"token_auth":      token
//	"basic_auth":      username, password, headers (optional)
//	"ssh_key":         key, passphrase (optional), fingerprints
//	"github_app_auth": integration_id, installation_id, private_key
type SecretProvider interface {
	GetSecret(ctx context.Context, name string) (map[string]any, error)
}

// Broadcaster receives ordered progress events for one workspace. Delivery
// semantics (fan-out, buffering, subscriber management) are entirely the
// implementation's concern; the engine never blocks waiting for an
// acknowledgment, so implementations must not block either.
type Broadcaster interface {
	Send(event Event)
}

// Event is one progress message emitted by the orchestrator. Type is "log"
// while a job is running and "complete" for the terminal message.
type Event struct {
	Type    string `json:"type"`
	Level   string `json:"level,omitempty"`
	Message string `json:"message"`
	// Paths carries the conflicting files on a "complete" event that ends
	// in a merge conflict.
	Paths []string `json:"paths,omitempty"`
}

// Installer runs the dependency installation step after a destructive
// workspace replace left a dependency manifest behind. Errors are logged by
// the engine but never fail the replace.
type Installer interface {
	Install(ctx context.Context, workspaceDir string) error
}

// NopBroadcaster drops all events.
type NopBroadcaster struct{}

func (NopBroadcaster) Send(Event) {}
