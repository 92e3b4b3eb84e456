package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/gobwas/glob"
	"github.com/goccy/go-yaml"
)

// Internal configuration data structures for the Conveyor git synchronization
// engine. A Root describes every workspace the engine may be asked to
// synchronize plus the secrets their remotes authenticate with.

// Root is the top-level configuration structure.
type Root struct {
	Workspaces map[string]*Workspace `json:"workspaces,omitempty"`
	Secrets    map[string]*Secret    `json:"secrets,omitempty"`
	Database   *Database             `json:"database,omitempty"`
	Service    *Service              `json:"service,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

// Workspace binds a workspace directory to the git remote it mirrors.
type Workspace struct {
	Name string `json:"-"`
	Path string `json:"path"`
	Git  Git    `json:"git"`

	_ struct{} `additionalProperties:"false"`
}

// Git defines the remote synchronization configuration for one workspace.
type Git struct {
	Repo        string     `json:"repo"`
	Branch      *string    `json:"branch,omitempty"`
	Credentials *SecretRef `json:"credentials,omitempty"` // If nil, the repository must be public.
	// Exclude lists glob patterns never staged by commit-all. Patterns are
	// matched against the slash-separated path relative to the workspace
	// root ("*.log", "tmp/**").
	Exclude []string `json:"exclude,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

func (g *Git) Equal(other *Git) bool {
	return fastEqual(g, other, func(g, other *Git) bool {
		return g.Repo == other.Repo &&
			stringPtrEqual(g.Branch, other.Branch) &&
			g.Credentials.Equal(other.Credentials) &&
			stringSliceEqual(g.Exclude, other.Exclude)
	})
}

// ExcludeGlobs compiles the configured exclude patterns. Invalid patterns are
// a configuration error, not something to paper over at stage time.
func (g *Git) ExcludeGlobs() ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(g.Exclude))
	for _, pattern := range g.Exclude {
		compiled, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("exclude pattern %q: %w", pattern, err)
		}
		globs = append(globs, compiled)
	}
	return globs, nil
}

// Database holds the job history database settings. Only SQLite is supported;
// the engine's durable merge state lives next to the workspace index, not
// here.
type Database struct {
	DSN string `json:"dsn,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

// Service holds engine-wide settings.
type Service struct {
	Workers int `json:"workers,omitempty"`
	// AuthorName/AuthorEmail form the fixed system identity used for
	// commits created by the engine.
	AuthorName  string `json:"author_name,omitempty"`
	AuthorEmail string `json:"author_email,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

// Parse reads, validates and links a configuration document.
func Parse(bs []byte) (*Root, error) {
	if err := validate(bs); err != nil {
		return nil, err
	}

	var root Root
	if err := yaml.Unmarshal(bs, &root); err != nil {
		return nil, err
	}

	for name, w := range root.Workspaces {
		if w == nil {
			return nil, fmt.Errorf("workspace %q: missing configuration", name)
		}
		w.Name = name
		if w.Path == "" {
			return nil, fmt.Errorf("workspace %q: 'path' is required", name)
		}
		if w.Git.Repo == "" {
			return nil, fmt.Errorf("workspace %q: 'git.repo' is required", name)
		}
		if _, err := w.Git.ExcludeGlobs(); err != nil {
			return nil, fmt.Errorf("workspace %q: %w", name, err)
		}
	}

	for name, s := range root.Secrets {
		if s == nil {
			root.Secrets[name] = &Secret{Name: name}
			continue
		}
		s.Name = name
	}

	// Link credential references to their secrets so that SecretRef.Resolve
	// works without carrying the Root around.
	for name, w := range root.Workspaces {
		ref := w.Git.Credentials
		if ref == nil {
			continue
		}
		secret, ok := root.Secrets[ref.Name]
		if !ok {
			return nil, fmt.Errorf("workspace %q: credentials %q not found", name, ref.Name)
		}
		ref.value = secret
	}

	return &root, nil
}

// ParseFile is Parse over the contents of path.
func ParseFile(path string) (*Root, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(bs)
}

// WorkspaceNames returns the configured workspace names in sorted order.
func (r *Root) WorkspaceNames() []string {
	names := make([]string, 0, len(r.Workspaces))
	for name := range r.Workspaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func stringPtrEqual(a, b *string) bool {
	return fastEqual(a, b, func(a, b *string) bool { return *a == *b })
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func fastEqual[V any](a, b *V, slowEqual func(a, b *V) bool) bool {
	if a == b {
		return true
	}

	if a == nil || b == nil {
		return false
	}

	return slowEqual(a, b)
}
