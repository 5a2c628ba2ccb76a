package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brianly1003/aidesk/internal/pathutil"
)

// ProjectRoot maps a filesystem prefix to a project name. A workspace whose
// path falls under Root belongs to Name unless the session overrides it.
type ProjectRoot struct {
	Name      string    `yaml:"name"`
	Root      string    `yaml:"root"`
	AddedAt   time.Time `yaml:"added_at,omitempty"`
}

// ProjectsConfig represents the complete projects.yaml file.
type ProjectsConfig struct {
	Projects []ProjectRoot `yaml:"projects"`
}

// DefaultProjectsPath returns the default path for projects.yaml.
func DefaultProjectsPath() string {
	configDir, err := GetConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".aidesk", "projects.yaml")
	}
	return filepath.Join(configDir, "projects.yaml")
}

// LoadProjects loads the project-roots configuration from projects.yaml.
// A missing file is not an error: auto-detection simply matches nothing.
func LoadProjects(path string) (*ProjectsConfig, error) {
	if path == "" {
		path = DefaultProjectsPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ProjectsConfig{}, nil
		}
		return nil, fmt.Errorf("error reading projects config: %w", err)
	}

	var cfg ProjectsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing projects config: %w", err)
	}

	for i := range cfg.Projects {
		cfg.Projects[i].Root = pathutil.NormalizeWorkspaceID(cfg.Projects[i].Root)
	}

	return &cfg, nil
}

// SaveProjects saves the project-roots configuration.
func SaveProjects(path string, cfg *ProjectsConfig) error {
	if path == "" {
		path = DefaultProjectsPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal projects config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write projects config: %w", err)
	}

	return nil
}

// DetectProject returns the project whose root is the longest prefix of the
// workspace identifier's path. Returns ("", false) when no root matches.
func (c *ProjectsConfig) DetectProject(workspaceID string) (string, bool) {
	wsPath := pathutil.WorkspacePath(workspaceID)

	// Most-specific (longest) root wins.
	roots := make([]ProjectRoot, len(c.Projects))
	copy(roots, c.Projects)
	sort.Slice(roots, func(i, j int) bool {
		return len(roots[i].Root) > len(roots[j].Root)
	})

	for _, p := range roots {
		root := pathutil.WorkspacePath(p.Root)
		if root == "" || p.Name == "" {
			continue
		}
		if wsPath == root || strings.HasPrefix(wsPath, root+"/") {
			return p.Name, true
		}
	}

	return "", false
}
