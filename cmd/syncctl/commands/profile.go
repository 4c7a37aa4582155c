package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Profile holds per-project defaults for syncctl invocations. Flags on
// individual commands override profile values.
type Profile struct {
	ProjectID        string `yaml:"project_id"`
	RepoPath         string `yaml:"repo_path"`
	ConflictStrategy string `yaml:"conflict_strategy"`
	TagHint          string `yaml:"tag_hint"`
}

// DefaultProfilePath returns the profile location under the user's home
// directory.
func DefaultProfilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".syncctl.yaml")
}

// LoadProfile reads the YAML profile at path. A missing file is not an
// error; it yields an empty profile.
func LoadProfile(path string) (*Profile, error) {
	if path == "" {
		path = DefaultProfilePath()
	}
	if path == "" {
		return &Profile{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Profile{}, nil
		}
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	return &p, nil
}

// resolve applies profile defaults to unset flag values
func (p *Profile) resolve(projectID, repoPath, strategy, tagHint *string) {
	if *projectID == "" {
		*projectID = p.ProjectID
	}
	if *repoPath == "" {
		*repoPath = p.RepoPath
	}
	if *strategy == "" {
		*strategy = p.ConflictStrategy
	}
	if *tagHint == "" {
		*tagHint = p.TagHint
	}
}
