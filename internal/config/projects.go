package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ProjectMapping represents a single project → compose file mapping.
type ProjectMapping struct {
	Name        string `yaml:"name"`
	ComposeFile string `yaml:"compose_file"`
}

// ProjectsFile is the parsed YAML structure for multi-project configuration:
// projects: [{name, compose_file}]
type ProjectsFile struct {
	Projects []ProjectMapping `yaml:"projects"`
}

// LoadProjectsFile parses a YAML projects file from the given path.
func LoadProjectsFile(path string) ([]ProjectMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read projects file: %w", err)
	}

	var pf ProjectsFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse projects file: %w", err)
	}

	if err := validateProjects(pf.Projects); err != nil {
		return nil, err
	}

	return pf.Projects, nil
}

func validateProjects(mappings []ProjectMapping) error {
	if len(mappings) == 0 {
		return fmt.Errorf("projects file contains no projects")
	}

	seen := make(map[string]bool)

	for i, m := range mappings {
		if m.Name == "" {
			return fmt.Errorf("project %d: name is required", i)
		}

		if m.ComposeFile == "" {
			return fmt.Errorf("project %q: compose_file is required", m.Name)
		}

		if seen[m.Name] {
			return fmt.Errorf("project %q: duplicate name", m.Name)
		}
		seen[m.Name] = true
	}

	return nil
}
