package compose

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
)

// Project is the declared shape of a managed compose deployment.
type Project struct {
	Name     string
	Services map[string]Service
}

// Service captures the declared fields we track for a service.
type Service struct {
	Image         string
	ContainerName string
	Replicas      int
}

// ServiceNames returns the declared service names, sorted.
func (p Project) ServiceNames() []string {
	names := make([]string, 0, len(p.Services))
	for name := range p.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadProject parses a compose file from disk into the declared service
// model for the named project.
func LoadProject(ctx context.Context, name, path string) (Project, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Project{}, fmt.Errorf("read compose file: %w", err)
	}
	return ParseProject(ctx, name, filepath.Base(path), body)
}

// ParseProject parses compose content into the declared service model.
func ParseProject(ctx context.Context, name, filename string, body []byte) (Project, error) {
	if len(body) == 0 {
		return Project{}, errors.New("compose body is empty")
	}
	if filename == "" {
		filename = "compose.yml"
	}

	details := types.ConfigDetails{
		WorkingDir: ".",
		ConfigFiles: []types.ConfigFile{
			{
				Filename: filename,
				Content:  body,
			},
		},
		Environment: types.Mapping{},
	}

	loaded, err := loader.LoadWithContext(ctx, details, func(opts *loader.Options) {
		opts.SetProjectName(name, true)
	})
	if err != nil {
		return Project{}, fmt.Errorf("load compose: %w", err)
	}
	if len(loaded.Services) == 0 {
		return Project{}, errors.New("compose has no services")
	}

	project := Project{
		Name:     name,
		Services: make(map[string]Service, len(loaded.Services)),
	}

	for serviceName, service := range loaded.Services {
		if service.Image == "" && service.Build == nil {
			return Project{}, fmt.Errorf("service %q has neither image nor build", serviceName)
		}

		replicas := 1
		if service.Deploy != nil && service.Deploy.Replicas != nil {
			replicas = *service.Deploy.Replicas
		} else if service.Scale != nil {
			replicas = *service.Scale
		}

		project.Services[serviceName] = Service{
			Image:         service.Image,
			ContainerName: service.ContainerName,
			Replicas:      replicas,
		}
	}

	return project, nil
}
