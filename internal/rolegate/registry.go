package rolegate

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

type View struct {
	Name        string      `yaml:"name" json:"name"`
	Path        string      `yaml:"path" json:"path"`
	Requirement Requirement `yaml:",inline" json:"requirement"`
}

type ViewsFile struct {
	Views []View `yaml:"views"`
}

// Registry maps URL path prefixes to view requirements.
type Registry struct {
	mu    sync.RWMutex
	views []View
}

func NewRegistry(views ...View) *Registry {
	r := &Registry{}
	for _, v := range views {
		r.Register(v)
	}
	return r
}

// DefaultViews mirrors the dashboards the portal ships with.
func DefaultViews() []View {
	return []View{
		{Name: "admin", Path: "/admin", Requirement: RequireRoles(RoleAdmin)},
		{Name: "client", Path: "/client", Requirement: RequireRoles(RoleClient, RoleAdmin)},
		{Name: "dashboard", Path: "/dashboard", Requirement: RequireRoles(RoleUser, RoleClient, RoleAdmin)},
		{Name: "scrum", Path: "/dashboard/scrum", Requirement: Requirement{Roles: []Role{RoleUser, RoleAdmin}, ScrumMaster: true}},
	}
}

func LoadFromFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read views config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Registry, error) {
	var file ViewsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse views config: %w", err)
	}

	registry := NewRegistry()
	for i, v := range file.Views {
		if !strings.HasPrefix(v.Path, "/") {
			return nil, fmt.Errorf("view %d (%s): path must start with /", i, v.Name)
		}
		if len(v.Requirement.Roles) == 0 {
			return nil, fmt.Errorf("view %s: at least one role is required", v.Name)
		}
		for _, role := range v.Requirement.Roles {
			if !role.Valid() {
				return nil, fmt.Errorf("view %s: unknown role %q", v.Name, role)
			}
		}
		registry.Register(v)
	}
	return registry, nil
}

func (r *Registry) Register(v View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
	sort.SliceStable(r.views, func(i, j int) bool {
		return len(r.views[i].Path) > len(r.views[j].Path)
	})
}

// Match returns the most specific view guarding path. Unguarded paths
// return false and are public.
func (r *Registry) Match(path string) (View, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.views {
		if path == v.Path || strings.HasPrefix(path, strings.TrimSuffix(v.Path, "/")+"/") {
			return v, true
		}
	}
	return View{}, false
}

func (r *Registry) All() []View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]View, len(r.views))
	copy(out, r.views)
	return out
}
