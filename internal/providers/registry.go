package providers

import (
	"fmt"
	"sort"

	"flavorwise/internal/core"
	"flavorwise/internal/providers/nebius"
)

// Registry holds the adapters built at startup. It is written only while
// building and is read-only afterwards.
type Registry struct {
	adapters map[core.CloudType]core.Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[core.CloudType]core.Adapter)}
}

// Register adds or replaces the adapter for its cloud.
func (r *Registry) Register(a core.Adapter) {
	r.adapters[a.Cloud()] = a
}

// Adapter returns the adapter for cloud, or InvalidArgument when the cloud is
// unknown or was not configured.
func (r *Registry) Adapter(cloud core.CloudType) (core.Adapter, error) {
	if _, err := core.ParseCloudType(string(cloud)); err != nil {
		return nil, err
	}
	a, ok := r.adapters[cloud]
	if !ok {
		return nil, core.NewInvalidArgumentError(fmt.Sprintf("cloud type %q is not configured", cloud), nil)
	}
	return a, nil
}

// Nebius returns the Nebius adapter used as the migration target.
func (r *Registry) Nebius() (*nebius.Adapter, error) {
	a, err := r.Adapter(core.CloudNebius)
	if err != nil {
		return nil, err
	}
	n, ok := a.(*nebius.Adapter)
	if !ok {
		return nil, core.NewInvalidArgumentError("nebius adapter does not support equivalent flavors", nil)
	}
	return n, nil
}

// Clouds returns the configured clouds in a stable order.
func (r *Registry) Clouds() []core.CloudType {
	out := make([]core.CloudType, 0, len(r.adapters))
	for c := range r.adapters {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of adapters.
func (r *Registry) Len() int {
	return len(r.adapters)
}
