package adapter

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var ErrUnknownAdapter = errors.New("unknown adapter")

// UnknownAdapterError is returned by Resolve for an unregistered site type.
type UnknownAdapterError struct {
	SiteType  string
	Available []string
}

func (e *UnknownAdapterError) Error() string {
	return fmt.Sprintf("unknown adapter %q, available: %s", e.SiteType, strings.Join(e.Available, ", "))
}

func (e *UnknownAdapterError) Is(target error) bool {
	return target == ErrUnknownAdapter
}

// Info describes a registered adapter.
type Info struct {
	Type    string
	Name    string
	BaseURL string
}

type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// NewDefaultRegistry returns a registry with every built-in adapter.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(SichuanFGWType, func() Adapter { return NewSichuanFGW() })
	r.Register(ExampleOtherSiteType, func() Adapter { return NewExampleOtherSite() })
	return r
}

// Register adds or replaces the factory for siteType.
func (r *Registry) Register(siteType string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[siteType] = factory
}

func (r *Registry) Resolve(siteType string) (Adapter, error) {
	r.mu.RLock()
	factory, ok := r.factories[siteType]
	r.mu.RUnlock()

	if !ok {
		return nil, &UnknownAdapterError{SiteType: siteType, Available: r.Types()}
	}
	return factory(), nil
}

// Types lists the registered site types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func (r *Registry) Info(siteType string) (Info, error) {
	a, err := r.Resolve(siteType)
	if err != nil {
		return Info{}, err
	}
	return Info{Type: siteType, Name: a.Identity(), BaseURL: a.BaseURL()}, nil
}
