package thread

import (
	"commentary/api/internal/rbac"
	"commentary/api/internal/store"
)

// Actor is a caller acting on a thread. A nil *Actor is anonymous.
type Actor struct {
	Ref  store.Ref
	Name string
	Role rbac.Role
}

func (a *Actor) ref() *store.Ref {
	if a == nil {
		return nil
	}
	ref := a.Ref
	return &ref
}

// Registry resolves per-type configuration for commontables and knows which
// actor types are commentators. Register* calls must happen before the
// Registry is shared between goroutines.
type Registry struct {
	defaults     Config
	commontables map[string]Config
	commentators map[string]struct{}
}

func NewRegistry(defaults Config) *Registry {
	return &Registry{
		defaults:     defaults.withDefaults(DefaultConfig()),
		commontables: make(map[string]Config),
		commentators: make(map[string]struct{}),
	}
}

func (r *Registry) RegisterCommontable(typ string, cfg Config) {
	r.commontables[typ] = cfg.withDefaults(r.defaults)
}

func (r *Registry) RegisterCommentator(typ string) {
	r.commentators[typ] = struct{}{}
}

// ConfigFor returns the configuration for a commontable reference; nil (an
// archived thread) and unknown types get the defaults.
func (r *Registry) ConfigFor(commontable *store.Ref) Config {
	if commontable == nil {
		return r.defaults
	}
	if cfg, ok := r.commontables[commontable.Type]; ok {
		return cfg
	}
	return r.defaults
}

// IsCommontable reports whether typ was registered as a commontable type.
func (r *Registry) IsCommontable(typ string) bool {
	_, ok := r.commontables[typ]
	return ok
}

// IsCommentator reports whether actor is present and of a commentator type.
func (r *Registry) IsCommentator(actor *Actor) bool {
	if actor == nil {
		return false
	}
	_, ok := r.commentators[actor.Ref.Type]
	return ok
}
