package registry

import "context"

// AmbientContext exposes the "current project" value attached to the
// logical call chain by whatever host dispatched the inbound event. Spec
// §9 calls for this to be carried as an ambient context value rather than
// thread-local storage; Go's context.Context is the idiomatic vehicle.
type AmbientContext interface {
	CurrentProject() string
}

type contextKey struct{}

type ambientValue struct {
	project string
}

func (a ambientValue) CurrentProject() string { return a.project }

// WithProject attaches a current-project value to ctx for the duration of
// the logical call chain that follows.
func WithProject(ctx context.Context, projectID string) context.Context {
	return context.WithValue(ctx, contextKey{}, ambientValue{project: projectID})
}

// FromContext extracts the AmbientContext carried on ctx, if any.
func FromContext(ctx context.Context) AmbientContext {
	v, ok := ctx.Value(contextKey{}).(ambientValue)
	if !ok {
		return nil
	}
	return v
}
