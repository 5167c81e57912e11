package session

import "context"

type stateKey struct{}

// WithState returns a copy of ctx carrying st.
func WithState(ctx context.Context, st *State) context.Context {
	return context.WithValue(ctx, stateKey{}, st)
}

// FromContext returns the session state stored by WithState.
func FromContext(ctx context.Context) (*State, bool) {
	st, ok := ctx.Value(stateKey{}).(*State)
	return st, ok && st != nil
}
