//go:build !windows

package features

import "context"

// State asks DISM directly where WMI is unavailable.
func (s *SystemQuery) State(ctx context.Context, identifier string) (State, error) {
	return s.dismState(ctx, identifier)
}
