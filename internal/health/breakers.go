package health

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/sonus/internal/resilience"
)

// Breakers returns a readiness [Checker] that fails while any circuit breaker
// in reg is open. Half-open breakers are considered healthy: a probe is
// already allowed through, so the provider may be recovering.
func Breakers(reg *resilience.Registry) Checker {
	return Checker{
		Name: "breakers",
		Check: func(_ context.Context) error {
			var open []string
			for _, s := range reg.Snapshots() {
				if s.State == resilience.StateOpen {
					open = append(open, s.Name)
				}
			}
			if len(open) > 0 {
				return fmt.Errorf("circuits open: %s", strings.Join(open, ", "))
			}
			return nil
		},
	}
}
