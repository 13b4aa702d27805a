// Package capture delivers observations from a live interface or a recorded
// capture file.
package capture

import (
	"context"
	"fmt"

	"TSNSpectra/internal/model"
)

// Source produces observations until it is exhausted or ctx is cancelled.
// Implementations never close out.
type Source interface {
	Run(ctx context.Context, out chan<- model.Observation) error
}

// BPFFilter returns the kernel filter selecting VLAN-tagged traffic. A zero
// vlanID matches every VLAN; extra is and-ed onto the VLAN match.
func BPFFilter(vlanID int, extra string) string {
	f := "vlan"
	if vlanID > 0 {
		f = fmt.Sprintf("vlan %d", vlanID)
	}
	if extra != "" {
		f = fmt.Sprintf("%s and (%s)", f, extra)
	}
	return f
}
