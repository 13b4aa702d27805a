package capture

import (
	"context"

	"TSNSpectra/internal/model"
)

// ChannelSource relays observations produced elsewhere, such as by a NATS
// subscriber, into whichever session is currently running.
type ChannelSource struct {
	in <-chan model.Observation
}

// NewChannelSource creates a source reading from in.
func NewChannelSource(in <-chan model.Observation) *ChannelSource {
	return &ChannelSource{in: in}
}

// Run relays until in is closed or ctx is cancelled.
func (s *ChannelSource) Run(ctx context.Context, out chan<- model.Observation) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case o, ok := <-s.in:
			if !ok {
				return nil
			}
			select {
			case out <- o:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
