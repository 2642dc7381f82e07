package state

import "context"

// RunPoH drives the recorder's clock until the context is cancelled. The
// onTick function is called after every tick with the number of ticks since
// the recorder was last reset.
func (s *State) RunPoH(ctx context.Context, onTick func(ticks uint64)) {
	s.recorder.Run(ctx, s.genesis.TickDuration, s.genesis.HashesPerTick, func(ticks uint64) {
		s.metrics.Ticks.Inc()
		if onTick != nil {
			onTick(ticks)
		}
	})
}

// TickHeight returns the ticks recorded since the recorder was last reset.
func (s *State) TickHeight() uint64 {
	return s.recorder.Ticks()
}
