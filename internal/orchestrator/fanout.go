package orchestrator

import (
	"context"

	"github.com/dusk-indust/wavecheck/internal/agent"
	"github.com/dusk-indust/wavecheck/internal/model"
	"golang.org/x/sync/errgroup"
)

// AgentFunc runs one agent to completion. It must recover its own failures
// into the returned result.
type AgentFunc func(ctx context.Context, desc agent.Descriptor) model.AgentResult

// FanOut runs the agents of one wave in parallel and joins them.
type FanOut struct {
	onProgress func(ProgressEvent)
}

// NewFanOut creates a FanOut. onProgress is called synchronously from each
// goroutine; it may be nil.
func NewFanOut(onProgress func(ProgressEvent)) *FanOut {
	return &FanOut{onProgress: onProgress}
}

// Run starts fn for every agent and waits for all of them. A failing agent
// does not cancel its siblings. Results are returned in the order of agents,
// independent of completion order. onComplete, if set, sees each result as
// soon as its agent finishes.
func (f *FanOut) Run(ctx context.Context, wave int, agents []agent.Descriptor, fn AgentFunc, onComplete func(model.AgentResult)) []model.AgentResult {
	results := make([]model.AgentResult, len(agents))
	var g errgroup.Group

	for i, desc := range agents {
		f.emit(ProgressEvent{
			State:  StateWaveRunning,
			Wave:   wave,
			Agent:  string(desc.ID),
			Status: ProgressPending,
		})

		g.Go(func() error {
			f.emit(ProgressEvent{
				State:  StateWaveRunning,
				Wave:   wave,
				Agent:  string(desc.ID),
				Status: ProgressWorking,
			})

			res := fn(ctx, desc)
			results[i] = res
			if onComplete != nil {
				onComplete(res)
			}

			ev := ProgressEvent{
				State:   StateWaveRunning,
				Wave:    wave,
				Agent:   string(desc.ID),
				Status:  ProgressComplete,
				Message: string(res.Status),
				Elapsed: res.Duration,
			}
			if !res.Passed() {
				ev.Status = ProgressFailed
				ev.Message = res.Reason
				if res.Error != "" {
					ev.Message = res.Error
				}
			}
			f.emit(ev)
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// emit sends a progress event if a callback is registered.
func (f *FanOut) emit(ev ProgressEvent) {
	if f.onProgress != nil {
		f.onProgress(ev)
	}
}
