package orchestrator

import "context"

// The three things a presentation layer can ask for.

// SubmitGoalOrChatText starts a run when no goal is set and chats otherwise.
func (o *Orchestrator) SubmitGoalOrChatText(ctx context.Context, text string) error {
	defer o.track()()
	if o.state.Goal() == "" {
		return o.Start(ctx, text)
	}
	return o.Chat(ctx, text)
}

func (o *Orchestrator) RequestSummary(ctx context.Context) error {
	defer o.track()()
	return o.Summarize(ctx)
}

func (o *Orchestrator) SubmitImage(ctx context.Context, data []byte) error {
	_, err := o.UploadImage(ctx, data)
	return err
}

// ReadyToSummarize reports whether a summary request makes sense now: some
// submission has finished, none is running, and there are results.
func (o *Orchestrator) ReadyToSummarize() bool {
	return o.submitted.Load() && o.inFlight.Load() == 0 && len(o.state.Run().Results) > 0
}

func (o *Orchestrator) track() func() {
	o.inFlight.Add(1)
	return func() {
		o.submitted.Store(true)
		o.inFlight.Add(-1)
	}
}
