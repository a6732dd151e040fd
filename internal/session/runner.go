package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/brightline-ai/agent-gateway/internal/agent"
	"github.com/brightline-ai/agent-gateway/pkg/logger"
	"github.com/brightline-ai/agent-gateway/pkg/metrics"
)

// User-facing reply text for non-success outcomes. The user always sees a
// chat message, never a fault.
const (
	unknownErrorText = "Unknown error"
	stillWorkingText = "The agent is taking longer than expected to respond. Please try again in a moment."
	noContentText    = "No response content found."
	noResponseText   = "No response received."
	runFailedText    = "The agent reported a failure while generating a response."
)

// OutcomeKind classifies how a run ended. Control decisions (fall back,
// invalidate session) are made on the kind, never on the reply text.
type OutcomeKind int

const (
	// OutcomeCompleted means the run produced a reply.
	OutcomeCompleted OutcomeKind = iota
	// OutcomeEmpty means the run completed but produced no text.
	OutcomeEmpty
	// OutcomeFailed means the service reported the run as failed.
	OutcomeFailed
	// OutcomeTimeout means the local attempt budget ran out while the run
	// was still non-terminal.
	OutcomeTimeout
	// OutcomeIndeterminate means the run reached a terminal status that is
	// neither completed nor failed.
	OutcomeIndeterminate
	// OutcomeTransport means a transport-level error was converted into a
	// textual reply.
	OutcomeTransport
	// OutcomeUnsupported means the backend has no event stream; the caller
	// retries in polling mode.
	OutcomeUnsupported
)

// String returns the kind's metric label.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCompleted:
		return "completed"
	case OutcomeEmpty:
		return "empty"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeIndeterminate:
		return "indeterminate"
	case OutcomeTransport:
		return "transport"
	case OutcomeUnsupported:
		return "unsupported"
	}
	return "unknown"
}

// Outcome is the terminal result of one run.
type Outcome struct {
	Kind  OutcomeKind
	Reply string
}

// FragmentSink receives the reply accumulated so far. Successive calls
// carry monotonically growing prefixes of the final reply.
type FragmentSink func(text string)

// runner drives one run from submission to a terminal outcome, by polling
// or by consuming the live event stream. Transport errors never escape it;
// they become textual outcomes.
type runner struct {
	transport    agent.Transport
	log          *logger.Logger
	pollInterval time.Duration
	maxPolls     int
	streamBudget time.Duration
}

// awaitReply submits a run and polls it to a terminal outcome. after is
// the creation ordinal of the just-submitted user message; only assistant
// messages at or past it count as the reply.
func (r *runner) awaitReply(ctx context.Context, threadID, agentID string, after int64) Outcome {
	run, err := r.transport.CreateRun(ctx, threadID, agentID)
	if err != nil {
		return transportOutcome(err)
	}

	status := run.Status
	for attempt := 0; attempt < r.maxPolls && !status.Terminal(); attempt++ {
		select {
		case <-ctx.Done():
			return transportOutcome(ctx.Err())
		case <-time.After(r.pollInterval):
		}

		run, err = r.transport.GetRun(ctx, threadID, run.ID)
		if err != nil {
			return transportOutcome(err)
		}
		status = run.Status
		metrics.RunPollsTotal.Inc()
	}

	switch {
	case status == agent.StatusCompleted:
		return r.collectReply(ctx, threadID, after)
	case status == agent.StatusFailed:
		msg := run.LastError
		if msg == "" {
			msg = unknownErrorText
		}
		return Outcome{Kind: OutcomeFailed, Reply: "Agent run failed: " + msg}
	case !status.Terminal():
		// Attempt budget exhausted; the remote run may still finish
		// server-side.
		r.log.Warn("run abandoned after poll budget",
			zap.String("run_id", run.ID),
			zap.String("status", string(status)),
		)
		return Outcome{Kind: OutcomeTimeout, Reply: stillWorkingText}
	default:
		return Outcome{
			Kind:  OutcomeIndeterminate,
			Reply: fmt.Sprintf("Agent run ended with status: %s", status),
		}
	}
}

// collectReply fetches the thread and returns the newest assistant message
// created at or after the submitted user message.
func (r *runner) collectReply(ctx context.Context, threadID string, after int64) Outcome {
	msgs, err := r.transport.ListMessages(ctx, threadID)
	if err != nil {
		return transportOutcome(err)
	}

	var reply string
	var bestOrdinal int64
	found := false
	for _, m := range msgs {
		if m.Role != agent.RoleAssistant || m.Ordinal < after {
			continue
		}
		if !found || m.Ordinal >= bestOrdinal {
			reply = m.Text
			bestOrdinal = m.Ordinal
			found = true
		}
	}

	if !found {
		return Outcome{Kind: OutcomeEmpty, Reply: noContentText}
	}
	return Outcome{Kind: OutcomeCompleted, Reply: reply}
}

// streamReply submits a run and assembles its reply from the live event
// stream. Events are handled one at a time, in arrival order; each delta
// publishes the accumulated prefix to sink. The stream handle is released
// on every exit path.
func (r *runner) streamReply(ctx context.Context, threadID, agentID string, sink FragmentSink) Outcome {
	ctx, cancel := context.WithTimeout(ctx, r.streamBudget)
	defer cancel()

	stream, err := r.transport.StreamRun(ctx, threadID, agentID)
	if err != nil {
		if errors.Is(err, agent.ErrStreamingUnsupported) {
			return Outcome{Kind: OutcomeUnsupported}
		}
		return transportOutcome(err)
	}
	defer stream.Close()

	var acc strings.Builder

loop:
	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return transportOutcome(err)
		}

		switch ev.Kind {
		case agent.EventDelta:
			acc.WriteString(ev.Delta)
			metrics.DeltaEventsTotal.Inc()
			if sink != nil {
				sink(acc.String())
			}
		case agent.EventRun:
			if ev.Run != nil && ev.Run.Status == agent.StatusFailed {
				return Outcome{Kind: OutcomeFailed, Reply: runFailedText}
			}
		case agent.EventError:
			return Outcome{Kind: OutcomeFailed, Reply: "Agent stream error: " + ev.Err}
		case agent.EventDone:
			break loop
		case agent.EventMessage, agent.EventStep:
			// Diagnostics only; no output derives from these.
			r.log.Debug("stream event ignored", zap.String("kind", string(ev.Kind)))
		}
	}

	if acc.Len() == 0 {
		return Outcome{Kind: OutcomeEmpty, Reply: noResponseText}
	}
	return Outcome{Kind: OutcomeCompleted, Reply: acc.String()}
}

func transportOutcome(err error) Outcome {
	return Outcome{Kind: OutcomeTransport, Reply: fmt.Sprintf("Error: %v", err)}
}
