package tracer

import (
	"github.com/sltsclo/detecter/analyzer"
	"github.com/sltsclo/detecter/event"
	"github.com/sltsclo/detecter/monitor"
)

// analyzerAgent is the external-analysis embodiment of spec.md §5: "its own
// goroutine, reachable only by message passing ... a tracer operating in
// this mode sends it one request per event and blocks for the reply,
// preserving the one-event-at-a-time contract." A tracer in AnalysisExternal
// mode owns exactly one analyzerAgent and never touches *analyzer.Analyzer
// directly, so the embedded monitor term is never shared across goroutines.
type analyzerAgent struct {
	analyzer *analyzer.Analyzer
	reqCh    chan analyzeRequest
	doneCh   chan struct{}
}

type analyzeRequest struct {
	Ev    event.Event
	Term  monitor.Term
	Embed bool
	Reply chan analyzeResult
}

type analyzeResult struct {
	Log  analyzer.Log
	Term monitor.Term
}

func newAnalyzerAgent(opts ...analyzer.Option) *analyzerAgent {
	a := &analyzerAgent{
		analyzer: analyzer.NewAnalyzer(opts...),
		reqCh:    make(chan analyzeRequest),
		doneCh:   make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *analyzerAgent) run() {
	for {
		select {
		case req := <-a.reqCh:
			if req.Embed {
				req.Reply <- analyzeResult{Term: a.analyzer.Embed(req.Term)}
				continue
			}
			entries, m2 := a.analyzer.Analyze(req.Ev, req.Term)
			req.Reply <- analyzeResult{Log: entries, Term: m2}
		case <-a.doneCh:
			return
		}
	}
}

// stop shuts down the agent's goroutine. It never fails; its error return
// exists only so callers can fold it into a multierr.Combine alongside
// other shutdown steps uniformly.
func (a *analyzerAgent) stop() error {
	close(a.doneCh)
	return nil
}
