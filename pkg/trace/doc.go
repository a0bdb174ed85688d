// Package trace defines the event stream emitted by the statemachine engine and
// the sinks that consume it.
//
// Every transition invocation gets a tr_id; nested invocations carry the tr_id
// of whoever triggered them as parent_id and share the root_id of the whole
// causal tree. Each step of an invocation (start, lock, state change, side
// effect, callback, unlock, failure, background hand-off, chained transition)
// is published to a Sink as an Event.
//
// # Sinks
//
//   - LogSink writes events through a *slog.Logger.
//   - Recorder keeps events in memory; handy in tests and for BuildTree.
//   - Metrics exports Prometheus counters and a duration histogram.
//   - Multi fans an event out to several sinks.
//
// # Causal trees
//
// BuildTree reassembles a flat event log into the tree of invocations linked by
// parent_id. Ordering within one tr_id follows emission order; ordering across
// invocations is only meaningful through the parent links, never the timestamps.
//
//	rec := trace.NewRecorder()
//	// ... run transitions with statemachine.WithTraceSink(rec)
//	for _, root := range trace.BuildTree(rec.Events()) {
//	    root.Walk(func(depth int, n *trace.Node) {
//	        fmt.Printf("%s%s %s\n", strings.Repeat("  ", depth), n.Action, n.ID)
//	    })
//	}
package trace
