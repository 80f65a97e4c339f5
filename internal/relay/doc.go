// Package relay fans synchronizer state out to other systems and accepts
// commands from them.
//
// A Relay subscribes to the store, diffs consecutive states by device id
// and hands the differences to its sinks on a single worker goroutine:
//
//	Store ──offer──▶ latest ──signal──▶ worker ──Diff──▶ MQTTSink
//	                                                 └──▶ InfluxSink
//
// Only the newest state is buffered. A burst of store commits collapses
// into one diff, and a slow broker never delays the store or its other
// subscribers.
//
// Commands listens on {prefix}/command/# and maps refresh, toggle, scene
// and routine messages onto the synchronizer.
package relay
