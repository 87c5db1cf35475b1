// Package sync coordinates the node's background synchronization: the
// connectivity monitor, the rule distribution client, the outbound
// queue drainer and the cache purger run off one orchestrator, and the
// aggregate status (connectivity, rule staleness, queue depth) is
// derived here.
package sync
