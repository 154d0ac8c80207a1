/*
Package engine implements the pure derived-state engines: status,
confidence, uptime, anomaly, quality and ranking.

Every function in this package is total and deterministic: it performs no
I/O, reads no clocks, and returns a defined output for every valid input.
Insufficient data (no heartbeats, no window coverage) yields nil or a
zero value, never a panic. Callers load all inputs once, run the engines
in sequence, and persist one combined write.

Heartbeat slices are expected newest-first by server-received time; the
worker loads them that way from the store. Engines that need ordering
either rely on that contract (status, confidence, anomaly) or sort their
own working set (uptime), so results are independent of retrieval order.

Ranking is the odd one out: it reads only a DerivedState snapshot, never
raw heartbeats, and is computed by an independent pass.
*/
package engine
