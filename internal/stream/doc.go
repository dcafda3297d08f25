// Package stream recovers generation task ids from streamed submit responses.
//
// A submit response body is split into two independent branches: the primary
// branch is relayed to the caller, and a sniffer branch is drained in the
// background until a `data:` line carries a task_id. The task is registered
// even if the caller abandons its branch.
package stream
