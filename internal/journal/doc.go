// Package journal records dispatched realtime events in PostgreSQL.
//
// The Writer is a dispatcher subscriber. It buffers events in memory and
// writes them in batches with COPY, flushing when a batch fills or the flush
// interval elapses. A full buffer drops the event so dispatch never blocks.
package journal
