// Package journal records every routed command, applied or rejected, in
// SQLite for later inspection.
//
// The journal is write-mostly audit data. Nothing reads it at startup and
// peripheral state is never reconstructed from it.
package journal
