// Package conn manages database connections for the writer.
//
// A Manager hands out dedicated connections from a bounded pool and runs
// transactions on them. The live transaction travels in the
// context.Context, so store code called from inside WithTransaction finds it
// with TxFromContext instead of receiving it as a parameter.
//
// Errors from the driver are wrapped into *DatabaseError. Only code-less
// connection losses are transient (IsTransient) and worth a Retry; errors
// that carry a SQLSTATE or SQLite result code are final.
package conn
