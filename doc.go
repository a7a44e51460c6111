// Package cablelink bridges GraphQL subscription operations onto a Rails
// Action Cable connection.
//
// A Link owns the configuration for one cable endpoint. Each call to
// Subscribe produces an independent Stream: its own connection, its own
// retry timer, its own ordered event loop. The stream delivers every
// GraphQL result the server broadcasts and never terminates on its own;
// the caller ends it by cancelling the context or calling Close.
//
// Connection failures are not surfaced to the consumer. Lost or refused
// connections are retried indefinitely on a fixed delay until the stream
// is closed, and delivery resumes transparently after a reconnect. Callers
// who need an upper bound put a deadline on the context they subscribe with.
package cablelink
