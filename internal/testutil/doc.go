// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing conversation items, scripted model responses
// and pre-populated sessions. It is not intended for production usage.
package testutil
