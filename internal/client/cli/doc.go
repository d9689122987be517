// Package cli provides acctl, the interactive command-line client of the
// account context server.
//
// It wires configuration, the local state database, the gRPC client and a
// REPL. On start it restores the saved login and, if the last session is
// still alive, the active account. Commands cover the account lifecycle
// (list, create, switch, delete), the current session, and reading and
// writing storage entries in the active account's namespace.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
