// Package cli provides the interactive palette command-line client.
//
// It wires configuration, the local history store and the gRPC API into a
// REPL. Commands: status, generate [harmony] [size], history [n],
// buy credits|pro, portal, export <id>, help, exit.
//
// When the server is unreachable the client switches to offline mode:
// generate keeps an unrecorded local preview and history reads the local
// cache. The REPL is started via App.Run(ctx), which blocks until the user
// exits.
package cli
