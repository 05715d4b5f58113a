// Package config loads runtime configuration for the palette CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Environment: PALETTE_SERVER_ADDR, PALETTE_ACCESS_TOKEN, PALETTE_HISTORY_DB.
//  3. Optional JSON/JSONC file selected via -c or -config.
//  4. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string   address:port of the backend gRPC endpoint
//	-t string   bearer access token
//	-d string   path of the local history database
//	-r int      request timeout (seconds)
//
// # JSON schema
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "access_token": "eyJ...",
//	  "history_db_path": "palette.db",
//	  "request_timeout": "10s"
//	}
package config
