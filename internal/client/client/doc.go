// Package client talks to the palette backend over gRPC and bootstraps the
// CLI's local sqlite history.
//
// GRPCClient attaches the access token to every call and maps gRPC status
// codes to the sentinel errors below, so callers can match them with
// errors.Is. A quota refusal arrives as *QuotaError carrying the caller's
// entitlement.
package client
