// Package common contains shared constants and sentinel errors used across
// the palette server and CLI.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// StripeSignatureHeader is the HTTP header carrying the webhook signature.
const StripeSignatureHeader = "Stripe-Signature"

// UnlimitedGenerations is the sentinel reported as remaining generations
// for users on an unlimited plan.
const UnlimitedGenerations int64 = -1
