// Package pipeline composes request authentication as an ordered list of
// stages: parse the credential, validate it, then notify listeners. Each
// stage moves a RequestAuth through the states
//
//	Unauthenticated -> Validating -> Authenticated | Rejected
//
// A request without a credential stays Unauthenticated and is left for the
// downstream authorization layer to accept or refuse. The package does not
// depend on any web framework; adapters such as jwtware translate a framework
// request into a RequestAuth and act on the final state.
package pipeline
