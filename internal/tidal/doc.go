// Package tidal is a small client for the TIDAL v1 REST API and its OAuth2 device authorization flow.
//
// # Authentication
//
// [Client.StartDeviceLogin] requests a device code and a verification url. The user approves the code in a browser
// while [Client.CompleteDeviceLogin] polls the token endpoint through [golang.org/x/oauth2]. The result is a
// [Credential]: an OAuth2 token plus the user id and country code every catalog call needs.
// [MarshalCredential] and [UnmarshalCredential] define the on-disk format.
//
// # Catalog
//
// Every catalog method takes the [Credential] to act as, so the client itself holds no session state and is safe
// for concurrent use. Identifiers arrive from TIDAL as either JSON numbers or strings and are decoded into [ID].
//
// Non-2xx responses become [*APIError], which matches [shared.ErrNotFound], [shared.ErrRateLimited] or
// [shared.ErrUpstream] with [errors.Is].
package tidal
