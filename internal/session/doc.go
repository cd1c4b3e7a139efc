// Package session owns the authentication lifecycle of the client: restoring a
// persisted token pair, login, registration, logout and access-token refresh.
//
// State changes go through Reduce, a pure function over State and one of the
// Action values. Manager applies actions under its mutex, persists the token
// pair through a tokenstore.Store and publishes events for each outcome.
//
// Manager also implements transport.UnauthorizedHandler so the gateway can ask
// it to refresh after a 401. Concurrent refresh requests share one in-flight
// call.
package session
