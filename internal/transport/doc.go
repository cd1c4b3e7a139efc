// Package transport is the single HTTP gateway between the client and the
// financial-assistant backend.
//
// # Normalization
//
// Every call ends in exactly one of three outcomes:
//
//   - success: the 2xx body is decoded into the caller's value. A 204, an
//     empty body, or a body that is not valid JSON leaves the value untouched
//     and still counts as success.
//   - *APIError: a non-2xx response, carrying the HTTP status, the server's
//     "message" and the optional field-level "errors" object. When the error
//     body cannot be read the message is "API request failed".
//   - *NetworkError: the request never produced a response (connection
//     failure, cancelled or expired context).
//
// # Authentication
//
// A Request with a Token gets an "Authorization: Bearer <token>" header. When
// such a request comes back 401 the gateway notifies its UnauthorizedHandler
// once and then returns the 401 to the caller. It never replays the request.
//
// The gateway does not retry and has no default timeout; callers bound calls
// through the context they pass in.
package transport
