// Package api is the typed client for the financial-assistant backend REST
// surface (base path /api/v1).
//
// Each method maps to one endpoint and converts the backend's wire shapes
// (snake_case, numeric ids, message_type) into the domain types used by the
// session and chat packages. Calls go through a transport.Gateway, so errors
// are *transport.APIError or *transport.NetworkError.
//
//	gw := transport.NewGateway("http://localhost:8000/api/v1")
//	client := api.NewClient(gw)
//	convs, err := client.ListConversations(ctx, accessToken)
//
// The client is stateless: authenticated methods take the access token as an
// argument and never refresh it themselves.
package api
