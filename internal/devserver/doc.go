// Package devserver is a local implementation of the finbot REST API used
// for development and end-to-end tests of the client.
//
// It persists accounts, conversations and messages in SQLite
// (modernc.org/sqlite), issues HS256 access and refresh JWTs, hashes
// passwords with bcrypt and answers every user message with a canned
// assistant reply that tags the stock symbols found in the question.
//
// # Routes
//
//	POST   /api/v1/accounts/login/
//	POST   /api/v1/accounts/register/
//	GET    /api/v1/accounts/me/
//	POST   /api/v1/accounts/refresh-token/
//	POST   /api/v1/accounts/logout/
//	GET    /api/v1/chat/conversations/list/
//	POST   /api/v1/chat/conversations/
//	GET    /api/v1/chat/conversations/{id}/
//	PATCH  /api/v1/chat/conversations/{id}/update/
//	DELETE /api/v1/chat/conversations/{id}/delete/
//	GET    /api/v1/chat/conversations/{id}/messages/
//	POST   /api/v1/chat/conversations/{id}/messages/create/
//	GET    /health
//
// Successful chat responses wrap their payload in {"data": ...}; errors carry
// {"message": ..., "errors": {...}} or the {"detail": ...} form.
package devserver
