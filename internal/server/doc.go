// Package server provides HTTP routing, middleware, the status API, and
// OAuth callback handling.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first),
// following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with
// method filtering.
//
// # Status API
//
// [APIHandler] exposes the sync engine over JSON: catalog counters and
// version, the live acquisition queue, recent activity, schedule
// introspection, manual sync triggers, and pause/resume. All endpoints are
// read-mostly; the only writes are the trigger and playlist configuration.
//
// # OAuth Callback Handler
//
// [OAuthHandler] implements the OAuth2 authorization code callback flow for
// Source login. The handler validates the state parameter, exchanges the
// authorization code for tokens, and sends the result through a channel. It
// only processes one callback to prevent replay attacks.
package server
