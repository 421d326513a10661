// Package messenger is the customer-platform side of the bridge: a small
// REST client that posts app-role text messages and typing activity to an
// app user's conversation. Requests are authenticated with an HS256 JWT
// minted from the configured key id and secret.
package messenger
