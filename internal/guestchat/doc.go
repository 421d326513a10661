// Package guestchat is the contact-center side of the bridge.
//
// It provides a REST client for the guest chat API (chat creation, message
// posting, member info lookup) and the typed event model for frames arriving
// on a chat's websocket event stream. The configured api_base should point at
// the guest chat resource root, e.g.
// "https://api.example.com/api/v2/webchat/guest"; the client appends
// "/conversations/..." paths to it.
//
// Chat creation is unauthenticated and returns a per-chat JWT that all later
// calls for that chat must carry. A rejected post whose body reports the
// conversation is not active maps to ErrChatNotActive, which callers treat as
// a signal to drop the chat binding.
package guestchat
