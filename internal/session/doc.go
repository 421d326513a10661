// Package session manages the persistent websocket connection that carries
// guest chat events for one bridged conversation. The session decodes frames
// at the boundary, silently discards transport heartbeats, and forwards every
// application event to its handler tagged with the owning messenger
// conversation id. It never touches the registry: clearing state in response
// to closes and disconnect events is the event router's job.
package session
