// Package bridge is the conversation correlation and event-routing engine.
//
// # Overview
//
// The bridge makes one logical conversation appear consistent across two
// independently operated platforms: a customer messaging platform that pushes
// webhook events, and a contact-center guest chat platform that streams
// events over a per-chat websocket.
//
// # Control flow
//
//  1. An inbound customer message arrives on the webhook endpoint.
//  2. The registry record is looked up or created.
//  3. With no guest chat bound yet, a chat is created and its event stream
//     opened; the triggering message is buffered until an agent connects.
//  4. Stream events (messages, typing, member joins and state changes) flow
//     through the Router, which mutates the registry and relays to the
//     customer platform.
//  5. An agent disconnect clears the chat binding and closes the stream; the
//     messenger-side identity survives, so a later customer message opens a
//     fresh chat.
//
// # Ordering
//
// All processing for one messenger conversation id runs on a dedicated
// worker, one task at a time, member-info lookups included. Event effects
// therefore always land in arrival order, and compound transitions (bind
// agent, flush buffered message, greet) are atomic with respect to other
// events for the same conversation.
package bridge
