// Package registry holds the authoritative mapping between messenger-side
// conversations and contact-center guest chats.
//
// Each Conversation record is keyed by the messenger conversation id, with a
// secondary lookup by guest chat id while one is bound. The center binding
// is learned incrementally across asynchronous platform events, so BindCenter
// applies field-wise partial updates; ClearCenter releases the whole binding
// as a unit, closing any open stream session first. Records themselves are
// never deleted: a conversation keeps its messenger identity for the process
// lifetime so a later customer message can open a fresh guest chat.
package registry
