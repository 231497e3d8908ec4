// Package session keeps the bounded, in-memory turn history of every
// conversation the bot is having.
//
// Invariants:
// - A conversation is identified only by its (room, participant) Key.
// - History never holds more than Config.MaxTurns turns; the oldest are
//   dropped after an append, never before it.
// - LastActiveAt moves on GetOrCreate and Append only; the Reaper never
//   refreshes it.
// - Callers receive Session snapshots; the live record stays in the Store.
//
// Usage:
//
//	store := session.NewStore(session.DefaultConfig())
//	key := session.Key{Room: "general", Participant: "chulsoo"}
//	store.Append(key, session.RoleUser, "my name is Chulsoo")
//	store.Append(key, session.RoleAssistant, "Noted, Chulsoo")
//	sess := store.GetOrCreate(key)
//	_ = sess.History
package session
