// Package orchestrator runs the per-message workflow: recognize the command,
// read the conversation, build the prompt, generate, commit and reply.
//
// Invariants:
// - Every dispatched trigger produces exactly one reply, including on
//   generation failure, queue overflow and panics.
// - A user/assistant turn pair is committed only after a successful
//   generation, user first.
// - A reset clears the conversation and never calls the generator.
// - Intake never waits on generation; workflows run on the command queue in
//   one lane per conversation.
package orchestrator
