// Package generation calls the external text-generation endpoint with a
// per-attempt timeout and a bounded number of fixed-backoff retries.
//
// Invariants:
// - A missing or placeholder credential yields ErrUnconfigured without any
//   provider call.
// - Every failed attempt is either a transport fault or an endpoint fault;
//   both are retried the same way.
// - After MaxAttempts failures the outcome is an *ExhaustedError, which
//   matches ErrExhaustedRetries.
// - No wait follows the final attempt.
//
// Usage:
//
//	client, _ := generation.New(cfg)
//	res, err := client.Generate(ctx, prompt.Build(sess, preamble, query))
//	if errors.Is(err, generation.ErrUnconfigured) { ... }
package generation
