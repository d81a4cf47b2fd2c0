// Package gemini adapts Google's Gemini API to the generation.Model
// interface.
//
// The adapter performs a single generateContent call per Complete and leaves
// retries and per-call timeouts to the orchestrator. Provider failures are
// classified into the generation error taxonomy:
//
//   - safety blocks on the prompt or the candidate map to ErrContentBlocked
//   - 429 and 5xx responses map to ErrTransientFailure
//   - 400, 401 and 403 responses map to ErrInvalidConfig
//   - empty or malformed responses map to ErrInvalidResponse
//
// Token usage comes from the response's usage metadata and is priced with the
// configured per-million rates.
package gemini
