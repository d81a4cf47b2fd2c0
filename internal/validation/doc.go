// Package validation sanitizes and vets generated vocabulary candidates.
//
// Sanitize reduces raw model or scraped text to plain prose. Validate checks a
// sanitized candidate for structural problems and runs the context-sensitive
// content filter, producing a clean, ambiguous or blocked verdict. Confidence
// folds the result, definition quality and source reliability into the score
// used to route a candidate to storage or human review.
package validation
