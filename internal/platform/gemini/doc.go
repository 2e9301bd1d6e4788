// Package gemini implements the text-completion collaborator on top of
// Google's Gemini API. It makes exactly one bounded GenerateContent call per
// Complete; retry policy belongs to the synthesizer, not the client.
package gemini
