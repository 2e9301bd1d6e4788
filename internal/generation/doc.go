// Package generation turns raw text into a validated quiz artifact. It
// defines the synthesizer contract, the text-completion collaborator
// boundary, and the error taxonomy recorded on failed tasks. The external
// collaborator is non-deterministic; this package's job is to make the shape
// of its output deterministic through a bounded validate-then-repair loop.
package generation
