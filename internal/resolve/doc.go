// Package resolve decides between local and remote versions of a content
// item. Resolution is a pure function of the two items: version-keyed
// last-writer-wins, never wall-clock time, so clock skew between device and
// server cannot flip a decision.
package resolve
