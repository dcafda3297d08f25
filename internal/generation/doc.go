// Package generation describes the remote image generation worker as seen by
// the tracker: the phases a job moves through, the normalized status snapshot
// produced on every poll, and the rules that turn the loosely shaped status
// payloads the worker has historically returned into that snapshot.
package generation
