// Package testutils provides HTTP helpers shared by tests that exercise the
// server through a real listener.
package testutils
