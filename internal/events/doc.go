// Package events delivers the terminal outcomes of tracked generation tasks
// to whoever is listening.
//
// The primary component is Bus: a fan-out publisher with explicit
// subscribe/unsubscribe lifetimes. Successful outcomes published while nobody
// is subscribed are buffered for a bounded time and flushed to the listeners
// present shortly after the next subscription, so a chat view that mounts
// after its job finished still receives the result.
package events
