// Package chat merges chat message records arriving from optimistic inserts,
// generation notifications and history reloads into one deduplicated list.
package chat
