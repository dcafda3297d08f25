package chat

import (
	"sort"

	"github.com/phrazzld/genwatch/internal/events"
)

// Reconcile merges candidate into list and returns the resulting list.
// Rules, in priority order:
//  1. a message with the same normalized image URL exists: the candidate is a
//     duplicate, and only fills fields the existing message lacks
//  2. a message with the same ID exists: fields are merged, preferring the
//     candidate's non-empty values
//  3. otherwise the candidate is appended
//
// list is not modified.
func Reconcile(list []Message, candidate Message) []Message {
	out := make([]Message, len(list), len(list)+1)
	copy(out, list)

	if key := candidate.normalizedURL(); key != "" {
		for i := range out {
			if out[i].normalizedURL() == key {
				out[i] = out[i].fillFrom(candidate)
				return out
			}
		}
	}

	if candidate.ID != "" {
		for i := range out {
			if out[i].ID == candidate.ID {
				out[i] = candidate.fillFrom(out[i])
				return out
			}
		}
	}

	return append(out, candidate)
}

// Remove returns list without the message with the given ID
func Remove(list []Message, id string) []Message {
	out := make([]Message, 0, len(list))
	for _, m := range list {
		if m.ID != id {
			out = append(out, m)
		}
	}
	return out
}

// ApplyNotification folds a generation outcome into list. A success attaches
// the image and generation time to the owner message, appending an assistant
// message if the owner is not in the list. A failure removes the owner message.
func ApplyNotification(list []Message, n events.Notification) []Message {
	if n.Kind == events.KindFailed {
		return Remove(list, n.OwnerMessageID)
	}

	candidate := Message{
		ID:                    n.OwnerMessageID,
		Kind:                  KindAssistant,
		ImageURL:              n.ResultURL,
		GenerationTimeSeconds: n.GenerationTimeSeconds,
	}
	for _, m := range list {
		if m.ID == n.OwnerMessageID {
			candidate.Kind = m.Kind
			candidate.Text = m.Text
			candidate.CreatedAt = m.CreatedAt
			break
		}
	}
	if candidate.CreatedAt.IsZero() {
		candidate.CreatedAt = n.OccurredAt
	}
	return Reconcile(list, candidate)
}

// MergeHistory replaces the list with a reloaded history page, folding in the
// messages still in flight. Duplicates within history are collapsed with the
// same rules as Reconcile, and the result is ordered by creation time, ties
// keeping their merge order.
func MergeHistory(history, inFlight []Message) []Message {
	var out []Message
	for _, m := range history {
		out = Reconcile(out, m)
	}
	for _, m := range inFlight {
		out = Reconcile(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
