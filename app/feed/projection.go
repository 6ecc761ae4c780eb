package feed

import (
	"slices"

	"github.com/samber/lo"
)

// Project derives the visible item list. It never modifies items.
// Selected feed ids that no longer exist simply match nothing.
func Project(items []Item, prefs Preferences) []Item {
	selected := lo.Keyify(prefs.SelectedFeeds)

	view := lo.Filter(items, func(item Item, _ int) bool {
		if len(selected) > 0 {
			if _, ok := selected[item.FeedID]; !ok {
				return false
			}
		}
		return !prefs.ShowOnlyUnread || !item.IsRead
	})

	// Ties keep collection order.
	slices.SortStableFunc(view, func(a, b Item) int {
		return b.PubDate.Compare(a.PubDate)
	})

	return view
}
