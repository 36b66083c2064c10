package notifications

import "slices"

// Patches below never modify their input page; each returns a copy.

func patchPage(snapshot any, fn func(Page) Page) any {
	page, ok := snapshot.(Page)
	if !ok {
		return snapshot
	}
	return fn(page)
}

func setRead(page Page, id string, read bool) Page {
	out := page
	out.Items = slices.Clone(page.Items)
	for i := range out.Items {
		if out.Items[i].ID == id {
			out.Items[i].IsRead = read
		}
	}
	return out
}

func replace(page Page, n Notification) Page {
	out := page
	out.Items = slices.Clone(page.Items)
	for i := range out.Items {
		if out.Items[i].ID == n.ID {
			out.Items[i] = n
		}
	}
	return out
}

func remove(page Page, id string) Page {
	idx := slices.IndexFunc(page.Items, func(n Notification) bool { return n.ID == id })
	if idx < 0 {
		return page
	}
	out := page
	out.Items = slices.Delete(slices.Clone(page.Items), idx, idx+1)
	if out.Meta.Total > 0 {
		out.Meta.Total--
	}
	return out
}

func readAll(page Page) Page {
	out := page
	out.Items = slices.Clone(page.Items)
	for i := range out.Items {
		out.Items[i].IsRead = true
	}
	return out
}

func adjustCount(snapshot any, delta int) any {
	n, ok := snapshot.(int)
	if !ok {
		return snapshot
	}
	return max(n+delta, 0)
}
