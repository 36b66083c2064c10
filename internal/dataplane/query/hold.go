package query

// The methods below let a mutation own an entry for the duration of a write:
// Hold captures key's entry and suspends its revalidation until Release. A
// pending revalidation is superseded so a read that started before the write
// cannot overwrite optimistic data; the entry keeps its data and settles to
// its last outcome. Only entries holding data are pinned: a first load in
// flight is left to finish for every observer sharing it, and returns a
// snapshot whose Present is false, as does a key with no entry.
func (c *Cache) Hold(key Key) Snapshot {
	c.mu.Lock()
	e, ok := c.entries[key.String()]
	if !ok || !e.hasData {
		c.mu.Unlock()
		return Snapshot{key: key.Clone()}
	}
	e.holds++

	var n *notice
	if e.flight != nil {
		c.supersede(e)
		e.stale = true
		e.status = StatusSuccess
		if e.err != nil {
			e.status = StatusError
		}
		n = c.notice(e)
	}
	snap := Snapshot{
		key:       e.key.Clone(),
		present:   true,
		data:      e.data,
		hasData:   e.hasData,
		status:    e.status,
		err:       e.err,
		fetchedAt: e.fetchedAt,
		stale:     e.stale,
	}
	c.mu.Unlock()

	n.deliver()
	return snap
}

// Patch replaces key's data with fn(data) when the entry holds data. It
// reports whether the entry was patched.
func (c *Cache) Patch(key Key, fn func(data any) any) bool {
	if fn == nil {
		return false
	}
	c.mu.Lock()
	e, ok := c.entries[key.String()]
	if !ok || !e.hasData {
		c.mu.Unlock()
		return false
	}
	e.data = fn(e.data)
	n := c.notice(e)
	c.mu.Unlock()

	n.deliver()
	return true
}

// Restore resets an entry to a snapshot taken by Hold.
func (c *Cache) Restore(s Snapshot) {
	if !s.present {
		return
	}
	c.mu.Lock()
	e, ok := c.entries[s.key.String()]
	if !ok {
		c.mu.Unlock()
		return
	}
	c.supersede(e)
	e.data = s.data
	e.hasData = s.hasData
	e.status = s.status
	e.err = s.err
	e.fetchedAt = s.fetchedAt
	e.stale = s.stale
	n := c.notice(e)
	c.mu.Unlock()

	n.deliver()
}

// Release drops one hold on key. When the last hold goes and the entry is
// stale and observed, it refetches.
func (c *Cache) Release(key Key) {
	c.mu.Lock()
	e, ok := c.entries[key.String()]
	if !ok || e.holds == 0 {
		c.mu.Unlock()
		return
	}
	e.holds--
	var n *notice
	if e.holds == 0 && e.stale && len(e.subs) > 0 && e.flight == nil {
		n = c.start(e)
	}
	c.mu.Unlock()

	n.deliver()
}
