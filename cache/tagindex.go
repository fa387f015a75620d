package cache

// tagIndex maps a tag to the set of keys currently carrying it, so
// invalidation resolves affected keys in O(k) instead of scanning the
// whole table.
//
// tagIndex does no locking of its own: it lives inside the memory
// tier's mutex domain and is only touched with that lock held, which
// keeps index and table from diverging under races.
type tagIndex struct {
	byTag map[string]map[string]struct{}
}

func newTagIndex() *tagIndex {
	return &tagIndex{byTag: make(map[string]map[string]struct{})}
}

// add records key under each tag.
func (ti *tagIndex) add(key string, tags []string) {
	for _, tag := range tags {
		set, ok := ti.byTag[tag]
		if !ok {
			set = make(map[string]struct{})
			ti.byTag[tag] = set
		}
		set[key] = struct{}{}
	}
}

// remove drops key from each tag's set, deleting sets that empty out.
func (ti *tagIndex) remove(key string, tags []string) {
	for _, tag := range tags {
		set, ok := ti.byTag[tag]
		if !ok {
			continue
		}
		delete(set, key)
		if len(set) == 0 {
			delete(ti.byTag, tag)
		}
	}
}

// replace reconciles key's membership when an overwrite changes its tag
// set: stale memberships go, new ones come.
func (ti *tagIndex) replace(key string, oldTags, newTags []string) {
	ti.remove(key, oldTags)
	ti.add(key, newTags)
}

// keysFor returns the union of keys under the given tags.
func (ti *tagIndex) keysFor(tags []string) []string {
	seen := make(map[string]struct{})
	for _, tag := range tags {
		for key := range ti.byTag[tag] {
			seen[key] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	return keys
}

// reset drops every membership.
func (ti *tagIndex) reset() {
	ti.byTag = make(map[string]map[string]struct{})
}
