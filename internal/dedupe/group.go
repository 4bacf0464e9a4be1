package dedupe

import "path/filepath"

// Group is a set of files sharing a key. Name is empty when grouping by
// hash alone. Paths[0] is the copy that is kept.
type Group struct {
	Name  string   `json:"name,omitempty"`
	Hash  string   `json:"hash"`
	Paths []string `json:"paths"`
}

// Keep returns the retained path.
func (g *Group) Keep() string {
	return g.Paths[0]
}

// Duplicates returns the paths that would be removed.
func (g *Group) Duplicates() []string {
	return g.Paths[1:]
}

type groupKey struct {
	name string
	hash string
}

// GroupByHash groups records with identical content regardless of name.
func GroupByHash(records []HashRecord) []Group {
	return groupBy(records, func(r *HashRecord) groupKey {
		return groupKey{hash: r.Hash}
	})
}

// GroupByNameAndHash groups records with identical content and base name, so
// distinct names holding the same bytes are left alone.
func GroupByNameAndHash(records []HashRecord) []Group {
	return groupBy(records, func(r *HashRecord) groupKey {
		return groupKey{name: filepath.Base(r.Path), hash: r.Hash}
	})
}

// groupBy returns the groups with more than one member, ordered by first
// appearance. Paths keep record order.
func groupBy(records []HashRecord, key func(*HashRecord) groupKey) []Group {
	index := make(map[groupKey]int)

	var all []Group

	for i := range records {
		k := key(&records[i])

		pos, ok := index[k]
		if !ok {
			pos = len(all)
			index[k] = pos
			all = append(all, Group{Name: k.name, Hash: k.hash})
		}

		all[pos].Paths = append(all[pos].Paths, records[i].Path)
	}

	var dups []Group

	for i := range all {
		if len(all[i].Paths) > 1 {
			dups = append(dups, all[i])
		}
	}

	return dups
}
