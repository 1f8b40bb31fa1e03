package traffic

import "sort"

// UnknownIntersectionName labels identifiers missing from the directory.
const UnknownIntersectionName = "Unknown Intersection"

// DefaultNames is the built-in id to display-name table.
var DefaultNames = map[string]string{
	"int-001": "Main St & 5th Ave",
	"int-002": "Broadway & 42nd St",
	"int-003": "Park Ave & 34th St",
	"int-004": "Lexington & 59th St",
}

// Directory resolves intersection identifiers to display names. It is
// read-only after construction.
type Directory struct {
	names map[string]string
}

// NewDirectory copies names into a new Directory. A nil or empty map yields
// DefaultNames.
func NewDirectory(names map[string]string) *Directory {
	if len(names) == 0 {
		names = DefaultNames
	}
	d := &Directory{names: make(map[string]string, len(names))}
	for id, name := range names {
		d.names[id] = name
	}
	return d
}

// Name returns the display name for id.
func (d *Directory) Name(id string) string {
	if name, ok := d.names[id]; ok {
		return name
	}
	return UnknownIntersectionName
}

// Has reports whether id is in the directory.
func (d *Directory) Has(id string) bool {
	_, ok := d.names[id]
	return ok
}

// IDs returns the known identifiers in sorted order.
func (d *Directory) IDs() []string {
	ids := make([]string, 0, len(d.names))
	for id := range d.names {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Labels returns the display names of the known identifiers, in ID order.
func (d *Directory) Labels() []string {
	ids := d.IDs()
	labels := make([]string, 0, len(ids))
	for _, id := range ids {
		labels = append(labels, d.names[id])
	}
	return labels
}
