package discovery

// Detector passes the first event per mint and drops repeats. It remembers
// at most limit mints, forgetting the oldest first. Not safe for concurrent use.
type Detector struct {
	limit int
	seen  map[string]struct{}
	order []string
}

// NewDetector creates a detector remembering up to limit mints (0 = 10000).
func NewDetector(limit int) *Detector {
	if limit <= 0 {
		limit = 10_000
	}
	return &Detector{limit: limit, seen: make(map[string]struct{}, limit)}
}

// First reports whether mint has not been seen, and records it.
func (d *Detector) First(mint string) bool {
	if _, ok := d.seen[mint]; ok {
		return false
	}
	if len(d.order) >= d.limit {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.seen, oldest)
	}
	d.seen[mint] = struct{}{}
	d.order = append(d.order, mint)
	return true
}
