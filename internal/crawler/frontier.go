package crawler

// frontier is the FIFO of canonical URLs discovered but not yet
// dispatched, fused with the run's seen set.
//
// It is deliberately not safe for concurrent use: only the run loop owns
// it. Single ownership is what makes check-seen-and-enqueue atomic even
// while many fetches discover links concurrently; the discoveries arrive
// serialized over the outcomes channel.
type frontier struct {
	queue []string
	seen  map[string]bool
}

// newFrontier creates an empty frontier.
func newFrontier() *frontier {
	return &frontier{seen: make(map[string]bool)}
}

// push enqueues url unless it was ever seen before in this run.
// Reports whether the URL was actually enqueued. A URL is enqueued at
// most once across the lifetime of a run, no matter how many capsules
// link to it.
func (f *frontier) push(url string) bool {
	if f.seen[url] {
		return false
	}
	f.seen[url] = true
	f.queue = append(f.queue, url)
	return true
}

// pop dequeues the oldest URL. Reports false when the frontier is empty.
func (f *frontier) pop() (string, bool) {
	if len(f.queue) == 0 {
		return "", false
	}
	url := f.queue[0]
	f.queue = f.queue[1:]
	return url, true
}

// markSeen records url as seen without enqueueing it. Used for the final
// URLs of redirect chains so the same capsule is never fetched again
// under its post-redirect identity.
func (f *frontier) markSeen(url string) {
	f.seen[url] = true
}

// pending returns how many URLs wait to be dispatched.
func (f *frontier) pending() int {
	return len(f.queue)
}
