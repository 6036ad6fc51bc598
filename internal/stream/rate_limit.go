package stream

import "sync"

// maxStreams caps progress streams across all clients.
const maxStreams = 100

// streamLimiter tracks concurrent SSE connections per IP and globally.
type streamLimiter struct {
	mu          sync.Mutex
	connections map[string]int
	total       int
	maxPerIP    int
}

func newStreamLimiter(maxPerIP int) *streamLimiter {
	return &streamLimiter{connections: make(map[string]int), maxPerIP: maxPerIP}
}

// acquire registers a new connection for ip, or returns false when the IP or
// global limit has been reached.
func (l *streamLimiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.total >= maxStreams || l.connections[ip] >= l.maxPerIP {
		return false
	}
	l.connections[ip]++
	l.total++
	return true
}

func (l *streamLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.connections[ip]--
	l.total--
	if l.connections[ip] <= 0 {
		delete(l.connections, ip)
	}
}

func (l *streamLimiter) count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connections[ip]
}
