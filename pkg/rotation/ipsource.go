package rotation

import (
	"context"
	"sync"
)

// ExitIPSource supplies candidate exit IPs for freshly produced stock
// items. Implementations live outside the engine (proxy providers); the
// engine only applies the dedup policy on top. An empty string means no
// candidate is available right now.
type ExitIPSource interface {
	CandidateIP(ctx context.Context, campaignID string) (string, error)
}

// StaticIPSource cycles through a fixed list of exit IPs. It backs
// deployments whose proxy pool is configured up front, and tests.
type StaticIPSource struct {
	mu   sync.Mutex
	ips  []string
	next int
}

func NewStaticIPSource(ips []string) *StaticIPSource {
	return &StaticIPSource{ips: append([]string(nil), ips...)}
}

func (s *StaticIPSource) CandidateIP(_ context.Context, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ips) == 0 {
		return "", nil
	}
	ip := s.ips[s.next%len(s.ips)]
	s.next++
	return ip, nil
}
