package sessions

import "sync"

// MemoryBinding records installed tokens. The agent uses it when no native
// engine is attached; tests use it to observe installs.
type MemoryBinding struct {
	mu      sync.Mutex
	token   string
	path    string
	applied int
	err     error
}

func NewMemoryBinding() *MemoryBinding { return &MemoryBinding{} }

func (b *MemoryBinding) ApplyAccessToken(token, serverPath string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.token = token
	b.path = serverPath
	b.applied++
	return nil
}

// FailWith makes subsequent installs fail with err; nil restores normal behavior.
func (b *MemoryBinding) FailWith(err error) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}

// Token returns the last installed token and its server path.
func (b *MemoryBinding) Token() (string, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.token, b.path
}

// Applied returns how many tokens were installed.
func (b *MemoryBinding) Applied() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.applied
}
