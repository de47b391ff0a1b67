package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/mfg-ops/ordrefab/lifecycle"
)

// MockSweepArchive keeps published sweep reports in memory for testing
type MockSweepArchive struct {
	mu      sync.RWMutex
	reports map[string][]byte // key to encoded report
	err     error
}

// NewMockSweepArchive creates an empty in-memory archive
func NewMockSweepArchive() *MockSweepArchive {
	return &MockSweepArchive{reports: make(map[string][]byte)}
}

// FailWith makes every later publish fail with err (nil to recover)
func (m *MockSweepArchive) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// PublishSweep implements lifecycle.ReportSink
func (m *MockSweepArchive) PublishSweep(_ context.Context, report lifecycle.SweepReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode sweep report: %w", err)
	}
	m.reports[SweepKey(report)] = body
	return nil
}

// Keys lists the stored object keys in order
func (m *MockSweepArchive) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.reports))
	for k := range m.reports {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Report decodes the report stored under key
func (m *MockSweepArchive) Report(key string) (lifecycle.SweepReport, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var report lifecycle.SweepReport
	body, ok := m.reports[key]
	if !ok || json.Unmarshal(body, &report) != nil {
		return report, false
	}
	return report, true
}
