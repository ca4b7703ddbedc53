package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

var errFakeOffline = errors.New("connection refused")

// fakeRemote keeps remote rows in memory, keyed by their JSON "id"
type fakeRemote struct {
	mu       sync.Mutex
	offline  bool
	failing  map[string]bool
	rows     map[string]map[string]map[string]any
	children map[string][]map[string]any
	upserts  map[string]int
	probes   int

	// upserts wait this long, or until their context ends
	upsertDelay time.Duration
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		failing:  map[string]bool{},
		rows:     map[string]map[string]map[string]any{},
		children: map[string][]map[string]any{},
		upserts:  map[string]int{},
	}
}

func (f *fakeRemote) setOffline(offline bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = offline
}

func (f *fakeRemote) failTable(table string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[table] = true
}

func (f *fakeRemote) Probe(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	if f.offline {
		return errFakeOffline
	}
	return nil
}

func decodeRows(rows any) []map[string]any {
	raw, err := json.Marshal(rows)
	if err != nil {
		panic(err)
	}
	var out []map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	return out
}

func (f *fakeRemote) setUpsertDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertDelay = d
}

func (f *fakeRemote) Upsert(ctx context.Context, table string, rows any) error {
	f.mu.Lock()
	f.upserts[table]++
	delay := f.upsertDelay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[table] {
		return errors.New("permission denied for table " + table)
	}
	if f.rows[table] == nil {
		f.rows[table] = map[string]map[string]any{}
	}
	for _, row := range decodeRows(rows) {
		f.rows[table][row["id"].(string)] = row
	}
	return nil
}

func (f *fakeRemote) ReplaceChildren(_ context.Context, table, parentColumn string, parentIDs []string, rows any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[table] {
		return errors.New("permission denied for table " + table)
	}
	parents := make(map[string]bool, len(parentIDs))
	for _, id := range parentIDs {
		parents[id] = true
	}
	kept := f.children[table][:0:0]
	for _, row := range f.children[table] {
		if !parents[row[parentColumn].(string)] {
			kept = append(kept, row)
		}
	}
	f.children[table] = append(kept, decodeRows(rows)...)
	return nil
}

func (f *fakeRemote) DeleteAll(_ context.Context, table string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[table] {
		return errors.New("permission denied for table " + table)
	}
	delete(f.rows, table)
	delete(f.children, table)
	return nil
}

func (f *fakeRemote) count(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows[table]) + len(f.children[table])
}

func (f *fakeRemote) row(table, id string) (map[string]any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[table][id]
	return row, ok
}

func (f *fakeRemote) upsertCalls(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upserts[table]
}
