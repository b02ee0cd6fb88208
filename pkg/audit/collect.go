package audit

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/bytedance/sonic"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/panjf2000/ants/v2"

	"github.com/srediag/shm-counter/api"
)

// maxLine bounds a single JSON line in a hold log.
const maxLine = 64 << 10

// Collection holds the records of one run, grouped by holder.
type Collection struct {
	byHolder cmap.ConcurrentMap[string, []api.HoldRecord]
}

// NewCollection returns an empty collection.
func NewCollection() *Collection {
	return &Collection{byHolder: cmap.New[[]api.HoldRecord]()}
}

// Add appends records; safe for concurrent use.
func (c *Collection) Add(recs ...api.HoldRecord) {
	for _, r := range recs {
		c.byHolder.Upsert(r.Holder, nil, func(exist bool, old, _ []api.HoldRecord) []api.HoldRecord {
			return append(old, r)
		})
	}
}

// Holders returns the holder ids in sorted order.
func (c *Collection) Holders() []string {
	keys := c.byHolder.Keys()
	sort.Strings(keys)
	return keys
}

// Records returns every record, holders in sorted order.
func (c *Collection) Records() []api.HoldRecord {
	var out []api.HoldRecord
	for _, h := range c.Holders() {
		recs, _ := c.byHolder.Get(h)
		out = append(out, recs...)
	}
	return out
}

// Len returns the number of records.
func (c *Collection) Len() int {
	n := 0
	for _, recs := range c.byHolder.Items() {
		n += len(recs)
	}
	return n
}

// LoadFiles reads hold logs concurrently, at most workers at a time.
func LoadFiles(paths []string, workers int) (*Collection, error) {
	if workers <= 0 {
		workers = 4
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("audit: worker pool: %w", err)
	}
	defer pool.Release()

	c := NewCollection()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, path := range paths {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			if err := c.loadFile(path); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			mu.Lock()
			errs = append(errs, fmt.Errorf("audit: submit %s: %w", path, err))
			mu.Unlock()
		}
	}
	wg.Wait()
	return c, errors.Join(errs...)
}

func (c *Collection) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 4096), maxLine)
	var recs []api.HoldRecord
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var r api.HoldRecord
		if err := sonic.Unmarshal(sc.Bytes(), &r); err != nil {
			return fmt.Errorf("audit: %s:%d: %w", path, line, err)
		}
		recs = append(recs, r)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("audit: read %s: %w", path, err)
	}
	c.Add(recs...)
	return nil
}
