package etl

import (
	"context"
	"fmt"
	"maps"
	"net/url"
	"sync"
	"time"

	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/domain/etl"
	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/infrastructure/prohandel"
)

type fetchCall struct {
	endpoint string
	query    url.Values
}

// fakeFetcher serves canned records per endpoint. failures[endpoint] errors
// are returned, one per call, before the records are served.
type fakeFetcher struct {
	mu       sync.Mutex
	records  map[string][]etl.RawRecord
	failures map[string][]error
	calls    []fetchCall
	// block, when set, is waited on before a fetch returns; blockOn limits
	// it to the listed endpoints
	block   chan struct{}
	blockOn map[string]bool
	// started receives the endpoint of every fetch
	started chan string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		records:  map[string][]etl.RawRecord{},
		failures: map[string][]error{},
	}
}

func (f *fakeFetcher) FetchAllPages(ctx context.Context, endpoint string, query url.Values, _ ...prohandel.PageOption) ([]etl.RawRecord, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{endpoint: endpoint, query: query})
	var err error
	if errs := f.failures[endpoint]; len(errs) > 0 {
		err = errs[0]
		f.failures[endpoint] = errs[1:]
	}
	records := f.records[endpoint]
	block, started := f.block, f.started
	if f.blockOn != nil && !f.blockOn[endpoint] {
		block = nil
	}
	f.mu.Unlock()

	if started != nil {
		started <- endpoint
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (f *fakeFetcher) callsTo(endpoint string) []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fetchCall
	for _, c := range f.calls {
		if c.endpoint == endpoint {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeFetcher) endpoints() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.endpoint
	}
	return out
}

// memoryLoader upserts by business key into maps and records load order
type memoryLoader struct {
	mu        sync.Mutex
	branches  map[int]etl.Branch
	articles  map[int64]etl.Article
	customers map[int]etl.Customer
	sales     map[string]etl.Sale
	jobs      []string
	lastSync  *time.Time
	failJob   string
	failErr   error
	// enforceBranches rejects sales whose branch is not loaded yet
	enforceBranches bool
}

func newMemoryLoader() *memoryLoader {
	return &memoryLoader{
		branches:  map[int]etl.Branch{},
		articles:  map[int64]etl.Article{},
		customers: map[int]etl.Customer{},
		sales:     map[string]etl.Sale{},
	}
}

func (l *memoryLoader) begin(job string) error {
	l.jobs = append(l.jobs, job)
	if l.failJob == job {
		return etl.NewLoadError(job, l.failErr)
	}
	return nil
}

func (l *memoryLoader) LoadBranches(_ context.Context, branches []etl.Branch) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.begin(etl.JobLoadBranches); err != nil {
		return err
	}
	for _, b := range branches {
		l.branches[b.BranchNumber] = b
	}
	return nil
}

func (l *memoryLoader) LoadArticles(_ context.Context, articles []etl.Article) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.begin(etl.JobLoadArticles); err != nil {
		return err
	}
	for _, a := range articles {
		l.articles[a.ArticleNumber] = a
	}
	return nil
}

func (l *memoryLoader) LoadCustomers(_ context.Context, customers []etl.Customer) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.begin(etl.JobLoadCustomers); err != nil {
		return err
	}
	for _, c := range customers {
		l.customers[c.CustomerNumber] = c
	}
	return nil
}

func (l *memoryLoader) LoadSales(_ context.Context, sales []etl.Sale) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.begin(etl.JobLoadSales); err != nil {
		return err
	}
	if l.enforceBranches {
		for _, s := range sales {
			if _, ok := l.branches[s.BranchNumber]; !ok {
				return etl.NewLoadError(etl.JobLoadSales, fmt.Errorf("sale %s: unknown branch %d", s.ID, s.BranchNumber))
			}
		}
	}
	for _, s := range sales {
		l.sales[s.ID] = s
	}
	return nil
}

func (l *memoryLoader) GetLastSyncDate(context.Context) (*time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSync, nil
}

func (l *memoryLoader) jobOrder() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.jobs...)
}

// snapshot returns the stored rows keyed the same way a database would be
func (l *memoryLoader) snapshot() (map[int]etl.Branch, map[int64]etl.Article, map[int]etl.Customer, map[string]etl.Sale) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return maps.Clone(l.branches), maps.Clone(l.articles), maps.Clone(l.customers), maps.Clone(l.sales)
}
