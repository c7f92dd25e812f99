package adminapi

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// overviewConcurrency bounds how many list calls the overview runs at once.
const overviewConcurrency = 4

// Overview returns the total item count of every collection in ResourceNames.
// The lists are fetched concurrently, so an expired token makes them all hit
// 401 together and share one refresh.
func (a *API) Overview(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int, len(ResourceNames))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(overviewConcurrency)

	for _, name := range ResourceNames {
		res, err := a.Records(name)
		if err != nil {
			return nil, err
		}

		g.Go(func() error {
			page, err := res.List(ctx, ListParams{Page: 1, Limit: 1})
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}

			mu.Lock()
			counts[name] = page.Total
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return counts, nil
}
