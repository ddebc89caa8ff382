package analyzer

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/lotas/doctrack/internal/applog"
	"github.com/lotas/doctrack/internal/types"
)

// LinkResult is the outcome of checking one linked document.
type LinkResult struct {
	URL    string
	IDs    []string // items pointing at URL
	IsDead bool
	Reason string
}

var skipPrefixes = []string{"about:", "mailto:", "file:", "javascript:", "data:"}

func shouldSkip(u string) bool {
	for _, prefix := range skipPrefixes {
		if strings.HasPrefix(u, prefix) {
			return true
		}
	}
	return false
}

// target is the absolute document a node links to. Nodes without a Link,
// such as trees posted by the extension, fall back to Address on the page's
// origin.
func target(base *url.URL, n *types.NavNode) (*url.URL, bool) {
	if n.Link != "" {
		u, err := url.Parse(n.Link)
		return u, err == nil
	}
	if n.Address == "" || strings.HasPrefix(n.Address, "#") {
		return nil, false
	}
	ref, err := url.Parse(n.Address)
	if err != nil {
		return nil, false
	}
	if base == nil {
		return ref, true
	}
	return base.ResolveReference(ref), true
}

// documents groups the tree's items by the document they link to. Fragments
// are dropped, so every heading of one page costs a single request.
func documents(pageURL string, nodes []*types.NavNode) ([]string, map[string][]string) {
	base, _ := url.Parse(pageURL)
	var order []string
	ids := make(map[string][]string)

	var walk func([]*types.NavNode)
	walk = func(ns []*types.NavNode) {
		for _, n := range ns {
			if u, ok := target(base, n); ok {
				u.Fragment = ""
				key := u.String()
				if _, seen := ids[key]; !seen {
					order = append(order, key)
				}
				ids[key] = append(ids[key], n.ID)
			}
			walk(n.Children)
		}
	}
	walk(nodes)
	return order, ids
}

// CheckLinks issues a HEAD request for every distinct document linked from
// nodes, ten at a time. 404 and 410 mark a link dead, as does a transport
// failure. Results keep tree order.
func CheckLinks(ctx context.Context, pageURL string, nodes []*types.NavNode) []LinkResult {
	client := &http.Client{
		Timeout: 5 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	order, ids := documents(pageURL, nodes)
	results := make([]LinkResult, len(order))

	sem := make(chan struct{}, 10)
	var wg sync.WaitGroup

	for i, u := range order {
		results[i] = LinkResult{URL: u, IDs: ids[u]}
		if shouldSkip(u) {
			continue
		}

		wg.Add(1)
		go func(r *LinkResult) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			req, err := http.NewRequestWithContext(ctx, http.MethodHead, r.URL, nil)
			if err != nil {
				r.IsDead = true
				r.Reason = "invalid URL"
				return
			}

			resp, err := client.Do(req)
			if err != nil {
				r.IsDead = true
				r.Reason = "unreachable"
				return
			}
			defer resp.Body.Close()

			if resp.StatusCode == 404 || resp.StatusCode == 410 {
				r.IsDead = true
				r.Reason = fmt.Sprintf("%d", resp.StatusCode)
			}
		}(&results[i])
	}

	wg.Wait()

	dead := 0
	for _, r := range results {
		if r.IsDead {
			dead++
		}
	}
	applog.Info("analyzer.links", "page", pageURL, "documents", len(results), "dead", dead)
	return results
}
