// Package gfs lists and downloads GFS 0.25 degree hourly forecast cycles from
// the NOMADS GrADS data server
package gfs

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/abelzeko/surgecast/internal/config"
	"github.com/abelzeko/surgecast/internal/entities"
	"github.com/abelzeko/surgecast/internal/forcing"
)

const DefaultURL = "http://nomads.ncep.noaa.gov:80/dods/gfs_0p25_1hr"

var (
	dayPattern = regexp.MustCompile(`gfs(\d{8})/?$`)
	// gfs_0p25_1hr_06z: GFS 0.25 deg starting from 06Z05sep2022, downloaded sep 05 10:41 UTC
	cyclePattern = regexp.MustCompile(`(gfs_0p25_1hr_(\d{2})z)[\s\x{00a0}]*:.*?from[\s\x{00a0}]+(\d{2}Z\d{2}[A-Za-z]{3}\d{4}),[\s\x{00a0}]*downloaded[\s\x{00a0}]+([A-Za-z]{3}[\s\x{00a0}]+\d{1,2}[\s\x{00a0}]+\d{2}:\d{2})`)
)

// Client checks the server for new cycles and stores them in the GFS directory
type Client struct {
	baseURL    string
	dir        string
	prefix     string
	minSize    int64
	attempts   int
	retryDelay time.Duration
	parallel   int
	lengthDays int
	httpClient *http.Client

	mu        sync.Mutex
	available []entities.SourceCycle
	remaining []entities.SourceCycle
}

// NewClient creates a client for the server in cfg.URL storing files in dir
func NewClient(cfg config.SourceConfig, dir string, lengthDays int) *Client {
	baseURL := cfg.URL
	if baseURL == "" {
		baseURL = DefaultURL
	}
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}
	parallel := cfg.Parallel
	if parallel < 1 {
		parallel = 1
	}
	if lengthDays < 1 {
		lengthDays = 5
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		dir:        dir,
		prefix:     cfg.Prefix,
		minSize:    cfg.MinFileSize,
		attempts:   attempts,
		retryDelay: cfg.RetryDelay,
		parallel:   parallel,
		lengthDays: lengthDays,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// ListDays scrapes the root listing for the available day directories, keyed by YYYYMMDD
func (c *Client) ListDays(ctx context.Context) (map[string]string, error) {
	doc, err := c.fetchDocument(ctx, c.baseURL)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %v", c.baseURL, err)
	}

	days := map[string]string{}
	doc.Find("a").Each(func(i int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		m := dayPattern.FindStringSubmatch(href)
		if m == nil {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			log.Printf("Skipping malformed day link %q: %v", href, err)
			return
		}
		days[m[1]] = strings.TrimSuffix(base.ResolveReference(ref).String(), "/")
	})
	log.Printf("Found %d available days on %s", len(days), c.baseURL)
	return days, nil
}

// ListCycles scrapes each day page for its cycles, oldest first
func (c *Client) ListCycles(ctx context.Context, days map[string]string) ([]entities.SourceCycle, error) {
	var cycles []entities.SourceCycle
	for day, dayURL := range days {
		doc, err := c.fetchDocument(ctx, dayURL)
		if err != nil {
			return nil, err
		}
		text := doc.Find("body").Text()
		for _, m := range cyclePattern.FindAllStringSubmatch(text, -1) {
			sc, err := parseCycleEntry(day, dayURL, m)
			if err != nil {
				log.Printf("Skipping cycle entry %q: %v", m[1], err)
				continue
			}
			cycles = append(cycles, sc)
		}
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i].ID < cycles[j].ID })
	return cycles, nil
}

func parseCycleEntry(day, dayURL string, m []string) (entities.SourceCycle, error) {
	id := day + m[2]
	cycle, err := entities.ParseCycle(id)
	if err != nil {
		return entities.SourceCycle{}, err
	}
	init, err := time.ParseInLocation("15Z02Jan2006", m[3], time.UTC)
	if err != nil {
		return entities.SourceCycle{}, fmt.Errorf("invalid init time %q: %v", m[3], err)
	}
	if !init.Equal(cycle.Time) {
		return entities.SourceCycle{}, fmt.Errorf("init time %s does not match cycle %s", m[3], id)
	}

	// the download stamp has no year
	stamp := strings.Join(strings.Fields(m[4]), " ")
	published, err := time.ParseInLocation("2006 Jan 2 15:04", fmt.Sprintf("%d %s", init.Year(), stamp), time.UTC)
	if err != nil {
		return entities.SourceCycle{}, fmt.Errorf("invalid download time %q: %v", m[4], err)
	}
	if published.Before(init) {
		published = published.AddDate(1, 0, 0)
	}

	return entities.SourceCycle{
		ID:          id,
		URL:         dayURL + "/" + m[1],
		InitTime:    init,
		PublishedAt: published,
	}, nil
}

// Check lists the available cycles and returns those not yet downloaded,
// oldest first. A downloaded cycle is a local file larger than the minimum size.
func (c *Client) Check(ctx context.Context) ([]entities.SourceCycle, error) {
	days, err := c.ListDays(ctx)
	if err != nil {
		return nil, err
	}
	available, err := c.ListCycles(ctx, days)
	if err != nil {
		return nil, err
	}

	downloaded, err := c.Downloaded()
	if err != nil {
		return nil, err
	}
	var remaining []entities.SourceCycle
	for _, sc := range available {
		if _, ok := downloaded[sc.ID]; !ok {
			remaining = append(remaining, sc)
		}
	}

	c.mu.Lock()
	c.available = available
	c.remaining = remaining
	c.mu.Unlock()

	log.Printf("GFS cycles: %d available, %d downloaded, %d remaining",
		len(available), len(available)-len(remaining), len(remaining))
	return remaining, nil
}

// Downloaded lists the complete local files keyed by cycle id
func (c *Client) Downloaded() (map[string]entities.ForcingFile, error) {
	entries, err := forcing.Scan(c.dir, c.prefix, c.lengthDays)
	if err != nil {
		return nil, err
	}
	files := map[string]entities.ForcingFile{}
	for _, e := range entries {
		if e.Size <= c.minSize {
			continue
		}
		files[e.Cycle.String()] = entities.ForcingFile{Cycle: e.Cycle.String(), Path: e.Path, Size: e.Size}
	}
	return files, nil
}

// Last returns the newest cycle found by the previous Check
func (c *Client) Last() (entities.SourceCycle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.available) == 0 {
		return entities.SourceCycle{}, false
	}
	return c.available[len(c.available)-1], true
}

// Remaining returns the cycles the previous Check found missing locally
func (c *Client) Remaining() []entities.SourceCycle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]entities.SourceCycle(nil), c.remaining...)
}

func (c *Client) fetchDocument(ctx context.Context, target string) (*goquery.Document, error) {
	body, err := c.get(ctx, target)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %v", target, err)
	}
	return doc, nil
}

// get retries failed requests with a linearly growing delay. The caller closes the body.
func (c *Client) get(ctx context.Context, target string) (io.ReadCloser, error) {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			log.Printf("Attempt %d/%d for %s after: %v", attempt, c.attempts, target, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(attempt-1)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request for %s: %v", target, err)
		}
		res, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		if res.StatusCode != http.StatusOK {
			res.Body.Close()
			lastErr = fmt.Errorf("unexpected status code: %d %s", res.StatusCode, res.Status)
			continue
		}
		return res.Body, nil
	}
	return nil, fmt.Errorf("failed to fetch %s after %d attempts: %v", target, c.attempts, lastErr)
}
