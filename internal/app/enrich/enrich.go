package enrich

import (
	"context"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// Result is the best-effort outcome of resolving a product link. Callers
// must leave their own fields untouched when Success is false.
type Result struct {
	ExternalID  string `json:"external_id,omitempty"`
	Name        string `json:"name,omitempty"`
	CreatorName string `json:"creator_name,omitempty"`
	Success     bool   `json:"success"`
}

const (
	cacheTTL     = 24 * time.Hour
	cacheSweep   = time.Hour
	fetchTimeout = 5 * time.Second
	maxBodyBytes = 64 << 10
)

var (
	titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	digitRe = regexp.MustCompile(`^\d+$`)
)

// Service resolves shop links to product metadata. Successful resolutions
// are cached, so a populated external id is treated as present from then on.
type Service struct {
	HTTP  *http.Client
	cache *cache.Cache
}

func NewService() *Service {
	return &Service{
		HTTP:  &http.Client{Timeout: fetchTimeout},
		cache: cache.New(cacheTTL, cacheSweep),
	}
}

// Resolve never fails hard: any problem yields Success=false.
func (s *Service) Resolve(ctx context.Context, sourceURL string) Result {
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return Result{}
	}
	if hit, ok := s.cache.Get(sourceURL); ok {
		return hit.(Result)
	}

	externalID := productIDFromURL(sourceURL)
	if externalID == "" {
		return Result{}
	}

	res := Result{ExternalID: externalID, Success: true}
	if title := s.fetchTitle(ctx, sourceURL); title != "" {
		res.Name, res.CreatorName = splitTitle(title)
	}
	s.cache.Set(sourceURL, res, cache.DefaultExpiration)
	return res
}

// productIDFromURL understands the common shop link shapes: a products_id or
// product_id query parameter, or a trailing all-digit path segment.
func productIDFromURL(sourceURL string) string {
	u, err := url.Parse(sourceURL)
	if err != nil || u.Host == "" {
		return ""
	}
	q := u.Query()
	for _, key := range []string{"products_id", "product_id", "id"} {
		if v := strings.TrimSpace(q.Get(key)); digitRe.MatchString(v) {
			return v
		}
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if digitRe.MatchString(segments[i]) {
			return segments[i]
		}
	}
	return ""
}

func (s *Service) fetchTitle(ctx context.Context, sourceURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return ""
	}
	resp, err := s.HTTP.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return ""
	}
	m := titleRe.FindSubmatch(body)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(string(m[1])))
}

// splitTitle pulls an optional "<name> by <creator>" shape out of a page
// title.
func splitTitle(title string) (name, creator string) {
	if before, after, found := strings.Cut(title, " by "); found {
		return strings.TrimSpace(before), strings.TrimSpace(after)
	}
	return title, ""
}
