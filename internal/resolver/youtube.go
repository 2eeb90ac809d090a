package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
)

const titleCacheTTL = 24 * time.Hour

// Resolver turns raw YouTube links into Video references, enriching them with
// a title from the YouTube Data API when a key is configured. Title lookups
// degrade to a placeholder; only an unrecognizable URL fails Resolve.
type Resolver struct {
	apiKey    string
	videosURL string
	http      *http.Client
	rdb       *redis.Client // optional title cache, may be nil
}

func New(apiKey, videosURL string, rdb *redis.Client) *Resolver {
	return &Resolver{
		apiKey:    apiKey,
		videosURL: videosURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		rdb: rdb,
	}
}

func (r *Resolver) Resolve(ctx context.Context, rawURL string) (Video, error) {
	id, ok := ExtractID(rawURL)
	if !ok {
		return Video{}, fmt.Errorf("not a recognizable YouTube URL: %s", rawURL)
	}

	title := r.lookupTitle(ctx, id)
	if title == "" {
		title = "YouTube Video: " + id
	}

	return Video{
		ID:    id,
		Title: title,
		URL:   rawURL,
	}, nil
}

type ytVideosResponse struct {
	Items []struct {
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
	} `json:"items"`
}

// lookupTitle returns the video title or "" when lookup is unavailable.
func (r *Resolver) lookupTitle(ctx context.Context, id string) string {
	if title := r.cachedTitle(ctx, id); title != "" {
		return title
	}
	if r.apiKey == "" {
		return ""
	}

	val := url.Values{}
	val.Set("part", "snippet")
	val.Set("id", id)
	val.Set("key", r.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.videosURL+"?"+val.Encode(), nil)
	if err != nil {
		log.Printf("resolver: build title request: %v", err)
		return ""
	}

	resp, err := r.http.Do(req)
	if err != nil {
		log.Printf("resolver: fetch title for %s: %v", id, err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("resolver: youtube status %d for %s", resp.StatusCode, id)
		return ""
	}

	var body ytVideosResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		log.Printf("resolver: decode title response: %v", err)
		return ""
	}
	if len(body.Items) == 0 {
		return ""
	}

	title := body.Items[0].Snippet.Title
	r.storeTitle(ctx, id, title)
	return title
}

func (r *Resolver) cachedTitle(ctx context.Context, id string) string {
	if r.rdb == nil {
		return ""
	}
	title, err := r.rdb.Get(ctx, "yt:title:"+id).Result()
	if err != nil {
		return ""
	}
	return title
}

func (r *Resolver) storeTitle(ctx context.Context, id, title string) {
	if r.rdb == nil || title == "" {
		return
	}
	if err := r.rdb.Set(ctx, "yt:title:"+id, title, titleCacheTTL).Err(); err != nil {
		log.Printf("resolver: cache title for %s: %v", id, err)
	}
}
