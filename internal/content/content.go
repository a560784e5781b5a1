// Package content lists the site's published posts from its feed, for
// editors to queue and for refreshing queued links.
package content

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/ignite/campaignsync/internal/audience"
	"github.com/ignite/campaignsync/internal/cache"
	"github.com/ignite/campaignsync/internal/pkg/logger"
)

// ErrNoFeed means no feed URL is configured.
var ErrNoFeed = errors.New("content: no feed configured")

const (
	feedKey        = "content:feed"
	excerptWords   = 20
	searchMinChars = 3
	searchLimit    = 20
	recentLimit    = 10
)

// Post is one published piece of content.
type Post struct {
	ID            audience.ContentID `json:"id"`
	CreatedAt     *time.Time         `json:"created_at,omitempty"`
	Title         string             `json:"title"`
	Excerpt       string             `json:"excerpt"`
	LinkToContent string             `json:"link_to_content"`
	ThumbnailURL  string             `json:"thumbnail_url,omitempty"`
	KeepInQueue   bool               `json:"keep_in_queue"`
}

// Item converts the post into a queue item.
func (p Post) Item() audience.Item {
	return audience.Item{
		ID:            p.ID,
		Title:         p.Title,
		Excerpt:       p.Excerpt,
		LinkToContent: p.LinkToContent,
		ThumbnailURL:  p.ThumbnailURL,
		KeepInQueue:   p.KeepInQueue,
	}
}

// Source reads posts from an RSS or Atom feed.
type Source struct {
	feedURL string
	parser  *gofeed.Parser
	posts   *cache.Bucket
	log     *logger.Logger
}

// NewSource returns a Source for feedURL. Parsed feeds are kept in posts;
// nil keeps them in memory for five minutes.
func NewSource(feedURL string, timeout time.Duration, posts *cache.Bucket) *Source {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if posts == nil {
		posts = cache.NewBucket(cache.NewMemory(), nil, 5*time.Minute)
	}
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: timeout}
	return &Source{
		feedURL: feedURL,
		parser:  parser,
		posts:   posts,
		log:     logger.With("component", "content"),
	}
}

// Configured reports whether a feed URL is set.
func (s *Source) Configured() bool { return s != nil && s.feedURL != "" }

// Posts returns every post in the feed, newest first.
func (s *Source) Posts(ctx context.Context, force bool) ([]Post, error) {
	if !s.Configured() {
		return nil, ErrNoFeed
	}
	posts, err := cache.Load(ctx, s.posts, feedKey, force, s.fetch)
	if err != nil && posts == nil {
		return nil, err
	}
	if err != nil {
		s.log.Warn("feed cache write failed", "error", err)
	}
	return posts, nil
}

// Search returns posts whose title contains terms, or the newest posts
// when terms is shorter than three characters.
func (s *Source) Search(ctx context.Context, terms string) ([]Post, error) {
	posts, err := s.Posts(ctx, false)
	if err != nil {
		return nil, err
	}
	terms = strings.ToLower(strings.TrimSpace(terms))
	if len(terms) < searchMinChars {
		if len(posts) > recentLimit {
			posts = posts[:recentLimit]
		}
		return posts, nil
	}
	out := []Post{}
	for _, p := range posts {
		if strings.Contains(strings.ToLower(p.Title), terms) {
			out = append(out, p)
			if len(out) == searchLimit {
				break
			}
		}
	}
	return out, nil
}

// Post finds one post by id.
func (s *Source) Post(ctx context.Context, id audience.ContentID) (*Post, bool, error) {
	posts, err := s.Posts(ctx, false)
	if err != nil {
		return nil, false, err
	}
	for i := range posts {
		if posts[i].ID == id {
			return &posts[i], true, nil
		}
	}
	return nil, false, nil
}

// Permalink resolves the current link for a queued item.
func (s *Source) Permalink(ctx context.Context, id audience.ContentID) (string, bool) {
	p, ok, err := s.Post(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNoFeed) {
			s.log.Warn("permalink lookup failed", "content_id", string(id), "error", err)
		}
		return "", false
	}
	if !ok || p.LinkToContent == "" {
		return "", false
	}
	return p.LinkToContent, true
}

func (s *Source) fetch(ctx context.Context) ([]Post, error) {
	feed, err := s.parser.ParseURLWithContext(s.feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching feed %s: %w", s.feedURL, err)
	}
	posts := make([]Post, 0, len(feed.Items))
	for _, item := range feed.Items {
		posts = append(posts, postFromItem(item))
	}
	return posts, nil
}

func postFromItem(item *gofeed.Item) Post {
	p := Post{
		ID:            contentID(item),
		Title:         strings.TrimSpace(item.Title),
		LinkToContent: item.Link,
	}
	if item.PublishedParsed != nil {
		t := item.PublishedParsed.UTC()
		p.CreatedAt = &t
	} else if item.UpdatedParsed != nil {
		t := item.UpdatedParsed.UTC()
		p.CreatedAt = &t
	}

	body := item.Description
	if body == "" {
		body = item.Content
	}
	p.Excerpt = excerpt(body, excerptWords)

	if item.Image != nil {
		p.ThumbnailURL = item.Image.URL
	} else {
		for _, enc := range item.Enclosures {
			if strings.HasPrefix(enc.Type, "image/") {
				p.ThumbnailURL = enc.URL
				break
			}
		}
	}
	return p
}

// contentID prefers the WordPress post number from a "?p=N" guid, then
// the guid, then the link.
func contentID(item *gofeed.Item) audience.ContentID {
	for _, raw := range []string{item.GUID, item.Link} {
		if u, err := url.Parse(raw); err == nil {
			if n := u.Query().Get("p"); n != "" {
				return audience.ContentID(n)
			}
		}
	}
	if item.GUID != "" {
		return audience.ContentID(item.GUID)
	}
	return audience.ContentID(item.Link)
}

// excerpt returns the first n words of the HTML's text, with an ellipsis
// when cut.
func excerpt(html string, n int) string {
	text := html
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		text = doc.Text()
	}
	words := strings.Fields(text)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ") + "…"
}
