package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"giveaway/internal/extract"
)

// HTMLOptions configures an HTMLPager.
type HTMLOptions struct {
	UserAgent    string
	Timeout      time.Duration
	ItemSelector string
	NextSelector string
	// AuthToken and CSRFToken are sent as the auth_token and ct0 session
	// cookies when set.
	AuthToken string
	CSRFToken string
}

// HTMLPager walks a paginated user list. Each RevealMore follows the next
// link and appends the new page's cells to the visible batch, the way a
// scrolled timeline keeps earlier rows on screen.
type HTMLPager struct {
	http    *resty.Client
	opts    HTMLOptions
	next    string
	loaded  bool
	visible []extract.RawItem
}

func NewHTMLPager(startURL string, opts HTMLOptions) (*HTMLPager, error) {
	u, err := url.Parse(startURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if opts.ItemSelector == "" {
		opts.ItemSelector = UserCell
	}
	if opts.NextSelector == "" {
		opts.NextSelector = NextPageLink
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}

	client := resty.New()
	client.SetTimeout(opts.Timeout)
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(u.Hostname()))
	if opts.UserAgent != "" {
		client.SetHeader("user-agent", opts.UserAgent)
	}
	if opts.AuthToken != "" {
		client.SetCookie(&http.Cookie{Name: "auth_token", Value: opts.AuthToken})
	}
	if opts.CSRFToken != "" {
		client.SetCookie(&http.Cookie{Name: "ct0", Value: opts.CSRFToken})
		client.SetHeader("x-csrf-token", opts.CSRFToken)
	}
	return &HTMLPager{http: client, opts: opts, next: u.String()}, nil
}

func (p *HTMLPager) CurrentBatch(ctx context.Context) ([]extract.RawItem, error) {
	if !p.loaded {
		if err := p.load(ctx); err != nil {
			return nil, err
		}
		p.loaded = true
	}
	return p.visible, nil
}

func (p *HTMLPager) RevealMore(ctx context.Context) (bool, error) {
	if !p.loaded {
		if err := p.load(ctx); err != nil {
			return false, err
		}
		p.loaded = true
	}
	if p.next == "" {
		return false, nil
	}
	if err := p.load(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (p *HTMLPager) load(ctx context.Context) error {
	target := p.next
	res, err := p.http.R().SetContext(ctx).Get(target)
	if err != nil {
		return err
	}
	if res.IsError() {
		return fmt.Errorf("GET %s: %s", target, res.Status())
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return err
	}
	// Resolve the next link first so a failed load leaves the pager where it
	// was and a retry fetches the same page again.
	next := ""
	if href, ok := doc.Find(p.opts.NextSelector).First().Attr("href"); ok && strings.TrimSpace(href) != "" {
		base, err := url.Parse(target)
		if err != nil {
			return err
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return fmt.Errorf("next link on %s: %w", target, err)
		}
		next = base.ResolveReference(ref).String()
	}
	doc.Find(p.opts.ItemSelector).Each(func(_ int, cell *goquery.Selection) {
		p.visible = append(p.visible, cellItem{sel: cell})
	})
	p.next = next
	return nil
}

var errNoIdentifier = errors.New("cell has no profile link or handle")

// cellItem reads the handle from a user cell: the first profile link
// ("/alice") wins, otherwise the first "@handle" text span.
type cellItem struct {
	sel *goquery.Selection
}

func (c cellItem) Identifier() (string, error) {
	var id string
	c.sel.Find(UserLink).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		handle := strings.Trim(href, "/")
		if handle == "" || strings.ContainsAny(handle, "/?#") {
			return true
		}
		id = handle
		return false
	})
	if id != "" {
		return id, nil
	}
	c.sel.Find(UserNameSpan).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if strings.HasPrefix(text, "@") && len(text) > 1 {
			id = text
			return false
		}
		return true
	})
	if id == "" {
		return "", errNoIdentifier
	}
	return id, nil
}
