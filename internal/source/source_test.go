package source_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"giveaway/internal/domain"
	"giveaway/internal/extract"
	"giveaway/internal/source"
)

func TestListRevealsInBatches(t *testing.T) {
	l := source.NewList([]string{"a", "b", "c", "d", "e"}, 2)
	ctx := context.Background()

	batch, err := l.CurrentBatch(ctx)
	require.NoError(t, err)
	assert.Len(t, batch, 2)

	more, err := l.RevealMore(ctx)
	require.NoError(t, err)
	assert.True(t, more)
	more, err = l.RevealMore(ctx)
	require.NoError(t, err)
	assert.True(t, more)
	batch, _ = l.CurrentBatch(ctx)
	assert.Len(t, batch, 5)

	more, err = l.RevealMore(ctx)
	require.NoError(t, err)
	assert.False(t, more)
}

func TestListDrivesExtraction(t *testing.T) {
	l := source.NewList([]string{"alice", "Bob", "@bob", "carol"}, 1)
	res, err := extract.Run(context.Background(), l, extract.Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "Bob", "carol"}, res.Identifiers)
	assert.Equal(t, extract.StopExhausted, res.Reason)
}

func TestParseIdentifiers(t *testing.T) {
	ids, err := source.ParseIdentifiers([]byte("# likers\nalice\n\n  bob  \n# end\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, ids)

	ids, err = source.ParseIdentifiers([]byte(` ["x", "y"] `))
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, ids)

	_, err = source.ParseIdentifiers([]byte(`["x",`))
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rt.txt")
	require.NoError(t, os.WriteFile(path, []byte("u1\nu2\n"), 0o644))
	l, err := source.LoadFile(path, 0)
	require.NoError(t, err)
	batch, err := l.CurrentBatch(context.Background())
	require.NoError(t, err)
	assert.Len(t, batch, 2)

	_, err = source.LoadFile(filepath.Join(t.TempDir(), "missing.txt"), 0)
	require.Error(t, err)
}

func userPage(next string, handles ...string) string {
	body := "<html><body>"
	for _, h := range handles {
		body += fmt.Sprintf(`<div data-testid="UserCell"><a href="/%s">%s</a><span>@%s</span></div>`, h, h, h)
	}
	if next != "" {
		body += fmt.Sprintf(`<a rel="next" href="%s">more</a>`, next)
	}
	return body + "</body></html>"
}

func TestHTMLPagerFollowsNextLinks(t *testing.T) {
	var cookies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("auth_token"); err == nil {
			cookies = append(cookies, c.Value)
		}
		switch r.URL.Query().Get("page") {
		case "":
			fmt.Fprint(w, userPage("?page=2", "alice", "bob"))
		case "2":
			fmt.Fprint(w, userPage("?page=3", "bob", "carol"))
		case "3":
			fmt.Fprint(w, `<div data-testid="UserCell"><span>Dave</span><span>@dave</span></div>`+
				`<div data-testid="UserCell"><span>no handle</span></div>`)
		}
	}))
	defer srv.Close()

	p, err := source.NewHTMLPager(srv.URL+"/likes", source.HTMLOptions{AuthToken: "tok"})
	require.NoError(t, err)
	res, err := extract.Run(context.Background(), p, extract.Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "carol", "dave"}, res.Identifiers)
	assert.Equal(t, extract.StopExhausted, res.Reason)
	assert.Len(t, res.ItemErrors, 1)
	assert.Equal(t, []string{"tok", "tok", "tok"}, cookies)
}

func TestHTMLPagerKeepsPositionOnBadNextLink(t *testing.T) {
	var pages []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		pages = append(pages, page)
		switch page {
		case "":
			fmt.Fprint(w, userPage("?page=2", "alice"))
		case "2":
			fmt.Fprint(w, userPage("%zz", "bob"))
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	p, err := source.NewHTMLPager(srv.URL+"/likes", source.HTMLOptions{})
	require.NoError(t, err)
	batch, err := p.CurrentBatch(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	for range 2 {
		more, err := p.RevealMore(ctx)
		require.Error(t, err)
		assert.False(t, more)
	}
	batch, err = p.CurrentBatch(ctx)
	require.NoError(t, err)
	assert.Len(t, batch, 1, "cells of a failed page are not kept")
	assert.Equal(t, []string{"", "2", "2"}, pages)
}

func TestLoadFileRevealsWholeFile(t *testing.T) {
	var b strings.Builder
	for i := range 2000 {
		fmt.Fprintf(&b, "user%d\n", i)
	}
	path := filepath.Join(t.TempDir(), "rt.txt")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))

	l, err := source.LoadFile(path, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, l.Unread())
	res, err := extract.Run(context.Background(), l, extract.Options{})
	require.NoError(t, err)
	assert.Len(t, res.Identifiers, 2000)
	assert.Equal(t, extract.StopExhausted, res.Reason)

	paged, err := source.LoadFile(path, 20)
	require.NoError(t, err)
	assert.Equal(t, 1980, paged.Unread())
	res, err = extract.Run(context.Background(), paged, extract.Options{})
	require.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Equal(t, extract.StopMaxIterations, res.Reason)
	assert.Len(t, res.Identifiers, 1000)
}

func TestHTMLPagerReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p, err := source.NewHTMLPager(srv.URL, source.HTMLOptions{})
	require.NoError(t, err)
	_, err = p.CurrentBatch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestNewHTMLPagerRejectsScheme(t *testing.T) {
	_, err := source.NewHTMLPager("file:///etc/passwd", source.HTMLOptions{})
	require.Error(t, err)
}
