package onenote

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

const (
	maxPageBytes     = 16 << 20
	maxResourceBytes = 64 << 20
	resourceWorkers  = 4
	pageEntryName    = "page.html"
)

type pageResource struct {
	url  string
	name string
	data []byte
}

// ExportPage downloads a page and its resources and writes them as a zip at
// destPath. Resource references in the page are rewritten to archive paths.
func (c *Client) ExportPage(ctx context.Context, userID uint, pageID, destPath string) (*DownloadInfo, error) {
	tok, err := c.loadToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	hc := c.authorizedClient(ctx, userID, tok)

	body, err := c.fetch(ctx, hc, c.pageContentURL(pageID), maxPageBytes)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrNoArtifact
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("onenote: parse page: %w", err)
	}
	resources := c.collectResources(doc)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resourceWorkers)
	for _, r := range resources {
		r := r
		g.Go(func() error {
			data, err := c.fetch(gctx, hc, r.url, maxResourceBytes)
			if err != nil {
				return fmt.Errorf("resource %s: %w", r.name, err)
			}
			r.data = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var page bytes.Buffer
	if err := html.Render(&page, doc); err != nil {
		return nil, fmt.Errorf("onenote: render page: %w", err)
	}

	size, err := writeArchive(destPath, page.Bytes(), resources)
	if err != nil {
		os.Remove(destPath)
		return nil, err
	}

	return &DownloadInfo{Path: destPath, Size: size, Resources: len(resources)}, nil
}

func (c *Client) pageContentURL(pageID string) string {
	return c.apiBase.String() + "/me/onenote/pages/" + url.PathEscape(pageID) + "/content?includeIDs=true"
}

// collectResources 收集页面中的图片和附件并改写为压缩包内的相对路径。
// 只下载与 API 同源的资源，访问令牌不会发往其他主机。
func (c *Client) collectResources(doc *html.Node) []*pageResource {
	var resources []*pageResource

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "img":
				src := attr(n, "data-fullres-src")
				typ := attr(n, "data-fullres-src-type")
				if src == "" {
					src, typ = attr(n, "src"), attr(n, "data-src-type")
				}
				if c.sameOrigin(src) {
					name := resourceName(len(resources)+1, typ, "")
					resources = append(resources, &pageResource{url: src, name: name})
					setAttr(n, "src", name)
					removeAttr(n, "data-fullres-src")
				}
			case "object":
				src := attr(n, "data")
				if c.sameOrigin(src) {
					name := resourceName(len(resources)+1, attr(n, "type"), attr(n, "data-attachment"))
					resources = append(resources, &pageResource{url: src, name: name})
					setAttr(n, "data", name)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	return resources
}

func (c *Client) sameOrigin(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "https" || u.Scheme == "http") && u.Host == c.apiBase.Host
}

func (c *Client) fetch(ctx context.Context, hc *http.Client, target string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	resp, err := hc.Do(req)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return nil, fmt.Errorf("onenote: request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrPageNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("onenote: %s returned HTTP %d", req.URL.Path, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("onenote: read body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("onenote: %s exceeds %d bytes", req.URL.Path, limit)
	}
	return data, nil
}

func writeArchive(destPath string, page []byte, resources []*pageResource) (int64, error) {
	f, err := os.Create(destPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create(pageEntryName)
	if err != nil {
		return 0, err
	}
	if _, err := w.Write(page); err != nil {
		return 0, err
	}
	for _, r := range resources {
		w, err := zw.Create(r.name)
		if err != nil {
			return 0, err
		}
		if _, err := w.Write(r.data); err != nil {
			return 0, err
		}
	}
	if err := zw.Close(); err != nil {
		return 0, err
	}

	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

func resourceName(n int, mimeType, filename string) string {
	ext := path.Ext(filename)
	if ext == "" && mimeType != "" {
		if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
			ext = exts[0]
		}
	}
	return fmt.Sprintf("resources/%d%s", n, strings.ToLower(ext))
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			out = append(out, a)
		}
	}
	n.Attr = out
}
