package scihub

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	"paperbot/internal/config"
	"paperbot/internal/model"
)

// doiPattern matches a bare DOI anywhere in the input, case-insensitively.
var doiPattern = regexp.MustCompile(`(?i)\b10\.\d{4,9}/[-._;()/:A-Z0-9]+\b`)

// maxPageBytes bounds how much of a mirror's response is parsed.
const maxPageBytes = 4 << 20

// Client resolves a DOI to a direct PDF link by trying a list of Sci-Hub
// mirrors in order. Mirror pages embed the PDF in an iframe; the first
// mirror that yields a usable src wins.
type Client struct {
	mirrors []string
	http    *http.Client

	// Logger is optional; if non-nil its Printf method will be used for
	// informational messages. When nil the standard library's log package
	// is used.
	Logger *log.Logger
}

func New(cfg config.SciHub) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		mirrors: cfg.Mirrors,
		http:    &http.Client{Timeout: timeout},
	}
}

// ExtractDOI pulls the first DOI out of free-form text (a bare DOI, a
// doi.org URL, a sentence). Empty string when none is present.
func ExtractDOI(text string) string {
	return doiPattern.FindString(text)
}

// IsDOI reports whether the text contains something that looks like a DOI.
func IsDOI(text string) bool {
	return ExtractDOI(text) != ""
}

// ResolvePDF returns a direct PDF URL for the DOI in query. Mirrors are
// tried in order; per-mirror failures are logged and skipped. ErrNotFound
// means every mirror was tried without success.
func (c *Client) ResolvePDF(ctx context.Context, query string) (string, error) {
	doi := ExtractDOI(query)
	if doi == "" {
		return "", fmt.Errorf("no DOI found in %q", query)
	}

	for _, mirror := range c.mirrors {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		pdfURL, err := c.tryMirror(ctx, mirror, doi)
		if err != nil {
			c.logf("scihub: %s: %v", mirror, err)
			continue
		}
		if pdfURL != "" {
			return pdfURL, nil
		}
	}
	return "", fmt.Errorf("%w: pdf for doi %s", model.ErrNotFound, doi)
}

func (c *Client) tryMirror(ctx context.Context, mirror, doi string) (string, error) {
	pageURL := strings.TrimRight(mirror, "/") + "/" + doi
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	src, err := findPDFSource(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", err
	}
	if src == "" {
		return "", nil
	}
	return absoluteURL(mirror, src), nil
}

// findPDFSource walks the page for an iframe whose src points at a PDF,
// falling back to a download anchor. Tolerant parsing: mirror pages are
// rarely valid HTML.
func findPDFSource(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	var iframeSrc, anchorHref string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "iframe", "embed":
				if src := attr(n, "src"); isPDFLink(src) && iframeSrc == "" {
					iframeSrc = src
				}
			case "a":
				if href := attr(n, "href"); isPDFLink(href) && anchorHref == "" {
					anchorHref = href
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	if iframeSrc != "" {
		return iframeSrc, nil
	}
	return anchorHref, nil
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func isPDFLink(link string) bool {
	if link == "" {
		return false
	}
	// drop the query/fragment before checking the extension
	trimmed := link
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	return strings.HasSuffix(strings.ToLower(trimmed), ".pdf")
}

// absoluteURL fixes up scheme-relative and mirror-relative links.
func absoluteURL(mirror, link string) string {
	switch {
	case strings.HasPrefix(link, "http://"), strings.HasPrefix(link, "https://"):
		return link
	case strings.HasPrefix(link, "//"):
		return "https:" + link
	case strings.HasPrefix(link, "/"):
		return strings.TrimRight(mirror, "/") + link
	default:
		return strings.TrimRight(mirror, "/") + "/" + link
	}
}

func (c *Client) logf(format string, args ...interface{}) {
	if c != nil && c.Logger != nil {
		c.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}
