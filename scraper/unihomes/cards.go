package unihomes

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Page selectors on the listings site.
const (
	containerSelector = ".col-12.properties_listing_container"
	cardSelector      = ".col-12.col-sm-6.col-xl-4.property-listing-column"
	imageSelector     = ".swiper-wrapper img"
)

// cardNode is one card as rendered by the browser.
type cardNode struct {
	Text string `json:"text"`
	HTML string `json:"html"`
}

// parseCardHTML pulls the detail link and carousel images out of one card's
// outer HTML. Relative links are resolved against base. Images are scoped
// to the card's own carousel; lazy-load placeholders (data: URIs) are
// dropped and repeats removed, keeping carousel order.
func parseCardHTML(html string, base *url.URL) (string, []string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", nil, fmt.Errorf("parse card html: %w", err)
	}

	var link string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return true
		}
		link = resolve(base, href)
		return false
	})

	seen := make(map[string]struct{})
	var images []string
	doc.Find(imageSelector).Each(func(_ int, img *goquery.Selection) {
		src := strings.TrimSpace(img.AttrOr("src", ""))
		if src == "" || strings.HasPrefix(src, "data") {
			return
		}
		src = resolve(base, src)
		if _, dup := seen[src]; dup {
			return
		}
		seen[src] = struct{}{}
		images = append(images, src)
	})

	return link, images, nil
}

func resolve(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
