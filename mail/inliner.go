package mail

import (
	"github.com/PuerkitoBio/goquery"
	"github.com/chris-ramon/douceur/inliner"
	"github.com/spf13/afero"
	"golang.org/x/net/html"

	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Local image sent as a related part and referenced by Content-ID
type embeddedImage struct {
	Path string
	CID  string
}

// prepareHTML inlines linked and embedded stylesheets and points local
// images at Content-IDs. Paths are relative to baseDir.
func prepareHTML(fs afero.Fs, baseDir, body string) (string, []embeddedImage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", nil, err
	}

	// Let's inline all stylesheet links into "<style/>" tags
	doc.Find("link[rel=stylesheet]").EachWithBreak(func(i int, s *goquery.Selection) bool {
		href, exists := s.Attr("href")
		if !exists {
			badHTML, _ := goquery.OuterHtml(s)
			err = fmt.Errorf("No href attribute for <link>: %s", badHTML)
			return false
		}

		var cssBytes []byte
		if cssBytes, err = afero.ReadFile(fs, resolvePath(baseDir, href)); err != nil {
			return false
		}

		// Insert nodes manually to avoid injection and escaping
		styleNode := &html.Node{Type: html.ElementNode, Data: "style"}
		textNode := &html.Node{Type: html.TextNode, Data: string(cssBytes)}
		styleNode.FirstChild, styleNode.LastChild = textNode, textNode
		s.ReplaceWithNodes(styleNode)
		return true
	})
	if err != nil {
		return "", nil, err
	}

	var images []embeddedImage
	cids := map[string]string{}
	doc.Find("img[src]").Each(func(i int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if !isLocalRef(src) {
			return
		}
		p := resolvePath(baseDir, src)
		cid, ok := cids[p]
		if !ok {
			cid = fmt.Sprintf("img%d%s", len(cids), path.Ext(filepath.ToSlash(p)))
			cids[p] = cid
			images = append(images, embeddedImage{Path: p, CID: cid})
		}
		s.SetAttr("src", "cid:"+cid)
	})

	if body, err = goquery.OuterHtml(doc.Selection); err != nil {
		return "", nil, err
	}

	out, err := inliner.Inline(body)
	return out, images, err
}

// localImages lists the local image files an HTML template references
func localImages(baseDir, body string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	var out []string
	seen := map[string]bool{}
	doc.Find("img[src]").Each(func(i int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if p := resolvePath(baseDir, src); isLocalRef(src) && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	})
	return out, nil
}

// Local references are relative or absolute paths without a
// scheme and without template actions
func isLocalRef(src string) bool {
	src = strings.TrimSpace(src)
	switch {
	case src == "", strings.Contains(src, "{{"), strings.HasPrefix(src, "//"):
		return false
	case strings.Contains(src, "://"):
		return false
	}
	for _, scheme := range []string{"cid:", "data:", "mailto:"} {
		if strings.HasPrefix(strings.ToLower(src), scheme) {
			return false
		}
	}
	return true
}

func resolvePath(baseDir, ref string) string {
	ref = filepath.FromSlash(strings.TrimSpace(ref))
	if filepath.IsAbs(ref) {
		return filepath.Clean(ref)
	}
	return filepath.Join(baseDir, ref)
}
