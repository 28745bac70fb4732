package catalog

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/matthewjhunter/bytebite/internal/storage"
)

type opml struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    opmlHead `xml:"head"`
	Body    opmlBody `xml:"body"`
}

type opmlHead struct {
	Title string `xml:"title,omitempty"`
}

type opmlBody struct {
	Outlines []opmlOutline `xml:"outline"`
}

type opmlOutline struct {
	Text     string        `xml:"text,attr"`
	Title    string        `xml:"title,attr,omitempty"`
	Type     string        `xml:"type,attr,omitempty"`
	XMLURL   string        `xml:"xmlUrl,attr,omitempty"`
	HTMLURL  string        `xml:"htmlUrl,attr,omitempty"`
	Outlines []opmlOutline `xml:"outline"`
}

// ImportOPML adds every feed outline in r to the catalog. Folder outlines
// become the category of the feeds they contain (nested folders joined with
// "/"). Feeds whose URL is already in the catalog are skipped. It returns the
// number of feeds added.
func (c *Catalog) ImportOPML(ctx context.Context, r io.Reader) (int, error) {
	var doc opml
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return 0, fmt.Errorf("failed to parse OPML: %w", err)
	}

	added := 0
	err := c.doc.Update(ctx, func(feeds []storage.Feed) ([]storage.Feed, bool, error) {
		mark, err := c.HighWater(ctx)
		if err != nil {
			return nil, false, err
		}
		seen := make(map[string]bool, len(feeds))
		for _, f := range feeds {
			seen[f.URL] = true
		}

		var walk func(outlines []opmlOutline, folder []string)
		walk = func(outlines []opmlOutline, folder []string) {
			for _, o := range outlines {
				if o.XMLURL == "" {
					name := o.Title
					if name == "" {
						name = o.Text
					}
					walk(o.Outlines, append(folder, name))
					continue
				}
				if seen[o.XMLURL] {
					c.logger.Debug("skipping known feed", "url", o.XMLURL)
					continue
				}
				name := o.Title
				if name == "" {
					name = o.Text
				}
				if name == "" {
					name = o.XMLURL
				}
				feeds = append(feeds, storage.Feed{
					ID:        NextID(feeds, mark),
					Category:  strings.Join(folder, "/"),
					Name:      name,
					URL:       o.XMLURL,
					CreatedAt: c.now(),
				})
				seen[o.XMLURL] = true
				added++
			}
		}
		walk(doc.Body.Outlines, nil)
		return feeds, added > 0, nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to import OPML: %w", err)
	}
	c.logger.Info("imported OPML", "added", added)
	return added, nil
}

// ExportOPML writes the catalog as an OPML 2.0 document. Feeds with a
// category are grouped under one folder outline per category, in the order
// the categories first appear.
func (c *Catalog) ExportOPML(ctx context.Context, w io.Writer) error {
	feeds, err := c.doc.Load(ctx)
	if err != nil {
		return err
	}

	doc := opml{Version: "2.0", Head: opmlHead{Title: "bytebite subscriptions"}}
	folders := make(map[string]int)
	for _, f := range feeds {
		outline := opmlOutline{Text: f.Name, Title: f.Name, Type: "rss", XMLURL: f.URL}
		if f.Category == "" {
			doc.Body.Outlines = append(doc.Body.Outlines, outline)
			continue
		}
		i, ok := folders[f.Category]
		if !ok {
			i = len(doc.Body.Outlines)
			folders[f.Category] = i
			doc.Body.Outlines = append(doc.Body.Outlines, opmlOutline{Text: f.Category})
		}
		doc.Body.Outlines[i].Outlines = append(doc.Body.Outlines[i].Outlines, outline)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("failed to write OPML: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to write OPML: %w", err)
	}
	return enc.Close()
}
