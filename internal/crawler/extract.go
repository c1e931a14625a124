package crawler

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"

	"campusqa/internal/domain"
)

// ExtractDocument returns the plain text of a downloaded file, chosen by the
// extension of name.
func ExtractDocument(name string, data []byte) (string, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".pdf":
		return extractPDF(data)
	case ".docx":
		return extractOOXML(data, func(n string) bool { return n == "word/document.xml" })
	case ".pptx":
		return extractOOXML(data, isSlide)
	default:
		return "", fmt.Errorf("%w: unsupported document type %q", domain.ErrInvalidInput, name)
	}
}

func extractPDF(data []byte) (text string, err error) {
	// the pdf reader panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: pdf: %v", domain.ErrInvalidInput, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: pdf: %v", domain.ErrInvalidInput, err)
	}

	var parts []string
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := page.Font(name)
				fonts[name] = &f
			}
		}
		t, err := page.GetPlainText(fonts)
		if err != nil {
			continue
		}
		if t = strings.TrimSpace(t); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n"), nil
}

func slideNum(name string) int {
	n, _ := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "ppt/slides/slide"), ".xml"))
	return n
}

func isSlide(name string) bool {
	return strings.HasPrefix(name, "ppt/slides/slide") && strings.HasSuffix(name, ".xml")
}

// extractOOXML reads the text runs of the archive parts selected by want.
// Every <p> paragraph element becomes one line.
func extractOOXML(data []byte, want func(string) bool) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: open archive: %v", domain.ErrInvalidInput, err)
	}
	var files []*zip.File
	for _, f := range zr.File {
		if want(f.Name) {
			files = append(files, f)
		}
	}
	sort.SliceStable(files, func(i, j int) bool {
		if isSlide(files[i].Name) && isSlide(files[j].Name) {
			return slideNum(files[i].Name) < slideNum(files[j].Name)
		}
		return files[i].Name < files[j].Name
	})

	var lines []string
	for _, f := range files {
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", domain.ErrInvalidInput, f.Name, err)
		}
		l, err := paragraphs(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", domain.ErrInvalidInput, f.Name, err)
		}
		lines = append(lines, l...)
	}
	return strings.Join(lines, "\n"), nil
}

func paragraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)
	var (
		lines  []string
		cur    strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if s := strings.TrimSpace(cur.String()); s != "" {
					lines = append(lines, s)
				}
				cur.Reset()
			}
		case xml.CharData:
			if inText {
				cur.Write(t)
			}
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		lines = append(lines, s)
	}
	return lines, nil
}

var blockTags = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "header": true, "footer": true,
	"nav": true, "aside": true, "main": true, "ul": true, "ol": true, "li": true, "table": true,
	"tr": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"br": true, "blockquote": true, "pre": true, "form": true, "dd": true, "dt": true,
}

// VisibleText approximates the rendered text of sel: script, style and
// noscript content is dropped and block elements start a new line.
func VisibleText(sel *goquery.Selection) string {
	sel = sel.Clone()
	sel.Find("script, style, noscript, template, svg").Remove()

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.CommentNode:
			return
		}
		block := n.Type == html.ElementNode && blockTags[n.Data]
		if block {
			b.WriteString("\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			b.WriteString("\n")
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
