package research

import (
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"golang.org/x/net/html"
)

var (
	scriptRe         = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRe          = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	excessiveLinesRe = regexp.MustCompile(`\n{3,}`)
	mdLinkRe         = regexp.MustCompile(`!?\[([^\]]*)\]\([^)]*\)`)
)

// page is a company web page reduced to markdown.
type page struct {
	Title       string
	Description string
	Markdown    string
}

// converter turns company web pages into markdown, keeping only the main content.
type converter struct {
	md *md.Converter
}

func newConverter() *converter {
	c := md.NewConverter("", true, nil)
	c.Use(plugin.GitHubFlavored())
	return &converter{md: c}
}

func (c *converter) convert(raw []byte) (page, error) {
	doc, err := html.Parse(strings.NewReader(string(raw)))
	var p page
	var body string
	if err != nil {
		body = scriptRe.ReplaceAllString(string(raw), "")
		body = styleRe.ReplaceAllString(body, "")
	} else {
		p.Title = findTitle(doc)
		p.Description = findMeta(doc, "description")
		body = mainContent(doc)
	}
	out, err := c.md.ConvertString(body)
	if err != nil {
		return page{}, err
	}
	p.Markdown = cleanMarkdown(out)
	return p, nil
}

func findTitle(doc *html.Node) string {
	if n := findElement(doc, func(n *html.Node) bool { return n.Data == "title" }); n != nil && n.FirstChild != nil {
		return strings.TrimSpace(n.FirstChild.Data)
	}
	return ""
}

func findMeta(doc *html.Node, name string) string {
	n := findElement(doc, func(n *html.Node) bool {
		return n.Data == "meta" && (attr(n, "name") == name || attr(n, "property") == "og:"+name)
	})
	if n == nil {
		return ""
	}
	return strings.TrimSpace(attr(n, "content"))
}

func mainContent(doc *html.Node) string {
	for _, match := range []func(*html.Node) bool{
		func(n *html.Node) bool { return n.Data == "main" },
		func(n *html.Node) bool { return n.Data == "article" },
		func(n *html.Node) bool { return attr(n, "role") == "main" },
	} {
		if n := findElement(doc, match); n != nil {
			return render(n)
		}
	}

	removeAll(doc, func(n *html.Node) bool {
		switch n.Data {
		case "nav", "header", "footer", "aside", "script", "style", "noscript",
			"iframe", "object", "embed", "form", "input", "button", "svg":
			return true
		}
		for _, class := range strings.Fields(strings.ToLower(attr(n, "class"))) {
			switch class {
			case "nav", "navbar", "menu", "sidebar", "footer", "header", "cookie", "cookies",
				"banner", "social", "share", "breadcrumb", "newsletter":
				return true
			}
		}
		return false
	})
	if body := findElement(doc, func(n *html.Node) bool { return n.Data == "body" }); body != nil {
		return render(body)
	}
	return render(doc)
}

func findElement(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, match); found != nil {
			return found
		}
	}
	return nil
}

func removeAll(n *html.Node, match func(*html.Node) bool) {
	var doomed []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && match(node) {
			doomed = append(doomed, node)
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	for _, node := range doomed {
		if node.Parent != nil {
			node.Parent.RemoveChild(node)
		}
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func render(n *html.Node) string {
	var sb strings.Builder
	_ = html.Render(&sb, n)
	return sb.String()
}

func cleanMarkdown(content string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	content = excessiveLinesRe.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(content)
}

// plainText strips markdown links and images down to their text, for length checks.
func plainText(markdown string) string {
	return strings.TrimSpace(mdLinkRe.ReplaceAllString(markdown, "$1"))
}
