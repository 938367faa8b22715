package response

import (
	"fmt"
	"html"
	"os"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
)

// NewAutoindex builds an HTML directory listing for dirPath, whose
// entries link to requestPath + "/" + entryName, excluding "." and
// "..", per spec.md §4.5.
func NewAutoindex(requestPath, dirPath string, keepAlive bool) (*Message, error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	base := strings.TrimSuffix(requestPath, "/")

	var b strings.Builder
	fmt.Fprintf(&b, "<!DOCTYPE html>\n<html><head><title>Index of %s</title></head>\n<body>\n", html.EscapeString(requestPath))
	fmt.Fprintf(&b, "<h1>Index of %s</h1>\n<ul>\n", html.EscapeString(requestPath))
	for _, e := range entries {
		name := e.Name()
		if name == "." || name == ".." {
			continue
		}
		display := name
		info, statErr := e.Info()
		size := ""
		if e.IsDir() {
			display += "/"
		} else if statErr == nil {
			size = " (" + humanize.Bytes(uint64(info.Size())) + ")"
		}
		href := base + "/" + name
		fmt.Fprintf(&b, "<li><a href=\"%s\">%s</a>%s</li>\n", html.EscapeString(href), html.EscapeString(display), size)
	}
	b.WriteString("</ul>\n</body></html>\n")

	return baseMessage(200, "text/html; charset=utf-8", []byte(b.String()), keepAlive), nil
}
