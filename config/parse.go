package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// Parse reads and parses a configuration file from path into a Tree, per
// the grammar in spec.md §6. A failure to read the file is returned as
// a wrapped os error; every other error is an *Error carrying file/line.
func Parse(path string, log *zap.Logger) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	tokens := Tokenize(data, path)
	d := NewDispenser(tokens)

	tree := &Tree{ClientMaxBodySize: DefaultClientMaxBodySize}

	for d.Next() {
		switch d.Val() {
		case "client_max_body_size":
			size, err := parseByteSize(d.RemainingArgs(), d)
			if err != nil {
				return nil, err
			}
			if err := d.ExpectSemicolon(); err != nil {
				return nil, err
			}
			tree.ClientMaxBodySize = size

		case "server":
			srv, err := parseServerBlock(d, tree.ClientMaxBodySize)
			if err != nil {
				return nil, err
			}
			tree.Servers = append(tree.Servers, srv)

		default:
			// Unknown top-level directives are logged and ignored,
			// per spec.md §6.
			if log != nil {
				log.Warn("ignoring unknown top-level directive",
					zap.String("directive", d.Val()),
					zap.String("file", d.File()),
					zap.Int("line", d.Line()))
			}
			skipStatementOrBlock(d)
		}
	}

	if len(tree.Servers) == 0 {
		return nil, newParseError(path, 0, "configuration must declare at least one server block")
	}
	for _, s := range tree.Servers {
		if len(s.Listen) == 0 {
			return nil, newParseError(path, 0, "server %q declares no listen directive", s.ServerName)
		}
	}
	return tree, nil
}

func parseByteSize(args []string, d *Dispenser) (int64, error) {
	if len(args) != 1 {
		return 0, d.Errf("client_max_body_size requires exactly one value")
	}
	raw := args[0]
	// humanize.ParseBytes wants a unit suffix like "10MB"; the grammar
	// here uses bare nginx-style suffixes (k, m, g) or no suffix at all
	// for bytes, so normalize before delegating to it.
	normalized := raw
	if len(raw) > 0 {
		last := raw[len(raw)-1]
		switch last {
		case 'k', 'K', 'm', 'M', 'g', 'G':
			normalized = raw[:len(raw)-1] + string(last) + "B"
		}
	}
	if neg := strings.HasPrefix(raw, "-"); neg {
		return 0, d.Errf("client_max_body_size must not be negative: %q", raw)
	}
	size, err := humanize.ParseBytes(normalized)
	if err != nil {
		// fall back to a bare integer (no suffix)
		n, convErr := strconv.ParseInt(raw, 10, 64)
		if convErr != nil || n < 0 {
			return 0, d.Errf("invalid client_max_body_size value %q", raw)
		}
		return n, nil
	}
	return int64(size), nil
}

func parseServerBlock(d *Dispenser, inheritedMaxBody int64) (*ServerConfig, error) {
	s := &ServerConfig{
		Root:              DefaultRoot,
		Index:             DefaultIndex,
		ClientMaxBodySize: inheritedMaxBody,
		ErrorPages:        map[int]string{},
		AllowedMethods:    []Method{MethodGet},
	}
	if err := d.ExpectBlockOpen(); err != nil {
		return nil, err
	}

	seenPorts := make(map[int]bool)

	for d.NextBlock() {
		switch d.Val() {
		case "listen":
			args := d.RemainingArgs()
			if err := d.ExpectSemicolon(); err != nil {
				return nil, err
			}
			if len(args) != 1 {
				return nil, d.Errf("listen requires exactly one HOST:PORT or PORT value")
			}
			addr, err := parseListenAddr(args[0], d)
			if err != nil {
				return nil, err
			}
			if seenPorts[addr.Port] {
				continue // duplicate ports within one server block are deduplicated
			}
			seenPorts[addr.Port] = true
			s.Listen = append(s.Listen, addr)

		case "host":
			args := d.RemainingArgs()
			if err := d.ExpectSemicolon(); err != nil {
				return nil, err
			}
			if len(args) != 1 {
				return nil, d.Errf("host requires exactly one value")
			}
			for i := range s.Listen {
				s.Listen[i].Host = args[0]
			}

		case "root":
			args := d.RemainingArgs()
			if err := d.ExpectSemicolon(); err != nil {
				return nil, err
			}
			if len(args) != 1 {
				return nil, d.Errf("root requires exactly one value")
			}
			s.Root = args[0]

		case "index":
			args := d.RemainingArgs()
			if err := d.ExpectSemicolon(); err != nil {
				return nil, err
			}
			if len(args) != 1 {
				return nil, d.Errf("index requires exactly one value")
			}
			s.Index = args[0]

		case "server_name":
			args := d.RemainingArgs()
			if err := d.ExpectSemicolon(); err != nil {
				return nil, err
			}
			if len(args) != 1 {
				return nil, d.Errf("server_name requires exactly one value")
			}
			s.ServerName = args[0]

		case "client_max_body_size":
			size, err := parseByteSize(d.RemainingArgs(), d)
			if err != nil {
				return nil, err
			}
			if err := d.ExpectSemicolon(); err != nil {
				return nil, err
			}
			s.ClientMaxBodySize = size

		case "allowed_methods":
			methods, err := parseMethods(d.RemainingArgs(), d)
			if err != nil {
				return nil, err
			}
			if err := d.ExpectSemicolon(); err != nil {
				return nil, err
			}
			s.AllowedMethods = methods

		case "error_page":
			args := d.RemainingArgs()
			if err := d.ExpectSemicolon(); err != nil {
				return nil, err
			}
			if len(args) < 2 {
				return nil, d.Errf("error_page requires one or more codes and a URI")
			}
			uri := args[len(args)-1]
			for _, codeStr := range args[:len(args)-1] {
				code, err := strconv.Atoi(codeStr)
				if err != nil || code < 400 || code > 599 {
					return nil, d.Errf("invalid error_page status code %q", codeStr)
				}
				s.ErrorPages[code] = uri
			}

		case "location":
			loc, err := parseLocationBlock(d)
			if err != nil {
				return nil, err
			}
			s.Locations = append(s.Locations, loc)

		default:
			return nil, d.Errf("unknown directive %q inside server block", d.Val())
		}
	}

	if len(s.Listen) == 0 {
		// no listen directive: Parse rejects this server block once the
		// whole file has been read
	}
	for i := range s.Listen {
		if s.Listen[i].Host == "" {
			s.Listen[i].Host = "0.0.0.0"
		}
	}
	for _, loc := range s.Locations {
		if loc.CGIPass && loc.CGIExtension == "" {
			return nil, d.Errf("location %q: cgi_pass requires cgi_extension", loc.Path)
		}
		if loc.Redirect != nil && (loc.Redirect.Status < 300 || loc.Redirect.Status > 399) {
			return nil, d.Errf("location %q: redirect status %d out of range [300,399]", loc.Path, loc.Redirect.Status)
		}
		if !strings.HasPrefix(loc.Path, "/") {
			return nil, d.Errf("location path %q must begin with '/'", loc.Path)
		}
	}

	return s, nil
}

func parseLocationBlock(d *Dispenser) (*LocationConfig, error) {
	args := d.RemainingArgs()
	if len(args) != 1 {
		return nil, d.Errf("location requires exactly one path")
	}
	loc := &LocationConfig{Path: args[0]}
	if err := d.ExpectBlockOpen(); err != nil {
		return nil, err
	}

	for d.NextBlock() {
		switch d.Val() {
		case "root":
			a := d.RemainingArgs()
			if err := d.ExpectSemicolon(); err != nil {
				return nil, err
			}
			if len(a) != 1 {
				return nil, d.Errf("root requires exactly one value")
			}
			v := a[0]
			loc.Root = &v

		case "index":
			a := d.RemainingArgs()
			if err := d.ExpectSemicolon(); err != nil {
				return nil, err
			}
			if len(a) != 1 {
				return nil, d.Errf("index requires exactly one value")
			}
			v := a[0]
			loc.Index = &v

		case "allowed_methods":
			methods, err := parseMethods(d.RemainingArgs(), d)
			if err != nil {
				return nil, err
			}
			if err := d.ExpectSemicolon(); err != nil {
				return nil, err
			}
			loc.AllowedMethods = methods

		case "autoindex":
			a := d.RemainingArgs()
			if err := d.ExpectSemicolon(); err != nil {
				return nil, err
			}
			if len(a) != 1 || (a[0] != "on" && a[0] != "off") {
				return nil, d.Errf("autoindex requires 'on' or 'off'")
			}
			loc.Autoindex = a[0] == "on"

		case "cgi_pass":
			a := d.RemainingArgs()
			if err := d.ExpectSemicolon(); err != nil {
				return nil, err
			}
			if len(a) != 1 || (a[0] != "on" && a[0] != "off") {
				return nil, d.Errf("cgi_pass requires 'on' or 'off'")
			}
			loc.CGIPass = a[0] == "on"

		case "cgi_extension":
			a := d.RemainingArgs()
			if err := d.ExpectSemicolon(); err != nil {
				return nil, err
			}
			if len(a) != 1 || !strings.HasPrefix(a[0], ".") {
				return nil, d.Errf("cgi_extension must begin with '.'")
			}
			loc.CGIExtension = a[0]

		case "redirect":
			a := d.RemainingArgs()
			if err := d.ExpectSemicolon(); err != nil {
				return nil, err
			}
			if len(a) != 2 {
				return nil, d.Errf("redirect requires a status code and a URL")
			}
			if loc.Redirect != nil {
				return nil, d.Errf("location %q: only one redirect directive is allowed per location", loc.Path)
			}
			code, err := strconv.Atoi(a[0])
			if err != nil || code < 300 || code > 399 {
				return nil, d.Errf("invalid redirect status %q", a[0])
			}
			loc.Redirect = &Redirect{Status: code, URL: a[1]}

		default:
			return nil, d.Errf("unknown directive %q inside location block", d.Val())
		}
	}

	return loc, nil
}

func parseMethods(args []string, d *Dispenser) ([]Method, error) {
	if len(args) == 0 {
		return nil, d.Errf("allowed_methods requires at least one method")
	}
	out := make([]Method, 0, len(args))
	for _, a := range args {
		switch Method(a) {
		case MethodGet, MethodPost, MethodDelete:
			out = append(out, Method(a))
		default:
			return nil, d.Errf("unsupported method in allowed_methods: %q", a)
		}
	}
	return out, nil
}

func parseListenAddr(val string, d *Dispenser) (ListenAddr, error) {
	host := ""
	portStr := val
	if idx := strings.LastIndex(val, ":"); idx != -1 {
		host = val[:idx]
		portStr = val[idx+1:]
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return ListenAddr{}, d.Errf("invalid port number: %q", portStr)
	}
	return ListenAddr{Host: host, Port: port}, nil
}

// skipStatementOrBlock discards tokens until the end of the current
// statement (';') or, if a block follows, the matching '}'.
func skipStatementOrBlock(d *Dispenser) {
	depth := 0
	for d.Next() {
		switch d.Val() {
		case "{":
			depth++
		case "}":
			depth--
			if depth <= 0 {
				return
			}
		case ";":
			if depth == 0 {
				return
			}
		}
	}
}
