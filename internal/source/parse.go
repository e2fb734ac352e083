package source

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/roach88/docsync/internal/model"
)

// ErrMalformed marks content that cannot be turned into a document.
var ErrMalformed = errors.New("malformed document")

// Parse converts a raw document into a fingerprinted TrackedDocument.
// Markdown may open with a YAML front matter block; AsciiDoc declares its
// title and attributes in the header. Header fields become metadata and are
// excluded from the body, so editing them is a metadata change only.
func Parse(raw RawDocument) (model.TrackedDocument, error) {
	if !utf8.Valid(raw.Body) {
		return model.TrackedDocument{}, fmt.Errorf("parse %s: %w: invalid UTF-8", raw.Ref.ID, ErrMalformed)
	}
	text := model.NormalizeBody(string(raw.Body))

	var (
		title string
		meta  map[string]string
		body  string
		err   error
	)
	switch strings.ToLower(path.Ext(raw.Ref.Path)) {
	case ".adoc", ".asciidoc":
		title, meta, body = parseAsciiDoc(text)
	default:
		title, meta, body, err = parseMarkdown(text)
	}
	if err != nil {
		return model.TrackedDocument{}, fmt.Errorf("parse %s: %w", raw.Ref.ID, err)
	}
	if title == "" {
		title = raw.Ref.ID
	}

	doc := model.TrackedDocument{
		ID:           raw.Ref.ID,
		Number:       raw.Ref.Number,
		Title:        model.NormalizeField(title),
		Metadata:     meta,
		Body:         body,
		LastModified: raw.LastModified,
		Author:       raw.Author,
		Path:         raw.Ref.Path,
	}
	if err := model.Fingerprint(&doc); err != nil {
		return model.TrackedDocument{}, fmt.Errorf("parse %s: %w", raw.Ref.ID, err)
	}
	return doc, nil
}

func parseMarkdown(text string) (string, map[string]string, string, error) {
	meta := map[string]string{}
	body := text

	if strings.HasPrefix(text, "---\n") {
		rest := text[len("---\n"):]
		var header string
		switch {
		case strings.HasPrefix(rest, "---\n") || rest == "---":
			header, body = "", strings.TrimPrefix(strings.TrimPrefix(rest, "---"), "\n")
		default:
			end := strings.Index(rest, "\n---\n")
			if end < 0 {
				if !strings.HasSuffix(rest, "\n---") {
					return "", nil, "", fmt.Errorf("%w: unterminated front matter", ErrMalformed)
				}
				end = len(rest) - len("\n---")
				header, body = rest[:end], ""
			} else {
				header, body = rest[:end], rest[end+len("\n---\n"):]
			}
		}

		var fields map[string]any
		if err := yaml.Unmarshal([]byte(header), &fields); err != nil {
			return "", nil, "", fmt.Errorf("%w: front matter: %v", ErrMalformed, err)
		}
		// Keys are case-insensitive; "State" and "state" in one header would
		// leave the surviving value to map order.
		seen := make(map[string]string, len(fields))
		for k, v := range fields {
			key := strings.ToLower(k)
			if other, dup := seen[key]; dup {
				a, b := min(k, other), max(k, other)
				return "", nil, "", fmt.Errorf("%w: front matter fields %q and %q differ only by case", ErrMalformed, a, b)
			}
			seen[key] = k

			s, err := flattenValue(v)
			if err != nil {
				return "", nil, "", fmt.Errorf("%w: front matter field %q: %v", ErrMalformed, k, err)
			}
			if s = model.NormalizeField(s); s != "" {
				meta[key] = s
			}
		}
	}

	title := meta["title"]
	delete(meta, "title")
	if title == "" {
		title = firstHeading(body)
	}
	return title, meta, body, nil
}

func parseAsciiDoc(text string) (string, map[string]string, string) {
	meta := map[string]string{}
	lines := strings.SplitAfter(text, "\n")

	i := 0
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	start := i

	var title string
	if i < len(lines) && strings.HasPrefix(lines[i], "= ") {
		title = strings.TrimSpace(lines[i][2:])
		i++
	}
	for i < len(lines) {
		key, value, ok := parseAttribute(strings.TrimRight(lines[i], "\n"))
		if !ok {
			break
		}
		if value = model.NormalizeField(value); value != "" {
			meta[strings.ToLower(key)] = value
		}
		i++
	}
	if i == start {
		return "", meta, text
	}
	if i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	return title, meta, strings.Join(lines[i:], "")
}

// parseAttribute reads an AsciiDoc header attribute line ":key: value".
func parseAttribute(line string) (string, string, bool) {
	if !strings.HasPrefix(line, ":") {
		return "", "", false
	}
	key, value, ok := strings.Cut(line[1:], ":")
	if !ok || key == "" || strings.ContainsAny(key, " \t") {
		return "", "", false
	}
	return key, value, true
}

func firstHeading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	return ""
}

// flattenValue renders a front matter value as a metadata string.
// Lists are joined with ", "; nested objects are rejected.
func flattenValue(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case uint64:
		return strconv.FormatUint(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			s, err := flattenValue(item)
			if err != nil {
				return "", err
			}
			if s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", "), nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return "", fmt.Errorf("nested object with keys %v", keys)
	default:
		return fmt.Sprint(val), nil
	}
}
