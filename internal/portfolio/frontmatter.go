package portfolio

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hpungsan/atelier/internal/element"
)

const frontMatterDelimiter = "---"

// EncodeFile renders an element as front-matter metadata plus body, the
// canonical on-disk and on-remote representation.
func EncodeFile(el *element.Element) ([]byte, error) {
	meta, err := yaml.Marshal(el)
	if err != nil {
		return nil, fmt.Errorf("marshal front matter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(frontMatterDelimiter)
	buf.WriteString("\n")
	buf.Write(meta)
	buf.WriteString(frontMatterDelimiter)
	buf.WriteString("\n")
	// Exactly one terminator is always appended; DecodeFile strips exactly
	// one, so encode and decode are byte-exact inverses even when the
	// content itself ends in a newline.
	buf.WriteString(el.Content)
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

// DecodeFile parses front-matter metadata plus body back into an element.
// The whole file is re-parsed wholesale; there is no incremental form.
func DecodeFile(data []byte) (*element.Element, error) {
	text := string(data)
	if !strings.HasPrefix(text, frontMatterDelimiter+"\n") {
		return nil, fmt.Errorf("missing front matter delimiter")
	}

	rest := text[len(frontMatterDelimiter)+1:]
	end := strings.Index(rest, "\n"+frontMatterDelimiter+"\n")
	var metaText, body string
	if end < 0 {
		// Tolerate a file that ends at the closing delimiter.
		trimmed := strings.TrimSuffix(rest, "\n")
		if !strings.HasSuffix(trimmed, "\n"+frontMatterDelimiter) {
			return nil, fmt.Errorf("unterminated front matter")
		}
		metaText = strings.TrimSuffix(trimmed, "\n"+frontMatterDelimiter)
	} else {
		metaText = rest[:end]
		body = rest[end+len(frontMatterDelimiter)+2:]
	}

	el := &element.Element{}
	if err := yaml.Unmarshal([]byte(metaText+"\n"), el); err != nil {
		return nil, fmt.Errorf("parse front matter: %w", err)
	}
	el.Content = strings.TrimSuffix(body, "\n")
	return el, nil
}
