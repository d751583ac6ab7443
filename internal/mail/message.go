package mail

import (
	"encoding/base64"
	"regexp"
	"strings"

	"google.golang.org/api/gmail/v1"
)

var (
	styleBlockRe  = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	scriptBlockRe = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	htmlTagRe     = regexp.MustCompile(`<[^>]*>`)
	spaceRunRe    = regexp.MustCompile(`\s+`)
)

var entityReplacer = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
)

// header returns the named header value, case-insensitively, or "".
func header(msg *gmail.Message, name string) string {
	if msg.Payload == nil {
		return ""
	}
	for _, h := range msg.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// extractBody decodes the message payload to plain text. Multipart messages
// concatenate their text parts, walking one level of nesting; the result has
// markup stripped and whitespace collapsed.
func extractBody(msg *gmail.Message) string {
	if msg.Payload == nil {
		return ""
	}

	var b strings.Builder
	if msg.Payload.Body != nil && msg.Payload.Body.Data != "" {
		b.WriteString(decodeBody(msg.Payload.Body.Data))
	} else {
		for _, part := range msg.Payload.Parts {
			writePart(&b, part)
		}
	}

	return cleanHTML(b.String())
}

func writePart(b *strings.Builder, part *gmail.MessagePart) {
	if part == nil {
		return
	}
	switch {
	case part.Body != nil && part.Body.Data != "" &&
		(part.MimeType == "text/plain" || part.MimeType == "text/html"):
		b.WriteString(decodeBody(part.Body.Data))
	case len(part.Parts) > 0:
		for _, sub := range part.Parts {
			if sub.Body != nil && sub.Body.Data != "" {
				b.WriteString(decodeBody(sub.Body.Data))
			}
		}
	}
}

// decodeBody decodes Gmail's web-safe base64 body data, tolerating both
// padded and unpadded forms.
func decodeBody(data string) string {
	if decoded, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(decoded)
	}
	if decoded, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(decoded)
	}
	return ""
}

func cleanHTML(s string) string {
	s = styleBlockRe.ReplaceAllString(s, "")
	s = scriptBlockRe.ReplaceAllString(s, "")
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = entityReplacer.Replace(s)
	s = spaceRunRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
