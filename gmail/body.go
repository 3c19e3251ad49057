package gmail

import (
	"encoding/base64"
	"io"
	"mime"
	"strings"

	"github.com/emersion/go-message/charset"
	"google.golang.org/api/gmail/v1"
)

// ExtractBody returns the readable body of payload. Multipart messages yield
// their first text/plain part, searching nested multiparts depth first, and
// otherwise the first text/html part. Single part messages are decoded as is.
// Anything that cannot be decoded yields "".
func ExtractBody(payload *gmail.MessagePart) string {
	if payload == nil {
		return ""
	}
	if len(payload.Parts) == 0 {
		return decodePart(payload)
	}
	if part := findPart(payload.Parts, "text/plain"); part != nil {
		return decodePart(part)
	}
	if part := findPart(payload.Parts, "text/html"); part != nil {
		return decodePart(part)
	}
	return ""
}

func findPart(parts []*gmail.MessagePart, mimeType string) *gmail.MessagePart {
	for _, part := range parts {
		if part == nil {
			continue
		}
		if strings.EqualFold(part.MimeType, mimeType) {
			return part
		}
		if len(part.Parts) > 0 {
			if found := findPart(part.Parts, mimeType); found != nil {
				return found
			}
		}
	}
	return nil
}

func decodePart(part *gmail.MessagePart) string {
	if part.Body == nil || part.Body.Data == "" {
		return ""
	}
	raw, ok := decodeData(part.Body.Data)
	if !ok {
		return ""
	}
	return toUTF8(raw, partCharset(part))
}

// decodeData accepts base64url with or without padding.
func decodeData(data string) ([]byte, bool) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return nil, false
	}
	return raw, true
}

func partCharset(part *gmail.MessagePart) string {
	for _, h := range part.Headers {
		if !strings.EqualFold(h.Name, "Content-Type") {
			continue
		}
		_, params, err := mime.ParseMediaType(h.Value)
		if err != nil {
			return ""
		}
		return params["charset"]
	}
	return ""
}

func toUTF8(raw []byte, cs string) string {
	cs = strings.ToLower(strings.TrimSpace(cs))
	if cs != "" && cs != "utf-8" && cs != "us-ascii" {
		r, err := charset.Reader(cs, strings.NewReader(string(raw)))
		if err == nil {
			if converted, err := io.ReadAll(r); err == nil {
				raw = converted
			}
		}
	}
	return strings.ToValidUTF8(string(raw), "�")
}
