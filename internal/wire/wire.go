// Package wire holds the conventions of the Flox REST protocol that are shared
// between the SDK, its test server and the development backend: the metadata
// header, the wire timestamp format and the zlib+base64 body codec.
package wire

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/net/html"
)

const (
	// HeaderName carries the JSON-encoded request metadata.
	HeaderName = "X-Flox"

	// ContentEncodingHeader marks a response body as compressed.
	ContentEncodingHeader = "X-Content-Encoding"

	// CompressionZlib is the only body compression the protocol knows.
	CompressionZlib = "zlib"

	// TimeLayout is the wire timestamp, e.g. 2014-02-20T20:15:00.123Z.
	TimeLayout = "2006-01-02T15:04:05.000Z"
)

// FormatTime renders t in the wire timestamp format (always UTC).
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a wire timestamp. RFC 3339 values are accepted as well,
// since servers are not always strict about the millisecond part.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid wire timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// SDKInfo identifies the client library in the metadata header.
type SDKInfo struct {
	Type    string `json:"type"`
	Version string `json:"version"`
}

// Metadata is the content of the X-Flox request header.
type Metadata struct {
	SDK             SDKInfo         `json:"sdk"`
	GameKey         string          `json:"gameKey"`
	DispatchTime    string          `json:"dispatchTime"`
	BodyCompression string          `json:"bodyCompression,omitempty"`
	Player          json.RawMessage `json:"player,omitempty"`
}

// EncodeMetadata serializes the header value. player may be any JSON-encodable value.
func EncodeMetadata(sdk SDKInfo, gameKey string, dispatch time.Time, player interface{}) (string, error) {
	rawPlayer, err := json.Marshal(player)
	if err != nil {
		return "", fmt.Errorf("failed to encode player: %w", err)
	}
	data, err := json.Marshal(Metadata{
		SDK:             sdk,
		GameKey:         gameKey,
		DispatchTime:    FormatTime(dispatch),
		BodyCompression: CompressionZlib,
		Player:          rawPlayer,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(data), nil
}

// DecodeMetadata parses an X-Flox header value.
func DecodeMetadata(value string) (*Metadata, error) {
	if value == "" {
		return nil, fmt.Errorf("missing %s header", HeaderName)
	}
	var meta Metadata
	if err := json.Unmarshal([]byte(value), &meta); err != nil {
		return nil, fmt.Errorf("invalid %s header: %w", HeaderName, err)
	}
	return &meta, nil
}

// Compress deflates data and returns it base64 encoded.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("failed to deflate body: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to deflate body: %w", err)
	}

	out := make([]byte, base64.StdEncoding.EncodedLen(buf.Len()))
	base64.StdEncoding.Encode(out, buf.Bytes())
	return out, nil
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(data)))
	n, err := base64.StdEncoding.Decode(raw, bytes.TrimSpace(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 body: %w", err)
	}

	zr, err := zlib.NewReader(bytes.NewReader(raw[:n]))
	if err != nil {
		return nil, fmt.Errorf("failed to inflate body: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("failed to inflate body: %w", err)
	}
	return out, nil
}

// EncodeBody turns a JSON-encodable value into a compressed wire body.
func EncodeBody(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal body: %w", err)
	}
	return Compress(data)
}

// DecodeBody decodes a response body into a generic JSON value. It never fails:
// an empty body yields an empty object, and anything that is not JSON (HTML
// error pages, plain text, broken compression) becomes {"message": ...}.
func DecodeBody(body []byte, compressed bool) interface{} {
	text := body
	if compressed && len(bytes.TrimSpace(body)) > 0 {
		inflated, err := Decompress(body)
		if err != nil {
			return map[string]interface{}{"message": ExtractMessage(body)}
		}
		text = inflated
	}

	if len(bytes.TrimSpace(text)) == 0 {
		return map[string]interface{}{}
	}

	var value interface{}
	if err := Unmarshal(text, &value); err != nil {
		return map[string]interface{}{"message": ExtractMessage(text)}
	}
	return value
}

// Unmarshal decodes a single JSON value into v. Numbers decode as
// json.Number, so integers beyond 2^53 keep every digit.
func Unmarshal(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("invalid character after top-level value")
	}
	return nil
}

// Int returns v as an integer if it is a number. Fractions are truncated.
func Int(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return int64(f), true
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

// Float returns v as a float64 if it is a number.
func Float(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// ExtractMessage returns the text of the first <h1> element in body, which
// is where reverse proxies and default error pages put the headline. If
// there is no such element the raw body is returned.
func ExtractMessage(body []byte) string {
	z := html.NewTokenizer(bytes.NewReader(body))
	depth := 0
	var sb strings.Builder

	for {
		switch z.Next() {
		case html.ErrorToken:
			return string(body)
		case html.StartTagToken:
			if name, _ := z.TagName(); string(name) == "h1" {
				depth++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "h1" && depth > 0 {
				return strings.TrimSpace(sb.String())
			}
		case html.TextToken:
			if depth > 0 {
				sb.Write(z.Text())
			}
		}
	}
}
