package webarchive

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"
)

func TestExtract_MainResource(t *testing.T) {
	html := []byte("<html><body><p>Hi</p></body></html>")
	root := map[string]any{
		"WebMainResource": map[string]any{
			"WebResourceData":             html,
			"WebResourceMIMEType":         "text/html",
			"WebResourceTextEncodingName": "ISO-8859-1",
			"WebResourceURL":              "https://example.org/",
		},
		"WebSubresources": []any{
			map[string]any{"WebResourceMIMEType": "image/png", "WebResourceData": []byte{1, 2, 3}},
		},
	}

	res, err := Extract(root)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !bytes.Equal(res.Data, html) {
		t.Fatalf("data mismatch: %q", res.Data)
	}
	if res.MIMEType != "text/html" {
		t.Fatalf("MIMEType = %q", res.MIMEType)
	}
	if res.TextEncoding != "ISO-8859-1" {
		t.Fatalf("TextEncoding = %q", res.TextEncoding)
	}
	if res.URL != "https://example.org/" {
		t.Fatalf("URL = %q", res.URL)
	}
}

func TestExtract_MainResourceAliasKey(t *testing.T) {
	root := map[string]any{
		"MainResource": map[string]any{
			"WebResourceData":     []byte("<p>aliased</p>"),
			"WebResourceMIMEType": "text/html",
		},
	}
	res, err := Extract(root)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if string(res.Data) != "<p>aliased</p>" {
		t.Fatalf("data = %q", res.Data)
	}
}

func TestExtract_DefaultsForOptionalKeys(t *testing.T) {
	root := map[string]any{
		"WebMainResource": map[string]any{
			"WebResourceData": []byte("  \n<html></html>"),
		},
	}
	res, err := Extract(root)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.MIMEType != "text/html" {
		t.Fatalf("MIMEType = %q, want text/html default", res.MIMEType)
	}
	if res.TextEncoding != "UTF-8" {
		t.Fatalf("TextEncoding = %q, want UTF-8 default", res.TextEncoding)
	}
}

func TestExtract_MissingMIMETypeOnNonHTMLPayload(t *testing.T) {
	root := map[string]any{
		"WebMainResource": map[string]any{
			"WebResourceData": []byte{0x89, 0x50, 0x4e, 0x47},
		},
	}
	if _, err := Extract(root); err == nil {
		t.Fatal("Extract succeeded on non-HTML payload without MIME type")
	}
}

func TestExtract_Base64WrappedPayload(t *testing.T) {
	html := "<html><body>wrapped</body></html>"
	encoded := base64.StdEncoding.EncodeToString([]byte(html))
	// XML plist writers wrap base64 lines.
	wrapped := encoded[:20] + "\n  " + encoded[20:]
	root := map[string]any{
		"WebMainResource": map[string]any{
			"WebResourceData":     wrapped,
			"WebResourceMIMEType": "text/html",
		},
	}
	res, err := Extract(root)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if string(res.Data) != html {
		t.Fatalf("data = %q, want decoded HTML", res.Data)
	}
}

func TestExtract_RawStringPayloadKeptVerbatim(t *testing.T) {
	root := map[string]any{
		"WebMainResource": map[string]any{
			"WebResourceData":     "<p>already markup</p>",
			"WebResourceMIMEType": "text/html",
		},
	}
	res, err := Extract(root)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if string(res.Data) != "<p>already markup</p>" {
		t.Fatalf("data = %q", res.Data)
	}
}

func TestExtract_StructuralErrors(t *testing.T) {
	cases := []struct {
		name string
		root any
		want string
	}{
		{"non-dict root", []any{"x"}, "want dictionary"},
		{"missing main resource", map[string]any{"WebSubresources": []any{}}, "WebMainResource"},
		{"main resource not a dict", map[string]any{"WebMainResource": "nope"}, "want dictionary"},
		{"missing data", map[string]any{"WebMainResource": map[string]any{"WebResourceMIMEType": "text/html"}}, "WebResourceData"},
		{"data wrong type", map[string]any{"WebMainResource": map[string]any{"WebResourceData": int64(5)}}, "WebResourceData"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Extract(tc.root)
			if err == nil {
				t.Fatal("Extract succeeded, want error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}
