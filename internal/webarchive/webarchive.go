// Package webarchive locates the main HTML document inside a decoded
// webarchive property list. Subordinate resources (images, stylesheets,
// sub-frames) live under their own keys and are never traversed.
package webarchive

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Plist keys used by the webarchive container. Safari writes
// WebMainResource; some third-party producers shorten it to MainResource.
const (
	keyMainResource    = "WebMainResource"
	keyMainResourceAlt = "MainResource"
	keyData            = "WebResourceData"
	keyMIMEType        = "WebResourceMIMEType"
	keyTextEncoding    = "WebResourceTextEncodingName"
	keyURL             = "WebResourceURL"
)

// Resource is the main document of a webarchive.
type Resource struct {
	MIMEType     string
	TextEncoding string
	URL          string
	Data         []byte
}

// Extract reads the main resource out of a decoded webarchive plist.
func Extract(root any) (*Resource, error) {
	dict, ok := root.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("webarchive: root object is %T, want dictionary", root)
	}

	main, ok := dict[keyMainResource]
	if !ok {
		main, ok = dict[keyMainResourceAlt]
	}
	if !ok {
		return nil, errors.New("webarchive: missing WebMainResource")
	}
	mainDict, ok := main.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("webarchive: main resource is %T, want dictionary", main)
	}

	data, err := payloadBytes(mainDict[keyData])
	if err != nil {
		return nil, err
	}

	res := &Resource{
		Data:         data,
		TextEncoding: "UTF-8",
	}
	if s, ok := mainDict[keyTextEncoding].(string); ok && s != "" {
		res.TextEncoding = s
	}
	if s, ok := mainDict[keyURL].(string); ok {
		res.URL = s
	}
	if s, ok := mainDict[keyMIMEType].(string); ok && s != "" {
		res.MIMEType = s
		return res, nil
	}
	// No declared MIME type: accept only payloads that plausibly are HTML.
	if !looksLikeHTML(data) {
		return nil, errors.New("webarchive: main resource has no MIME type and does not look like HTML")
	}
	res.MIMEType = "text/html"
	return res, nil
}

// payloadBytes normalizes the WebResourceData value to raw bytes. Binary
// plists carry the payload verbatim as a data object; the XML plist variant
// base64-wraps it, which surfaces here as base64 text in a string object.
func payloadBytes(v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return nil, errors.New("webarchive: main resource missing WebResourceData")
	case []byte:
		if len(x) == 0 {
			return nil, errors.New("webarchive: WebResourceData is empty")
		}
		return x, nil
	case string:
		if x == "" {
			return nil, errors.New("webarchive: WebResourceData is empty")
		}
		if !looksLikeHTML([]byte(x)) {
			if decoded, err := base64.StdEncoding.DecodeString(compactBase64(x)); err == nil {
				return decoded, nil
			}
		}
		return []byte(x), nil
	default:
		return nil, fmt.Errorf("webarchive: WebResourceData is %T, want data", v)
	}
}

// looksLikeHTML reports whether the payload starts with markup after
// leading whitespace.
func looksLikeHTML(b []byte) bool {
	trimmed := bytes.TrimLeft(b, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '<'
}

// compactBase64 strips the whitespace XML plist writers insert into
// base64 blocks.
func compactBase64(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, s)
}
