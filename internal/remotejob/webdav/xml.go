package webdav

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// multistatus is the subset of RFC 4918's DAV:multistatus response this
// backend needs: each entry's href, resourcetype (file vs. collection),
// and getetag. golang.org/x/net/webdav does not export client-facing
// multistatus decoding types (its XML machinery is internal and built
// around serving, not parsing, PROPFIND responses), so this is a direct
// encoding/xml rendering of the DAV: namespace elements SynqClient's
// AbstractWebDAVJobPrivate::parseResponseEntry reads.
type multistatus struct {
	XMLName   xml.Name   `xml:"DAV: multistatus"`
	Responses []response `xml:"response"`
}

type response struct {
	Href      string     `xml:"href"`
	Propstats []propstat `xml:"propstat"`
}

type propstat struct {
	Status string `xml:"status"`
	Prop   prop   `xml:"prop"`
}

type prop struct {
	ResourceType resourceType `xml:"resourcetype"`
	ETag         string       `xml:"getetag"`
}

type resourceType struct {
	Collection *struct{} `xml:"collection"`
}

// entry is one parsed multistatus response, relative to the PROPFIND
// request path.
type entry struct {
	// name is "." for the requested resource itself, or the path segment
	// relative to the request's base directory for a child.
	name     string
	isDir    bool
	syncAttr string
}

// parseMultistatus decodes a PROPFIND response body into entries, relative
// to requestPath (the canonical path the PROPFIND was issued against).
func parseMultistatus(requestPath string, body []byte) ([]entry, error) {
	var ms multistatus
	if err := xml.Unmarshal(body, &ms); err != nil {
		return nil, fmt.Errorf("webdav: decoding multistatus response: %w", err)
	}

	baseDir := path.Clean("/" + requestPath)

	entries := make([]entry, 0, len(ms.Responses))

	for _, resp := range ms.Responses {
		e, ok, err := parseResponseEntry(baseDir, resp)
		if err != nil {
			return nil, err
		}

		if ok {
			entries = append(entries, e)
		}
	}

	return entries, nil
}

func parseResponseEntry(baseDir string, resp response) (entry, bool, error) {
	var (
		found bool
		e     entry
		etag  string
		isDir bool
	)

	for _, ps := range resp.Propstats {
		if !strings.Contains(ps.Status, "200") {
			continue
		}

		found = true

		if ps.Prop.ResourceType.Collection != nil {
			isDir = true
		}

		if ps.Prop.ETag != "" {
			etag = ps.Prop.ETag
		}
	}

	if !found {
		return entry{}, false, nil
	}

	hrefPath, err := url.PathUnescape(resp.Href)
	if err != nil {
		return entry{}, false, fmt.Errorf("webdav: decoding href %q: %w", resp.Href, err)
	}

	hrefPath = path.Clean("/" + stripHostPrefix(hrefPath))

	rel, err := relativePath(baseDir, hrefPath)
	if err != nil {
		return entry{}, false, err
	}

	e.name = rel
	e.isDir = isDir
	e.syncAttr = etag

	return e, true, nil
}

// stripHostPrefix drops a scheme://host prefix if the server returned an
// absolute href instead of a path-only one (both are valid per RFC 4918).
func stripHostPrefix(href string) string {
	if u, err := url.Parse(href); err == nil && u.IsAbs() {
		return u.Path
	}

	return href
}

// relativePath returns hrefPath relative to baseDir: "." if they're the
// same resource, otherwise the final path segment for a direct child.
func relativePath(baseDir, hrefPath string) (string, error) {
	baseDir = strings.TrimSuffix(baseDir, "/")
	hrefPath = strings.TrimSuffix(hrefPath, "/")

	if hrefPath == baseDir {
		return ".", nil
	}

	prefix := baseDir + "/"
	if !strings.HasPrefix(hrefPath, prefix) {
		return "", fmt.Errorf("webdav: response href %q is not under requested path %q", hrefPath, baseDir)
	}

	return strings.TrimPrefix(hrefPath, prefix), nil
}

// stripWeakPrefix removes the "W/" weak-validator marker some servers
// prepend to ETags, matching WebDAVDownloadFileJobPrivate's handling so a
// weak GET ETag still compares equal to a strong PROPFIND one.
func stripWeakPrefix(etag string) string {
	return strings.TrimPrefix(etag, "W/")
}
