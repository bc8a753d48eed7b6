package webdav

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listResponseXML = `<?xml version="1.0" encoding="utf-8"?>
<D:multistatus xmlns:D="DAV:">
  <D:response>
    <D:href>/remote.php/dav/files/me/docs/</D:href>
    <D:propstat>
      <D:prop>
        <D:resourcetype><D:collection/></D:resourcetype>
        <D:getetag>&quot;root-etag&quot;</D:getetag>
      </D:prop>
      <D:status>HTTP/1.1 200 OK</D:status>
    </D:propstat>
  </D:response>
  <D:response>
    <D:href>/remote.php/dav/files/me/docs/report.txt</D:href>
    <D:propstat>
      <D:prop>
        <D:resourcetype/>
        <D:getetag>&quot;file-etag&quot;</D:getetag>
      </D:prop>
      <D:status>HTTP/1.1 200 OK</D:status>
    </D:propstat>
  </D:response>
  <D:response>
    <D:href>/remote.php/dav/files/me/docs/sub%20folder/</D:href>
    <D:propstat>
      <D:prop>
        <D:resourcetype><D:collection/></D:resourcetype>
        <D:getetag>&quot;sub-etag&quot;</D:getetag>
      </D:prop>
      <D:status>HTTP/1.1 200 OK</D:status>
    </D:propstat>
  </D:response>
  <D:response>
    <D:href>/remote.php/dav/files/me/docs/locked.txt</D:href>
    <D:propstat>
      <D:prop>
        <D:lockdiscovery/>
      </D:prop>
      <D:status>HTTP/1.1 423 Locked</D:status>
    </D:propstat>
    <D:propstat>
      <D:prop>
        <D:resourcetype/>
        <D:getetag>&quot;locked-etag&quot;</D:getetag>
      </D:prop>
      <D:status>HTTP/1.1 200 OK</D:status>
    </D:propstat>
  </D:response>
</D:multistatus>`

func TestParseMultistatus_ListingEntries(t *testing.T) {
	entries, err := parseMultistatus("/remote.php/dav/files/me/docs", []byte(listResponseXML))
	require.NoError(t, err)
	require.Len(t, entries, 4)

	byName := map[string]entry{}
	for _, e := range entries {
		byName[e.name] = e
	}

	root := byName["."]
	assert.True(t, root.isDir)
	assert.Equal(t, `"root-etag"`, root.syncAttr)

	file := byName["report.txt"]
	assert.False(t, file.isDir)
	assert.Equal(t, `"file-etag"`, file.syncAttr)

	sub := byName["sub folder"]
	assert.True(t, sub.isDir)
	assert.Equal(t, `"sub-etag"`, sub.syncAttr)

	locked := byName["locked.txt"]
	assert.False(t, locked.isDir)
	assert.Equal(t, `"locked-etag"`, locked.syncAttr)
}

func TestParseMultistatus_AbsoluteHref(t *testing.T) {
	body := `<?xml version="1.0"?>
<D:multistatus xmlns:D="DAV:">
  <D:response>
    <D:href>https://dav.example.com/remote.php/dav/files/me/docs/report.txt</D:href>
    <D:propstat>
      <D:prop><D:resourcetype/><D:getetag>&quot;etag&quot;</D:getetag></D:prop>
      <D:status>HTTP/1.1 200 OK</D:status>
    </D:propstat>
  </D:response>
</D:multistatus>`

	entries, err := parseMultistatus("/remote.php/dav/files/me/docs", []byte(body))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "report.txt", entries[0].name)
}

func TestParseMultistatus_GetFileInfoSingleEntry(t *testing.T) {
	body := `<?xml version="1.0"?>
<D:multistatus xmlns:D="DAV:">
  <D:response>
    <D:href>/remote.php/dav/files/me/docs/report.txt</D:href>
    <D:propstat>
      <D:prop><D:resourcetype/><D:getetag>&quot;etag&quot;</D:getetag></D:prop>
      <D:status>HTTP/1.1 200 OK</D:status>
    </D:propstat>
  </D:response>
</D:multistatus>`

	entries, err := parseMultistatus("/remote.php/dav/files/me/docs/report.txt", []byte(body))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ".", entries[0].name)
	assert.False(t, entries[0].isDir)
}

func TestParseMultistatus_UnresolvableHrefErrors(t *testing.T) {
	body := `<?xml version="1.0"?>
<D:multistatus xmlns:D="DAV:">
  <D:response>
    <D:href>/remote.php/dav/files/someoneelse/other.txt</D:href>
    <D:propstat>
      <D:prop><D:resourcetype/><D:getetag>&quot;etag&quot;</D:getetag></D:prop>
      <D:status>HTTP/1.1 200 OK</D:status>
    </D:propstat>
  </D:response>
</D:multistatus>`

	_, err := parseMultistatus("/remote.php/dav/files/me/docs", []byte(body))
	require.Error(t, err)
}

func TestParseMultistatus_MalformedXMLErrors(t *testing.T) {
	_, err := parseMultistatus("/docs", []byte("not xml"))
	require.Error(t, err)
}

func TestStripWeakPrefix(t *testing.T) {
	assert.Equal(t, `"strong"`, stripWeakPrefix(`W/"strong"`))
	assert.Equal(t, `"strong"`, stripWeakPrefix(`"strong"`))
}

func TestRelativePath(t *testing.T) {
	rel, err := relativePath("/docs", "/docs")
	require.NoError(t, err)
	assert.Equal(t, ".", rel)

	rel, err = relativePath("/docs", "/docs/report.txt")
	require.NoError(t, err)
	assert.Equal(t, "report.txt", rel)

	_, err = relativePath("/docs", "/other/report.txt")
	require.Error(t, err)
}
