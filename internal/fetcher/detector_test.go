package fetcher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlockDetectorStatus(t *testing.T) {
	t.Parallel()

	d := NewBlockDetector(nil, nil, nil)
	require.Equal(t, "http 403", d.Status(403))
	require.Equal(t, "http 429", d.Status(429))
	require.Empty(t, d.Status(200))
	require.Empty(t, d.Status(0))
}

func TestBlockDetectorContent(t *testing.T) {
	t.Parallel()

	d := NewBlockDetector(nil, nil, nil)
	cases := map[string]string{
		`<html><head><title>Access Denied</title></head><body></body></html>`:                   "phrase access denied",
		`<html><body><iframe src="https://www.google.com/recaptcha/api2/anchor"></iframe></body>`: "selector iframe[src*=recaptcha]",
		`<html><body><div class="h-captcha"></div></body></html>`:                               "selector .h-captcha",
		`<html><body><p>Too Many Requests. Try later.</p></body></html>`:                        "phrase too many requests",
		`<html><body><p>Great phone, five stars.</p></body></html>`:                             "",
		`<html><body><script>var captcha = 1;</script><p>hello</p></body></html>`:               "",
		``: "",
	}
	for doc, want := range cases {
		require.Equal(t, want, d.Content([]byte(doc)), doc)
	}
}

func TestBlockDetectorIgnoresPhrasesInLongPages(t *testing.T) {
	t.Parallel()

	d := NewBlockDetector(nil, nil, nil)
	long := "<html><body><p>" + strings.Repeat("a long honest review ", 400) +
		"my account got blocked once</p></body></html>"
	require.Empty(t, d.Content([]byte(long)))

	titled := "<html><head><title>Security Check</title></head><body><p>" +
		strings.Repeat("filler ", 2000) + "</p></body></html>"
	require.Equal(t, "phrase security check", d.Content([]byte(titled)))
}

func TestBlockDetectorCustomLists(t *testing.T) {
	t.Parallel()

	d := NewBlockDetector([]int{503}, []string{"  Pardon Our Interruption "}, []string{"#px-captcha"})
	require.Equal(t, "http 503", d.Status(503))
	require.Empty(t, d.Status(403))
	require.Equal(t, "phrase pardon our interruption",
		d.Content([]byte(`<html><body><h1>Pardon our interruption</h1></body></html>`)))
	require.Equal(t, "selector #px-captcha",
		d.Content([]byte(`<html><body><div id="px-captcha"></div></body></html>`)))
}
