package render

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/dragonmail/internal/model"
)

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace", "  \n ", ""},
		{"paragraphs", "<p>Hello</p><p>World</p>", "Hello\nWorld"},
		{"line breaks", "one<br>two<BR/>three", "one\ntwo\nthree"},
		{"entities", "<b>Tom &amp; Jerry</b> &lt;3", "Tom & Jerry <3"},
		{"script dropped", "<script>alert(1)</script><p>safe</p>", "safe"},
		{"style dropped", "<style>p{color:red}</style>Code: <strong>1234</strong>", "Code: 1234"},
		{"blank runs collapse", "<p>a</p><p></p><p></p><p></p><p>b</p>", "a\n\nb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTMLToText(tt.in))
		})
	}
}

func TestSanitizeHTML(t *testing.T) {
	out := SanitizeHTML(`<p onclick="x()">Hi <a href="javascript:alert(1)">bad</a> <a href="https://example.com">ok</a></p><script>x</script>`)

	assert.NotContains(t, out, "onclick")
	assert.NotContains(t, out, "javascript:")
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, `href="https://example.com"`)
}

func TestBody(t *testing.T) {
	assert.Equal(t, "plain", Body(model.Message{Text: " plain ", HTML: []string{"<p>html</p>"}}))
	assert.Equal(t, "html", Body(model.Message{HTML: []string{"<p>html</p>"}}))
	assert.Equal(t, "intro", Body(model.Message{Intro: "intro"}))
}

func TestSenderAndSubject(t *testing.T) {
	assert.Equal(t, "(unknown sender)", Sender(model.Message{}))
	assert.Equal(t, "Ann <ann@example.com>", Sender(model.Message{From: model.Address{Name: "Ann", Address: "ann@example.com"}}))
	assert.Equal(t, "(no subject)", Subject(model.Message{Subject: "  "}))
	assert.Equal(t, "Hi", Subject(model.Message{Subject: "Hi"}))
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "1.5 KB", FormatSize(1536))
	assert.Equal(t, "2.0 MB", FormatSize(2*1024*1024))
}
