package textclean

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanIMDB(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "a fine movie", "a fine movie"},
		{"line breaks", "good.<br /><br />bad.", "good.  bad."},
		{"quote entity", "so &quot;funny&quot;", `so "funny"`},
		{"paragraph", "one<p>two", "one two"},
		{"anchor", `see <a href="http://x.y">this</a> film`, "see this film"},
		{"two anchors", `<a href=a>x</a> and <a href=b>y</a>`, "x and y"},
		{"unterminated anchor", `watch <a href="http://x`, `watch "http://x`},
		{"escaped newline", `first\nsecond`, "first second"},
		{"stray closing anchor kept without opener", "end</a>", "end</a>"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CleanIMDB(tc.in))
		})
	}
}

func TestIsIMDBPath(t *testing.T) {
	assert.True(t, IsIMDBPath("/data/imdb/train.tsv"))
	assert.True(t, IsIMDBPath("s3://bucket/IMDB_train.tsv"))
	assert.False(t, IsIMDBPath("/data/sst2/train.tsv"))
	assert.False(t, IsIMDBPath("/data/Imdb.tsv"))
}

func TestShouldClean(t *testing.T) {
	assert.True(t, ShouldClean(ModeAuto, "imdb.tsv"))
	assert.False(t, ShouldClean(ModeAuto, "sst.tsv"))
	assert.True(t, ShouldClean(ModeIMDB, "sst.tsv"))
	assert.False(t, ShouldClean(ModeNone, "imdb.tsv"))
	assert.False(t, ShouldClean("", "sst.tsv"))
}

func TestCleanAll(t *testing.T) {
	texts := []string{"a<br />b", "c"}
	got := CleanAll(texts)
	assert.Equal(t, []string{"a b", "c"}, got)
}
