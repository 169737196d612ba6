package pattern

import (
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleURLs() []string {
	return []string{
		"https://example.test/wp-content/uploads/2024/03/image-1.png",
		"https://example.test/wp-content/uploads/2024/03/image-2.png",
		"https://example.test/wp-content/uploads/2024/04/image-5-redacted.png",
		"https://example.test/wp-content/uploads/2024/04/image-5-blurred.png?ver=3",
		"https://example.test/gallery/photo-1.jpg",
		"https://example.test/gallery/photo-2.jpg",
		"https://example.test/gallery/photo-4.jpg",
		"https://example.test/gallery/photo-7.jpg",
		"https://example.test/gallery/photo-7-redacted.jpg",
		"https://example.test/shots/screen-1-2.webp",
		"https://example.test/shots/screen-1-3.webp",
		"https://example.test/banner.png",
		"https://example.test/redacted.png",
		"https://example.test/gallery/photo-2.jpg#dup",
	}
}

func TestGroup_Partition(t *testing.T) {
	groups := Group(sampleURLs(), DefaultVocabulary())
	require.Len(t, groups, 3)

	img := groups[Key{DirTemplate: "/wp-content/uploads/{YYYY}/{MM}/", Prefix: "image", Ext: "png", NumLen: 1}]
	require.NotNil(t, img)
	require.Equal(t, 4, img.Len())
	require.Equal(t, []string{"blurred", "redacted"}, img.Modifiers())
	require.Equal(t, []Index{{1}, {2}, {5}}, img.IndexTuples())

	photo := groups[Key{DirTemplate: "/gallery/", Prefix: "photo", Ext: "jpg", NumLen: 1}]
	require.NotNil(t, photo)
	require.Equal(t, 5, photo.Len(), "规范化后重复的 URL 只计一次")

	shots := groups[Key{DirTemplate: "/shots/", Prefix: "screen", Ext: "webp", NumLen: 2}]
	require.NotNil(t, shots)
	require.Equal(t, "/shots/screen-{n1}-{n2}.webp", shots.Pattern())
	require.Nil(t, shots.Missing(10))
	require.Equal(t, 0, shots.MissingCount())
}

func TestGroup_OrderIndependent(t *testing.T) {
	urls := sampleURLs()
	want := Group(urls, DefaultVocabulary())

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		perm := append([]string(nil), urls...)
		rng.Shuffle(len(perm), func(a, b int) { perm[a], perm[b] = perm[b], perm[a] })
		require.Equal(t, want, Group(perm, DefaultVocabulary()), "permutation %d", i)
	}
}

func TestGroup_NumLenSeparatesGroups(t *testing.T) {
	groups := Group([]string{
		"https://example.test/a/img-1.png",
		"https://example.test/a/img-1-2.png",
	}, DefaultVocabulary())
	require.Len(t, groups, 2)
}

func TestPatternGroup_Pattern(t *testing.T) {
	groups := Group(sampleURLs(), DefaultVocabulary())
	img := groups[Key{DirTemplate: "/wp-content/uploads/{YYYY}/{MM}/", Prefix: "image", Ext: "png", NumLen: 1}]
	require.Equal(t, "/wp-content/uploads/{YYYY}/{MM}/image-{n}(-{modifier}).png", img.Pattern())
}

func TestPatternGroup_Missing(t *testing.T) {
	groups := Group([]string{
		"https://example.test/g/photo-1.jpg",
		"https://example.test/g/photo-2.jpg",
		"https://example.test/g/photo-4.jpg",
		"https://example.test/g/photo-7.jpg",
	}, DefaultVocabulary())
	require.Len(t, groups, 1)
	for _, g := range groups {
		require.Equal(t, []int{3, 5, 6}, g.Missing(100))
		require.Equal(t, []int{3, 5}, g.Missing(2))
		require.Nil(t, g.Missing(0))
		require.Equal(t, 3, g.MissingCount())
	}
}

func TestPatternGroup_MissingWideRange(t *testing.T) {
	groups := Group([]string{
		"https://example.test/g/img-1.png",
		"https://example.test/g/img-1000000000.png",
	}, DefaultVocabulary())
	for _, g := range groups {
		require.Equal(t, []int{2, 3, 4, 5, 6}, g.Missing(5))
		require.Equal(t, 999999998, g.MissingCount())
	}
}

func TestScore(t *testing.T) {
	var urls []string
	for i := 1; i <= 11; i++ {
		urls = append(urls, "https://example.test/2024/03/image-"+strconv.Itoa(i)+".png")
	}
	urls = append(urls, "https://example.test/2024/03/image-12-redacted.png")

	groups := Group(urls, DefaultVocabulary())
	require.Len(t, groups, 1)
	for k, g := range groups {
		require.Equal(t, "/{YYYY}/{MM}/", k.DirTemplate)
		require.Equal(t, 12, g.Len())
		require.Equal(t, 9, g.Score())
	}

	plain := Group([]string{"https://example.test/files/doc-1.png"}, DefaultVocabulary())
	for _, g := range plain {
		require.Equal(t, 2, g.Score())
	}
}

func TestRank(t *testing.T) {
	urls := []string{
		// score 2, 1 member
		"https://example.test/b/zeta-1.png",
		// score 2, 2 members
		"https://example.test/b/alpha-1.png",
		"https://example.test/b/alpha-2.png",
		// score 2, 1 member, sorts before zeta by pattern
		"https://example.test/b/beta-1.png",
		// score 5: generic prefix + modifier
		"https://example.test/c/img-3-redacted.png",
	}
	ranked := Rank(Group(urls, DefaultVocabulary()))
	require.Len(t, ranked, 4)

	var got []string
	for _, g := range ranked {
		got = append(got, g.Pattern())
	}
	require.Equal(t, []string{
		"/c/img-{n}(-{modifier}).png",
		"/b/alpha-{n}.png",
		"/b/beta-{n}.png",
		"/b/zeta-{n}.png",
	}, got)
}
