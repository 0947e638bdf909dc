package keygen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_RejectsTemplateWithoutWildcards(t *testing.T) {
	_, err := Compile("STATIC-KEY")
	assert.ErrorIs(t, err, ErrInvalidFormat)

	_, err = Compile("")
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestGenerator_PreservesLiterals(t *testing.T) {
	gen, err := Compile("KEY-****")
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		key, err := gen.Next()
		require.NoError(t, err)
		require.Len(t, key, 8)
		assert.True(t, strings.HasPrefix(key, "KEY-"), "literal prefix must survive: %s", key)
		for _, ch := range key[4:] {
			assert.Contains(t, Alphabet, string(ch), "wildcard position must draw from the alphabet")
		}
	}
}

func TestGenerator_MixedLiteralsAndWildcards(t *testing.T) {
	gen, err := Compile("AB-**-CD-**")
	require.NoError(t, err)
	assert.Equal(t, 4, gen.Wildcards())

	key, err := gen.Next()
	require.NoError(t, err)
	require.Len(t, key, 11)
	assert.Equal(t, "AB-", key[:3])
	assert.Equal(t, "-CD-", key[5:9])
}

func TestGenerator_KeysDiffer(t *testing.T) {
	// 8 个通配符有 62^8 种取值，100 次抽取撞车的概率可以忽略
	gen, err := Compile("********")
	require.NoError(t, err)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key, err := gen.Next()
		require.NoError(t, err)
		assert.False(t, seen[key], "duplicate key generated: %s", key)
		seen[key] = true
	}
}

func TestGenerator_AlphabetCoverage(t *testing.T) {
	// 足够多的抽取应覆盖字母表的大部分；偏差严重时此测试会失败
	gen, err := Compile("*")
	require.NoError(t, err)

	counts := make(map[string]int)
	for i := 0; i < 6200; i++ {
		key, err := gen.Next()
		require.NoError(t, err)
		counts[key]++
	}
	assert.Greater(t, len(counts), len(Alphabet)*3/4, "draws should cover most of the alphabet")
}
