package tokenizer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWordsRoundTrip(t *testing.T) {
	tok := NewWords()

	ids := tok.Encode("  alpha beta\n\tgamma  alpha ")
	require.Len(t, ids, 4)
	assert.Equal(t, ids[0], ids[3])
	assert.Equal(t, "alpha beta gamma alpha", tok.Decode(ids))

	again := tok.Encode(tok.Decode(ids))
	assert.Equal(t, ids, again)
}

func TestWordsCount(t *testing.T) {
	tok := NewWords()
	assert.Equal(t, 0, tok.Count(""))
	assert.Equal(t, 0, tok.Count(" \n "))
	assert.Equal(t, 3, tok.Count("one two three"))
	assert.Nil(t, tok.Encode("   "))
}

func TestWordsConcurrentEncode(t *testing.T) {
	tok := NewWords()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids := tok.Encode("shared vocabulary across goroutines")
			assert.Equal(t, "shared vocabulary across goroutines", tok.Decode(ids))
		}()
	}
	wg.Wait()
}

func TestNewByName(t *testing.T) {
	tok, err := New("words", "")
	require.NoError(t, err)
	assert.IsType(t, &Words{}, tok)

	_, err = New("sentencepiece", "")
	assert.Error(t, err)
}
