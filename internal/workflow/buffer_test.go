package workflow

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTailBuffer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		capacity  int
		writes    []string
		want      string
		truncated bool
	}{
		{"fits", 64, []string{"hello"}, "hello", false},
		{"exact", 5, []string{"abcde"}, "abcde", false},
		{"single overflow", 8, []string{"abcdefghijkl"}, "efghijkl", true},
		{"multi overflow", 8, []string{"abcdef", "ghij"}, "cdefghij", true},
		{"large after small", 4, []string{"ab", "wxyz"}, "wxyz", true},
		{"empty write", 4, []string{"ab", ""}, "ab", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTailBuffer(tt.capacity)
			for _, w := range tt.writes {
				n, err := b.Write([]byte(w))
				require.NoError(t, err)
				assert.Equal(t, len(w), n)
			}
			assert.Equal(t, tt.want, b.String())
			assert.Equal(t, tt.truncated, b.Truncated())
		})
	}
}

func TestTailBuffer_DefaultCapacity(t *testing.T) {
	t.Parallel()

	b := newTailBuffer(0)
	_, _ = b.Write([]byte(strings.Repeat("a", DefaultOutputTail+10)))
	assert.Len(t, b.String(), DefaultOutputTail)
}

func TestTailBuffer_Concurrent(t *testing.T) {
	t.Parallel()

	b := newTailBuffer(128)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = b.Write([]byte("0123456789"))
			}
		}()
	}
	wg.Wait()
	assert.Len(t, b.String(), 128)
}
