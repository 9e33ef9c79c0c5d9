package id

import (
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateWithPrefix(t *testing.T) {
	gen := NewGenerator()

	for _, prefix := range []string{SessionPrefix, ConnPrefix, EventPrefix} {
		t.Run(prefix, func(t *testing.T) {
			got := gen.GenerateWithPrefix(prefix)

			require.True(t, strings.HasPrefix(got, prefix+"_"), got)
			parts := strings.Split(got, "_")
			require.Len(t, parts, 2)
			assert.Len(t, parts[1], 26)
		})
	}
}

func TestTypedIDs(t *testing.T) {
	assert.True(t, strings.HasPrefix(NewSessionID().String(), "sess_"))
	assert.True(t, strings.HasPrefix(NewConnID().String(), "conn_"))
	assert.True(t, strings.HasPrefix(NewEventID().String(), "evt_"))
}

func TestGeneratedSessionIDsAreValid(t *testing.T) {
	for i := 0; i < 100; i++ {
		assert.NoError(t, ValidateSessionID(NewSessionID().String()))
	}
}

func TestValidateSessionID(t *testing.T) {
	tests := []struct {
		name  string
		id    string
		valid bool
	}{
		{"generated shape", "sess_01HZX3K8J5Q7W2N4M6P8R0T2V4", true},
		{"client chosen", "my-project_1", true},
		{"empty", "", false},
		{"parent traversal", "..", false},
		{"slash", "a/b", false},
		{"space", "a b", false},
		{"dot", "a.b", false},
		{"too long", strings.Repeat("a", MaxSessionIDLen+1), false},
		{"max length", strings.Repeat("a", MaxSessionIDLen), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSessionID(tt.id)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidSessionID)
			}
		})
	}
}

func TestIsGeneratedSessionID(t *testing.T) {
	assert.True(t, IsGeneratedSessionID(NewSessionID().String()))
	assert.True(t, IsGeneratedSessionID("sess_01HZX3K8J5Q7W2N4M6P8R0T2V4"))

	for _, s := range []string{"", "sess_", "sess_left_behind", "conn_01HZX3K8J5Q7W2N4M6P8R0T2V4", "01HZX3K8J5Q7W2N4M6P8R0T2V4", "Documents"} {
		assert.False(t, IsGeneratedSessionID(s), s)
	}
}

func TestTimestamp(t *testing.T) {
	before := time.Now().Add(-time.Second)
	ts, err := Timestamp(NewSessionID().String())
	require.NoError(t, err)
	assert.True(t, ts.After(before))
	assert.True(t, ts.Before(time.Now().Add(time.Second)))

	_, err = Timestamp("sess_not-a-ulid")
	assert.Error(t, err)
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewGenerator()
	const workers, perWorker = 8, 200

	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, workers*perWorker)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				s := gen.GenerateWithPrefix(SessionPrefix)
				mu.Lock()
				seen[s] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}

func TestLexicographicOrder(t *testing.T) {
	gen := NewGenerator()
	first := gen.Generate().String()
	time.Sleep(2 * time.Millisecond)
	second := gen.Generate().String()

	ids := []string{second, first}
	sort.Strings(ids)
	assert.Equal(t, []string{first, second}, ids)
}

func BenchmarkNewSessionID(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = NewSessionID()
	}
}
