package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendExchange(user, assistant string) func([]Turn) ([]Turn, error) {
	return func(turns []Turn) ([]Turn, error) {
		return append(turns, User(user), Assistant(assistant)), nil
	}
}

func TestMemoryUpdateAppendsInOrder(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	ctx := context.Background()

	for i := range 5 {
		err := m.Update(ctx, "U1", appendExchange(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i)))
		require.NoError(t, err)
		assert.Equal(t, 2*(i+1), m.Len("U1"))
	}

	turns := m.Get("U1")
	for i := range 5 {
		assert.Equal(t, User(fmt.Sprintf("q%d", i)), turns[2*i])
		assert.Equal(t, Assistant(fmt.Sprintf("a%d", i)), turns[2*i+1])
	}
}

func TestMemoryUpdateErrorLeavesTurnsUnchanged(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Update(ctx, "U1", appendExchange("hi", "hello")))

	boom := errors.New("provider down")
	err := m.Update(ctx, "U1", func(turns []Turn) ([]Turn, error) {
		turns = append(turns, User("lost"))
		return turns, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []Turn{User("hi"), Assistant("hello")}, m.Get("U1"))
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	require.NoError(t, m.Update(context.Background(), "U1", appendExchange("hi", "hello")))

	got := m.Get("U1")
	got[0].Content = "mutated"
	assert.Equal(t, "hi", m.Get("U1")[0].Content)
}

func TestMemoryGetMissingKey(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	assert.Empty(t, m.Get("nobody"))
	assert.Equal(t, 0, m.Len("nobody"))
}

func TestMemoryDifferentKeysAreIndependent(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, key := range []string{"U1", "U2"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			for i := range 20 {
				_ = m.Update(ctx, key, appendExchange(fmt.Sprintf("%s-q%d", key, i), fmt.Sprintf("%s-a%d", key, i)))
			}
		}(key)
	}
	wg.Wait()

	for _, key := range []string{"U1", "U2"} {
		turns := m.Get(key)
		require.Len(t, turns, 40)
		for i := range 20 {
			assert.Equal(t, fmt.Sprintf("%s-q%d", key, i), turns[2*i].Content)
			assert.Equal(t, fmt.Sprintf("%s-a%d", key, i), turns[2*i+1].Content)
		}
	}
	assert.Equal(t, []string{"U1", "U2"}, m.Keys())
}

func TestMemorySameKeyUpdatesDoNotInterleave(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			err := m.Update(ctx, "U1", func(turns []Turn) ([]Turn, error) {
				turns = append(turns, User(fmt.Sprintf("q%d", w)))
				// Yield mid-update; a racing writer would observe the same base.
				time.Sleep(time.Millisecond)
				return append(turns, Assistant(fmt.Sprintf("a%d", w))), nil
			})
			assert.NoError(t, err)
		}(w)
	}
	wg.Wait()

	turns := m.Get("U1")
	require.Len(t, turns, 2*writers)
	seen := make(map[string]bool)
	for i := 0; i < len(turns); i += 2 {
		require.Equal(t, RoleUser, turns[i].Role)
		require.Equal(t, RoleAssistant, turns[i+1].Role)
		id := turns[i].Content[1:]
		assert.Equal(t, "a"+id, turns[i+1].Content, "exchange split at %d", i)
		seen[id] = true
	}
	assert.Len(t, seen, writers)
}

func TestMemoryUpdateHonoursContextWhileWaiting(t *testing.T) {
	t.Parallel()
	m := NewMemory()

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = m.Update(context.Background(), "U1", func(turns []Turn) ([]Turn, error) {
			close(started)
			<-release
			return turns, nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := m.Update(ctx, "U1", appendExchange("late", "never"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Readers are not blocked by the in-flight update.
	assert.Empty(t, m.Get("U1"))
	close(release)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "", want: ModePerUser},
		{in: "per-user", want: ModePerUser},
		{in: "PER_USER", want: ModePerUser},
		{in: "linear", want: ModeLinear},
		{in: " none ", want: ModeNone},
		{in: "thread", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestModeKey(t *testing.T) {
	key, ok := ModePerUser.Key("U1")
	assert.True(t, ok)
	assert.Equal(t, "U1", key)

	key, ok = ModeLinear.Key("U1")
	assert.True(t, ok)
	assert.Equal(t, LinearKey, key)

	_, ok = ModeNone.Key("U1")
	assert.False(t, ok)
}
