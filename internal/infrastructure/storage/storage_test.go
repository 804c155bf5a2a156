package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================
// MemoryStore Tests
// ============================================

func TestMemoryStore_SetGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "cart_items", []byte(`[1,2,3]`)))

	data, err := s.Get(ctx, "cart_items")
	require.NoError(t, err)
	assert.Equal(t, []byte(`[1,2,3]`), data)
}

func TestMemoryStore_GetMissing(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Get(context.Background(), "nope")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	require.NoError(t, s.Delete(ctx, "k"))

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("abc")))

	data, err := s.Get(ctx, "k")
	require.NoError(t, err)
	data[0] = 'x'

	again, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

// ============================================
// FileStore Tests
// ============================================

func TestFileStore_RoundTrip(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "checkout_step", []byte("2")))

	data, err := s.Get(ctx, "checkout_step")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), data)
}

func TestFileStore_GetMissing(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_DeleteMissingIsNoop(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	assert.NoError(t, s.Delete(context.Background(), "missing"))
}

func TestFileStore_SanitizesKeys(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "../escape/attempt", []byte("v")))

	data, err := s.Get(ctx, "../escape/attempt")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), data)

	// Nothing may be written outside the state directory
	_, statErr := os.Stat(filepath.Join(filepath.Dir(dir), "escape"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s1.Set(ctx, "cart_items", []byte(`[{"id":"a"}]`)))

	s2, err := NewFileStore(dir)
	require.NoError(t, err)
	data, err := s2.Get(ctx, "cart_items")
	require.NoError(t, err)
	assert.Equal(t, []byte(`[{"id":"a"}]`), data)
}

// ============================================
// JSON helper Tests
// ============================================

func TestJSONHelpers(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	type pref struct {
		Locale string `json:"locale"`
	}

	require.NoError(t, SetJSON(ctx, s, "prefs", pref{Locale: "en"}))

	var got pref
	require.NoError(t, GetJSON(ctx, s, "prefs", &got))
	assert.Equal(t, "en", got.Locale)
}

func TestGetJSON_CorruptValue(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "prefs", []byte("{not json")))

	var got map[string]string
	err := GetJSON(ctx, s, "prefs", &got)
	assert.Error(t, err)
}

// ============================================
// Notifier Tests
// ============================================

func TestNotifier_PublishesSetAndDelete(t *testing.T) {
	n := NewNotifier(NewMemoryStore())
	ctx := context.Background()

	ch, cancel := n.Subscribe("locale")
	defer cancel()

	require.NoError(t, n.Set(ctx, "locale", []byte(`"fr"`)))
	require.NoError(t, n.Delete(ctx, "locale"))

	ev := <-ch
	assert.Equal(t, Event{Key: "locale", Op: OpSet}, ev)
	ev = <-ch
	assert.Equal(t, Event{Key: "locale", Op: OpDelete}, ev)
}

func TestNotifier_FiltersByKey(t *testing.T) {
	n := NewNotifier(NewMemoryStore())
	ctx := context.Background()

	ch, cancel := n.Subscribe("locale")
	defer cancel()

	require.NoError(t, n.Set(ctx, "cart_items", []byte("[]")))

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestNotifier_EmptyKeyMatchesAll(t *testing.T) {
	n := NewNotifier(NewMemoryStore())
	ctx := context.Background()

	ch, cancel := n.Subscribe("")
	defer cancel()

	require.NoError(t, n.Set(ctx, "a", []byte("1")))
	require.NoError(t, n.Set(ctx, "b", []byte("2")))

	assert.Equal(t, "a", (<-ch).Key)
	assert.Equal(t, "b", (<-ch).Key)
}

func TestNotifier_CancelStopsDelivery(t *testing.T) {
	n := NewNotifier(NewMemoryStore())
	ctx := context.Background()

	ch, cancel := n.Subscribe("k")
	cancel()

	require.NoError(t, n.Set(ctx, "k", []byte("v")))

	_, open := <-ch
	assert.False(t, open)
}
