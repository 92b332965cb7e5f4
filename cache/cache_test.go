package cache

import (
	"testing"
	"time"
)

func TestMemoryCacheBasics(t *testing.T) {
	c := NewMemoryCache()

	if _, ok := c.Get("missing"); ok {
		t.Error("Get(missing) = hit")
	}

	c.Set("k", []byte("v"), 0)
	got, ok := c.Get("k")
	if !ok || string(got) != "v" {
		t.Errorf("Get(k) = (%q, %v)", got, ok)
	}

	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("Get after Delete = hit")
	}
}

func TestMemoryCacheTTL(t *testing.T) {
	c := NewMemoryCache()
	c.Set("short", []byte("x"), time.Nanosecond)
	time.Sleep(time.Millisecond)
	if _, ok := c.Get("short"); ok {
		t.Error("expired entry still readable")
	}

	c.Set("long", []byte("y"), time.Hour)
	if _, ok := c.Get("long"); !ok {
		t.Error("unexpired entry missing")
	}
}

func TestBoundsCache(t *testing.T) {
	bc := NewBoundsCache(NewMemoryCache(), 0)

	if _, ok := bc.Get("public"); ok {
		t.Error("empty bounds cache reported a hit")
	}

	tb := TimeBounds{
		Earliest: time.Date(2015, 9, 9, 0, 0, 0, 0, time.UTC),
		Latest:   time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	bc.Set("public", tb)

	got, ok := bc.Get("public")
	if !ok {
		t.Fatal("bounds cache miss after Set")
	}
	if !got.Earliest.Equal(tb.Earliest) || !got.Latest.Equal(tb.Latest) {
		t.Errorf("bounds = %+v, want %+v", got, tb)
	}

	// Scopes are independent.
	if _, ok := bc.Get("other"); ok {
		t.Error("bounds leaked across scopes")
	}

	bc.Invalidate("public")
	if _, ok := bc.Get("public"); ok {
		t.Error("bounds cache hit after Invalidate")
	}
}
