package config

import (
	"reflect"
	"testing"
)

const sampleConfig = `
# top-level comment
debug = true
url = act.wiki

; redis config
[redis]
redis.key = push1, push2

[math]
math.i64 = 64
math.f64 = 64.1

[matchers]
m = r.sub == p.sub && \
    r.obj == p.obj && \
    r.act == p.act
`

func TestConfigFromText(t *testing.T) {
	t.Parallel()

	c, err := NewConfigFromText(sampleConfig)
	if err != nil {
		t.Fatalf("NewConfigFromText() error: %v", err)
	}

	if got, err := c.GetBool("debug"); err != nil || !got {
		t.Errorf("GetBool(debug) = %v, %v, want true", got, err)
	}
	if got := c.GetString("url"); got != "act.wiki" {
		t.Errorf("GetString(url) = %q, want act.wiki", got)
	}
	if got, err := c.GetInt("math::math.i64"); err != nil || got != 64 {
		t.Errorf("GetInt(math::math.i64) = %v, %v, want 64", got, err)
	}
	if got, err := c.GetFloat("math::math.f64"); err != nil || got != 64.1 {
		t.Errorf("GetFloat(math::math.f64) = %v, %v, want 64.1", got, err)
	}
	if got := c.GetStrings("redis::redis.key"); !reflect.DeepEqual(got, []string{"push1", "push2"}) {
		t.Errorf("GetStrings(redis::redis.key) = %v, want [push1 push2]", got)
	}
}

func TestConfigLineContinuation(t *testing.T) {
	t.Parallel()

	c, err := NewConfigFromText(sampleConfig)
	if err != nil {
		t.Fatalf("NewConfigFromText() error: %v", err)
	}

	want := "r.sub == p.sub &&r.obj == p.obj &&r.act == p.act"
	if got := c.Get("matchers::m"); got != want {
		t.Errorf("continued matcher = %q, want %q", got, want)
	}
}

func TestConfigCaseInsensitiveLookup(t *testing.T) {
	t.Parallel()

	c, err := NewConfigFromText("[Section]\nKey = value\n")
	if err != nil {
		t.Fatalf("NewConfigFromText() error: %v", err)
	}
	if got := c.Get("SECTION::KEY"); got != "value" {
		t.Errorf("Get(SECTION::KEY) = %q, want value", got)
	}
}

func TestConfigDuplicateKeyOverwrites(t *testing.T) {
	t.Parallel()

	c, err := NewConfigFromText("[s]\nk = first\nk = second\n")
	if err != nil {
		t.Fatalf("NewConfigFromText() error: %v", err)
	}
	if got := c.Get("s::k"); got != "second" {
		t.Errorf("Get(s::k) = %q, want second", got)
	}
}

func TestConfigParseError(t *testing.T) {
	t.Parallel()

	if _, err := NewConfigFromText("[s]\nnot a pair\n"); err == nil {
		t.Error("NewConfigFromText() with malformed line: error = nil, want parse error")
	}
}

func TestConfigTypedAccessorErrors(t *testing.T) {
	t.Parallel()

	c, err := NewConfigFromText("k = notanumber\n")
	if err != nil {
		t.Fatalf("NewConfigFromText() error: %v", err)
	}
	if _, err := c.GetInt("k"); err == nil {
		t.Error("GetInt(k) error = nil, want parse error")
	}
	if _, err := c.GetBool("k"); err == nil {
		t.Error("GetBool(k) error = nil, want parse error")
	}
}
