package cache

import (
	"testing"
	"time"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid-redis", "redis://localhost:6379", false},
		{"valid-with-db", "redis://localhost:6379/2", false},
		{"wrong-scheme", "http://localhost:6379", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestKey(t *testing.T) {
	tests := []struct {
		parts []string
		want  string
	}{
		{[]string{"mastery", "learner-1"}, "course:mastery:learner-1"},
		{[]string{"ai_tokens"}, "course:ai_tokens"},
		{[]string{"mastery", "a:b", "correct"}, "course:mastery:a%3Ab:correct"},
		{nil, "course:"},
	}
	for _, tt := range tests {
		if got := Key(tt.parts...); got != tt.want {
			t.Errorf("Key(%v) = %q, want %q", tt.parts, got, tt.want)
		}
	}
}

func TestOptions(t *testing.T) {
	opts, err := ParseURL("redis://localhost:6379")
	if err != nil {
		t.Fatalf("ParseURL() error = %v", err)
	}
	before := opts.PoolSize

	WithPoolSize(0)(opts)
	if opts.PoolSize != before {
		t.Errorf("WithPoolSize(0) changed PoolSize to %d", opts.PoolSize)
	}
	WithPoolSize(20)(opts)
	WithTimeouts(time.Second, 2*time.Second)(opts)
	if opts.PoolSize != 20 || opts.DialTimeout != time.Second || opts.ReadTimeout != 2*time.Second || opts.WriteTimeout != 2*time.Second {
		t.Errorf("options = pool %d dial %v read %v write %v", opts.PoolSize, opts.DialTimeout, opts.ReadTimeout, opts.WriteTimeout)
	}
}

func TestNew_UnreachableHost(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping unreachable host test in short mode")
	}

	_, err := New(t.Context(), "redis://localhost:59999", WithTimeouts(500*time.Millisecond, 500*time.Millisecond))
	if err == nil {
		t.Fatal("New() should return error for unreachable host")
	}
}
