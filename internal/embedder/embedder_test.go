package embedder

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestComputeHash(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "empty string",
			text: "",
			want: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name: "simple text",
			text: "hello world",
			want: "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeHash(tt.text); got != tt.want {
				t.Errorf("ComputeHash() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateBatch(t *testing.T) {
	tests := []struct {
		name    string
		texts   []string
		wantErr error
	}{
		{"valid batch", []string{"a", "b"}, nil},
		{"empty batch", nil, ErrInvalidInput},
		{"contains empty text", []string{"a", "", "c"}, ErrInvalidInput},
		{"too large", make([]string, MaxBatchSize+1), ErrBatchTooLarge},
	}

	// The oversized batch still needs non-empty entries.
	for i := range tests[3].texts {
		tests[3].texts[i] = "x"
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBatch(tt.texts)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateBatch() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateBatch() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCacheCopyOnGet(t *testing.T) {
	cache := NewCache(10)
	cache.Set("k", []float32{1, 2, 3})

	v, ok := cache.Get("k")
	if !ok {
		t.Fatal("cache miss")
	}
	v[0] = 99

	again, _ := cache.Get("k")
	if again[0] != 1 {
		t.Error("caller mutation leaked into the cache")
	}
}

func TestCacheEviction(t *testing.T) {
	cache := NewCache(2)
	cache.Set("a", []float32{1})
	cache.Set("b", []float32{2})
	cache.Set("c", []float32{3})

	if cache.Size() != 2 {
		t.Errorf("Size() = %d, want 2", cache.Size())
	}
	if _, ok := cache.Get("a"); ok {
		t.Error("oldest entry not evicted")
	}
}

func TestLocalProviderDeterministic(t *testing.T) {
	p := NewLocalProvider(nil)
	ctx := context.Background()

	first, err := p.EmbedBatch(ctx, []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	second, err := p.EmbedBatch(ctx, []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}

	for i := range first {
		if len(first[i]) != LocalDimension {
			t.Fatalf("vector %d has dimension %d, want %d", i, len(first[i]), LocalDimension)
		}
		for j := range first[i] {
			if first[i][j] != second[i][j] {
				t.Fatalf("vector %d not deterministic at dim %d", i, j)
			}
		}
	}
}

func TestLocalProviderDistinctTexts(t *testing.T) {
	p := NewLocalProvider(nil)
	vectors, err := p.EmbedBatch(context.Background(), []string{"alpha", "omega"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}

	same := true
	for i := range vectors[0] {
		if vectors[0][i] != vectors[1][i] {
			same = false
			break
		}
	}
	if same {
		t.Error("distinct texts produced identical vectors")
	}
}

func TestLocalProviderUsesCache(t *testing.T) {
	cache := NewCache(10)
	p := NewLocalProvider(cache)

	if _, err := p.EmbedBatch(context.Background(), []string{"cached text"}); err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if cache.Size() != 1 {
		t.Errorf("cache size = %d after embed, want 1", cache.Size())
	}
	if _, ok := cache.Get(ComputeHash("cached text")); !ok {
		t.Error("vector not cached under content hash")
	}
}

func TestLocalProviderRejectsInvalidBatch(t *testing.T) {
	p := NewLocalProvider(nil)
	if _, err := p.EmbedBatch(context.Background(), nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("EmbedBatch(nil) error = %v, want %v", err, ErrInvalidInput)
	}
}

func TestNewFactoryDefaults(t *testing.T) {
	provider, err := New(Config{Provider: ProviderLocal})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = provider.Close() }()

	if provider.Name() != ProviderLocal {
		t.Errorf("Name() = %q, want %q", provider.Name(), ProviderLocal)
	}
	if provider.Dimension() != LocalDimension {
		t.Errorf("Dimension() = %d, want %d", provider.Dimension(), LocalDimension)
	}
}

func TestNewFactoryUnknownProvider(t *testing.T) {
	if _, err := New(Config{Provider: "carrier-pigeon"}); err == nil {
		t.Error("New() with unknown provider should fail")
	} else if !strings.Contains(err.Error(), "carrier-pigeon") {
		t.Errorf("error %q does not name the provider", err)
	}
}
