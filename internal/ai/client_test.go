package ai

import (
	"reflect"
	"testing"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name        string
		config      *ClientConfig
		expectError bool
	}{
		{
			name:        "nil config is rejected",
			config:      nil,
			expectError: true,
		},
		{
			name:        "unknown provider is rejected",
			config:      &ClientConfig{Provider: Provider("mystery")},
			expectError: true,
		},
		{
			name:        "stub provider",
			config:      &ClientConfig{Provider: ProviderStub, Dim: 4},
			expectError: false,
		},
		{
			name:        "openai provider",
			config:      &ClientConfig{Provider: ProviderOpenAI, APIKey: "sk-test"},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(tt.config)
			if tt.expectError {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if c == nil {
				t.Fatal("expected client, got nil")
			}
		})
	}
}

func TestStubClientDeterministic(t *testing.T) {
	c := NewStubClient(8)

	a, err := c.Embed("breach of contract")
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Embed("breach of contract")
	if err != nil {
		t.Fatal(err)
	}

	if len(a) != 8 {
		t.Errorf("embedding dim = %d, want 8", len(a))
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("identical inputs produced different embeddings")
	}

	other, _ := c.Embed("unrelated text about regulations")
	if reflect.DeepEqual(a, other) {
		t.Error("different inputs produced identical embeddings")
	}
}

func TestStubClientDefaults(t *testing.T) {
	c := NewStubClient(0)
	if c.Dim() == 0 {
		t.Error("stub must pick a non-zero default dimension")
	}
	if c.Model() != "stub" {
		t.Errorf("model tag = %q", c.Model())
	}
}
