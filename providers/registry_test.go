package providers

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// fakeProvider is a minimal Provider implementation for registry tests
type fakeProvider struct {
	name   string
	models []string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return &ChatResponse{Model: req.Model, Provider: f.name}, nil
}

func (f *fakeProvider) IsAvailable(ctx context.Context) bool { return true }

func (f *fakeProvider) ValidateModel(model string) error {
	for _, m := range f.models {
		if m == model {
			return nil
		}
	}
	return fmt.Errorf("model %s not supported", model)
}

func (f *fakeProvider) GetModelInfo(model string) (*ModelInfo, error) {
	if err := f.ValidateModel(model); err != nil {
		return nil, err
	}
	return &ModelInfo{ID: model, Provider: f.name}, nil
}

func (f *fakeProvider) ListModels() []string { return f.models }

func TestRegistry_RegisterProvider(t *testing.T) {
	registry := NewRegistry()

	err := registry.RegisterProvider(&fakeProvider{name: "openai", models: []string{"gpt-4o"}})
	if err != nil {
		t.Fatalf("RegisterProvider() error = %v", err)
	}

	if registry.ProviderCount() != 1 {
		t.Errorf("ProviderCount() = %d, want 1", registry.ProviderCount())
	}

	// Duplicate registration is rejected
	err = registry.RegisterProvider(&fakeProvider{name: "openai"})
	if !errors.Is(err, ErrProviderAlreadyRegistered) {
		t.Errorf("expected ErrProviderAlreadyRegistered, got %v", err)
	}
}

func TestRegistry_RegisterProvider_Invalid(t *testing.T) {
	registry := NewRegistry()

	if err := registry.RegisterProvider(nil); err == nil {
		t.Error("expected error for nil provider")
	}

	if err := registry.RegisterProvider(&fakeProvider{name: ""}); err == nil {
		t.Error("expected error for empty provider name")
	}
}

func TestRegistry_GetProviderForModel(t *testing.T) {
	registry := NewRegistry()
	_ = registry.RegisterProvider(&fakeProvider{name: "openai", models: []string{"gpt-4o", "gpt-4o-mini"}})
	_ = registry.RegisterProvider(&fakeProvider{name: "gemini", models: []string{"gemini-2.0-flash"}})

	tests := []struct {
		name         string
		model        string
		wantProvider string
		wantErr      error
	}{
		{name: "openai model", model: "gpt-4o", wantProvider: "openai"},
		{name: "gemini model", model: "gemini-2.0-flash", wantProvider: "gemini"},
		{name: "unknown model", model: "llama-70b", wantErr: ErrModelNotSupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := registry.GetProviderForModel(tt.model)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("GetProviderForModel() error = %v, want %v", err, tt.wantErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("GetProviderForModel() error = %v", err)
			}
			if provider.Name() != tt.wantProvider {
				t.Errorf("provider = %s, want %s", provider.Name(), tt.wantProvider)
			}
		})
	}
}

func TestRegistry_ModelPrefix(t *testing.T) {
	registry := NewRegistry()
	_ = registry.RegisterProvider(&fakeProvider{name: "openai", models: []string{"gpt-4o", "gpt-4o-2024-11-20"}})

	if err := registry.RegisterModelPrefix("gpt-", "openai"); err != nil {
		t.Fatalf("RegisterModelPrefix() error = %v", err)
	}

	// Prefix match still requires the provider to accept the model
	provider, err := registry.GetProviderForModel("gpt-4o-2024-11-20")
	if err != nil {
		t.Fatalf("GetProviderForModel() error = %v", err)
	}
	if provider.Name() != "openai" {
		t.Errorf("provider = %s, want openai", provider.Name())
	}

	if _, err := registry.GetProviderForModel("gpt-nonexistent"); err == nil {
		t.Error("expected error for model rejected by provider")
	}

	// Prefix for an unregistered provider is rejected
	if err := registry.RegisterModelPrefix("claude-", "anthropic"); !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("expected ErrProviderNotFound, got %v", err)
	}
}

func TestRegistry_ListModels(t *testing.T) {
	registry := NewRegistry()
	_ = registry.RegisterProvider(&fakeProvider{name: "openai", models: []string{"gpt-4o", "gpt-4o-mini"}})

	models := registry.ListModels()
	if len(models) != 2 {
		t.Errorf("ListModels() returned %d models, want 2", len(models))
	}
}
