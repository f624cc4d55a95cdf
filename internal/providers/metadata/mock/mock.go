package mock

import (
	"context"
)

// Provider is a mock metadata provider for testing.
type Provider struct {
	// ReadFunc allows tests to customize the Read behavior
	ReadFunc func(ctx context.Context, path string) (map[string]string, error)

	// Tags is returned by the default Read
	Tags map[string]string

	// NameValue is the provider name returned by Name()
	NameValue string

	// Calls records every path passed to Read
	Calls []string
}

// NewProvider creates a new mock metadata provider with default behavior.
func NewProvider() *Provider {
	return &Provider{
		NameValue: "mock",
		Tags: map[string]string{
			"Make":             "MockCam",
			"Model":            "M1",
			"DateTimeOriginal": "2026:10:19 08:00:00",
		},
	}
}

// Read returns Tags, or delegates to ReadFunc when set.
func (p *Provider) Read(ctx context.Context, path string) (map[string]string, error) {
	p.Calls = append(p.Calls, path)
	if p.ReadFunc != nil {
		return p.ReadFunc(ctx, path)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(p.Tags))
	for k, v := range p.Tags {
		out[k] = v
	}
	return out, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	if p.NameValue != "" {
		return p.NameValue
	}
	return "mock"
}

// Version returns the provider version.
func (p *Provider) Version() string {
	return "1.0.0"
}
