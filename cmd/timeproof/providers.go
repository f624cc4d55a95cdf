package main

import (
	"github.com/open-verix/timeproof/internal/providers"
	"github.com/open-verix/timeproof/internal/providers/metadata/exif"
	"github.com/open-verix/timeproof/internal/providers/renderer/html"
	"github.com/open-verix/timeproof/internal/providers/renderer/markdown"
)

// newRegistry registers the production providers.
func newRegistry() (*providers.Registry, error) {
	md, err := markdown.NewProvider()
	if err != nil {
		return nil, err
	}
	hp, err := html.NewProvider()
	if err != nil {
		return nil, err
	}

	reg := providers.NewRegistry()
	reg.RegisterMetadataProvider("exif", exif.NewProvider())
	reg.RegisterRendererProvider(md.Name(), md)
	reg.RegisterRendererProvider(hp.Name(), hp)
	return reg, nil
}
