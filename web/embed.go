package web

import "embed"

// TemplatesFS embeds HTML templates for server-side rendering.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS embeds static assets (css/js/images).
//
//go:embed static/*
var StaticFS embed.FS

// PWAFS embeds the offline shell: manifest, offline page and the service
// worker template.
//
//go:embed pwa/*
var PWAFS embed.FS
