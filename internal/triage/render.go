package triage

import (
	"regexp"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/deskpilot/support-triage/internal/domain"
	"github.com/deskpilot/support-triage/internal/pkg/logger"
)

// legacyPlaceholder matches the single-brace variables older patterns use.
var legacyPlaceholder = regexp.MustCompile(`\{\s*(name|first_name|email|plan)\s*\}`)

// Renderer fills pattern response templates with customer variables using
// Liquid. Parsed templates are cached by source text.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewRenderer creates a renderer with the "default" filter registered.
func NewRenderer() *Renderer {
	engine := liquid.NewEngine()
	// {{ name | default: "klant" }}
	engine.RegisterFilter("default", func(value interface{}, def string) interface{} {
		if value == nil {
			return def
		}
		if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
			return def
		}
		return value
	})
	return &Renderer{engine: engine}
}

// Bindings returns the variables available to response templates.
func Bindings(c domain.Customer) map[string]interface{} {
	first := c.Name
	if i := strings.IndexByte(first, ' '); i > 0 {
		first = first[:i]
	}
	return map[string]interface{}{
		"name":       c.Name,
		"first_name": first,
		"email":      c.Email,
		"plan":       c.Plan,
	}
}

// Render fills tmpl for the customer. A template that fails to parse or
// render falls back to plain placeholder replacement so the customer never
// sees a half-rendered reply.
func (r *Renderer) Render(tmpl string, c domain.Customer) string {
	vars := Bindings(c)
	src := tmpl
	if !strings.Contains(src, "{{") {
		src = legacyPlaceholder.ReplaceAllString(src, "{{ $1 }}")
	}

	var tpl *liquid.Template
	if cached, ok := r.cache.Load(src); ok {
		tpl = cached.(*liquid.Template)
	} else {
		parsed, err := r.engine.ParseString(src)
		if err != nil {
			logger.Warn("[triage.Renderer] template parse failed", "error", err)
			return plainReplace(tmpl, vars)
		}
		r.cache.Store(src, parsed)
		tpl = parsed
	}

	out, err := tpl.RenderString(vars)
	if err != nil {
		logger.Warn("[triage.Renderer] template render failed", "error", err)
		return plainReplace(tmpl, vars)
	}
	return out
}

func plainReplace(tmpl string, vars map[string]interface{}) string {
	out := tmpl
	for k, v := range vars {
		s, _ := v.(string)
		out = strings.ReplaceAll(out, "{{ "+k+" }}", s)
		out = strings.ReplaceAll(out, "{{"+k+"}}", s)
		out = strings.ReplaceAll(out, "{"+k+"}", s)
	}
	return out
}
