package triage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deskpilot/support-triage/internal/domain"
)

func TestRenderer_Render(t *testing.T) {
	r := NewRenderer()
	customer := domain.Customer{Name: "Sanne de Vries", Email: "sanne@example.com", Plan: "pro"}

	tests := []struct {
		name string
		tmpl string
		want string
	}{
		{"liquid variables", "Hoi {{ first_name }}, je {{ plan }}-abonnement is actief.", "Hoi Sanne, je pro-abonnement is actief."},
		{"legacy placeholders", "Hi {name}, we mailed {email}.", "Hi Sanne de Vries, we mailed sanne@example.com."},
		{"plain text", "Vernieuw je token via instellingen.", "Vernieuw je token via instellingen."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Render(tt.tmpl, customer))
			// second call goes through the cache
			assert.Equal(t, tt.want, r.Render(tt.tmpl, customer))
		})
	}
}

func TestRenderer_DefaultFilter(t *testing.T) {
	r := NewRenderer()
	got := r.Render(`Beste {{ name | default: "klant" }},`, domain.Customer{})
	assert.Equal(t, "Beste klant,", got)
}

func TestRenderer_BrokenTemplateFallsBack(t *testing.T) {
	r := NewRenderer()
	got := r.Render("Beste {{ name }}, {% if plan %}", domain.Customer{Name: "Sanne"})
	assert.Contains(t, got, "Beste Sanne,")
}

func TestBindings(t *testing.T) {
	b := Bindings(domain.Customer{Name: "Sanne de Vries", Email: "s@example.com", Plan: "starter"})
	assert.Equal(t, "Sanne", b["first_name"])
	assert.Equal(t, "starter", b["plan"])
}
