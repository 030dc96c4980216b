package flow

import "testing"

func TestRenderTemplate(t *testing.T) {
	ctx := map[string]string{"name": "Sam", "city": "Oslo"}

	cases := []struct {
		name     string
		template string
		want     string
	}{
		{"no placeholders", "Hello there!", "Hello there!"},
		{"single substitution", "Hi {name}", "Hi Sam"},
		{"multiple substitutions", "{name} lives in {city}", "Sam lives in Oslo"},
		{"repeated placeholder", "{name} and {name}", "Sam and Sam"},
		{"missing variable keeps raw template", "Hi {name}, your order {order_id} shipped", "Hi {name}, your order {order_id} shipped"},
		{"empty template", "", ""},
		{"braces without identifier", "set {} and {123}", "set {} and {123}"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := RenderTemplate(c.template, ctx); got != c.want {
				t.Errorf("RenderTemplate(%q) = %q, want %q", c.template, got, c.want)
			}
		})
	}
}

func TestRenderTemplateNilContext(t *testing.T) {
	if got := RenderTemplate("Hi {name}", nil); got != "Hi {name}" {
		t.Errorf("expected raw template with nil context, got %q", got)
	}
	if got := RenderTemplate("plain", nil); got != "plain" {
		t.Errorf("expected plain text unchanged, got %q", got)
	}
}
