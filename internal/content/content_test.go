package content

import (
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Plain text", "Hello World", "Hello World"},
		{"HTML tags", "Hello <b>World</b>", "Hello <b>World</b>"},
		{"Script tag", "<script>alert('xss')</script>Hello", "Hello"},
		{"Complex HTML", "<a href='javascript:alert(1)'>Click me</a>", "Click me"},
		{"Emoji", "Prêt à booster 💪", "Prêt à booster 💪"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.input); got != tt.expected {
				t.Errorf("Sanitize() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestEscape(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Plain text", "Hello World", "Hello World"},
		{"HTML chars", "<div>Hello</div>", "&lt;div&gt;Hello&lt;/div&gt;"},
		{"Quotes", `"Hello" 'World'`, "&#34;Hello&#34; &#39;World&#39;"},
		{"Emoji", "I am 🤖", "I am 🤖"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Escape(tt.input); got != tt.expected {
				t.Errorf("Escape() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestLinkify(t *testing.T) {
	t.Run("Bare URL becomes anchor", func(t *testing.T) {
		got := Linkify("regarde https://example.com/plan")
		if !strings.Contains(got, `<a href="https://example.com/plan"`) {
			t.Errorf("expected anchor in %q", got)
		}
	})

	t.Run("Script survives as text only", func(t *testing.T) {
		got := Linkify("<script>alert(1)</script>salut")
		if strings.Contains(got, "<script>") {
			t.Errorf("expected script tag stripped, got %q", got)
		}
		if !strings.Contains(got, "salut") {
			t.Errorf("expected message text preserved, got %q", got)
		}
	})
}

func TestValidateLead(t *testing.T) {
	tests := []struct {
		name    string
		input   Lead
		wantErr bool
	}{
		{"Valid", Lead{FirstName: "Léa", WhatsApp: "+41791234567", Email: "lea@test.com"}, false},
		{"Missing first name", Lead{WhatsApp: "+41791234567", Email: "lea@test.com"}, true},
		{"Whitespace first name", Lead{FirstName: "   ", WhatsApp: "+41791234567", Email: "lea@test.com"}, true},
		{"Missing whatsapp", Lead{FirstName: "Léa", Email: "lea@test.com"}, true},
		{"Missing email", Lead{FirstName: "Léa", WhatsApp: "+41791234567"}, true},
		{"Email without at", Lead{FirstName: "Léa", WhatsApp: "+41791234567", Email: "lea.test.com"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ValidateLead(tt.input); (err != nil) != tt.wantErr {
				t.Errorf("ValidateLead() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	t.Run("Normalizes fields", func(t *testing.T) {
		lead, err := ValidateLead(Lead{FirstName: "  Léa ", WhatsApp: " +41791234567 ", Email: " Lea@Test.COM "})
		if err != nil {
			t.Fatalf("ValidateLead() error = %v", err)
		}
		if lead.FirstName != "Léa" {
			t.Errorf("expected trimmed first name, got %q", lead.FirstName)
		}
		if lead.Email != "lea@test.com" {
			t.Errorf("expected lowercased email, got %q", lead.Email)
		}
	})
}
