package utils

import "testing"

func TestParseBRFloat(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"1.234,56", 1234.56},
		{"R$ 132,50", 132.50},
		{"-0,8", -0.8},
		{"+1,25%", 1.25},
		{"5.3000", 5.3},
		{"5.10", 5.10},
		{"1.234.567,00", 1234567},
		{"312", 312},
	}
	for _, tt := range tests {
		got, err := ParseBRFloat(tt.input)
		if err != nil {
			t.Errorf("ParseBRFloat(%q) error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseBRFloat(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseBRNumberInvalid(t *testing.T) {
	for _, in := range []string{"", "-", "s/c", "n/d", "abc"} {
		if _, err := ParseBRNumber(in); err == nil {
			t.Errorf("ParseBRNumber(%q) expected error", in)
		}
	}
}

func TestFormatBRL(t *testing.T) {
	tests := []struct {
		input float64
		want  string
	}{
		{1234.56, "R$ 1.234,56"},
		{0, "R$ 0,00"},
		{132.5, "R$ 132,50"},
		{1234567.891, "R$ 1.234.567,89"},
		{-45.1, "R$ -45,10"},
	}
	for _, tt := range tests {
		if got := FormatBRL(tt.input); got != tt.want {
			t.Errorf("FormatBRL(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFormatPct(t *testing.T) {
	tests := []struct {
		input float64
		want  string
	}{
		{3.9215, "+3,92%"},
		{-1.234, "-1,23%"},
		{0, "0,00%"},
	}
	for _, tt := range tests {
		if got := FormatPct(tt.input); got != tt.want {
			t.Errorf("FormatPct(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Boi Gordo", "boi-gordo"},
		{"Açúcar", "acucar"},
		{"  Café Arábica  ", "cafe-arabica"},
		{"Soja", "soja"},
		{"Etanol Hidratado (SP)", "etanol-hidratado-sp"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.input); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFold(t *testing.T) {
	if got := Fold("Preço do CAFÉ"); got != "preco do cafe" {
		t.Errorf("Fold() = %q", got)
	}
}
