package knowledge

import "testing"

func TestNormalizeQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple words", "blue wand", "blue:* | wand:*"},
		{"lowercasing", "Blue WAND", "blue:* | wand:*"},
		{"punctuation stripped", "blue, wand!", "blue:* | wand:*"},
		{"quotes and operators", `"blue" & wand:*`, "blue:* | wand:*"},
		{"single char dropped", "a blue wand", "blue:* | wand:*"},
		{"digits kept", "usb 3", "usb:*"},
		{"multi digit kept", "usb 30", "usb:* | 30:*"},
		{"unicode letters kept", "grüne Kerze", "grüne:* | kerze:*"},
		{"cjk kept", "蓝色 蜡烛", "蓝色:* | 蜡烛:*"},
		{"only punctuation", "?!...", ""},
		{"empty", "", ""},
		{"whitespace only", "   \t  ", ""},
		{"emoji stripped", "candle 🕯️ set", "candle:* | set:*"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeQuery(tt.in); got != tt.want {
				t.Errorf("NormalizeQuery(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestClassifyEmpty(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		productEmpty bool
		faqEmpty     bool
		want         QueryType
	}{
		{"only products empty", true, false, QueryTypeProduct},
		{"only faqs empty", false, true, QueryTypeFaq},
		{"both empty", true, true, QueryTypeBoth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ClassifyEmpty(tt.productEmpty, tt.faqEmpty); got != tt.want {
				t.Errorf("ClassifyEmpty(%v, %v) = %q, want %q", tt.productEmpty, tt.faqEmpty, got, tt.want)
			}
		})
	}
}
