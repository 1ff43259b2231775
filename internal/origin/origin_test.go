package origin

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"https://meet.example.com", "https://meet.example.com", true},
		{"  https://meet.example.com  ", "https://meet.example.com", true},
		{"HTTPS://Meet.Example.COM", "https://meet.example.com", true},
		{"https://meet.example.com:443", "https://meet.example.com", true},
		{"http://localhost:80", "http://localhost", true},
		{"http://localhost:3000", "http://localhost:3000", true},
		{"https://[::1]:8443", "https://[::1]:8443", true},
		{"null", "null", true},

		{"", "", false},
		{"meet.example.com", "", false},
		{"ftp://meet.example.com", "", false},
		{"https://meet.example.com/path", "", false},
		{"https://meet.example.com?q=1", "", false},
		{"https://user@meet.example.com", "", false},
		{"https://meet.example.com:0", "", false},
		{"https://meet.example.com:70000", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := Normalize(tt.in)
			if ok != tt.wantOK || got != tt.want {
				t.Fatalf("Normalize(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestAllowed(t *testing.T) {
	tests := []struct {
		name      string
		origin    string
		allowlist []string
		want      bool
	}{
		{"empty allowlist accepts all", "https://anywhere.example.com", nil, true},
		{"empty allowlist accepts null", "null", nil, true},
		{"exact match", "https://meet.example.com", []string{"https://meet.example.com"}, true},
		{"wildcard", "https://anywhere.example.com", []string{"*"}, true},
		{"no match", "https://evil.example.com", []string{"https://meet.example.com"}, false},
		{"null rejected by allowlist", "null", []string{"https://meet.example.com"}, false},
		{"second entry matches", "https://b.example.com", []string{"https://a.example.com", "https://b.example.com"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Allowed(tt.origin, tt.allowlist); got != tt.want {
				t.Fatalf("Allowed(%q, %v) = %v, want %v", tt.origin, tt.allowlist, got, tt.want)
			}
		})
	}
}
