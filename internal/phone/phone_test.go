package phone

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		countryCode string
		want        string
	}{
		{
			name: "ten digits leading one",
			raw:  "1234567890",
			want: "+1234567890",
		},
		{
			name:        "short number with country code",
			raw:         "9876543",
			countryCode: "91",
			want:        "+919876543",
		},
		{
			name: "already qualified long number",
			raw:  "919876543210",
			want: "+919876543210",
		},
		{
			name:        "number already starts with country code",
			raw:         "919876543210",
			countryCode: "91",
			want:        "+919876543210",
		},
		{
			name: "formatting characters stripped",
			raw:  "+1 (234) 567-890",
			want: "+1234567890",
		},
		{
			name:        "country code with formatting",
			raw:         "98-76-543",
			countryCode: "+91",
			want:        "+919876543",
		},
		{
			name:        "ten digits with explicit country code",
			raw:         "9876543210",
			countryCode: "44",
			want:        "+449876543210",
		},
		{
			name: "empty input",
			raw:  "",
			want: "+",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.raw, tt.countryCode)
			if got != tt.want {
				t.Errorf("Normalize(%q, %q) = %q, want %q", tt.raw, tt.countryCode, got, tt.want)
			}
		})
	}
}
