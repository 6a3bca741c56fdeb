package util

import "testing"

func TestFormatTelephone(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"guineen nu", "628407335", "+224628407335", false},
		{"guineen prefixe 224", "224628407335", "+224628407335", false},
		{"guineen prefixe 0", "0628407335", "+224628407335", false},
		{"guineen plus", "+224628407335", "+224628407335", false},
		{"guineen international 00", "00224628407335", "+224628407335", false},
		{"guineen international 00 formate", "00224 628 40 73 35", "+224628407335", false},
		{"guineen sept", "711223344", "+224711223344", false},
		{"nord americain", "4155551234", "+14155551234", false},
		{"nord americain avec 1", "14155551234", "+14155551234", false},
		{"nord americain international 00", "0014155551234", "+14155551234", false},
		{"nord americain formate", "(415) 555-1234", "+14155551234", false},
		{"dix chiffres commencant par 6", "6283407335", "6283407335", true},
		{"guineen trop court", "62840733", "62840733", true},
		{"vide", "", "", true},
		{"lettres", "abc", "abc", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := FormatTelephone(tc.input)
			if tc.wantErr != (err != nil) {
				t.Fatalf("erreur attendue=%v, obtenue=%v", tc.wantErr, err)
			}
			if got != tc.want {
				t.Fatalf("attendu %q, obtenu %q", tc.want, got)
			}
		})
	}
}
