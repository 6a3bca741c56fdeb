package util

import (
	"errors"
	"strings"
)

// ErrTelephoneInvalide signale un numéro hors des deux plans acceptés.
var ErrTelephoneInvalide = errors.New("numéro de téléphone invalide")

// FormatTelephone normalise un numéro vers E.164 pour les deux plans
// supportés: nord-américain (+1XXXXXXXXXX) et guinéen (+224XXXXXXXXX).
//
// Tout numéro dont la partie significative commence par 6 ou 7 (après un
// éventuel préfixe 224 ou 0) est traité comme candidat guinéen et doit
// alors compter exactement 9 chiffres. En cas d'échec, le numéro d'origine
// est retourné tel quel avec l'erreur.
func FormatTelephone(raw string) (string, error) {
	digits := keepDigits(raw)
	if digits == "" {
		return raw, ErrTelephoneInvalide
	}

	// Préfixe international 00 (équivalent du +), avant les préfixes de
	// plan 224 et 0.
	if strings.HasPrefix(digits, "00") {
		digits = digits[2:]
	}

	local := digits
	switch {
	case strings.HasPrefix(local, "224"):
		local = local[3:]
	case strings.HasPrefix(local, "0"):
		local = local[1:]
	}
	if local != "" && (local[0] == '6' || local[0] == '7') {
		if len(local) == 9 {
			return "+224" + local, nil
		}
		return raw, ErrTelephoneInvalide
	}

	na := digits
	if len(na) == 11 && na[0] == '1' {
		na = na[1:]
	}
	if len(na) == 10 {
		return "+1" + na, nil
	}

	return raw, ErrTelephoneInvalide
}

func keepDigits(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
