package utils

import "strings"

// SanitizePlate приводит распознанный текст к верхнему регистру
// и удаляет все символы вне набора A-Z0-9
func SanitizePlate(raw string) string {
	upper := strings.ToUpper(raw)

	var b strings.Builder
	b.Grow(len(upper))
	for i := 0; i < len(upper); i++ {
		c := upper[i]
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// NormalizePlate нормализует номерной знак к единому формату
// Удаляет пробелы, дефисы и приводит к верхнему регистру
func NormalizePlate(raw string) string {
	normalized := strings.TrimSpace(raw)
	normalized = strings.ReplaceAll(normalized, " ", "")
	normalized = strings.ReplaceAll(normalized, "-", "")
	normalized = strings.ToUpper(normalized)
	return normalized
}
