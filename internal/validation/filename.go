package validation

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/models"
)

const (
	// MaxSegmentLen максимальная длина сегмента имени файла (type, brand, color)
	MaxSegmentLen = 32
	// MaxKeySegmentLen максимальная длина сегмента ключа в имени файла
	MaxKeySegmentLen = 64
	// keyHashLen длина hex-суффикса, который добавляется к измененному при очистке ключу
	keyHashLen = 8
	// PlaceholderSegment подставляется вместо сегмента, который после очистки стал пустым
	PlaceholderSegment = "unknown"
	// RecordFileExt расширение файлов записей
	RecordFileExt = ".json"
)

// SanitizeSegment очищает один сегмент имени файла:
// убирает небезопасные для путей символы (/ \ : * ? " < > |), прочие спецсимволы и пробелы,
// оставляя только латинские буквы, цифры и дефисы. Результат обрезается до maxLen рун.
// Пустой результат заменяется на PlaceholderSegment.
func SanitizeSegment(segment string, maxLen int) string {
	var b strings.Builder
	b.Grow(len(segment))

	count := 0
	for _, r := range segment {
		if count >= maxLen {
			break
		}
		if isFileNameRune(r) {
			b.WriteRune(r)
			count++
		}
	}

	if b.Len() == 0 {
		return PlaceholderSegment
	}

	return b.String()
}

// KeySegment возвращает очищенный сегмент ключа, которым заканчивается имя файла.
// Если очистка изменила ключ, к сегменту добавляется суффикс из хеша исходного
// ключа: "spool 1" и "spool1" получают разные имена файлов.
func KeySegment(key string) string {
	segment := SanitizeSegment(key, MaxKeySegmentLen)
	if segment == key {
		return segment
	}

	sum := sha256.Sum256([]byte(key))
	suffix := hex.EncodeToString(sum[:])[:keyHashLen]
	// Длина с суффиксом не превышает MaxKeySegmentLen
	return SanitizeSegment(key, MaxKeySegmentLen-keyHashLen-1) + "-" + suffix
}

// RecordFileName строит имя файла записи вида {category}-{group}-{subgroup}-{key}.json,
// где category = type, group = brand, subgroup = color.
func RecordFileName(r *models.Record) string {
	parts := []string{
		SanitizeSegment(r.Type(), MaxSegmentLen),
		SanitizeSegment(r.Brand(), MaxSegmentLen),
		SanitizeSegment(r.Color(), MaxSegmentLen),
		KeySegment(r.Key),
	}
	return strings.Join(parts, "-") + RecordFileExt
}

// isFileNameRune разрешает только ASCII буквы, цифры и дефис
func isFileNameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '-':
		return true
	default:
		return false
	}
}
