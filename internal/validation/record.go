package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/models"
)

const (
	// MaxKeyLen максимальная длина ключа записи
	MaxKeyLen = 128
	// MaxFields максимальное количество атрибутов в одной записи
	MaxFields = 256
)

// ValidateKey проверяет, что ключ записи пригоден для всех хранилищ
// Ключ не может быть пустым, содержать '/' или управляющие символы
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}

	if len(key) > MaxKeyLen {
		return fmt.Errorf("key must not exceed %d characters", MaxKeyLen)
	}

	if strings.TrimSpace(key) != key {
		return fmt.Errorf("key must not start or end with whitespace")
	}

	for _, r := range key {
		if r == '/' || unicode.IsControl(r) {
			return fmt.Errorf("key contains forbidden character %q", r)
		}
	}

	return nil
}

// ValidateRecord проверяет обязательные поля записи перед сохранением:
// ключ, поле type и скалярность всех атрибутов.
func ValidateRecord(r *models.Record) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}

	if err := ValidateKey(r.Key); err != nil {
		return err
	}

	if r.Type() == "" {
		return fmt.Errorf("record %q: field %q is required", r.Key, models.FieldType)
	}

	if len(r.Fields) > MaxFields {
		return fmt.Errorf("record %q: too many fields (%d > %d)", r.Key, len(r.Fields), MaxFields)
	}

	for name, value := range r.Fields {
		if name == "" {
			return fmt.Errorf("record %q: empty field name", r.Key)
		}
		if !isScalar(value) {
			return fmt.Errorf("record %q: field %q must be a scalar value, got %T", r.Key, name, value)
		}
	}

	if r.MutatedAt < 0 || r.CreatedAt < 0 {
		return fmt.Errorf("record %q: timestamps must not be negative", r.Key)
	}

	return nil
}

// isScalar проверяет, что значение сериализуется в скалярный JSON
func isScalar(value any) bool {
	switch value.(type) {
	case nil, string, bool, json.Number,
		float64, float32,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return true
	default:
		return false
	}
}
