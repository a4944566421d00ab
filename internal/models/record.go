package models

import (
	"maps"
	"reflect"
)

// Имена полей, которые используются ядром синхронизации и файловым хранилищем.
// Все остальные поля записи для движка непрозрачны.
const (
	FieldType  = "type"  // FieldType тип материала (PLA, PETG, ...), обязательное поле
	FieldBrand = "brand" // FieldBrand производитель
	FieldColor = "color" // FieldColor цвет
)

// Fields открытый набор атрибутов записи: имя -> скалярное JSON значение
// (string, float64, bool или nil).
type Fields map[string]any

// Record представляет синхронизируемую запись инвентаря.
// Удаленная запись (Deleted = true) остается полноценной записью,
// чтобы её MutatedAt участвовал в разрешении конфликтов.
type Record struct {
	Fields    Fields `json:"fields"`              // Fields доменные атрибуты (бренд, вес, температуры и т.д.)
	Key       string `json:"key"`                 // Key глобально уникальный ключ, выбирается создающим устройством
	MutatedAt int64  `json:"mutatedAt"`           // MutatedAt время последнего изменения (мс с начала эпохи)
	CreatedAt int64  `json:"createdAt,omitempty"` // CreatedAt время первой записи, не меняется
	Deleted   bool   `json:"deleted"`             // Deleted флаг tombstone
}

// Type возвращает значение поля type, если оно строковое.
func (r *Record) Type() string {
	return r.stringField(FieldType)
}

// Brand возвращает значение поля brand, если оно строковое.
func (r *Record) Brand() string {
	return r.stringField(FieldBrand)
}

// Color возвращает значение поля color, если оно строковое.
func (r *Record) Color() string {
	return r.stringField(FieldColor)
}

func (r *Record) stringField(name string) string {
	if r.Fields == nil {
		return ""
	}
	s, _ := r.Fields[name].(string)
	return s
}

// Clone создает глубокую копию записи.
// Значения полей скалярные, поэтому копирования map достаточно.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}

	clone := *r
	if r.Fields != nil {
		clone.Fields = maps.Clone(r.Fields)
	}

	return &clone
}

// Equal сравнивает две записи целиком, включая MutatedAt и Deleted.
func (r *Record) Equal(other *Record) bool {
	if r == nil || other == nil {
		return r == other
	}

	if r.Key != other.Key ||
		r.MutatedAt != other.MutatedAt ||
		r.CreatedAt != other.CreatedAt ||
		r.Deleted != other.Deleted {
		return false
	}

	return SameFields(r.Fields, other.Fields)
}

// SameFields сравнивает доменные атрибуты двух записей.
// nil и пустая map считаются равными.
func SameFields(a, b Fields) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(map[string]any(a), map[string]any(b))
}
