package models

import (
	"maps"

	"github.com/Pixelplanet/FilamentDB-sub000/pkg/api"
)

// ToAPI конвертирует запись в формат протокола.
func (r *Record) ToAPI() api.Record {
	return api.Record{
		Key:       r.Key,
		Fields:    maps.Clone(map[string]any(r.Fields)),
		MutatedAt: r.MutatedAt,
		CreatedAt: r.CreatedAt,
		Deleted:   r.Deleted,
	}
}

// RecordFromAPI конвертирует запись протокола в модель.
func RecordFromAPI(r api.Record) *Record {
	return &Record{
		Key:       r.Key,
		Fields:    Fields(maps.Clone(r.Fields)),
		MutatedAt: r.MutatedAt,
		CreatedAt: r.CreatedAt,
		Deleted:   r.Deleted,
	}
}

// RecordsToAPI конвертирует список записей в формат протокола.
func RecordsToAPI(records []*Record) []api.Record {
	result := make([]api.Record, 0, len(records))
	for _, r := range records {
		result = append(result, r.ToAPI())
	}
	return result
}

// RecordsFromAPI конвертирует записи протокола в модели.
func RecordsFromAPI(records []api.Record) []*Record {
	result := make([]*Record, 0, len(records))
	for _, r := range records {
		result = append(result, RecordFromAPI(r))
	}
	return result
}
