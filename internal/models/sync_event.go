package models

// SyncEvent запись серверного журнала: один обработанный запрос POST /sync.
type SyncEvent struct {
	ID             string
	ClientIP       string
	UserAgent      string
	Status         string
	Timestamp      int64 // мс с начала эпохи
	ChangesCount   int   // количество принятых записей
	DeletionsCount int   // из них tombstone
}
