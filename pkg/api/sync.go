package api

// HeaderAPIKey заголовок со статическим API ключом
const HeaderAPIKey = "x-api-key"

// Record представляет запись в формате протокола синхронизации
type Record struct {
	Fields    map[string]any `json:"fields"`              // атрибуты записи, скалярные значения
	Key       string         `json:"key"`                 // уникальный ключ записи
	MutatedAt int64          `json:"mutatedAt"`           // время последнего изменения, мс
	CreatedAt int64          `json:"createdAt,omitempty"` // время создания, мс
	Deleted   bool           `json:"deleted"`             // tombstone
}

// SyncRequest представляет запрос на синхронизацию от клиента
type SyncRequest struct {
	Records      []Record `json:"records"`      // локальные изменения после прошлой синхронизации
	LastSyncTime int64    `json:"lastSyncTime"` // курсор сервера из прошлого успешного ответа, 0 при первой синхронизации
}

// SyncSummary счетчики обработки запроса на сервере
type SyncSummary struct {
	UploadCount   int `json:"uploadCount"`   // принятые сервером записи
	DownloadCount int `json:"downloadCount"` // записи, отданные клиенту
	ErrorCount    int `json:"errorCount"`    // отклоненные записи
}

// SyncResponse представляет ответ сервера на синхронизацию
type SyncResponse struct {
	Merged  []Record    `json:"merged"`  // записи, записанные на сервере после lastSyncTime, кроме только что присланных клиентом
	Summary SyncSummary `json:"summary"` // счетчики
	Cursor  int64       `json:"cursor"`  // курсор для следующего запроса
	Success bool        `json:"success"` // false означает, что проход нужно считать неуспешным
}

// SyncEvent запись серверного журнала синхронизаций
type SyncEvent struct {
	ID             string `json:"id"`
	ClientIP       string `json:"clientIp"`
	UserAgent      string `json:"userAgent"`
	Status         string `json:"status"`
	Timestamp      int64  `json:"timestamp"`
	ChangesCount   int    `json:"changesCount"`
	DeletionsCount int    `json:"deletionsCount"`
}

// SyncLogsResponse ответ на GET /sync?logs=true
type SyncLogsResponse struct {
	Logs []SyncEvent `json:"logs"`
}
