package api

// ImportResponse представляет результат импорта архива
type ImportResponse struct {
	Errors   []string `json:"errors"`
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
}

// HealthResponse ответ health check
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error string `json:"error"` // описание ошибки
}
