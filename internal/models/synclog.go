package models

import (
	"encoding/json"
	"fmt"
)

// SyncAction закрытый набор действий над записью в рамках прохода синхронизации.
type SyncAction int

const (
	ActionCreated SyncAction = iota + 1
	ActionUpdated
	ActionDeleted
)

var syncActionNames = map[SyncAction]string{
	ActionCreated: "created",
	ActionUpdated: "updated",
	ActionDeleted: "deleted",
}

// String возвращает имя действия для логов и JSON.
func (a SyncAction) String() string {
	if name, ok := syncActionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("SyncAction(%d)", int(a))
}

// ParseSyncAction разбирает строковое имя действия.
func ParseSyncAction(s string) (SyncAction, error) {
	for action, name := range syncActionNames {
		if name == s {
			return action, nil
		}
	}
	return 0, fmt.Errorf("unknown sync action %q", s)
}

// MarshalJSON сериализует действие как строку.
func (a SyncAction) MarshalJSON() ([]byte, error) {
	name, ok := syncActionNames[a]
	if !ok {
		return nil, fmt.Errorf("unknown sync action %d", int(a))
	}
	return json.Marshal(name)
}

// UnmarshalJSON принимает только известные имена действий.
func (a *SyncAction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	action, err := ParseSyncAction(s)
	if err != nil {
		return err
	}
	*a = action
	return nil
}

// SyncChange описывает изменение одной записи за проход синхронизации.
// PreviousSnapshot отсутствует для created.
type SyncChange struct {
	PreviousSnapshot *Record    `json:"previousSnapshot,omitempty"`
	NewSnapshot      *Record    `json:"newSnapshot,omitempty"`
	Key              string     `json:"key"`
	Action           SyncAction `json:"action"`
}

// SyncDirection направление прохода, к которому относится запись журнала.
type SyncDirection string

const (
	DirectionIncoming SyncDirection = "incoming"
	DirectionOutgoing SyncDirection = "outgoing"
	DirectionManual   SyncDirection = "manual"
)

// SyncStatus итоговый статус прохода.
type SyncStatus string

const (
	StatusSuccess SyncStatus = "success"
	StatusFailed  SyncStatus = "failed"
	StatusPartial SyncStatus = "partial"
)

// SyncSummary агрегированные счетчики прохода.
type SyncSummary struct {
	Uploaded   int `json:"uploaded"`
	Downloaded int `json:"downloaded"`
	Errors     int `json:"errors"`
}

// SyncLogEntry запись журнала синхронизации.
// После создания не изменяется, кроме отметки UndoneAt при отмене.
type SyncLogEntry struct {
	ID             string        `json:"id"`
	Direction      SyncDirection `json:"direction"`
	Status         SyncStatus    `json:"status"`
	RemoteEndpoint string        `json:"remoteEndpoint,omitempty"`
	Error          string        `json:"error,omitempty"`
	Changes        []SyncChange  `json:"changes"`
	Summary        SyncSummary   `json:"summary"`
	Timestamp      int64         `json:"timestamp"`
	UndoneAt       int64         `json:"undoneAt,omitempty"`
}

// Clone создает глубокую копию записи журнала.
func (e *SyncLogEntry) Clone() *SyncLogEntry {
	if e == nil {
		return nil
	}
	c := *e
	if e.Changes != nil {
		c.Changes = make([]SyncChange, len(e.Changes))
		for i, ch := range e.Changes {
			c.Changes[i] = SyncChange{
				Key:              ch.Key,
				Action:           ch.Action,
				PreviousSnapshot: ch.PreviousSnapshot.Clone(),
				NewSnapshot:      ch.NewSnapshot.Clone(),
			}
		}
	}
	return &c
}
