package crdt

import (
	"github.com/Pixelplanet/FilamentDB-sub000/internal/models"
)

// Merge разрешает конфликт двух версий одной записи по правилу LWW (Last-Write-Wins):
// - если локальной версии нет, побеждает удаленная;
// - побеждает версия со строго большим MutatedAt целиком (все поля, включая Deleted);
// - при равных MutatedAt побеждает удаленная версия.
// Поля никогда не сливаются по отдельности. Deleted считается обычным полем,
// у tombstone нет безусловного приоритета.
// Возвращает копию победившей версии.
func Merge(local, remote *models.Record) *models.Record {
	if RemoteWins(local, remote) {
		return remote.Clone()
	}
	return local.Clone()
}

// RemoteWins сообщает, заменит ли remote локальную версию при слиянии.
func RemoteWins(local, remote *models.Record) bool {
	if remote == nil {
		return false
	}
	return local == nil || remote.MutatedAt >= local.MutatedAt
}

// MaxMutatedAt возвращает наибольший MutatedAt среди записей (0 для пустого набора).
func MaxMutatedAt(records []*models.Record) int64 {
	var maxTimestamp int64
	for _, r := range records {
		if r != nil && r.MutatedAt > maxTimestamp {
			maxTimestamp = r.MutatedAt
		}
	}
	return maxTimestamp
}
