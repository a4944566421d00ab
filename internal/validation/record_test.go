package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/models"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{name: "simple key", key: "S1", wantErr: false},
		{name: "uuid key", key: "2f1b7c1e-8a34-4c55-9d1a-6f0b6c1e2a10", wantErr: false},
		{name: "unicode key", key: "катушка-1", wantErr: false},
		{name: "empty key", key: "", wantErr: true},
		{name: "slash", key: "a/b", wantErr: true},
		{name: "control character", key: "a\nb", wantErr: true},
		{name: "leading whitespace", key: " S1", wantErr: true},
		{name: "max length", key: strings.Repeat("k", MaxKeyLen), wantErr: false},
		{name: "too long", key: strings.Repeat("k", MaxKeyLen+1), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKey(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateRecord(t *testing.T) {
	tests := []struct {
		record  *models.Record
		name    string
		errMsg  string
		wantErr bool
	}{
		{
			name:    "valid record",
			record:  &models.Record{Key: "S1", Fields: models.Fields{"type": "PLA", "weight": 1000, "dry": true, "note": nil}},
			wantErr: false,
		},
		{
			name:    "nil record",
			record:  nil,
			wantErr: true,
			errMsg:  "record is nil",
		},
		{
			name:    "missing key",
			record:  &models.Record{Fields: models.Fields{"type": "PLA"}},
			wantErr: true,
			errMsg:  "key cannot be empty",
		},
		{
			name:    "missing type",
			record:  &models.Record{Key: "S1", Fields: models.Fields{"brand": "Prusa"}},
			wantErr: true,
			errMsg:  `field "type" is required`,
		},
		{
			name:    "nested value",
			record:  &models.Record{Key: "S1", Fields: models.Fields{"type": "PLA", "temps": map[string]any{"min": 190}}},
			wantErr: true,
			errMsg:  "must be a scalar value",
		},
		{
			name:    "negative timestamp",
			record:  &models.Record{Key: "S1", Fields: models.Fields{"type": "PLA"}, MutatedAt: -1},
			wantErr: true,
			errMsg:  "timestamps must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRecord(tt.record)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			assert.NoError(t, err)
		})
	}
}
