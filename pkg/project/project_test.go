package project

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProject_Validate(t *testing.T) {
	tests := []struct {
		name    string
		project Project
		wantErr string
	}{
		{
			name: "valid new project",
			project: Project{
				Name:    "Tokyo Density",
				Payload: json.RawMessage(`{"都道府県":"東京都","pop":1000}`),
			},
		},
		{
			name: "valid existing project",
			project: Project{
				ID:      "7a9f1c2e-0d4b-4f6a-9c3e-1b2d3f4a5c6e",
				Name:    "renamed",
				Payload: json.RawMessage(`{}`),
			},
		},
		{
			name: "missing payload",
			project: Project{
				Name: "no data",
			},
			wantErr: "payload document is required",
		},
		{
			name: "payload not JSON",
			project: Project{
				Name:    "bad data",
				Payload: json.RawMessage(`{"unterminated":`),
			},
			wantErr: "well-formed JSON",
		},
		{
			name: "id not a UUID",
			project: Project{
				ID:      "project-1",
				Name:    "bad id",
				Payload: json.RawMessage(`{}`),
			},
			wantErr: "UUID v4",
		},
		{
			name: "uppercase UUID rejected",
			project: Project{
				ID:      "7A9F1C2E-0D4B-4F6A-9C3E-1B2D3F4A5C6E",
				Name:    "bad id",
				Payload: json.RawMessage(`{}`),
			},
			wantErr: "UUID v4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.project.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("人口カルトグラム"))
	assert.Error(t, ValidateName(""))

	long := make([]rune, MaxNameLength+1)
	for i := range long {
		long[i] = 'x'
	}
	assert.Error(t, ValidateName(string(long)))
}

func TestValidateID(t *testing.T) {
	assert.NoError(t, ValidateID("7a9f1c2e-0d4b-4f6a-9c3e-1b2d3f4a5c6e"))
	assert.Error(t, ValidateID(""))
	assert.Error(t, ValidateID("not-a-uuid"))
	// Version nibble must be 4 and the variant nibble 8-b.
	assert.Error(t, ValidateID("7a9f1c2e-0d4b-1f6a-9c3e-1b2d3f4a5c6e"))
	assert.Error(t, ValidateID("7a9f1c2e-0d4b-4f6a-7c3e-1b2d3f4a5c6e"))
}
