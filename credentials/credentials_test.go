package credentials

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/mqrequest/core"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mqusers")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    core.Credentials
		wantErr bool
	}{
		{name: "single line", content: "app s3cret\n", want: core.Credentials{User: "app", Secret: "s3cret"}},
		{name: "split across lines", content: "  app\n\ts3cret extra\n", want: core.Credentials{User: "app", Secret: "s3cret"}},
		{name: "one token", content: "app\n", wantErr: true},
		{name: "empty", content: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewFile(writeFile(t, tt.content)).Credentials(context.Background())
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrCredentials)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFile_Missing(t *testing.T) {
	_, err := NewFile(filepath.Join(t.TempDir(), "absent")).Credentials(context.Background())
	assert.ErrorIs(t, err, ErrCredentials)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestStatic(t *testing.T) {
	got, err := Static{User: "u", Secret: "p"}.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.Credentials{User: "u", Secret: "p"}, got)

	_, err = Static{User: "u"}.Credentials(context.Background())
	assert.ErrorIs(t, err, ErrCredentials)
	assert.ErrorIs(t, err, core.ErrEmptyCredentials)
}
