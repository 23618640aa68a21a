package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultNodeName(t *testing.T) {
	assert.Equal(t, "archiver_7", DefaultNodeName(7))
}

func TestResolveDSN(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{name: "explicit dsn wins", cfg: Config{DSN: " sqlite://a.db ", Type: "postgres"}, want: "sqlite://a.db"},
		{name: "sqlite default type", cfg: Config{Path: "/var/lib/archivist.db"}, want: "sqlite:///var/lib/archivist.db"},
		{name: "sqlitepool", cfg: Config{Type: "sqlitepool", Path: "m.db"}, want: "sqlitepool://m.db"},
		{name: "sqlite without path", cfg: Config{Type: "sqlite"}, wantErr: true},
		{
			name: "postgres defaults",
			cfg:  Config{Type: "postgres", Database: "monitor", Username: "autoctl"},
			want: "postgres://autoctl@localhost:5432/monitor?sslmode=disable",
		},
		{
			name: "postgres full",
			cfg: Config{
				Type: "postgresql", Host: "db", Port: 6543, Database: "monitor",
				Username: "u", Password: "p w", SSLMode: "require",
				Options: map[string]string{"application_name": "archivist"},
			},
			want: "postgres://u:p%20w@db:6543/monitor?application_name=archivist&sslmode=require",
		},
		{name: "unknown", cfg: Config{Type: "oracle"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.ResolveDSN()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
