package flagx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		allowed []string
		want    []string
	}{
		{
			name:    "separate value",
			args:    []string{"-c", "palette.jsonc", "-http-addr", ":8080"},
			allowed: []string{"-c", "-config"},
			want:    []string{"-c", "palette.jsonc"},
		},
		{
			name:    "equals form",
			args:    []string{"-config=palette.json", "-grpc-addr", ":9090"},
			allowed: []string{"-c", "-config"},
			want:    []string{"-config=palette.json"},
		},
		{
			name:    "unknown flags dropped",
			args:    []string{"-x", "1", "--y=2", "positional"},
			allowed: []string{"-c"},
			want:    []string{},
		},
		{
			name:    "trailing flag without value",
			args:    []string{"-c"},
			allowed: []string{"-c"},
			want:    []string{"-c"},
		},
		{
			name:    "next dash token is not a value",
			args:    []string{"-c", "-config=alt.json"},
			allowed: []string{"-c", "-config"},
			want:    []string{"-c", "-config=alt.json"},
		},
		{
			name:    "repeated flag keeps order",
			args:    []string{"-c", "one.json", "-c", "two.json"},
			allowed: []string{"-c"},
			want:    []string{"-c", "one.json", "-c", "two.json"},
		},
		{
			name:    "empty",
			args:    nil,
			allowed: []string{"-c"},
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, tt.allowed))
		})
	}
}

func TestConfigPath(t *testing.T) {
	assert.Equal(t, "/etc/palette.jsonc", ConfigPath([]string{"-c", "/etc/palette.jsonc"}))
	assert.Equal(t, "long.json", ConfigPath([]string{"-config", "long.json", "-d", "postgres://"}))
	assert.Equal(t, "eq.json", ConfigPath([]string{"--config=eq.json"}))
	assert.Equal(t, "two.json", ConfigPath([]string{"-c", "one.json", "-config", "two.json"}))
	assert.Empty(t, ConfigPath([]string{"-x", "1"}))
}
