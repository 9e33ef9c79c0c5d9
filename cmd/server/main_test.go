package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPolicyCheck(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		allowed bool
		want    string
	}{
		{"plain command", []string{"ls", "-la"}, true, "allowed"},
		{"parent directory", []string{"cd", ".."}, false, "rule=cd-parent"},
		{"quoted parent directory", []string{`c"d"`, "'..'"}, false, "rule=cd-parent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, append([]string{"policy", "check", "--file", "", "--"}, tt.args...)...)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestPolicyRulesIncludesFileRules(t *testing.T) {
	file := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`rules:
  - name: no-curl
    pattern: '\bcurl\b'
    reason: network tools are disabled
`), 0o600))

	out, err := run(t, "policy", "rules", "--file", file)
	require.NoError(t, err)
	assert.Contains(t, out, "cd-parent")
	assert.Contains(t, out, "no-curl")

	out, err = run(t, "policy", "check", "--file", file, "curl", "example.com")
	assert.Error(t, err)
	assert.Contains(t, out, "rule=no-curl")
}

func TestFlagsOverrideConfig(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--port", "9100", "--sandbox", "--allowed-origin", "https://ide.example.com"}))

	port, err := cmd.Flags().GetString("port")
	require.NoError(t, err)
	assert.Equal(t, "9100", port)

	sandbox, err := cmd.Flags().GetBool("sandbox")
	require.NoError(t, err)
	assert.True(t, sandbox)

	origins, err := cmd.Flags().GetStringSlice("allowed-origin")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://ide.example.com"}, origins)
}
