package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestParseTime(t *testing.T) {
	want := time.Unix(1680000000, 0).UTC()

	got, err := parseTime("1680000000")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = parseTime(want.Format(time.RFC3339))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = parseTime("tomorrow")
	assert.Error(t, err)
}

func TestVersionAndKeys(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "slotmint dev")

	out, err = run(t, "keys")
	require.NoError(t, err)
	for _, k := range []string{"COOKIE_HASH_KEY=", "COOKIE_BLOCK_KEY=", "JWT_SECRET="} {
		assert.Contains(t, out, k)
	}
}

func TestExperienceCreate_MemoryStore(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("LOG_LEVEL", "error")

	out, err := run(t, "experience", "create",
		"--organiser", "organiser", "--title", "Surf Camp", "--location", "Goa",
		"--description", "Waves", "--price", "100", "--cancellation-fee", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "created experience")
	assert.Contains(t, out, `"title": "Surf Camp"`)

	_, err = run(t, "experience", "create",
		"--organiser", "organiser", "--title", "", "--location", "Goa",
		"--description", "Waves", "--price", "100")
	assert.Error(t, err)
}

func TestReservationList_RequiresOneFilter(t *testing.T) {
	_, err := run(t, "reservation", "list")
	assert.Error(t, err)
	_, err = run(t, "reservation", "list", "--user", "a", "--experience", "b")
	assert.Error(t, err)
}

func TestMigrate_RejectsMemoryStore(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	_, err := run(t, "migrate")
	assert.ErrorContains(t, err, "STORE_DRIVER=postgres")
}
