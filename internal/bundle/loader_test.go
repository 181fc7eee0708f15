package bundle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBlobStore struct {
	blobs map[string][]byte
	err   error
}

func (f *fakeBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	blob, ok := f.blobs[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return blob, nil
}

const backupBundle = `
import "strings"

func CheckBackup(subjectID, target string, creds map[string]string) map[string]interface{} {
	return map[string]interface{}{
		"implemented": strings.HasPrefix(target, "subject-stack-"),
		"target":      target,
	}
}

func CheckDLQ(subjectID, target string, creds map[string]string) map[string]interface{} {
	return map[string]interface{}{"implemented": false}
}
`

func TestLoadAndInvoke(t *testing.T) {
	loader := NewLoader(&fakeBlobStore{blobs: map[string][]byte{
		"reliability-v1.go": []byte(backupBundle),
	}})

	set, err := loader.Load(context.Background(), "reliability-v1.go", []string{"CheckBackup", "CheckDLQ"})
	require.NoError(t, err)
	require.Contains(t, set, "CheckBackup")
	require.Contains(t, set, "CheckDLQ")

	out := set["CheckBackup"].Invoke("team-1", "subject-stack-team-1", map[string]string{"accessKeyId": "AKIA..."})
	require.NotNil(t, out)
	assert.Equal(t, true, out["implemented"])
	assert.Equal(t, "subject-stack-team-1", out["target"])

	out = set["CheckDLQ"].Invoke("team-1", "subject-stack-team-1", nil)
	require.NotNil(t, out)
	assert.Equal(t, false, out["implemented"])
}

func TestLoadMissingRoutineAbsentFromSet(t *testing.T) {
	loader := NewLoader(&fakeBlobStore{blobs: map[string][]byte{
		"reliability-v1.go": []byte(backupBundle),
	}})

	set, err := loader.Load(context.Background(), "reliability-v1.go", []string{"CheckBackup", "CheckChaos"})
	require.NoError(t, err)
	assert.Contains(t, set, "CheckBackup")
	assert.NotContains(t, set, "CheckChaos")
}

func TestLoadFetchErrorIsUnavailable(t *testing.T) {
	loader := NewLoader(&fakeBlobStore{err: errors.New("connection refused")})

	_, err := loader.Load(context.Background(), "reliability-v1.go", []string{"CheckBackup"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestLoadBadSourceIsInvalid(t *testing.T) {
	loader := NewLoader(&fakeBlobStore{blobs: map[string][]byte{
		"broken.go": []byte("func CheckBackup( {"),
	}})

	_, err := loader.Load(context.Background(), "broken.go", []string{"CheckBackup"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLoadBlockedImportIsInvalid(t *testing.T) {
	cases := []struct {
		name string
		src  string
		pkg  string
	}{
		{
			name: "plain import",
			src: `
import "os/exec"

func CheckBackup(subjectID, target string, creds map[string]string) map[string]interface{} {
	exec.Command("true").Run()
	return map[string]interface{}{"implemented": true}
}
`,
			pkg: "os/exec",
		},
		{
			name: "one-line grouped import",
			src: `
import ( "os" )

func CheckBackup(subjectID, target string, creds map[string]string) map[string]interface{} {
	return map[string]interface{}{"implemented": true, "leak": os.Getenv("ASSESSOR_CONFIRMATION_SECRET")}
}
`,
			pkg: "os",
		},
		{
			name: "semicolon-terminated import",
			src: `
import "os";

func CheckBackup(subjectID, target string, creds map[string]string) map[string]interface{} {
	return map[string]interface{}{"implemented": true, "leak": os.Environ()}
}
`,
			pkg: "os",
		},
		{
			name: "aliased import",
			src: `
import sc "syscall"

func CheckBackup(subjectID, target string, creds map[string]string) map[string]interface{} {
	return map[string]interface{}{"implemented": true, "pid": sc.Getpid()}
}
`,
			pkg: "syscall",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			loader := NewLoader(&fakeBlobStore{blobs: map[string][]byte{
				"sneaky.go": []byte(tc.src),
			}})

			_, err := loader.Load(context.Background(), "sneaky.go", []string{"CheckBackup"})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tc.pkg)
		})
	}
}

// Two concurrent loads must not observe each other's symbols.
func TestLoadIsolationBetweenLoads(t *testing.T) {
	first := NewLoader(&fakeBlobStore{blobs: map[string][]byte{
		"a.go": []byte(`func CheckA(subjectID, target string, creds map[string]string) map[string]interface{} {
	return map[string]interface{}{"implemented": true}
}`),
	}})
	second := NewLoader(&fakeBlobStore{blobs: map[string][]byte{
		"b.go": []byte(`func CheckB(subjectID, target string, creds map[string]string) map[string]interface{} {
	return map[string]interface{}{"implemented": false}
}`),
	}})

	setA, err := first.Load(context.Background(), "a.go", []string{"CheckA", "CheckB"})
	require.NoError(t, err)
	setB, err := second.Load(context.Background(), "b.go", []string{"CheckA", "CheckB"})
	require.NoError(t, err)

	assert.Contains(t, setA, "CheckA")
	assert.NotContains(t, setA, "CheckB")
	assert.Contains(t, setB, "CheckB")
	assert.NotContains(t, setB, "CheckA")
}
