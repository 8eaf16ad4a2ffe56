package render

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/RegiDesk/internal/logging"
)

type certView struct {
	Gender, Name, FatherName, Course, FromDate, ToDate, IssueDate string
	Photo                                                         any
}

func TestRenderEmbeddedCertificate(t *testing.T) {
	r := New("")
	out, err := r.Render(Certificate, certView{
		Gender:     "Ms.",
		Name:       "JANE DOE",
		FatherName: "JOHN DOE",
		Course:     "INTERNSHIP PROGRAMME ON CNC",
		FromDate:   "01.11.2026",
		ToDate:     "30.11.2026",
		IssueDate:  "16.10.2026",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "JANE DOE")
	assert.Contains(t, out, "INTERNSHIP PROGRAMME ON CNC")
	assert.Contains(t, out, "@page")
	assert.NotContains(t, out, `id="cert-photo"`)
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, err := New("").Render("receipt", nil)
	assert.True(t, errors.Is(err, ErrUnknownTemplate))
}

func TestRenderEscapesInput(t *testing.T) {
	out, err := New("").Render(Certificate, certView{Name: "<script>alert(1)</script>"})
	require.NoError(t, err)
	assert.NotContains(t, out, "<script>alert(1)</script>")
}

func TestOverrideDirAndInvalidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "certificate.html")
	require.NoError(t, os.WriteFile(path, []byte(`v1 {{.Name}}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "logo.png"), []byte("png"), 0o600))

	r := New(dir)
	out, err := r.Render(Certificate, certView{Name: "A"})
	require.NoError(t, err)
	assert.Equal(t, "v1 A", out)

	require.NoError(t, os.WriteFile(path, []byte(`v2 {{.Name}} {{asset "logo.png"}}`), 0o600))
	out, err = r.Render(Certificate, certView{Name: "A"})
	require.NoError(t, err)
	assert.Equal(t, "v1 A", out, "cached until invalidated")

	r.Invalidate()
	out, err = r.Render(Certificate, certView{Name: "A"})
	require.NoError(t, err)
	assert.Equal(t, "v2 A data:image/png;base64,cG5n", out)

	// Files missing from the override dir fall back to the embedded set.
	_, err = r.Render(ApplicationForm, map[string]any{})
	assert.NoError(t, err)
}

func TestMissingAssetFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "certificate.html"), []byte(`{{asset "gone.png"}}`), 0o600))

	_, err := New(dir).Render(Certificate, nil)
	assert.Error(t, err)
}

func TestWatcherInvalidatesOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "certificate.html")
	require.NoError(t, os.WriteFile(path, []byte(`old`), 0o600))

	r := New(dir)
	out, err := r.Render(Certificate, nil)
	require.NoError(t, err)
	require.Equal(t, "old", out)

	w, err := NewWatcher(r, dir, 20*time.Millisecond, logging.Discard())
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte(`new`), 0o600))
	select {
	case <-w.Reloaded():
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not reload")
	}
	out, err = r.Render(Certificate, nil)
	require.NoError(t, err)
	assert.Equal(t, "new", out)
}
