package engine

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice-extractor/pkg/logger"
)

type stubRunner struct {
	stdout []byte
	stderr []byte
	err    error
	name   string
	args   []string
}

func (s *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.name = name
	s.args = args
	return s.stdout, s.stderr, s.err
}

type stubImages struct {
	text string
	err  error
}

func (s stubImages) ExtractDocumentText(context.Context, string) (string, error) {
	return s.text, s.err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func writeDocx(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "factura.docx")
	f, err := os.Create(p)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return p
}

func TestLoaderPDF(t *testing.T) {
	runner := &stubRunner{stdout: []byte("FACTURA A\fPágina 2\n")}
	l := NewLoader(runner, "", nil, logger.Discard())
	p := writeFile(t, "factura.pdf", "%PDF")

	text, err := l.Text(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "FACTURA A\n\nPágina 2", text)
	assert.Equal(t, "pdftotext", runner.name)
	assert.Equal(t, []string{"-layout", "-enc", "UTF-8", "-eol", "unix", p, "-"}, runner.args)
}

func TestLoaderPDFFailure(t *testing.T) {
	runner := &stubRunner{stderr: []byte("Syntax Error: Couldn't find trailer dictionary"), err: errors.New("exit status 1")}
	l := NewLoader(runner, "/usr/bin/pdftotext", nil, logger.Discard())

	_, err := l.Text(context.Background(), writeFile(t, "broken.pdf", "garbage"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trailer dictionary")
	assert.Equal(t, "/usr/bin/pdftotext", runner.name)
}

func TestLoaderDocx(t *testing.T) {
	body := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p><w:r><w:t>FACTURA</w:t></w:r><w:r><w:t xml:space="preserve"> B</w:t></w:r></w:p>
<w:p><w:r><w:t>Nro 0001-00000042</w:t></w:r></w:p>
<w:tbl>
<w:tr><w:tc><w:p><w:r><w:t>Descripción</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Cantidad</w:t></w:r></w:p></w:tc></w:tr>
<w:tr><w:tc><w:p><w:r><w:t>Servicio</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>2</w:t></w:r></w:p></w:tc></w:tr>
</w:tbl>
</w:body></w:document>`

	l := NewLoader(&stubRunner{}, "", nil, logger.Discard())
	text, err := l.Text(context.Background(), writeDocx(t, body))
	require.NoError(t, err)
	assert.Contains(t, text, "FACTURA B\n")
	assert.Contains(t, text, "Nro 0001-00000042\n")
	assert.Contains(t, text, "Descripción \tCantidad")
	assert.Contains(t, text, "Servicio \t2")
}

func TestLoaderDocxWithoutBody(t *testing.T) {
	p := filepath.Join(t.TempDir(), "empty.docx")
	f, err := os.Create(p)
	require.NoError(t, err)
	require.NoError(t, zip.NewWriter(f).Close())
	require.NoError(t, f.Close())

	l := NewLoader(&stubRunner{}, "", nil, logger.Discard())
	_, err = l.Text(context.Background(), p)
	assert.Error(t, err)
}

func TestLoaderImages(t *testing.T) {
	p := writeFile(t, "scan.JPG", "not really a jpeg")

	l := NewLoader(&stubRunner{}, "", nil, logger.Discard())
	_, err := l.Text(context.Background(), p)
	assert.Error(t, err)

	l = NewLoader(&stubRunner{}, "", stubImages{text: "Total $ 100,00"}, logger.Discard())
	text, err := l.Text(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "Total $ 100,00", text)
}

func TestLoaderErrors(t *testing.T) {
	l := NewLoader(&stubRunner{}, "", nil, logger.Discard())
	ctx := context.Background()

	_, err := l.Text(ctx, filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)

	_, err = l.Text(ctx, writeFile(t, "sheet.xls", "x"))
	assert.ErrorContains(t, err, "unsupported")

	_, err = l.Text(ctx, writeFile(t, "blank.txt", "  \n\t"))
	assert.ErrorIs(t, err, ErrEmptyDocument)

	text, err := l.Text(ctx, writeFile(t, "note.txt", " hola \n"))
	require.NoError(t, err)
	assert.Equal(t, "hola", text)
}
