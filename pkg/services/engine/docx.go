package engine

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// docxText reads the paragraphs of word/document.xml. Table cells are
// separated by tabs so rows keep their columns.
func docxText(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", errors.New("open docx: word/document.xml not found")
	}

	rc, err := doc.Open()
	if err != nil {
		return "", fmt.Errorf("open docx body: %w", err)
	}
	defer rc.Close()
	return wordprocessingText(rc)
}

func wordprocessingText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		b       strings.Builder
		line    strings.Builder
		inText  bool
		inCell  bool
		cellIdx int
	)
	flush := func() {
		if s := strings.TrimRight(line.String(), "\t "); s != "" {
			b.WriteString(s)
			b.WriteByte('\n')
		}
		line.Reset()
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse docx: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				line.WriteByte('\t')
			case "br", "cr":
				if !inCell {
					flush()
				} else {
					line.WriteByte(' ')
				}
			case "tr":
				cellIdx = 0
			case "tc":
				if cellIdx > 0 {
					line.WriteByte('\t')
				}
				cellIdx++
				inCell = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if !inCell {
					flush()
				} else {
					line.WriteByte(' ')
				}
			case "tc":
				inCell = false
			case "tr":
				flush()
			}
		case xml.CharData:
			if inText {
				line.Write(t)
			}
		}
	}
	flush()
	return b.String(), nil
}
