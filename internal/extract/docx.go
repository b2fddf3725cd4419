package extract

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const docxBodyPart = "word/document.xml"

// documentXML is the part of word/document.xml we read.
type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Runs []run `xml:"r"`
}

type run struct {
	Text []textElement `xml:"t"`
}

type textElement struct {
	Content string `xml:",chardata"`
}

func (p paragraph) text() string {
	var b strings.Builder
	for _, r := range p.Runs {
		for _, t := range r.Text {
			b.WriteString(t.Content)
		}
	}
	return b.String()
}

// DOCX returns the document's non-empty body paragraphs, one per line.
// Tables, headers and footers are not read.
func DOCX(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", readError(path, "DOCX", err)
	}
	defer zr.Close()

	var part *zip.File
	for _, f := range zr.File {
		if f.Name == docxBodyPart {
			part = f
			break
		}
	}
	if part == nil {
		return "", readError(path, "DOCX", fmt.Errorf("missing %s", docxBodyPart))
	}

	rc, err := part.Open()
	if err != nil {
		return "", readError(path, "DOCX", err)
	}
	content, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return "", readError(path, "DOCX", err)
	}

	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return "", readError(path, "DOCX", errors.Join(errors.New("malformed document body"), err))
	}

	lines := make([]string, 0, len(doc.Body.Paragraphs))
	for _, p := range doc.Body.Paragraphs {
		if t := p.text(); strings.TrimSpace(t) != "" {
			lines = append(lines, t)
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}
