package github

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"strings"
)

// docxEmbeddedPath reads the "path" custom property a push embeds in a
// DOCX so pulls can be matched back to the originating file.
func docxEmbeddedPath(docxPath string) (string, error) {
	r, err := zip.OpenReader(docxPath)
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer func() { _ = r.Close() }()

	for _, f := range r.File {
		if f.Name != "docProps/custom.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		defer func() { _ = rc.Close() }()

		var props struct {
			Properties []struct {
				Name  string `xml:"name,attr"`
				Value string `xml:"lpwstr"`
			} `xml:"property"`
		}
		if err := xml.NewDecoder(rc).Decode(&props); err != nil {
			return "", fmt.Errorf("parse custom properties: %w", err)
		}
		for _, p := range props.Properties {
			if strings.EqualFold(p.Name, "path") {
				return strings.TrimSpace(p.Value), nil
			}
		}
		return "", nil
	}
	return "", nil
}
