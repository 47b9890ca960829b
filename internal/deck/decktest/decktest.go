// Package decktest builds minimal PPTX packages for tests.
package decktest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"strings"
	"testing"
)

// Deck describes a presentation to build.
type Deck struct {
	Slides []Slide

	// ReverseParts numbers slide parts backwards (slide1.xml is the last
	// slide) so readers must follow the presentation's slide list.
	ReverseParts bool
}

// Slide describes one slide.
type Slide struct {
	Text        string
	Notes       string // Lines become paragraphs; empty means no notes part
	BrokenNotes bool   // Notes part is present but malformed
	BrokenSlide bool   // Slide part is truncated; its relationships stay intact
	BrokenRels  bool   // Slide relationships part is malformed
	Unlinked    bool   // Listed in the presentation without a matching relationship
	Pictures    []Picture
}

// Picture is an embedded image.
type Picture struct {
	Ext     string
	Data    []byte
	Grouped bool // Placed inside a group shape
	Missing bool // Relationship points at a part that does not exist
}

const (
	nsDecl = `xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" ` +
		`xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" ` +
		`xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"`
	relBase    = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/"
	xmlHeader  = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"
	relsHeader = `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`
)

// Build returns the bytes of a PPTX package.
func Build(d Deck) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	put := func(name, body string) error {
		w, err := zw.Create(name)
		if err != nil {
			return err
		}
		_, err = w.Write([]byte(body))
		return err
	}

	n := len(d.Slides)
	partNum := func(i int) int {
		if d.ReverseParts {
			return n - i
		}
		return i + 1
	}

	var sldIDs, presRels strings.Builder
	for i, s := range d.Slides {
		fmt.Fprintf(&sldIDs, `<p:sldId id="%d" r:id="rId%d"/>`, 256+i, i+10)
		if s.Unlinked {
			continue
		}
		fmt.Fprintf(&presRels, `<Relationship Id="rId%d" Type="%sslide" Target="slides/slide%d.xml"/>`, i+10, relBase, partNum(i))
	}
	presRels.WriteString(`<Relationship Id="rId1" Type="` + relBase + `slideMaster" Target="slideMasters/slideMaster1.xml"/>`)

	if err := put("[Content_Types].xml", xmlHeader+`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`); err != nil {
		return nil, err
	}
	if err := put("ppt/presentation.xml", xmlHeader+`<p:presentation `+nsDecl+`><p:sldIdLst>`+sldIDs.String()+`</p:sldIdLst></p:presentation>`); err != nil {
		return nil, err
	}
	if err := put("ppt/_rels/presentation.xml.rels", xmlHeader+relsHeader+presRels.String()+`</Relationships>`); err != nil {
		return nil, err
	}

	media := 0
	for i, s := range d.Slides {
		num := partNum(i)
		var rels, tree strings.Builder
		rels.WriteString(relsHeader)
		rels.WriteString(`<Relationship Id="rId1" Type="` + relBase + `slideLayout" Target="../slideLayouts/slideLayout1.xml"/>`)

		tree.WriteString(`<p:sp><p:nvSpPr><p:cNvPr id="2" name="Title 1"/><p:cNvSpPr/><p:nvPr><p:ph type="title"/></p:nvPr></p:nvSpPr>`)
		tree.WriteString(`<p:txBody><a:bodyPr/><a:p><a:r><a:t>` + escape(s.Text) + `</a:t></a:r></a:p></p:txBody></p:sp>`)
		// Background fills carry blips too and must not count as pictures.
		tree.WriteString(`<p:sp><p:spPr><a:blipFill><a:blip r:embed="rId1"/></a:blipFill></p:spPr></p:sp>`)

		for k, pic := range s.Pictures {
			rid := fmt.Sprintf("rId%d", 100+k)
			media++
			part := fmt.Sprintf("image%d.%s", media, pic.Ext)
			fmt.Fprintf(&rels, `<Relationship Id="%s" Type="%simage" Target="../media/%s"/>`, rid, relBase, part)
			if !pic.Missing {
				if err := put("ppt/media/"+part, string(pic.Data)); err != nil {
					return nil, err
				}
			}
			picXML := fmt.Sprintf(`<p:pic><p:nvPicPr><p:cNvPr id="%d" name="Picture %d"/><p:cNvPicPr/><p:nvPr/></p:nvPicPr>`+
				`<p:blipFill><a:blip r:embed="%s"/></p:blipFill><p:spPr/></p:pic>`, 10+k, k+1, rid)
			if pic.Grouped {
				picXML = `<p:grpSp><p:nvGrpSpPr><p:cNvPr id="90" name="Group"/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr>` + picXML + `</p:grpSp>`
			}
			tree.WriteString(picXML)
		}

		if s.Notes != "" || s.BrokenNotes {
			fmt.Fprintf(&rels, `<Relationship Id="rId2" Type="%snotesSlide" Target="../notesSlides/notesSlide%d.xml"/>`, relBase, num)
			body := notesXML(s.Notes, i+1)
			if s.BrokenNotes {
				body = xmlHeader + `<p:notes ` + nsDecl + `><p:cSld><p:spTree><p:sp>`
			}
			if err := put(fmt.Sprintf("ppt/notesSlides/notesSlide%d.xml", num), body); err != nil {
				return nil, err
			}
		}
		rels.WriteString(`</Relationships>`)

		slideXML := xmlHeader + `<p:sld ` + nsDecl + `><p:cSld><p:spTree>` + tree.String() + `</p:spTree></p:cSld></p:sld>`
		if s.BrokenSlide {
			slideXML = xmlHeader + `<p:sld ` + nsDecl + `><p:cSld>`
		}
		relsXML := xmlHeader + rels.String()
		if s.BrokenRels {
			relsXML = xmlHeader + relsHeader + `<Relationship Id="rId1"`
		}
		if err := put(fmt.Sprintf("ppt/slides/slide%d.xml", num), slideXML); err != nil {
			return nil, err
		}
		if err := put(fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", num), relsXML); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write builds d and writes it to path, failing the test on error.
func Write(t testing.TB, path string, d Deck) {
	t.Helper()
	data, err := Build(d)
	if err != nil {
		t.Fatalf("build pptx: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write pptx: %v", err)
	}
}

// Simple returns a deck of n slides whose notes are "notes <i>".
func Simple(n int) Deck {
	d := Deck{}
	for i := 1; i <= n; i++ {
		d.Slides = append(d.Slides, Slide{
			Text:  fmt.Sprintf("Slide %d", i),
			Notes: fmt.Sprintf("notes %d", i),
		})
	}
	return d
}

func notesXML(notes string, slideNum int) string {
	var paras strings.Builder
	for _, line := range strings.Split(notes, "\n") {
		paras.WriteString(`<a:p><a:r><a:rPr lang="en-US"/><a:t>` + escape(line) + `</a:t></a:r></a:p>`)
	}
	return xmlHeader + `<p:notes ` + nsDecl + `><p:cSld><p:spTree>` +
		`<p:sp><p:nvSpPr><p:cNvPr id="2" name="Slide Image Placeholder 1"/><p:cNvSpPr/><p:nvPr><p:ph type="sldImg"/></p:nvPr></p:nvSpPr></p:sp>` +
		`<p:sp><p:nvSpPr><p:cNvPr id="3" name="Notes Placeholder 2"/><p:cNvSpPr/><p:nvPr><p:ph type="body" idx="1"/></p:nvPr></p:nvSpPr>` +
		`<p:txBody><a:bodyPr/>` + paras.String() + `</p:txBody></p:sp>` +
		fmt.Sprintf(`<p:sp><p:nvSpPr><p:cNvPr id="4" name="Slide Number"/><p:cNvSpPr/><p:nvPr><p:ph type="sldNum" idx="5"/></p:nvPr></p:nvSpPr>`+
			`<p:txBody><a:bodyPr/><a:p><a:fld id="{1}" type="slidenum"><a:t>%d</a:t></a:fld></a:p></p:txBody></p:sp>`, slideNum) +
		`</p:spTree></p:cSld></p:notes>`
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
