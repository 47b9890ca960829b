package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/dgallion1/slidedeck/internal/deck"
	"golang.org/x/net/html/charset"
)

// PPTXReader reads Office Open XML presentations (.pptx and friends).
// Only the package structure is read; nothing is rendered.
type PPTXReader struct{}

const (
	relTypeSlide      = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide"
	relTypeNotesSlide = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/notesSlide"
	relTypeImage      = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/image"
	nsRelationships   = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
)

// Zip bomb limits.
const (
	maxZipEntrySize = 50 << 20
	maxZipTotalSize = 500 << 20
	maxZipEntries   = 10000
)

type xmlRel struct {
	ID     string `xml:"Id,attr"`
	Type   string `xml:"Type,attr"`
	Target string `xml:"Target,attr"`
	Mode   string `xml:"TargetMode,attr"`
}

type xmlRels struct {
	Relationships []xmlRel `xml:"Relationship"`
}

type xmlPresentation struct {
	SlideIDs []struct {
		RID string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
	} `xml:"sldIdLst>sldId"`
}

type pkg struct {
	files map[string]*zip.File
}

// Read opens the presentation at path and returns its slide structure.
func (r *PPTXReader) Read(filePath string) (*deck.Deck, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open presentation: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat presentation: %w", err)
	}
	return r.ReadFromReader(f, info.Size())
}

// ReadFromReader reads slide structure from an io.ReaderAt. Only a broken
// container or presentation part is an error; a slide that cannot be read is
// returned with Err set so the deck keeps one entry per listed slide.
func (r *PPTXReader) ReadFromReader(ra io.ReaderAt, size int64) (*deck.Deck, error) {
	p, err := openPackage(ra, size)
	if err != nil {
		return nil, err
	}

	refs, err := p.slideParts()
	if err != nil {
		return nil, err
	}

	d := &deck.Deck{Slides: make([]*deck.Slide, 0, len(refs))}
	for i, ref := range refs {
		var slide *deck.Slide
		if ref.err != nil {
			slide = &deck.Slide{Err: ref.err}
		} else {
			slide = p.readSlide(ref.part)
			if slide.Err != nil {
				slide.Err = fmt.Errorf("read %s: %w", ref.part, slide.Err)
			}
		}
		slide.Index = i + 1
		d.Slides = append(d.Slides, slide)
	}
	return d, nil
}

// SlideCount reads only the presentation part and counts its slide list.
func (r *PPTXReader) SlideCount(filePath string) (int, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	p, err := openPackage(f, info.Size())
	if err != nil {
		return 0, err
	}
	var pres xmlPresentation
	if err := p.decode("ppt/presentation.xml", &pres); err != nil {
		return 0, err
	}
	return len(pres.SlideIDs), nil
}

func openPackage(ra io.ReaderAt, size int64) (*pkg, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid package size: %d", size)
	}
	if size > maxZipTotalSize {
		return nil, fmt.Errorf("package size %d exceeds maximum allowed (%d bytes)", size, maxZipTotalSize)
	}
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	if len(zr.File) > maxZipEntries {
		return nil, fmt.Errorf("zip archive contains too many entries (%d > %d)", len(zr.File), maxZipEntries)
	}
	p := &pkg{files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		p.files[f.Name] = f
	}
	return p, nil
}

func (p *pkg) read(name string) ([]byte, error) {
	f, ok := p.files[name]
	if !ok {
		return nil, fmt.Errorf("part not found: %s", name)
	}
	if f.UncompressedSize64 > maxZipEntrySize {
		return nil, fmt.Errorf("part %s exceeds maximum allowed size (%d bytes)", name, maxZipEntrySize)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxZipEntrySize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if len(data) > maxZipEntrySize {
		return nil, fmt.Errorf("part %s actual size exceeds maximum allowed size", name)
	}
	return data, nil
}

func (p *pkg) decode(name string, v any) error {
	data, err := p.read(name)
	if err != nil {
		return err
	}
	if err := newDecoder(data).Decode(v); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

// rels returns the relationships of a part; a missing rels part is not an error.
func (p *pkg) rels(part string) ([]xmlRel, error) {
	name := path.Join(path.Dir(part), "_rels", path.Base(part)+".rels")
	if _, ok := p.files[name]; !ok {
		return nil, nil
	}
	var rels xmlRels
	if err := p.decode(name, &rels); err != nil {
		return nil, err
	}
	return rels.Relationships, nil
}

type slideRef struct {
	part string
	err  error
}

// slideParts resolves the slide list of presentation.xml to part names, in
// order. An entry whose relationship cannot be resolved carries its error.
func (p *pkg) slideParts() ([]slideRef, error) {
	var pres xmlPresentation
	if err := p.decode("ppt/presentation.xml", &pres); err != nil {
		return nil, err
	}
	rels, err := p.rels("ppt/presentation.xml")
	if err != nil {
		return nil, err
	}
	byID := make(map[string]xmlRel, len(rels))
	for _, rel := range rels {
		byID[rel.ID] = rel
	}

	refs := make([]slideRef, 0, len(pres.SlideIDs))
	for _, id := range pres.SlideIDs {
		rel, ok := byID[id.RID]
		if !ok || rel.Type != relTypeSlide {
			refs = append(refs, slideRef{err: fmt.Errorf("slide relationship %q not found", id.RID)})
			continue
		}
		target, err := resolveTarget("ppt/presentation.xml", rel.Target)
		refs = append(refs, slideRef{part: target, err: err})
	}
	return refs, nil
}

// readSlide reads notes and pictures of one slide. Notes are read through the
// slide's relationships, so they survive a malformed slide body.
func (p *pkg) readSlide(part string) *deck.Slide {
	slide := &deck.Slide{}
	rels, err := p.rels(part)
	if err != nil {
		slide.Err = err
		return slide
	}

	byID := make(map[string]xmlRel, len(rels))
	for _, rel := range rels {
		byID[rel.ID] = rel
		if rel.Type == relTypeNotesSlide {
			slide.Notes, slide.NotesErr = p.readNotes(part, rel.Target)
		}
	}

	data, err := p.read(part)
	if err != nil {
		slide.Err = err
		return slide
	}
	embeds, err := pictureEmbeds(data)
	if err != nil {
		slide.Err = fmt.Errorf("parse %s: %w", part, err)
		return slide
	}

	for _, rid := range embeds {
		pic := &deck.Picture{}
		rel, ok := byID[rid]
		switch {
		case !ok:
			pic.Err = fmt.Errorf("picture relationship %q not found", rid)
		case rel.Mode == "External":
			pic.Err = fmt.Errorf("picture %q is linked, not embedded", rel.Target)
		default:
			pic.Part, pic.Err = resolveTarget(part, rel.Target)
			if pic.Err == nil {
				pic.Ext = imageExt(pic.Part)
				pic.Data, pic.Err = p.read(pic.Part)
			}
		}
		slide.Pictures = append(slide.Pictures, pic)
	}
	return slide
}

func (p *pkg) readNotes(slidePart, target string) (string, error) {
	part, err := resolveTarget(slidePart, target)
	if err != nil {
		return "", err
	}
	data, err := p.read(part)
	if err != nil {
		return "", err
	}
	return parseNotesXML(data)
}

// pictureEmbeds walks a slide part and returns the r:embed ids of picture
// shapes in document order. Group shapes are descended; fallback content of
// alternate blocks is skipped so a picture is not counted twice.
func pictureEmbeds(data []byte) ([]string, error) {
	dec := newDecoder(data)
	var (
		embeds     []string
		inPic      int
		inFallback int
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return embeds, nil
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "Fallback":
				inFallback++
			case "pic":
				inPic++
			case "blip":
				if inPic > 0 && inFallback == 0 {
					for _, a := range t.Attr {
						if a.Name.Local == "embed" && (a.Name.Space == nsRelationships || a.Name.Space == "r") {
							embeds = append(embeds, a.Value)
						}
					}
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "Fallback":
				inFallback--
			case "pic":
				inPic--
			}
		}
	}
}

// parseNotesXML returns the text of the notes body placeholder, one line per
// paragraph.
func parseNotesXML(data []byte) (string, error) {
	dec := newDecoder(data)

	type shape struct {
		body  bool
		paras []string
	}
	var (
		stack  []*shape
		para   *strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return "", nil
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "sp":
				stack = append(stack, &shape{})
			case "ph":
				if len(stack) > 0 {
					for _, a := range t.Attr {
						if a.Name.Local == "type" && a.Value == "body" {
							stack[len(stack)-1].body = true
						}
					}
				}
			case "p":
				if len(stack) > 0 {
					para = &strings.Builder{}
				}
			case "br":
				if para != nil {
					para.WriteString("\n")
				}
			case "t":
				inText = para != nil
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if para != nil && len(stack) > 0 {
					top := stack[len(stack)-1]
					top.paras = append(top.paras, para.String())
				}
				para = nil
			case "sp":
				if len(stack) == 0 {
					continue
				}
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if top.body {
					// Drain the rest so malformed trailing XML is still reported.
					for {
						if _, err := dec.Token(); err != nil {
							if err == io.EOF {
								return strings.Join(top.paras, "\n"), nil
							}
							return "", err
						}
					}
				}
			}
		}
	}
}

func newDecoder(data []byte) *xml.Decoder {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel
	return dec
}

// resolveTarget resolves a relationship target against its source part and
// keeps the result inside the package's ppt/ tree.
func resolveTarget(source, target string) (string, error) {
	var resolved string
	if strings.HasPrefix(target, "/") {
		resolved = path.Clean(strings.TrimPrefix(target, "/"))
	} else {
		resolved = path.Clean(path.Join(path.Dir(source), target))
	}
	if !strings.HasPrefix(resolved, "ppt/") {
		return "", fmt.Errorf("relationship target %q escapes package", target)
	}
	return resolved, nil
}

func imageExt(part string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(part), "."))
	switch ext {
	case "":
		return "bin"
	case "jpeg", "jpe":
		return "jpg"
	case "tif":
		return "tiff"
	}
	return ext
}
