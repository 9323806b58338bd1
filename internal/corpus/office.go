package corpus

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/hyperjump/shirabe/internal/models"
)

const (
	ooxmlContentTypes = "[Content_Types].xml"
	wordMainType      = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
	wordDefaultPart   = "word/document.xml"
	odfContent        = "content.xml"
)

var (
	// Run text in word, slide and OpenDocument markup. Attributes are allowed on the
	// opening tag; nested markup inside a run is not.
	wordRun  = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)
	slideRun = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)
	odfRun   = regexp.MustCompile(`<text:(?:p|h|span)[^>]*>([^<]*)</text:(?:p|h|span)>`)

	wordPart  = regexp.MustCompile(`<Override[^>]*PartName="([^"]+)"[^>]*ContentType="` + regexp.QuoteMeta(wordMainType) + `"`)
	wordPart2 = regexp.MustCompile(`<Override[^>]*ContentType="` + regexp.QuoteMeta(wordMainType) + `"[^>]*PartName="([^"]+)"`)
	slideName = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
)

// officeExtensions are the zipped office formats read by FromOffice.
var officeExtensions = map[string]bool{".docx": true, ".pptx": true, ".odt": true, ".odp": true, ".ods": true}

// FromOffice extracts the text runs of a .docx, .pptx, .odt, .odp or .ods file and
// chunks it like plain text.
func FromOffice(content []byte, source, ext string, chunker *Chunker) ([]models.Document, error) {
	text, err := officeText(content, ext)
	if err != nil {
		return nil, err
	}
	return FromText(text, source, chunker), nil
}

func officeText(content []byte, ext string) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("%s: not a zip archive: %w", ext, err)
	}
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	switch ext {
	case ".docx":
		part := wordDefaultPart
		if ct, err := readZipFile(files[ooxmlContentTypes]); err == nil {
			if m := wordPart.FindStringSubmatch(ct); m != nil {
				part = strings.TrimPrefix(m[1], "/")
			} else if m := wordPart2.FindStringSubmatch(ct); m != nil {
				part = strings.TrimPrefix(m[1], "/")
			}
		}
		xml, err := readZipFile(files[part])
		if err != nil {
			return "", fmt.Errorf("docx %s: %w", part, err)
		}
		return joinRuns(wordRun, xml), nil
	case ".pptx":
		// Slides in presentation order, not archive order.
		type slide struct {
			n    int
			file *zip.File
		}
		var slides []slide
		for name, f := range files {
			if m := slideName.FindStringSubmatch(name); m != nil {
				n, _ := strconv.Atoi(m[1])
				slides = append(slides, slide{n, f})
			}
		}
		sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })
		parts := make([]string, 0, len(slides))
		for _, s := range slides {
			xml, err := readZipFile(s.file)
			if err != nil {
				return "", fmt.Errorf("pptx %s: %w", s.file.Name, err)
			}
			if t := joinRuns(slideRun, xml); t != "" {
				parts = append(parts, t)
			}
		}
		return strings.Join(parts, "\n\n"), nil
	case ".odt", ".odp", ".ods":
		xml, err := readZipFile(files[odfContent])
		if err != nil {
			return "", fmt.Errorf("%s %s: %w", ext, odfContent, err)
		}
		return joinRuns(odfRun, xml), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}
}

func readZipFile(f *zip.File) (string, error) {
	if f == nil {
		return "", fmt.Errorf("part not found")
	}
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func joinRuns(re *regexp.Regexp, xml string) string {
	var b strings.Builder
	for _, m := range re.FindAllStringSubmatch(xml, -1) {
		t := strings.TrimSpace(unescapeXML(m[1]))
		if t == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(t)
	}
	return b.String()
}

var xmlEntities = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&amp;", "&")

func unescapeXML(s string) string {
	return xmlEntities.Replace(s)
}
