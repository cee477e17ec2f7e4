// Package export turns lead lists into shareable payloads: plain text, CSV,
// vCard, and XLSX files, plus pushes into Notion and Salesforce.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/lead-miner/internal/identity"
	"github.com/sells-group/lead-miner/internal/model"
)

// ErrNoContacts is returned when there is nothing to export.
var ErrNoContacts = eris.New("export: no contacts to export")

// Format is an export file format.
type Format string

const (
	FormatText Format = "txt"
	FormatCSV  Format = "csv"
	FormatVCF  Format = "vcf"
	FormatXLSX Format = "xlsx"
)

// Formats lists the supported file formats.
var Formats = []Format{FormatText, FormatCSV, FormatVCF, FormatXLSX}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")))
	switch f {
	case FormatText, FormatCSV, FormatVCF, FormatXLSX:
		return f, nil
	case "text":
		return FormatText, nil
	case "vcard":
		return FormatVCF, nil
	}
	return "", eris.Errorf("export: unknown format %q", s)
}

// ContentType is the MIME type served for f.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatVCF:
		return "text/vcard; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/plain; charset=utf-8"
	}
}

var header = []string{"Name", "Phone", "Neighborhood", "Type", "Status"}

// utf8BOM makes spreadsheet apps detect UTF-8 in CSV files.
const utf8BOM = "\ufeff"

// Text renders "Name: Phone" lines.
func Text(leads []model.Lead) string {
	lines := make([]string, len(leads))
	for i, l := range leads {
		lines[i] = l.Name + ": " + l.Phone
	}
	return strings.Join(lines, "\n")
}

// WriteCSV writes a BOM-prefixed CSV with one row per lead.
func WriteCSV(w io.Writer, leads []model.Lead) error {
	if len(leads) == 0 {
		return ErrNoContacts
	}
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return eris.Wrap(err, "export: write bom")
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, l := range leads {
		if err := cw.Write(row(l)); err != nil {
			return eris.Wrapf(err, "export: write csv row %s", l.ID)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

func row(l model.Lead) []string {
	return []string{l.Name, l.Phone, l.Neighborhood, string(l.Type), string(l.Status)}
}

// WriteVCF writes one vCard 3.0 record per lead.
func WriteVCF(w io.Writer, leads []model.Lead) error {
	if len(leads) == 0 {
		return ErrNoContacts
	}
	var b strings.Builder
	for _, l := range leads {
		b.WriteString("BEGIN:VCARD\r\n")
		b.WriteString("VERSION:3.0\r\n")
		fmt.Fprintf(&b, "FN:%s\r\n", vcardEscape(l.Name))
		fmt.Fprintf(&b, "N:;%s;;;\r\n", vcardEscape(l.Name))
		fmt.Fprintf(&b, "ORG:%s\r\n", vcardEscape(l.Name))
		if phone := identity.FormatE164(l.Phone); phone != "" {
			kind := "WORK,VOICE"
			if l.Type == model.PhoneMobile {
				kind = "CELL"
			}
			fmt.Fprintf(&b, "TEL;TYPE=%s:%s\r\n", kind, phone)
		}
		if l.Email != "" {
			fmt.Fprintf(&b, "EMAIL;TYPE=INTERNET:%s\r\n", vcardEscape(l.Email))
		}
		if l.Website != "" {
			fmt.Fprintf(&b, "URL:%s\r\n", l.Website)
		}
		if l.Neighborhood != "" {
			fmt.Fprintf(&b, "NOTE:%s\r\n", vcardEscape(l.Neighborhood))
		}
		b.WriteString("END:VCARD\r\n")
	}
	_, err := io.WriteString(w, b.String())
	return eris.Wrap(err, "export: write vcf")
}

// Bare carriage returns are dropped so they cannot split a content line.
var vcardEscaper = strings.NewReplacer(`\`, `\\`, ",", `\,`, ";", `\;`, "\r", "", "\n", `\n`)

func vcardEscape(s string) string {
	return vcardEscaper.Replace(s)
}

// WriteXLSX writes a single-sheet workbook with the CSV columns.
func WriteXLSX(w io.Writer, leads []model.Lead) error {
	if len(leads) == 0 {
		return ErrNoContacts
	}
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Leads")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}
	addRow(sheet, header)
	for _, l := range leads {
		addRow(sheet, row(l))
	}
	return eris.Wrap(f.Write(w), "export: write xlsx")
}

func addRow(sheet *xlsx.Sheet, values []string) {
	r := sheet.AddRow()
	for _, v := range values {
		r.AddCell().SetString(v)
	}
}

// Write renders leads in format f.
func Write(w io.Writer, f Format, leads []model.Lead) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, leads)
	case FormatVCF:
		return WriteVCF(w, leads)
	case FormatXLSX:
		return WriteXLSX(w, leads)
	default:
		if len(leads) == 0 {
			return ErrNoContacts
		}
		_, err := io.WriteString(w, Text(leads)+"\n")
		return eris.Wrap(err, "export: write text")
	}
}

// FileName builds leads_<filter>_<YYYY-MM-DD>.<ext>. The filter is
// normalized; an empty filter reads "all".
func FileName(f Format, filter string, now time.Time) string {
	marker := identity.NormalizeText(filter)
	if marker == "" {
		marker = "all"
	}
	return fmt.Sprintf("leads_%s_%s.%s", marker, now.Format("2006-01-02"), f)
}

// WriteFile renders leads into dir and returns the file path. Nothing is
// created when leads is empty.
func WriteFile(dir string, f Format, filter string, leads []model.Lead, now time.Time) (string, error) {
	if len(leads) == 0 {
		return "", ErrNoContacts
	}
	var buf bytes.Buffer
	if err := Write(&buf, f, leads); err != nil {
		return "", err
	}
	path := filepath.Join(dir, FileName(f, filter, now))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", eris.Wrapf(err, "export: write %s", path)
	}
	return path, nil
}
