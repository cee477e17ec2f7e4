package export

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/lead-miner/internal/model"
)

var day = time.Date(2025, 3, 7, 18, 30, 0, 0, time.UTC)

func sampleLeads() []model.Lead {
	return []model.Lead{
		{ID: "a", Name: "Pizzaria Bella", Phone: "11999998888", Neighborhood: "Moema", Type: model.PhoneMobile, Status: model.StatusNew, Email: "oi@bella.com.br"},
		{ID: "b", Name: "Cantina, do Zé", Phone: "5511333344445", Neighborhood: "Vila Mariana", Type: model.PhoneLandline, Status: model.StatusContacted},
		{ID: "c", Name: "Sem Telefone", Type: model.PhoneUnknown, Status: model.StatusNew},
	}
}

func TestText(t *testing.T) {
	t.Parallel()

	got := Text(sampleLeads()[:2])
	assert.Equal(t, "Pizzaria Bella: 11999998888\nCantina, do Zé: 5511333344445", got)
	assert.Empty(t, Text(nil))
}

func TestWriteCSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleLeads()))

	out := buf.String()
	require.True(t, strings.HasPrefix(out, "\ufeff"), "starts with a UTF-8 BOM")
	lines := strings.Split(strings.TrimSuffix(strings.TrimPrefix(out, "\ufeff"), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Name,Phone,Neighborhood,Type,Status", lines[0])
	assert.Equal(t, "Pizzaria Bella,11999998888,Moema,mobile,new", lines[1])
	assert.Equal(t, `"Cantina, do Zé",5511333344445,Vila Mariana,landline,contacted`, lines[2])
}

func TestWriteCSV_Empty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	assert.ErrorIs(t, WriteCSV(&buf, nil), ErrNoContacts)
	assert.Zero(t, buf.Len())
}

func TestWriteFile_EmptyWritesNothing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path, err := WriteFile(dir, FormatCSV, "pizzaria", nil, day)
	assert.ErrorIs(t, err, ErrNoContacts)
	assert.Empty(t, path)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path, err := WriteFile(dir, FormatVCF, "Pizzaria!", sampleLeads(), day)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "leads_pizzaria_2025-03-07.vcf"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(data), "BEGIN:VCARD"))
}

func TestWriteVCF_PhoneFormatting(t *testing.T) {
	t.Parallel()

	leads := []model.Lead{
		{Name: "A", Phone: "11999998888", Type: model.PhoneMobile},
		{Name: "B", Phone: "5511999998888", Type: model.PhoneMobile},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteVCF(&buf, leads))

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "TEL;TYPE=CELL:+5511999998888\r\n"))
	assert.NotContains(t, out, "+555511")
}

func TestWriteVCF_Record(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteVCF(&buf, sampleLeads()))
	cards := strings.SplitAfter(buf.String(), "END:VCARD\r\n")
	require.Len(t, cards, 4)

	assert.Equal(t, "BEGIN:VCARD\r\n"+
		"VERSION:3.0\r\n"+
		"FN:Pizzaria Bella\r\n"+
		"N:;Pizzaria Bella;;;\r\n"+
		"ORG:Pizzaria Bella\r\n"+
		"TEL;TYPE=CELL:+5511999998888\r\n"+
		"EMAIL;TYPE=INTERNET:oi@bella.com.br\r\n"+
		"NOTE:Moema\r\n"+
		"END:VCARD\r\n", cards[0])

	assert.Contains(t, cards[1], `FN:Cantina\, do Zé`)
	assert.Contains(t, cards[1], "TEL;TYPE=WORK,VOICE:+5511333344445")
	assert.NotContains(t, cards[2], "TEL")
}

func TestWriteVCF_CarriageReturnsStayInsideTheLine(t *testing.T) {
	t.Parallel()

	leads := []model.Lead{{Name: "Bar\r\nDo Zé", Phone: "11999998888", Neighborhood: "Vila\rMariana"}}
	var buf bytes.Buffer
	require.NoError(t, WriteVCF(&buf, leads))

	out := buf.String()
	assert.Contains(t, out, "FN:Bar\\nDo Zé\r\n")
	assert.Contains(t, out, "NOTE:VilaMariana\r\n")
	assert.Equal(t, strings.Count(out, "\r\n"), strings.Count(out, "\r"), "every CR ends a content line")
}

func TestWriteVCF_Empty(t *testing.T) {
	t.Parallel()
	assert.ErrorIs(t, WriteVCF(&bytes.Buffer{}, nil), ErrNoContacts)
}

func TestWriteXLSX(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sampleLeads()))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	rows := f.Sheets[0].Rows
	require.Len(t, rows, 4)
	assert.Equal(t, "Name", rows[0].Cells[0].String())
	assert.Equal(t, "Cantina, do Zé", rows[2].Cells[0].String())
	assert.Equal(t, "landline", rows[2].Cells[3].String())

	assert.ErrorIs(t, WriteXLSX(&bytes.Buffer{}, nil), ErrNoContacts)
}

func TestFileName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "leads_pizzaria_2025-03-07.csv", FileName(FormatCSV, "PIZZARIA", day))
	assert.Equal(t, "leads_all_2025-03-07.vcf", FileName(FormatVCF, "", day))
	assert.Equal(t, "leads_salaodebeleza_2025-03-07.xlsx", FileName(FormatXLSX, "Salão de Beleza", day))
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Format{"csv": FormatCSV, ".VCF": FormatVCF, "vcard": FormatVCF, "text": FormatText, "xlsx": FormatXLSX} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("pdf")
	assert.Error(t, err)
}

func TestWrite_Text(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatText, sampleLeads()[:1]))
	assert.Equal(t, "Pizzaria Bella: 11999998888\n", buf.String())
	assert.ErrorIs(t, Write(&buf, FormatText, nil), ErrNoContacts)
	assert.Equal(t, "text/csv; charset=utf-8", FormatCSV.ContentType())
}
