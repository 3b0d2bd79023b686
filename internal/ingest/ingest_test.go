package ingest

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestParseDelimited_TabWithCommasInCells(t *testing.T) {
	data := "Title\tAbstract\tSource Title\tAuthors\tDOI\n" +
		"Robot Control, Revisited\tWe study arms, grippers and more.\tIEEE Robotics\tSmith, J.; Doe, A.\t10.1/abc\n" +
		"Swarm Planning\tA planner.\tAutonomous Robots\tLee, K.\t\n"

	p, err := ParseFile("wos.txt", []byte(data))
	require.NoError(t, err)

	assert.Equal(t, "\t", p.Delimiter)
	require.Len(t, p.Records, 2)
	r := p.Records[0]
	assert.Equal(t, "Robot Control, Revisited", r.Title)
	assert.Equal(t, "IEEE Robotics", r.SourceTitle)
	assert.Equal(t, []string{"Smith, J.", "Doe, A."}, r.Authors)
	assert.Equal(t, "10.1/abc", r.DOI)
	assert.Equal(t, "wos.txt", r.Source)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "Title", p.Columns.Title)
	assert.Equal(t, "Source Title", p.Columns.Source)
}

func TestParseDelimited_CommaCSV(t *testing.T) {
	data := "Title,Abstract,Source title,Year\n" +
		"\"Deep Nets, Explained\",Short abstract,Neural Computation,2021\n"

	p, err := ParseFile("scopus.csv", []byte(data))
	require.NoError(t, err)
	assert.Equal(t, ",", p.Delimiter)
	require.Len(t, p.Records, 1)
	assert.Equal(t, "Deep Nets, Explained", p.Records[0].Title)
	assert.Equal(t, "Neural Computation", p.Records[0].SourceTitle)
	assert.Equal(t, "2021", p.Records[0].Year)
}

func TestParseDelimited_ScopusSourceBeatsSourceColumn(t *testing.T) {
	data := "Title,Source title,Source,Abstract\n" +
		"A paper,Journal of Things,Scopus,text\n"

	p, err := ParseFile("scopus.csv", []byte(data))
	require.NoError(t, err)
	require.Len(t, p.Records, 1)
	assert.Equal(t, "Journal of Things", p.Records[0].SourceTitle)
	// The unused vendor column is carried through.
	require.Len(t, p.Records[0].Extra, 1)
	assert.Equal(t, "Source", p.Records[0].Extra[0].Name)
	assert.Equal(t, "Scopus", p.Records[0].Extra[0].Value)
}

func TestParseDelimited_WoSShortCodes(t *testing.T) {
	data := "PT\tAU\tTI\tSO\tAB\tPY\tDI\n" +
		"J\tSmith, J\tSensor Fusion\tSENSORS\tWe fuse.\t2019\t10.3390/s1\n"

	p, err := ParseFile("savedrecs.txt", []byte(data))
	require.NoError(t, err)
	require.Len(t, p.Records, 1)
	r := p.Records[0]
	assert.Equal(t, "Sensor Fusion", r.Title)
	assert.Equal(t, "SENSORS", r.SourceTitle)
	assert.Equal(t, "We fuse.", r.Abstract)
	assert.Equal(t, "2019", r.Year)
	assert.Equal(t, "10.3390/s1", r.DOI)
	assert.Equal(t, []string{"Smith, J"}, r.Authors)
	assert.Equal(t, "Source title", p.Columns.Source)
}

func TestParseDelimited_CaseInsensitiveRename(t *testing.T) {
	data := "TITLE,ABSTRACT,JOURNAL\nUpper Case,body,Some Journal\n"

	p, err := ParseFile("upper.csv", []byte(data))
	require.NoError(t, err)
	require.Len(t, p.Records, 1)
	assert.Equal(t, "Upper Case", p.Records[0].Title)
	assert.Equal(t, "body", p.Records[0].Abstract)
	assert.Equal(t, "Some Journal", p.Records[0].SourceTitle)
	assert.Equal(t, "TITLE", p.Columns.Title)
}

func TestParseDelimited_MissingColumnsSynthesizedEmpty(t *testing.T) {
	data := "Title,Year,Volume\nOnly Title,2020,3\n"

	p, err := ParseFile("sparse.csv", []byte(data))
	require.NoError(t, err)
	require.Len(t, p.Records, 1)
	assert.Equal(t, "", p.Records[0].Abstract)
	assert.Equal(t, "", p.Records[0].SourceTitle)
	assert.Equal(t, "", p.Columns.Abstract)
}

func TestParseDelimited_UTF8BOM(t *testing.T) {
	data := "\xEF\xBB\xBFTitle,Abstract,Journal\nBOM paper,x,y\n"

	p, err := ParseFile("bom.csv", []byte(data))
	require.NoError(t, err)
	require.Len(t, p.Records, 1)
	assert.Equal(t, "BOM paper", p.Records[0].Title)
	assert.Equal(t, "Title", p.Columns.Title)
}

func TestParseDelimited_NonASCII(t *testing.T) {
	data := "Title,Abstract,Journal\n机器人控制研究,摘要内容,自动化学报\n"

	p, err := ParseFile("cn.csv", []byte(data))
	require.NoError(t, err)
	require.Len(t, p.Records, 1)
	assert.Equal(t, "机器人控制研究", p.Records[0].Title)
	assert.Equal(t, "自动化学报", p.Records[0].SourceTitle)
}

func TestParseDelimited_TooFewColumns(t *testing.T) {
	_, err := ParseFile("bad.csv", []byte("just one column\nanother line\n"))
	require.Error(t, err)

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "bad.csv", pe.File)
	assert.True(t, errors.Is(err, ErrNoColumns))
	assert.Contains(t, pe.Preview, "just one column")
}

func TestParseDelimited_SniffsTagFormat(t *testing.T) {
	data := "TY  - JOUR\nTI  - Tagged In Disguise\nJO  - Tag Journal\nER  - \n"

	p, err := ParseFile("export.txt", []byte(data))
	require.NoError(t, err)
	require.Len(t, p.Records, 1)
	assert.Equal(t, "Tagged In Disguise", p.Records[0].Title)
	assert.Equal(t, "TI", p.Columns.Title)
}

func TestScoreHeader(t *testing.T) {
	tests := []struct {
		header []string
		want   int
	}{
		{[]string{"a", "b", "c"}, 3},
		{[]string{"Title", "b", "c"}, 8},
		{[]string{"Title", "Abstract", "Journal"}, 18},
		{[]string{"title", "ABSTRACT", "x", "y"}, 14},
	}
	for _, tt := range tests {
		if got := scoreHeader(tt.header); got != tt.want {
			t.Errorf("scoreHeader(%v) = %d, want %d", tt.header, got, tt.want)
		}
	}
}

func TestParseRIS(t *testing.T) {
	data := `TY  - JOUR
TI  - Learning to Grasp
AU  - Smith, John
AU  - Doe, Ann
JO  - Robotics Journal
PY  - 2020/05/01
AB  - We learn to grasp
  objects from pixels.
DO  - 10.1/grasp
KW  - grasping
KW  - learning
SP  - 10
EP  - 20
ER  -

TY  - JOUR
AB  - entry without a title
ER  -

TY  - CONF
T1  - Second Entry
T2  - Proc. Robots
ER  -
`
	p, err := ParseFile("refs.ris", []byte(data))
	require.NoError(t, err)
	require.Len(t, p.Records, 2)

	r := p.Records[0]
	assert.Equal(t, "Learning to Grasp", r.Title)
	assert.Equal(t, []string{"Smith, John", "Doe, Ann"}, r.Authors)
	assert.Equal(t, "Robotics Journal", r.SourceTitle)
	assert.Equal(t, "2020", r.Year)
	assert.Equal(t, "We learn to grasp objects from pixels.", r.Abstract)
	assert.Equal(t, "10.1/grasp", r.DOI)
	assert.Equal(t, []string{"grasping", "learning"}, r.Keywords)
	assert.Equal(t, "10-20", r.Pages)
	assert.Equal(t, "JOUR", r.Type)

	assert.Equal(t, "Second Entry", p.Records[1].Title)
	assert.Equal(t, "Proc. Robots", p.Records[1].SourceTitle)
}

func TestParseRIS_NoEntries(t *testing.T) {
	_, err := ParseFile("empty.ris", []byte("TY  - JOUR\nAB  - nothing\nER  - \n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoEntries))
}

func TestParseBibTeX(t *testing.T) {
	data := `@comment{ignored}
@article{smith2020,
  title = {{Deep} Learning for \emph{Robot} Control},
  author = {Smith, John and Doe, Ann},
  journal = "Journal of Robotics",
  year = 2020,
  doi = {10.1/bib},
  abstract = {Control \& planning.},
  keywords = {robots, control},
  pages = {1--9}
}

@inproceedings{lee2021,
  title = "Swarm " # "Planning",
  booktitle = {Proc. Swarms},
  author = {Lee, K.}
}
`
	p, err := ParseFile("lib.bib", []byte(data))
	require.NoError(t, err)
	require.Len(t, p.Records, 2)

	r := p.Records[0]
	assert.Equal(t, "Deep Learning for Robot Control", r.Title)
	assert.Equal(t, []string{"Smith, John", "Doe, Ann"}, r.Authors)
	assert.Equal(t, "Journal of Robotics", r.SourceTitle)
	assert.Equal(t, "2020", r.Year)
	assert.Equal(t, "10.1/bib", r.DOI)
	assert.Equal(t, "Control & planning.", r.Abstract)
	assert.Equal(t, []string{"robots", "control"}, r.Keywords)
	assert.Equal(t, "1-9", r.Pages)
	assert.Equal(t, "article", r.Type)

	assert.Equal(t, "Swarm Planning", p.Records[1].Title)
	assert.Equal(t, "Proc. Swarms", p.Records[1].SourceTitle)
}

func TestParseBibTeX_Unterminated(t *testing.T) {
	_, err := ParseFile("broken.bib", []byte("@article{x, title = {never closed"))
	require.Error(t, err)
	var pe *ParseError
	assert.True(t, errors.As(err, &pe))
}

func TestParseEndNote(t *testing.T) {
	data := "%0 Journal Article\n%T Robot Vision\n%A Smith, J.\n%A Doe, A.\n%J Vision Letters\n%D 2018\n%X Seeing\nwith cameras.\n\n" +
		"%0 Book Section\n%T Chapter One\n%B Big Book\n\n" +
		"%0 Journal Article\n%X no title here\n"

	p, err := ParseFile("lib.enw", []byte(data))
	require.NoError(t, err)
	require.Len(t, p.Records, 2)

	r := p.Records[0]
	assert.Equal(t, "Robot Vision", r.Title)
	assert.Equal(t, []string{"Smith, J.", "Doe, A."}, r.Authors)
	assert.Equal(t, "Vision Letters", r.SourceTitle)
	assert.Equal(t, "2018", r.Year)
	assert.Equal(t, "Seeing with cameras.", r.Abstract)
	assert.Equal(t, "Journal Article", r.Type)

	// Secondary title stands in for a missing journal.
	assert.Equal(t, "Big Book", p.Records[1].SourceTitle)
}

func TestParseRTFEndNote(t *testing.T) {
	rtf := `{\rtf1\ansi\deff0{\fonttbl{\f0 Arial;}}\f0 %0 Journal Article\par %T Second\'e9 paper\par %A Smith, J.\par %J Robotics Journal\par %D 2020\par \par %0 Journal Article\par %T Another {\b bold} title\par }`

	p, err := ParseFile("export.rtf", []byte(rtf))
	require.NoError(t, err)
	require.Len(t, p.Records, 2)
	assert.Equal(t, "Secondé paper", p.Records[0].Title)
	assert.Equal(t, "Robotics Journal", p.Records[0].SourceTitle)
	assert.Equal(t, "Another bold title", p.Records[1].Title)
}

func TestRTFToText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{\rtf1 hello\par world}`, "hello\nworld"},
		{"escapes", `{\rtf1 a\{b\}c\\d}`, `a{b}c\d`},
		{"unicode", `{\rtf1\uc1 caf\u233?}`, "café"},
		{"skip destination", `{\rtf1{\*\generator Word;}text}`, "text"},
		{"hex", `{\rtf1 na\'efve}`, "naïve"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rtfToText(tt.in); got != tt.want {
				t.Errorf("rtfToText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"Title", "Abstract", "Source Title", "Year"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"Sheet Paper", "From a workbook", "Excel Journal", "2022"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	p, err := ParseFile("data.xlsx", buf.Bytes())
	require.NoError(t, err)
	require.Len(t, p.Records, 1)
	assert.Equal(t, "Sheet Paper", p.Records[0].Title)
	assert.Equal(t, "Excel Journal", p.Records[0].SourceTitle)
	assert.Equal(t, "2022", p.Records[0].Year)
}

func TestParseXLS_SpreadsheetML(t *testing.T) {
	data := `<?xml version="1.0" encoding="UTF-8"?>
<Workbook xmlns="urn:schemas-microsoft-com:office:spreadsheet" xmlns:ss="urn:schemas-microsoft-com:office:spreadsheet">
 <Worksheet ss:Name="Sheet1"><Table>
  <Row><Cell><Data ss:Type="String">Title</Data></Cell><Cell><Data ss:Type="String">Abstract</Data></Cell><Cell><Data ss:Type="String">Journal</Data></Cell><Cell><Data ss:Type="String">Year</Data></Cell></Row>
  <Row><Cell><Data ss:Type="String">Legacy &amp; Modern</Data></Cell><Cell ss:Index="3"><Data ss:Type="String">Old Journal</Data></Cell><Cell><Data ss:Type="Number">1999</Data></Cell></Row>
 </Table></Worksheet>
</Workbook>`

	p, err := ParseFile("old.xls", []byte(data))
	require.NoError(t, err)
	require.Len(t, p.Records, 1)
	r := p.Records[0]
	assert.Equal(t, "Legacy & Modern", r.Title)
	assert.Empty(t, r.Abstract)
	assert.Equal(t, "Old Journal", r.SourceTitle)
	assert.Equal(t, "1999", r.Year)
	assert.Equal(t, "Journal", p.Columns.Source)
}

func TestCanonicalField(t *testing.T) {
	assert.Equal(t, FieldTitle, CanonicalField("article title"))
	assert.Equal(t, FieldSource, CanonicalField("Source title"))
	assert.Equal(t, FieldDOI, CanonicalField("DI"))
	assert.Empty(t, CanonicalField("%T"))
	assert.Empty(t, CanonicalField("JO"))
}

func TestParseFile_UnsupportedExtension(t *testing.T) {
	_, err := ParseFile("notes.pdf", []byte("%PDF-1.4"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
	assert.Contains(t, err.Error(), "notes.pdf")
}

func TestParseFiles_ConcatenatesInUploadOrder(t *testing.T) {
	a := Upload{Name: "a.csv", Data: []byte("Title,Abstract,Journal\nA1,x,j\nA2,x,j\n")}
	b := Upload{Name: "b.ris", Data: []byte("TY  - JOUR\nTI  - B1\nER  - \n")}

	batch, err := ParseFiles([]Upload{a, b})
	require.NoError(t, err)

	var titles []string
	for _, r := range batch.Records {
		titles = append(titles, r.Title)
	}
	assert.Equal(t, []string{"A1", "A2", "B1"}, titles)
	assert.Equal(t, []string{"a.csv", "b.ris"}, batch.Files)
	assert.Equal(t, "Title", batch.Columns.Title)
}

func TestParseFiles_FailureNamesFile(t *testing.T) {
	good := Upload{Name: "ok.csv", Data: []byte("Title,Abstract,Journal\nA,x,j\n")}
	bad := Upload{Name: "broken.ris", Data: []byte("nothing tagged")}

	_, err := ParseFiles([]Upload{good, bad})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "broken.ris"))
}

func TestIsSupported(t *testing.T) {
	for _, name := range []string{"a.TXT", "b.csv", "b.tsv", "c.xlsx", "d.xls", "e.ris", "f.bib", "g.rtf", "h.enw"} {
		if !IsSupported(name) {
			t.Errorf("IsSupported(%q) = false", name)
		}
	}
	if IsSupported("x.docx") {
		t.Error("IsSupported(x.docx) = true")
	}
}
