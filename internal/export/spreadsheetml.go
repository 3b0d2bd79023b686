package export

import (
	"bufio"
	"encoding/xml"
	"io"
	"strings"

	"github.com/fentz26/litscreen/internal/models"
)

const smlHeader = `<?xml version="1.0" encoding="UTF-8"?>
<?mso-application progid="Excel.Sheet"?>
<Workbook xmlns="urn:schemas-microsoft-com:office:spreadsheet" xmlns:o="urn:schemas-microsoft-com:office:office" xmlns:x="urn:schemas-microsoft-com:office:excel" xmlns:ss="urn:schemas-microsoft-com:office:spreadsheet">
 <Worksheet ss:Name="Sheet1">
  <Table>
`

const smlFooter = `  </Table>
 </Worksheet>
</Workbook>
`

// writeSpreadsheetML writes an XML Spreadsheet 2003 workbook, which legacy
// spreadsheet applications open under the .xls extension.
func writeSpreadsheetML(w io.Writer, records []models.Record, cols models.Columns, withReason bool) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(smlHeader)
	for _, row := range tableRows(records, cols, withReason) {
		bw.WriteString("   <Row>")
		for _, v := range row {
			bw.WriteString(`<Cell><Data ss:Type="String">`)
			if err := xml.EscapeText(bw, []byte(strings.ToValidUTF8(truncateCell(v), ""))); err != nil {
				return err
			}
			bw.WriteString("</Data></Cell>")
		}
		bw.WriteString("</Row>\n")
	}
	bw.WriteString(smlFooter)
	return bw.Flush()
}
