package export

import (
	"archive/zip"
	"fmt"
	"io"

	"github.com/fentz26/litscreen/internal/models"
)

// Bundle writes a deflated zip holding the kept and removed sets.
func Bundle(w io.Writer, res *models.Result, f Format) error {
	zw := zip.NewWriter(w)
	parts := []struct {
		ds         Dataset
		records    []models.Record
		withReason bool
	}{
		{DatasetKept, res.Kept, false},
		{DatasetRemoved, res.Removed, true},
	}
	for _, p := range parts {
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:   FileName(p.ds, res.Timestamp, f),
			Method: zip.Deflate,
		})
		if err != nil {
			return fmt.Errorf("add %s: %w", p.ds, err)
		}
		if err := Write(fw, f, p.records, res.Columns, p.withReason); err != nil {
			return fmt.Errorf("write %s: %w", p.ds, err)
		}
	}
	return zw.Close()
}
