package decode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/richardlehane/mscfb"
)

// decodeXLS reads the first worksheet of a BIFF5 or BIFF8 workbook. Cell
// values are taken from the stored numbers and strings, never from
// number formats.
func decodeXLS(ctx context.Context, path string, _ Options) (*RawTable, error) {
	stream, err := readWorkbookStream(path)
	if err != nil {
		return nil, corrupt(path, err)
	}

	wb, err := parseWorkbook(stream)
	if err != nil {
		return nil, corrupt(path, err)
	}
	sheet, ok := wb.firstWorksheet()
	if !ok {
		return nil, corrupt(path, errors.New("workbook has no worksheets"))
	}

	rows, err := wb.readSheet(ctx, sheet)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, corrupt(path, err)
	}

	table := &RawTable{}
	if len(rows) == 0 {
		return table, nil
	}
	table.Header = rows[0]
	table.Rows = rows[1:]
	return table, nil
}

// readWorkbookStream extracts the workbook stream from the compound file.
// Excel 97 and later name it "Workbook", Excel 5/95 "Book".
func readWorkbookStream(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	doc, err := mscfb.New(f)
	if err != nil {
		return nil, err
	}

	var found *mscfb.File
	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		if len(entry.Path) > 0 {
			continue
		}
		if entry.Name == "Workbook" {
			found = entry
			break
		}
		if entry.Name == "Book" && found == nil {
			found = entry
		}
	}
	if found == nil {
		return nil, errors.New("no workbook stream")
	}
	if found.Size <= 0 || found.Size > info.Size() {
		return nil, fmt.Errorf("%s stream size %d out of range", found.Name, found.Size)
	}

	buf := make([]byte, found.Size)
	if _, err := io.ReadFull(found, buf); err != nil {
		return nil, fmt.Errorf("read %s stream: %w", found.Name, err)
	}
	return buf, nil
}
