package catalog

import (
	"encoding/csv"
	"io"
	"strconv"
)

var exportHeader = []string{"ID", "Name", "Description", "Price", "Stock", "Status"}

// WriteCSV writes the admin product export.
func WriteCSV(w io.Writer, ps []Product) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, p := range ps {
		status := "Inactive"
		if p.Active {
			status = "Active"
		}
		rec := []string{
			strconv.FormatInt(p.ID, 10),
			p.Name,
			p.Description,
			p.Price.StringFixed(2),
			strconv.Itoa(p.Stock),
			status,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
