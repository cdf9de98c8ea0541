package dataset

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Read parses a comma delimited table with a header row.
func Read(r io.Reader) (*Dataset, error) {
	if r == nil {
		return nil, errors.New("reader required")
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 0

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("empty input, header row required")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read header")
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read records")
	}

	values := make([][]string, len(header))
	for j := range values {
		values[j] = make([]string, len(records))
	}
	for i, rec := range records {
		for j, v := range rec {
			values[j][i] = v
		}
	}

	d, err := FromColumns(header, values)
	if err != nil {
		return nil, errors.Wrap(err, "invalid header")
	}
	return d, nil
}

// ReadFile reads a dataset from a file path.
func ReadFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening file: %s", path)
	}
	defer f.Close()

	return Read(f)
}

// Write emits the header and all rows, without a row index column.
func Write(w io.Writer, d *Dataset) error {
	if d == nil {
		return errors.New("dataset required")
	}

	cw := csv.NewWriter(w)
	names := d.Columns()
	if err := cw.Write(names); err != nil {
		return errors.Wrap(err, "failed to write header")
	}

	rec := make([]string, len(names))
	for i := 0; i < d.Rows(); i++ {
		for j, n := range names {
			v, _ := d.Column(n)
			rec[j] = v[i]
		}
		if err := cw.Write(rec); err != nil {
			return errors.Wrapf(err, "failed to write row %d", i)
		}
	}

	cw.Flush()
	return errors.Wrap(cw.Error(), "failed to flush records")
}

// WriteFile writes the dataset to a file path.
func WriteFile(path string, d *Dataset) (retErr error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "error creating file: %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && retErr == nil {
			retErr = errors.Wrap(cerr, "closing file")
		}
	}()

	return Write(f, d)
}
