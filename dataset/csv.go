package dataset

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// missingTokens are the cell values read as NaN.
var missingTokens = map[string]struct{}{
	"": {}, "NA": {}, "N/A": {}, "NaN": {}, "nan": {}, "null": {},
}

// LoadCSV reads a comma separated file whose first line is the header and whose
// last column is the label.
func LoadCSV(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	ds, err := ReadCSV(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load data from file %s", path)
	}
	return ds, nil
}

// ReadCSV parses a dataset from r. Missing feature cells become NaN; a missing
// label is an error.
func ReadCSV(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.ErrEmptyData
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read header")
	}
	if len(header) < 2 {
		return nil, errors.NewValidationError("header", "need at least one feature and a label column", len(header))
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	nFeatures := len(header) - 1

	var (
		data   []float64
		labels []float64
	)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		for j := 0; j < nFeatures; j++ {
			v, err := parseCell(record[j])
			if err != nil {
				return nil, errors.Wrapf(err, "line %d column %s", line, header[j])
			}
			data = append(data, v)
		}
		y, err := parseCell(record[nFeatures])
		if err != nil {
			return nil, errors.Wrapf(err, "line %d column %s", line, header[nFeatures])
		}
		if math.IsNaN(y) {
			return nil, errors.NewValidationError(header[nFeatures], "missing label", line)
		}
		labels = append(labels, y)
	}
	if len(labels) == 0 {
		return nil, errors.ErrEmptyData
	}

	frame, err := NewFrame(header[:nFeatures], mat.NewDense(len(labels), nFeatures, data))
	if err != nil {
		return nil, err
	}
	return NewDataset(frame, mat.NewVecDense(len(labels), labels), header[nFeatures])
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if _, ok := missingTokens[s]; ok {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
