package sink

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/teranos/edithist/errors"
)

// Classes maps entity identifiers to the id of their class.
type Classes map[string]string

// ReadClasses parses a CSV with an "entity_id,class_id" header. Column
// order follows the header; extra columns are ignored.
func ReadClasses(r io.Reader) (Classes, error) {
	rdr := csv.NewReader(r)
	rdr.FieldsPerRecord = -1
	rdr.TrimLeadingSpace = true

	header, err := rdr.Read()
	if err == io.EOF {
		return Classes{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read classes header")
	}
	entityCol, classCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "entity_id":
			entityCol = i
		case "class_id":
			classCol = i
		}
	}
	if entityCol < 0 || classCol < 0 {
		return nil, errors.WithHint(
			errors.Newf("classes header %q lacks entity_id or class_id", strings.Join(header, ",")),
			"the first line must name the columns, e.g. entity_id,class_id")
	}

	classes := Classes{}
	for {
		record, err := rdr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "read classes record")
		}
		if entityCol >= len(record) || classCol >= len(record) {
			line, _ := rdr.FieldPos(0)
			return nil, errors.Newf("classes record on line %d has %d fields", line, len(record))
		}
		classes[strings.TrimSpace(record[entityCol])] = strings.TrimSpace(record[classCol])
	}
	return classes, nil
}

// LoadClasses reads the classes file at path. An empty path yields no classes.
func LoadClasses(path string) (Classes, error) {
	if path == "" {
		return Classes{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open classes file %s", path)
	}
	defer f.Close()
	return ReadClasses(f)
}

// Lookup returns the class of entityID and whether one is known.
func (c Classes) Lookup(entityID string) (string, bool) {
	class, ok := c[entityID]
	return class, ok
}
