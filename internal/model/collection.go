package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Subcategory is a named group of datasets.
type Subcategory struct {
	Title    string
	Datasets []Dataset
}

// Category is a named group of subcategories.
type Category struct {
	Title         string
	Subcategories []Subcategory
}

// Collection is the catalogue's category → subcategory → datasets tree.
// On the wire it is a nested JSON object; document order is kept because
// the portal lists sections in the order the index was published.
type Collection []Category

// Len returns the number of datasets across all sections.
func (c Collection) Len() int {
	n := 0
	for _, cat := range c {
		for _, sub := range cat.Subcategories {
			n += len(sub.Datasets)
		}
	}
	return n
}

// UnmarshalJSON decodes the nested object form, keeping key order.
func (c *Collection) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	var out Collection
	err := walkObject(dec, func(category string) error {
		cat := Category{Title: category}
		err := walkObject(dec, func(sub string) error {
			var ds []Dataset
			if err := dec.Decode(&ds); err != nil {
				return fmt.Errorf("subcategory %q: %w", sub, err)
			}
			cat.Subcategories = append(cat.Subcategories, Subcategory{Title: sub, Datasets: ds})
			return nil
		})
		if err != nil {
			return fmt.Errorf("category %q: %w", category, err)
		}
		out = append(out, cat)
		return nil
	})
	if err != nil {
		return err
	}
	*c = out
	return nil
}

// MarshalJSON writes the nested object form in slice order.
func (c Collection) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, cat := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeKey(&buf, cat.Title); err != nil {
			return nil, err
		}
		buf.WriteByte('{')
		for j, sub := range cat.Subcategories {
			if j > 0 {
				buf.WriteByte(',')
			}
			if err := writeKey(&buf, sub.Title); err != nil {
				return nil, err
			}
			ds := sub.Datasets
			if ds == nil {
				ds = []Dataset{}
			}
			b, err := json.Marshal(ds)
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// walkObject consumes one JSON object from dec, calling fn for every key
// with the decoder positioned at that key's value. A JSON null is an
// empty object.
func walkObject(dec *json.Decoder, fn func(key string) error) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		if err := fn(key); err != nil {
			return err
		}
	}
	_, err = dec.Token() // closing '}'
	return err
}

func writeKey(buf *bytes.Buffer, k string) error {
	b, err := json.Marshal(k)
	if err != nil {
		return err
	}
	buf.Write(b)
	buf.WriteByte(':')
	return nil
}
