// internal/domain/models/codec.go
package models

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dalemusser/stratapage/internal/app/system/apperr"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// sectionDoc is the stored shape of a Section. The payload is kept raw so
// that it can be decoded once the type is known.
type sectionDoc struct {
	ID    string        `bson:"id"`
	Type  SectionType   `bson:"type"`
	Order int           `bson:"order"`
	Data  bson.RawValue `bson:"data"`
}

// MarshalBSON encodes the section with its payload under "data". A section
// whose type was not recognized on decode writes its original payload back.
func (s Section) MarshalBSON() ([]byte, error) {
	doc := bson.D{
		{Key: "id", Value: s.ID},
		{Key: "type", Value: string(s.Type)},
		{Key: "order", Value: s.Order},
	}
	switch {
	case s.Data != nil:
		b, err := bson.Marshal(s.Data)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", s.Type, err)
		}
		doc = append(doc, bson.E{Key: "data", Value: bson.Raw(b)})
	case s.raw != nil:
		doc = append(doc, bson.E{Key: "data", Value: s.raw})
	}
	return bson.Marshal(doc)
}

// UnmarshalBSON decodes a stored section, dispatching the payload on type.
func (s *Section) UnmarshalBSON(b []byte) error {
	var doc sectionDoc
	if err := bson.Unmarshal(b, &doc); err != nil {
		return err
	}
	*s = Section{ID: doc.ID, Type: doc.Type, Order: doc.Order}

	var raw bson.Raw
	if doc.Data.Type == bsontype.EmbeddedDocument {
		raw = bson.Raw(doc.Data.Value)
	}

	data := newData(doc.Type)
	if data == nil {
		if raw != nil {
			s.raw = append(bson.Raw(nil), raw...)
		}
		return nil
	}
	if raw != nil {
		if err := bson.Unmarshal(raw, data); err != nil {
			return fmt.Errorf("decode %s payload of section %s: %w", doc.Type, doc.ID, err)
		}
	}
	s.Data = data
	return nil
}

type sectionJSON struct {
	ID    string          `json:"id"`
	Type  SectionType     `json:"type"`
	Order int             `json:"order"`
	Data  json.RawMessage `json:"data"`
}

// MarshalJSON encodes the section for the HTTP API.
func (s Section) MarshalJSON() ([]byte, error) {
	out := sectionJSON{ID: s.ID, Type: s.Type, Order: s.Order, Data: json.RawMessage("null")}
	switch {
	case s.Data != nil:
		b, err := json.Marshal(s.Data)
		if err != nil {
			return nil, err
		}
		out.Data = b
	case s.raw != nil:
		b, err := bson.MarshalExtJSON(s.raw, false, false)
		if err != nil {
			return nil, err
		}
		out.Data = b
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a section sent by an API client. Unknown types are
// kept with a nil payload so that validation can reject them by name.
func (s *Section) UnmarshalJSON(b []byte) error {
	var in sectionJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*s = Section{ID: in.ID, Type: in.Type, Order: in.Order}
	if !in.Type.IsValid() || isNullJSON(in.Data) {
		return nil
	}
	data, err := DecodeDataJSON(in.Type, in.Data)
	if err != nil {
		return err
	}
	s.Data = data
	return nil
}

// DecodeDataJSON decodes a payload of type t from JSON. An empty or null
// body yields the type's defaults.
func DecodeDataJSON(t SectionType, b []byte) (SectionData, error) {
	if isNullJSON(b) {
		return DefaultData(t)
	}
	data := newData(t)
	if data == nil {
		return nil, apperr.Invalid("type", fmt.Sprintf("unknown section type %q", t))
	}
	if err := json.Unmarshal(b, data); err != nil {
		return nil, apperr.Invalid("data", fmt.Sprintf("malformed %s payload: %v", t, err))
	}
	return data, nil
}

func isNullJSON(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) == 0 || bytes.Equal(b, []byte("null"))
}
