package sealbase

import (
	"fmt"
	"strings"

	. "github.com/stevegt/goadapt"
)

// IdentityScheme fixes the ordered list of semantic fields that make
// up a product type's identity.  The list is part of the product
// schema: changing it changes every identity of that type, so it is
// versioned at the schema level, never edited in place.
type IdentityScheme struct {
	ProductType string
	Fields      []string // root attribute keys, in identity order
}

// SchemeTable maps product type to its identity scheme.  It is an
// explicit, immutable configuration passed into identity computation,
// not global state.
type SchemeTable map[string]IdentityScheme

// DefaultSchemes returns the identity schemes for the stock product
// types.  Callers with their own product types supply their own table.
func DefaultSchemes() SchemeTable {
	return SchemeTable{
		"granule": {
			ProductType: "granule",
			Fields: []string{
				"platform", "sensor", "start_time", "end_time", "processing_level",
			},
		},
		"composite": {
			ProductType: "composite",
			Fields: []string{
				"platform", "sensor", "period", "processing_level",
			},
		},
		"ancillary": {
			ProductType: "ancillary",
			Fields:      []string{"source", "valid_time"},
		},
	}
}

// IdentityFieldError reports a missing or unusable identity field.
// Fatal at write time: identity computation never substitutes
// defaults, since that would mint colliding or drifting identities.
type IdentityFieldError struct {
	ProductType string
	Field       string
	Reason      string
}

func (e *IdentityFieldError) Error() string {
	return fmt.Sprintf("identity field %q for product type %q: %s",
		e.Field, e.ProductType, e.Reason)
}

// UnknownProductTypeError reports a product type with no identity
// scheme in the table.
type UnknownProductTypeError struct {
	ProductType string
}

func (e *UnknownProductTypeError) Error() string {
	return fmt.Sprintf("no identity scheme for product type %q", e.ProductType)
}

// idSeparator joins identity fields.  NUL is reserved: it is rejected
// inside field values, so distinct field lists can never concatenate
// to the same byte string.
const idSeparator = "\x00"

// ComputeID hashes the ordered field values into the persistent
// identity, prefixed with the algorithm name.  Identical field values
// always yield an identical id, independent of everything else in the
// file.
func ComputeID(algo string, scheme IdentityScheme, fields []string) (id string, err error) {
	defer Return(&err)

	if len(fields) != len(scheme.Fields) {
		err = &IdentityFieldError{
			ProductType: scheme.ProductType,
			Field:       fmt.Sprintf("(%d fields)", len(fields)),
			Reason:      fmt.Sprintf("want %d values", len(scheme.Fields)),
		}
		return
	}
	for i, f := range fields {
		if f == "" {
			err = &IdentityFieldError{
				ProductType: scheme.ProductType,
				Field:       scheme.Fields[i],
				Reason:      "empty value",
			}
			return
		}
		if strings.Contains(f, idSeparator) {
			err = &IdentityFieldError{
				ProductType: scheme.ProductType,
				Field:       scheme.Fields[i],
				Reason:      "value contains reserved separator byte",
			}
			return
		}
	}
	binhash, err := Hash(algo, []byte(strings.Join(fields, idSeparator)))
	Ck(err)
	id = FormatSeal(algo, binhash)
	return
}

// IdentityFromStore gathers the identity fields from the root group's
// attributes, per the scheme for its product_type, and computes the
// id.  inputs is the human-readable field-name list recorded as
// id_inputs.
func IdentityFromStore(st Store, schemes SchemeTable, algo string) (id string, inputs []string, err error) {
	defer Return(&err)

	ptypeVal, err := rootAttr(st, AttrProductType)
	if err != nil {
		if _, ok := err.(*NotFoundError); ok {
			err = &IdentityFieldError{Field: AttrProductType, Reason: "absent"}
		}
		return
	}
	ptype, err := ptypeVal.Text()
	Ck(err)
	scheme, ok := schemes[ptype]
	if !ok {
		err = &UnknownProductTypeError{ProductType: ptype}
		return
	}

	fields := make([]string, 0, len(scheme.Fields))
	for _, name := range scheme.Fields {
		val, err := rootAttr(st, name)
		if err != nil {
			if _, ok := err.(*NotFoundError); ok {
				err = &IdentityFieldError{
					ProductType: ptype, Field: name, Reason: "absent",
				}
			}
			return "", nil, err
		}
		text, err := val.Text()
		if err != nil {
			return "", nil, &IdentityFieldError{
				ProductType: ptype, Field: name, Reason: err.Error(),
			}
		}
		fields = append(fields, text)
	}
	id, err = ComputeID(algo, scheme, fields)
	if err != nil {
		return
	}
	inputs = scheme.Fields
	return
}
