package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Detail is the type-specific half of a request. Exactly one implementation exists per RequestType.
type Detail interface {
	Kind() RequestType
	// Fields lists the attributes in display order; empty values are kept.
	Fields() []DetailField
	// Validate reports required or malformed attributes keyed by canonical field name.
	Validate() map[string]string
	SetRequestID(id int64)
}

// DetailField is a single labelled attribute used by the card renderer and exports.
type DetailField struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// PersonType distinguishes natural persons from legal entities.
type PersonType string

const (
	PersonTypeNatural  PersonType = "natural"
	PersonTypeJuridica PersonType = "juridica"
)

// Attributes keeps form answers that have no dedicated column.
type Attributes map[string]string

// Value implements driver.Valuer. JSONB columns need text, not bytea.
func (a Attributes) Value() (driver.Value, error) {
	if a == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(map[string]string(a))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan implements sql.Scanner.
func (a *Attributes) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*a = Attributes{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported attributes type %T", src)
	}
	out := map[string]string{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("decode attributes: %w", err)
		}
	}
	*a = out
	return nil
}

// EntrepreneurDetail holds the business permit attributes.
type EntrepreneurDetail struct {
	ID                  int64      `db:"id_detalle" json:"id_detalle"`
	RequestID           int64      `db:"request_id" json:"request_id"`
	HolderDocument      string     `db:"documento_titular" json:"documento_titular"`
	LegalName           string     `db:"razon_social" json:"razon_social"`
	TradeName           *string    `db:"nombre_comercial" json:"nombre_comercial,omitempty"`
	TaxRegistry         *string    `db:"registro_fiscal" json:"registro_fiscal,omitempty"`
	ActivityDescription *string    `db:"descripcion_actividad" json:"descripcion_actividad,omitempty"`
	PersonType          PersonType `db:"tipo_persona" json:"tipo_persona"`
	Address             *string    `db:"direccion_fisica" json:"direccion_fisica,omitempty"`
	Phone               *string    `db:"telefono_contacto" json:"telefono_contacto,omitempty"`
	ExpirationDate      *time.Time `db:"fecha_vencimiento" json:"fecha_vencimiento,omitempty"`
	Sector              *string    `db:"rubro" json:"rubro,omitempty"`
	Extra               Attributes `db:"extra" json:"extra,omitempty"`
}

// Kind implements Detail.
func (d *EntrepreneurDetail) Kind() RequestType { return RequestTypeEntrepreneur }

// SetRequestID implements Detail.
func (d *EntrepreneurDetail) SetRequestID(id int64) { d.RequestID = id }

// DisplayName prefers the trade name over the legal name.
func (d *EntrepreneurDetail) DisplayName() string {
	if v := deref(d.TradeName); v != "" {
		return v
	}
	return d.LegalName
}

// Validate implements Detail.
func (d *EntrepreneurDetail) Validate() map[string]string {
	problems := map[string]string{}
	if d.HolderDocument == "" {
		problems["documento_titular"] = "required"
	}
	if d.LegalName == "" {
		problems["razon_social"] = "required"
	}
	switch d.PersonType {
	case PersonTypeNatural, PersonTypeJuridica:
	case "":
		problems["tipo_persona"] = "required"
	default:
		problems["tipo_persona"] = "must be natural or juridica"
	}
	return problems
}

// Fields implements Detail.
func (d *EntrepreneurDetail) Fields() []DetailField {
	fields := []DetailField{
		{Key: "documento_titular", Label: "Documento del titular", Value: d.HolderDocument},
		{Key: "razon_social", Label: "Razón social", Value: d.LegalName},
		{Key: "nombre_comercial", Label: "Nombre comercial", Value: deref(d.TradeName)},
		{Key: "registro_fiscal", Label: "Registro fiscal", Value: deref(d.TaxRegistry)},
		{Key: "tipo_persona", Label: "Tipo de persona", Value: string(d.PersonType)},
		{Key: "rubro", Label: "Rubro", Value: deref(d.Sector)},
		{Key: "descripcion_actividad", Label: "Actividad", Value: deref(d.ActivityDescription)},
		{Key: "direccion_fisica", Label: "Dirección", Value: deref(d.Address)},
		{Key: "telefono_contacto", Label: "Teléfono", Value: deref(d.Phone)},
		{Key: "fecha_vencimiento", Label: "Vence", Value: formatDate(d.ExpirationDate)},
	}
	return fields
}

// PetDetail holds the pet registration attributes.
type PetDetail struct {
	ID            int64      `db:"id_detalle" json:"id_detalle"`
	RequestID     int64      `db:"request_id" json:"request_id"`
	PetName       string     `db:"nombre_mascota" json:"nombre_mascota"`
	Species       string     `db:"especie" json:"especie"`
	Breed         *string    `db:"raza" json:"raza,omitempty"`
	GuardianName  string     `db:"nombre_tutor" json:"nombre_tutor"`
	GuardianAge   *int       `db:"edad_tutor" json:"edad_tutor,omitempty"`
	GuardianPhone *string    `db:"telefono_tutor" json:"telefono_tutor,omitempty"`
	Zone          *string    `db:"zona_residente" json:"zona_residente,omitempty"`
	Extra         Attributes `db:"extra" json:"extra,omitempty"`
}

// Kind implements Detail.
func (d *PetDetail) Kind() RequestType { return RequestTypePet }

// SetRequestID implements Detail.
func (d *PetDetail) SetRequestID(id int64) { d.RequestID = id }

// Validate implements Detail.
func (d *PetDetail) Validate() map[string]string {
	problems := map[string]string{}
	if d.PetName == "" {
		problems["nombre_mascota"] = "required"
	}
	if d.Species == "" {
		problems["especie"] = "required"
	}
	if d.GuardianName == "" {
		problems["nombre_tutor"] = "required"
	}
	if d.GuardianAge != nil && *d.GuardianAge < 0 {
		problems["edad_tutor"] = "must not be negative"
	}
	return problems
}

// Fields implements Detail.
func (d *PetDetail) Fields() []DetailField {
	age := ""
	if d.GuardianAge != nil {
		age = strconv.Itoa(*d.GuardianAge)
	}
	return []DetailField{
		{Key: "nombre_mascota", Label: "Mascota", Value: d.PetName},
		{Key: "especie", Label: "Especie", Value: d.Species},
		{Key: "raza", Label: "Raza", Value: deref(d.Breed)},
		{Key: "nombre_tutor", Label: "Tutor", Value: d.GuardianName},
		{Key: "edad_tutor", Label: "Edad del tutor", Value: age},
		{Key: "telefono_tutor", Label: "Teléfono", Value: deref(d.GuardianPhone)},
		{Key: "zona_residente", Label: "Zona", Value: deref(d.Zone)},
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
