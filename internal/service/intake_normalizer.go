package service

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/noah-isme/carnet-api/internal/models"
	appErrors "github.com/noah-isme/carnet-api/pkg/errors"
)

// Canonical field names shared by the form and manual intake paths.
const (
	fieldType                = "type"
	fieldContactEmail        = "contact_email"
	fieldHolderDocument      = "documento_titular"
	fieldLegalName           = "razon_social"
	fieldTradeName           = "nombre_comercial"
	fieldTaxRegistry         = "registro_fiscal"
	fieldActivityDescription = "descripcion_actividad"
	fieldPersonType          = "tipo_persona"
	fieldAddress             = "direccion_fisica"
	fieldPhone               = "telefono_contacto"
	fieldExpirationDate      = "fecha_vencimiento"
	fieldSector              = "rubro"
	fieldPetName             = "nombre_mascota"
	fieldSpecies             = "especie"
	fieldBreed               = "raza"
	fieldGuardianName        = "nombre_tutor"
	fieldGuardianAge         = "edad_tutor"
	fieldGuardianPhone       = "telefono_tutor"
	fieldZone                = "zona_residente"
)

var canonicalFields = map[string]struct{}{
	fieldType: {}, fieldContactEmail: {},
	fieldHolderDocument: {}, fieldLegalName: {}, fieldTradeName: {}, fieldTaxRegistry: {},
	fieldActivityDescription: {}, fieldPersonType: {}, fieldAddress: {}, fieldPhone: {},
	fieldExpirationDate: {}, fieldSector: {},
	fieldPetName: {}, fieldSpecies: {}, fieldBreed: {}, fieldGuardianName: {},
	fieldGuardianAge: {}, fieldGuardianPhone: {}, fieldZone: {},
}

// labelTable maps folded question labels to canonical field names. Canonical
// names themselves are added at init.
var labelTable = map[string]string{
	"tipo de solicitud":           fieldType,
	"tipo solicitud":              fieldType,
	"request type":                fieldType,
	"email de contacto":           fieldContactEmail,
	"email contacto":              fieldContactEmail,
	"correo electronico":          fieldContactEmail,
	"correo":                      fieldContactEmail,
	"email":                       fieldContactEmail,
	"e mail":                      fieldContactEmail,
	"documento del titular":       fieldHolderDocument,
	"cedula del titular":          fieldHolderDocument,
	"holder document":             fieldHolderDocument,
	"razon social":                fieldLegalName,
	"legal name":                  fieldLegalName,
	"nombre comercial":            fieldTradeName,
	"trade name":                  fieldTradeName,
	"registro fiscal":             fieldTaxRegistry,
	"registro fiscal rif":         fieldTaxRegistry,
	"rif":                         fieldTaxRegistry,
	"tax id":                      fieldTaxRegistry,
	"descripcion de la actividad": fieldActivityDescription,
	"descripcion actividad":       fieldActivityDescription,
	"activity description":        fieldActivityDescription,
	"tipo de persona":             fieldPersonType,
	"tipo persona":                fieldPersonType,
	"person type":                 fieldPersonType,
	"direccion fisica":            fieldAddress,
	"direccion":                   fieldAddress,
	"address":                     fieldAddress,
	"telefono de contacto":        fieldPhone,
	"telefono contacto":           fieldPhone,
	"phone":                       fieldPhone,
	"fecha de vencimiento":        fieldExpirationDate,
	"expiration date":             fieldExpirationDate,
	"rubro del negocio":           fieldSector,
	"sector":                      fieldSector,
	"nombre de la mascota":        fieldPetName,
	"pet name":                    fieldPetName,
	"species":                     fieldSpecies,
	"breed":                       fieldBreed,
	"nombre del tutor":            fieldGuardianName,
	"guardian name":               fieldGuardianName,
	"edad del tutor":              fieldGuardianAge,
	"guardian age":                fieldGuardianAge,
	"telefono del tutor":          fieldGuardianPhone,
	"guardian phone":              fieldGuardianPhone,
	"zona de residencia":          fieldZone,
	"zona":                        fieldZone,
	"zone":                        fieldZone,
}

var typeAliases = map[string]models.RequestType{
	"entrepreneur": models.RequestTypeEntrepreneur,
	"emprendedor":  models.RequestTypeEntrepreneur,
	"pet":          models.RequestTypePet,
	"mascota":      models.RequestTypePet,
}

var personTypeAliases = map[string]models.PersonType{
	"natural":          models.PersonTypeNatural,
	"persona natural":  models.PersonTypeNatural,
	"juridica":         models.PersonTypeJuridica,
	"juridical":        models.PersonTypeJuridica,
	"persona juridica": models.PersonTypeJuridica,
}

var (
	separatorRun = regexp.MustCompile(`[\s_\-]+`)
	slugReject   = regexp.MustCompile(`[^a-z0-9_]+`)
	dateLayouts  = []string{"2006-01-02", "02/01/2006", time.RFC3339}
)

func init() {
	for name := range canonicalFields {
		labelTable[foldLabel(name)] = name
	}
}

// IntakeNormalizer turns raw intake fields into a validated payload.
type IntakeNormalizer struct {
	labels   map[string]string
	validate *validator.Validate
}

// IntakeOption customises the normalizer.
type IntakeOption func(*IntakeNormalizer)

// WithLabels registers additional question labels. Labels pointing at unknown
// canonical fields are ignored.
func WithLabels(labels map[string]string) IntakeOption {
	return func(n *IntakeNormalizer) {
		for label, canonical := range labels {
			if _, ok := canonicalFields[canonical]; ok {
				n.labels[foldLabel(label)] = canonical
			}
		}
	}
}

// NewIntakeNormalizer constructs a normalizer.
func NewIntakeNormalizer(validate *validator.Validate, opts ...IntakeOption) *IntakeNormalizer {
	if validate == nil {
		validate = validator.New()
	}
	labels := make(map[string]string, len(labelTable))
	for k, v := range labelTable {
		labels[k] = v
	}
	n := &IntakeNormalizer{labels: labels, validate: validate}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize maps, cleans and validates fields. declared overrides any type found in
// the fields. mapLabels enables question-label resolution for form submissions.
func (n *IntakeNormalizer) Normalize(fields map[string]string, declared models.RequestType, mapLabels bool) (*models.IntakePayload, error) {
	values, extra := n.resolve(fields, mapLabels)
	problems := map[string]string{}

	requestType, ok := n.requestType(declared, values[fieldType])
	if !ok {
		if declared == "" && values[fieldType] == "" {
			problems[fieldType] = "required"
		} else {
			problems[fieldType] = "must be entrepreneur or pet"
		}
	}
	delete(values, fieldType)

	email := strings.ToLower(strings.TrimSpace(values[fieldContactEmail]))
	delete(values, fieldContactEmail)
	if email == "" {
		problems[fieldContactEmail] = "required"
	} else if err := n.validate.Var(email, "email"); err != nil {
		problems[fieldContactEmail] = "must be a valid email"
	}

	if !ok {
		return nil, appErrors.Validation("invalid request", problems)
	}

	var detail models.Detail
	switch requestType {
	case models.RequestTypeEntrepreneur:
		detail = n.entrepreneur(values, extra, problems)
	case models.RequestTypePet:
		detail = n.pet(values, extra, problems)
	}
	for field, reason := range detail.Validate() {
		if _, exists := problems[field]; !exists {
			problems[field] = reason
		}
	}
	if len(problems) > 0 {
		return nil, appErrors.Validation("invalid request", problems)
	}

	return &models.IntakePayload{Type: requestType, ContactEmail: email, Detail: detail}, nil
}

// resolve splits fields into canonical values and leftovers. Keys are visited in
// sorted order so duplicates resolve deterministically to the first non-empty answer.
func (n *IntakeNormalizer) resolve(fields map[string]string, mapLabels bool) (map[string]string, models.Attributes) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := map[string]string{}
	extra := models.Attributes{}
	for _, key := range keys {
		value := strings.TrimSpace(fields[key])
		if value == "" {
			continue
		}
		canonical, known := n.canonical(key, mapLabels)
		if !known {
			slug := uniqueSlug(extra, slugify(key))
			extra[slug] = value
			continue
		}
		if _, taken := values[canonical]; taken {
			extra[uniqueSlug(extra, slugify(key))] = value
			continue
		}
		values[canonical] = value
	}
	return values, extra
}

func (n *IntakeNormalizer) canonical(key string, mapLabels bool) (string, bool) {
	if mapLabels {
		name, ok := n.labels[foldLabel(key)]
		return name, ok
	}
	name := strings.ToLower(strings.TrimSpace(key))
	_, ok := canonicalFields[name]
	return name, ok
}

func (n *IntakeNormalizer) requestType(declared models.RequestType, raw string) (models.RequestType, bool) {
	candidate := string(declared)
	if candidate == "" {
		candidate = raw
	}
	t, ok := typeAliases[foldLabel(candidate)]
	return t, ok
}

func (n *IntakeNormalizer) entrepreneur(values map[string]string, extra models.Attributes, problems map[string]string) *models.EntrepreneurDetail {
	d := &models.EntrepreneurDetail{
		HolderDocument:      take(values, fieldHolderDocument),
		LegalName:           take(values, fieldLegalName),
		TradeName:           optional(take(values, fieldTradeName)),
		TaxRegistry:         optional(take(values, fieldTaxRegistry)),
		ActivityDescription: optional(take(values, fieldActivityDescription)),
		Address:             optional(take(values, fieldAddress)),
		Phone:               optional(take(values, fieldPhone)),
		Sector:              optional(take(values, fieldSector)),
	}
	if raw := take(values, fieldPersonType); raw != "" {
		if pt, ok := personTypeAliases[foldLabel(raw)]; ok {
			d.PersonType = pt
		} else {
			problems[fieldPersonType] = "must be natural or juridica"
		}
	}
	if raw := take(values, fieldExpirationDate); raw != "" {
		if date, err := parseDate(raw); err == nil {
			d.ExpirationDate = &date
		} else {
			problems[fieldExpirationDate] = "must be a date (YYYY-MM-DD or DD/MM/YYYY)"
		}
	}
	d.Extra = leftovers(values, extra)
	return d
}

func (n *IntakeNormalizer) pet(values map[string]string, extra models.Attributes, problems map[string]string) *models.PetDetail {
	d := &models.PetDetail{
		PetName:       take(values, fieldPetName),
		Species:       foldLabel(take(values, fieldSpecies)),
		Breed:         optional(take(values, fieldBreed)),
		GuardianName:  take(values, fieldGuardianName),
		GuardianPhone: optional(take(values, fieldGuardianPhone)),
		Zone:          optional(take(values, fieldZone)),
	}
	if raw := take(values, fieldGuardianAge); raw != "" {
		if age, err := strconv.Atoi(raw); err == nil && age >= 0 {
			d.GuardianAge = &age
		} else {
			problems[fieldGuardianAge] = "must be a non-negative integer"
		}
	}
	d.Extra = leftovers(values, extra)
	return d
}

// leftovers moves canonical fields that belong to the other variant into extra.
func leftovers(values map[string]string, extra models.Attributes) models.Attributes {
	for k, v := range values {
		extra[uniqueSlug(extra, k)] = v
	}
	if len(extra) == 0 {
		return nil
	}
	return extra
}

func take(values map[string]string, key string) string {
	v := values[key]
	delete(values, key)
	return v
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", raw)
}

// foldLabel lower-cases, strips accents and collapses separators.
func foldLabel(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		folded = strings.ToLower(strings.TrimSpace(s))
	}
	return strings.TrimSpace(separatorRun.ReplaceAllString(folded, " "))
}

func slugify(label string) string {
	slug := slugReject.ReplaceAllString(strings.ReplaceAll(foldLabel(label), " ", "_"), "")
	slug = strings.Trim(slug, "_")
	if slug == "" {
		return "campo"
	}
	return slug
}

func uniqueSlug(existing models.Attributes, slug string) string {
	if _, taken := existing[slug]; !taken {
		return slug
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_%d", slug, i)
		if _, taken := existing[candidate]; !taken {
			return candidate
		}
	}
}
