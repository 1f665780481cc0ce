package dto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/carnet-api/internal/models"
)

func TestFlattenFields(t *testing.T) {
	fields := FlattenFields(map[string]interface{}{
		"Nombre de la mascota": "Luna",
		"Edad del tutor":       float64(31),
		"Redes":                []interface{}{"Instagram", " ", "Radio"},
		"Acepta":               true,
		"Raza":                 nil,
	})
	assert.Equal(t, "Luna", fields["Nombre de la mascota"])
	assert.Equal(t, "31", fields["Edad del tutor"])
	assert.Equal(t, "Instagram, Radio", fields["Redes"])
	assert.Equal(t, "true", fields["Acepta"])
	assert.Equal(t, "", fields["Raza"])
}

func TestCreateRequestPayloadFields(t *testing.T) {
	p := CreateRequestPayload{
		Type:         models.RequestTypePet,
		ContactEmail: "a@x.com",
		Detail:       map[string]interface{}{"nombre_mascota": "Luna"},
	}
	fields := p.Fields()
	assert.Equal(t, "a@x.com", fields["contact_email"])
	assert.Equal(t, "Luna", fields["nombre_mascota"])
}

func TestRequestListQueryFilter(t *testing.T) {
	filter, err := RequestListQuery{State: " Approved ", From: "2025-02-01", To: "2025-02-28", Page: 2}.Filter(time.UTC)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStateApproved, filter.State)
	require.NotNil(t, filter.From)
	require.NotNil(t, filter.To)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), *filter.To)
	assert.Equal(t, 2, filter.Page)

	_, err = RequestListQuery{From: "01/02/2025"}.Filter(time.UTC)
	assert.Error(t, err)
}
