package templates

import (
	"testing"
	"time"

	"github.com/JuanCarJ/studioz-academy-sub000/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "$ 49.900 COP", FormatAmount(4990000, "COP"))
	assert.Equal(t, "$ 1.250.000 COP", FormatAmount(125000000, "COP"))
	assert.Equal(t, "$ 900", FormatAmount(90000, ""))
	assert.Equal(t, "$ 0 COP", FormatAmount(0, "COP"))
}

func TestRenderPurchaseConfirmation(t *testing.T) {
	approved := time.Date(2024, 3, 1, 15, 4, 5, 0, time.UTC)
	order := &models.Order{
		Reference:    "ORD-20240301-150405-abcd1234",
		CustomerName: "Ana <b>Gómez</b>",
		Total:        9980000,
		Currency:     "COP",
		ApprovedAt:   &approved,
		Items: []models.OrderItem{
			{CourseTitle: "Salsa caleña", Price: 4990000},
			{CourseTitle: "Bachata sensual", Price: 4990000},
		},
	}

	subject, body, err := RenderPurchaseConfirmation(order, "https://academy.example.com/")
	require.NoError(t, err)

	assert.Equal(t, "Confirmación de compra ORD-20240301-150405-abcd1234", subject)
	assert.Contains(t, body, "Salsa caleña")
	assert.Contains(t, body, "Bachata sensual")
	assert.Contains(t, body, "$ 99.800 COP")
	assert.Contains(t, body, `href="https://academy.example.com/my-courses"`)
	assert.NotContains(t, body, "<b>Gómez</b>", "customer name must be escaped")
}
