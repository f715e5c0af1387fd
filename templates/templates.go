package templates

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"

	"github.com/JuanCarJ/studioz-academy-sub000/models"
)

//go:embed *.html
var files embed.FS

var purchaseConfirmation = template.Must(template.ParseFS(files, "purchase_confirmation.html"))

const PurchaseConfirmationSubject = "Confirmación de compra"

type lineItem struct {
	Title string
	Price string
}

type purchaseData struct {
	Subject      string
	CustomerName string
	Reference    string
	Items        []lineItem
	Total        string
	CoursesURL   string
	ApprovedAt   string
}

// RenderPurchaseConfirmation returns the subject and HTML body of the email
// sent once an order is approved.
func RenderPurchaseConfirmation(order *models.Order, frontendURL string) (string, string, error) {
	data := purchaseData{
		Subject:      PurchaseConfirmationSubject,
		CustomerName: order.CustomerName,
		Reference:    order.Reference,
		Total:        FormatAmount(order.Total, order.Currency),
		CoursesURL:   strings.TrimRight(frontendURL, "/") + "/my-courses",
	}
	for _, item := range order.Items {
		data.Items = append(data.Items, lineItem{
			Title: item.CourseTitle,
			Price: FormatAmount(item.Price, order.Currency),
		})
	}
	if order.ApprovedAt != nil {
		data.ApprovedAt = order.ApprovedAt.UTC().Format(time.RFC1123)
	}

	var buf bytes.Buffer
	if err := purchaseConfirmation.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("template render failed: %w", err)
	}
	return PurchaseConfirmationSubject + " " + order.Reference, buf.String(), nil
}

// FormatAmount renders minor units as "$ 49.900 COP".
func FormatAmount(cents int64, currency string) string {
	units := cents / 100
	neg := units < 0
	if neg {
		units = -units
	}
	digits := strconv.FormatInt(units, 10)

	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}

	out := "$ " + b.String()
	if neg {
		out = "-" + out
	}
	if currency != "" {
		out += " " + currency
	}
	return out
}
