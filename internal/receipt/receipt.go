// Package receipt renders the buyer receipt (email and printable page) and
// the admin notification for a paid order.
package receipt

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"ms-boxoffice/internal/models"
	"ms-boxoffice/internal/tickets"
	"ms-boxoffice/internal/tickets/qr"

	"github.com/shopspring/decimal"
)

//go:embed templates/*.html
var templateFS embed.FS

// Image is a QR code attached to the email and referenced by content id.
type Image struct {
	ContentID string
	Filename  string
	PNG       []byte
}

type unitView struct {
	tickets.Unit
	Name      string
	Number    int
	Content   string
	ImageSrc  template.URL
	CheckedIn bool
}

type view struct {
	OrderID    string
	EventName  string
	Customer   models.Customer
	PaidAt     *time.Time
	Units      []unitView
	UnitCount  int
	Lines      []models.LineItem
	Financials *models.Financials
	AddOns     []models.Upsell
	GrandTotal decimal.Decimal
}

type Renderer struct {
	qr        *qr.QRGenerator
	templates *template.Template
}

func NewRenderer(gen *qr.QRGenerator) (*Renderer, error) {
	t, err := template.New("receipt").
		Funcs(template.FuncMap{"money": money}).
		ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse receipt templates: %w", err)
	}
	return &Renderer{qr: gen, templates: t}, nil
}

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

// Email renders the buyer receipt with one inline QR image per unit.
func (r *Renderer) Email(order *models.Order) (string, []Image, error) {
	var images []Image
	v, err := r.build(order, func(u tickets.Unit, content string) (template.URL, error) {
		png, err := r.qr.PNG(tickets.Payload{OrderID: order.ID, UnitIndex: u.Index})
		if err != nil {
			return "", err
		}
		cid := fmt.Sprintf("unit-%d", u.Index)
		images = append(images, Image{ContentID: cid, Filename: cid + ".png", PNG: png})
		return template.URL("cid:" + cid), nil
	})
	if err != nil {
		return "", nil, err
	}
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, "receipt.html", v); err != nil {
		return "", nil, fmt.Errorf("render receipt for %s: %w", order.ID, err)
	}
	return buf.String(), images, nil
}

// Page writes the printable receipt for the browser, QR images inlined as
// data URIs and check-in state shown per unit.
func (r *Renderer) Page(w io.Writer, order *models.Order) error {
	v, err := r.build(order, func(u tickets.Unit, _ string) (template.URL, error) {
		uri, err := r.qr.DataURI(tickets.Payload{OrderID: order.ID, UnitIndex: u.Index})
		return template.URL(uri), err
	})
	if err != nil {
		return err
	}
	if err := r.templates.ExecuteTemplate(w, "receipt.html", v); err != nil {
		return fmt.Errorf("render receipt page for %s: %w", order.ID, err)
	}
	return nil
}

// AdminNotification renders the organizer's copy of a paid order.
func (r *Renderer) AdminNotification(order *models.Order) (subject, body string, err error) {
	v, err := r.build(order, nil)
	if err != nil {
		return "", "", err
	}
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, "admin.html", v); err != nil {
		return "", "", fmt.Errorf("render admin notification for %s: %w", order.ID, err)
	}
	subject = fmt.Sprintf("New order %s: %s (%s)", order.ID, order.Customer.Name, money(order.GrandTotal()))
	return subject, buf.String(), nil
}

// Subject is the buyer email subject line.
func Subject(order *models.Order) string {
	return fmt.Sprintf("Your tickets for %s", order.EventName)
}

func (r *Renderer) build(order *models.Order, image func(tickets.Unit, string) (template.URL, error)) (*view, error) {
	if order == nil {
		return nil, fmt.Errorf("render receipt: nil order")
	}
	units := tickets.EnumerateUnits(order.Items)
	v := &view{
		OrderID:    order.ID,
		EventName:  order.EventName,
		Customer:   order.Customer,
		PaidAt:     order.PaidAt,
		UnitCount:  len(units),
		Lines:      order.Items,
		Financials: order.Financials,
		AddOns:     paidAddOns(order),
		GrandTotal: order.GrandTotal(),
	}
	for _, u := range units {
		content := r.qr.Content(tickets.Payload{OrderID: order.ID, UnitIndex: u.Index})
		uv := unitView{
			Unit:      u,
			Name:      u.Item.Name,
			Number:    u.Index + 1,
			Content:   content,
			CheckedIn: order.CheckIns[u.Index],
		}
		if image != nil {
			src, err := image(u, content)
			if err != nil {
				return nil, fmt.Errorf("render QR for %s: %w", content, err)
			}
			uv.ImageSrc = src
		}
		v.Units = append(v.Units, uv)
	}
	return v, nil
}

func paidAddOns(order *models.Order) []models.Upsell {
	var out []models.Upsell
	for _, u := range order.Upsells {
		if u.Paid {
			out = append(out, u)
		}
	}
	if order.CustomUpsell != nil && order.CustomUpsell.Paid {
		out = append(out, *order.CustomUpsell)
	}
	return out
}
