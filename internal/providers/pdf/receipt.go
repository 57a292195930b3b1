// Package pdf renders payment receipts for approved subscription charges.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/gosimple/slug"
	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type ReceiptData struct {
	ReceiptNumber string
	DatePaid      string
	ServicePeriod string
	CustomerName  string
	CustomerEmail string
	PlanName      string
	Amount        string
	Currency      string
	PaymentMethod string
}

type Provider struct {
	appName string
}

func NewProvider(appName string) *Provider {
	return &Provider{appName: appName}
}

// Filename returns the download name for a receipt.
func (p *Provider) Filename(data ReceiptData) string {
	return fmt.Sprintf("%s-receipt-%s.pdf", slug.Make(p.appName), slug.Make(data.ReceiptNumber))
}

func (p *Provider) GenerateReceipt(ctx context.Context, data ReceiptData) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(30,
		text.NewCol(8, p.appName, props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, "Receipt", props.Text{
			Size:  14,
			Align: align.Right,
		}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New("Receipt number: "+data.ReceiptNumber, props.Text{Top: 0}),
			text.New("Date paid: "+data.DatePaid, props.Text{Top: 4}),
			text.New("Service period: "+data.ServicePeriod, props.Text{Top: 8}),
		),
		col.New(6).Add(
			text.New("Billed to", props.Text{Style: fontstyle.Bold}),
			text.New(data.CustomerName, props.Text{Top: 5}),
			text.New(data.CustomerEmail, props.Text{Top: 9}),
		),
	)

	m.AddRow(15,
		text.NewCol(12, fmt.Sprintf("%s %s paid on %s", data.Amount, data.Currency, data.DatePaid), props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	m.AddRow(10,
		text.NewCol(8, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(15,
		text.NewCol(8, data.PlanName+" subscription", props.Text{Size: 9}),
		text.NewCol(4, data.Amount+" "+data.Currency, props.Text{Size: 9, Align: align.Right}),
	)

	m.AddRow(12,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Size: 9, Style: fontstyle.Bold}),
		text.NewCol(2, data.Amount+" "+data.Currency, props.Text{Size: 9, Align: align.Right}),
	)

	m.AddRow(10,
		text.NewCol(12, "Paid via "+data.PaymentMethod, props.Text{Size: 8}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(doc.GetBytes()), nil
}
