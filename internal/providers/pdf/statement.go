package pdf

import (
	"bytes"
	"context"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// StatementData is a move-out statement with every value already formatted.
type StatementData struct {
	Title       string
	GeneratedAt string

	BuildingName    string
	BuildingAddress string
	ResourceLabel   string

	TenantName  string
	TenantPhone string
	TenantEmail string

	OccupancyID      string
	Status           string
	NoticeState      string
	StartDate        string
	EndDate          string
	NoticeDate       string
	ExpectedCheckout string
	Rent             string
	Deposit          string

	Entries []StatementEntry

	TotalDue    string
	TotalPaid   string
	Outstanding string
	Blockers    []string
}

type StatementEntry struct {
	Month  string
	Amount string
	Paid   string
	Status string
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateStatement(ctx context.Context, data StatementData) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	title := data.Title
	if title == "" {
		title = "Occupancy statement"
	}
	m.AddRow(14,
		text.NewCol(8, title, props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, "Generated "+data.GeneratedAt, props.Text{Size: 8, Align: align.Right, Top: 3}),
	)

	m.AddRow(30,
		col.New(6).Add(
			text.New(data.BuildingName, props.Text{Style: fontstyle.Bold}),
			text.New(data.BuildingAddress, props.Text{Top: 5, Size: 9}),
			text.New(data.ResourceLabel, props.Text{Top: 14}),
		),
		col.New(6).Add(
			text.New("Tenant", props.Text{Style: fontstyle.Bold}),
			text.New(data.TenantName, props.Text{Top: 5}),
			text.New(data.TenantPhone, props.Text{Top: 10, Size: 9}),
			text.New(data.TenantEmail, props.Text{Top: 15, Size: 9}),
		),
	)

	m.AddRow(34,
		col.New(6).Add(
			text.New("Occupancy: "+data.OccupancyID, props.Text{Size: 9}),
			text.New("Status: "+data.Status, props.Text{Top: 5, Size: 9}),
			text.New("Notice: "+data.NoticeState, props.Text{Top: 10, Size: 9}),
			text.New("Monthly rent: "+data.Rent, props.Text{Top: 15, Size: 9}),
			text.New("Deposit: "+data.Deposit, props.Text{Top: 20, Size: 9}),
		),
		col.New(6).Add(
			text.New("Moved in: "+data.StartDate, props.Text{Size: 9}),
			text.New("Notice given: "+orDash(data.NoticeDate), props.Text{Top: 5, Size: 9}),
			text.New("Expected checkout: "+orDash(data.ExpectedCheckout), props.Text{Top: 10, Size: 9}),
			text.New("Moved out: "+orDash(data.EndDate), props.Text{Top: 15, Size: 9}),
		),
	)

	m.AddRow(10,
		text.NewCol(4, "Month", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(3, "Paid", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Status", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	if len(data.Entries) == 0 {
		m.AddRow(8, text.NewCol(12, "No rent entries recorded.", props.Text{Size: 9}))
	}
	for _, entry := range data.Entries {
		m.AddRow(8,
			text.NewCol(4, entry.Month, props.Text{Size: 9}),
			text.NewCol(3, entry.Amount, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(3, entry.Paid, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, entry.Status, props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(8,
		col.New(7),
		text.NewCol(3, "Total billed", props.Text{Size: 9}),
		text.NewCol(2, data.TotalDue, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(8,
		col.New(7),
		text.NewCol(3, "Total paid", props.Text{Size: 9}),
		text.NewCol(2, data.TotalPaid, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		col.New(7),
		text.NewCol(3, "Outstanding", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, data.Outstanding, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	if len(data.Blockers) > 0 {
		m.AddRow(10, text.NewCol(12, "Open items before checkout", props.Text{Style: fontstyle.Bold, Size: 10, Top: 3}))
		for _, blocker := range data.Blockers {
			m.AddRow(6, text.NewCol(12, "- "+blocker, props.Text{Size: 9}))
		}
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}

func orDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
