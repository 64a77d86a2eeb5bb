package handlers

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/ukydev/fleet-maintenance/internal/db"
	"github.com/ukydev/fleet-maintenance/internal/models"
)

// ReportHandler summarises active expenses.
type ReportHandler struct {
	expenses db.ExpenseCollection
}

func NewReportHandler(expenses db.ExpenseCollection) *ReportHandler {
	return &ReportHandler{expenses: expenses}
}

type reportQuery struct {
	OrganisationID string `json:"organisationId" validate:"required"`
	From           string `json:"from"`
	To             string `json:"to"`
}

func (q *reportQuery) organisation() string { return q.OrganisationID }

// TypeTotal is the sum of one expense type.
type TypeTotal struct {
	ExpenseType string          `json:"expenseType"`
	Count       int             `json:"count"`
	Total       decimal.Decimal `json:"total"`
}

// ExpenseSummary totals expenses per type.
type ExpenseSummary struct {
	OrganisationID string          `json:"organisationId"`
	From           *time.Time      `json:"from,omitempty"`
	To             *time.Time      `json:"to,omitempty"`
	Count          int             `json:"count"`
	Total          decimal.Decimal `json:"total"`
	ByType         []TypeTotal     `json:"byType"`
}

// Summarize adds amounts with decimal arithmetic; types are sorted by name.
func Summarize(organisationID string, expenses []models.Expense) ExpenseSummary {
	summary := ExpenseSummary{OrganisationID: organisationID, Total: decimal.Zero, ByType: []TypeTotal{}}
	index := make(map[string]int)
	for _, e := range expenses {
		amount := decimal.NewFromFloat(e.Amount)
		summary.Count++
		summary.Total = summary.Total.Add(amount)

		i, ok := index[e.ExpenseType]
		if !ok {
			i = len(summary.ByType)
			index[e.ExpenseType] = i
			summary.ByType = append(summary.ByType, TypeTotal{ExpenseType: e.ExpenseType, Total: decimal.Zero})
		}
		summary.ByType[i].Count++
		summary.ByType[i].Total = summary.ByType[i].Total.Add(amount)
	}
	sort.Slice(summary.ByType, func(i, j int) bool {
		return summary.ByType[i].ExpenseType < summary.ByType[j].ExpenseType
	})
	return summary
}

func (h *ReportHandler) load(w http.ResponseWriter, r *http.Request) (*ExpenseSummary, []models.Expense, bool) {
	q := r.URL.Query()
	query := reportQuery{
		OrganisationID: q.Get("organisationId"),
		From:           q.Get("from"),
		To:             q.Get("to"),
	}
	if !checkRequest(w, r, &query) {
		return nil, nil, false
	}
	active := false
	filter := db.ExpenseFilter{OrganisationID: query.OrganisationID, Disabled: &active}
	var ok bool
	if filter.From, filter.To, ok = parseRange(w, query.From, query.To); !ok {
		return nil, nil, false
	}

	expenses, err := h.expenses.FindExpenses(r.Context(), filter)
	if err != nil {
		serverError(w, r, err, log.Fields{"organisationId": query.OrganisationID})
		return nil, nil, false
	}
	summary := Summarize(query.OrganisationID, expenses)
	summary.From, summary.To = filter.From, filter.To
	return &summary, expenses, true
}

// GetReport handles GET /api/expenses/report
func (h *ReportHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	summary, _, ok := h.load(w, r)
	if !ok {
		return
	}
	writeData(w, "Report generated successfully", summary)
}

// ExportReport handles GET /api/expenses/export
func (h *ReportHandler) ExportReport(w http.ResponseWriter, r *http.Request) {
	summary, expenses, ok := h.load(w, r)
	if !ok {
		return
	}
	f, err := buildWorkbook(summary, expenses)
	if err != nil {
		serverError(w, r, err, nil)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=expenses-%s.xlsx", summary.OrganisationID))
	if err := f.Write(w); err != nil {
		log.WithError(err).Error("Failed to write workbook")
	}
}

const (
	expensesSheet = "Expenses"
	summarySheet  = "Summary"
)

// buildWorkbook returns an open workbook; the caller closes it.
func buildWorkbook(summary *ExpenseSummary, expenses []models.Expense) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := fillWorkbook(f, summary, expenses); err != nil {
		if cerr := f.Close(); cerr != nil {
			log.WithError(cerr).Warn("Failed to close workbook")
		}
		return nil, err
	}
	return f, nil
}

func fillWorkbook(f *excelize.File, summary *ExpenseSummary, expenses []models.Expense) error {
	if err := f.SetSheetName("Sheet1", expensesSheet); err != nil {
		return err
	}
	header := []interface{}{"Expense ID", "Date", "Type", "Amount", "Vehicle", "Trip", "Vendor", "User"}
	if err := setRow(f, expensesSheet, 1, header); err != nil {
		return err
	}
	for i, e := range expenses {
		row := []interface{}{
			e.ExpensesID, e.Date.Format("2006-01-02"), e.ExpenseType,
			decimal.NewFromFloat(e.Amount).InexactFloat64(),
			e.VehicleID, e.TripID, e.VendorID, e.UserID,
		}
		if err := setRow(f, expensesSheet, i+2, row); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return err
	}
	if err := setRow(f, summarySheet, 1, []interface{}{"Expense Type", "Count", "Total"}); err != nil {
		return err
	}
	for i, t := range summary.ByType {
		if err := setRow(f, summarySheet, i+2, []interface{}{t.ExpenseType, t.Count, t.Total.InexactFloat64()}); err != nil {
			return err
		}
	}
	total := []interface{}{"Total", summary.Count, summary.Total.InexactFloat64()}
	if err := setRow(f, summarySheet, len(summary.ByType)+2, total); err != nil {
		return err
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}
