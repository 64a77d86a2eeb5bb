package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

// ExpenseInput is the body of an expense create request.
type ExpenseInput struct {
	OrganisationID string  `json:"organisationId"`
	Amount         float64 `json:"amount"`
	ExpenseType    string  `json:"expenseType"`
	Date           string  `json:"date"`
	UserID         string  `json:"userId"`
}

// Expense is the part of a created expense the simulator reuses.
type Expense struct {
	ID         string  `json:"_id"`
	ExpensesID string  `json:"expensesId"`
	Amount     float64 `json:"amount"`
}

// RepairInput is the body of a tool or tyre repair create request.
type RepairInput struct {
	OrganisationID string `json:"organisationId"`
	ToolID         string `json:"toolId,omitempty"`
	SerialNo       string `json:"serialNo,omitempty"`
	Date           string `json:"date"`
	RepairType     string `json:"repairType"`
	Description    string `json:"description"`
	ExpenseID      string `json:"expenseId,omitempty"`
	UserID         string `json:"userId"`
}

// Repair is the part of a created repair the simulator reuses.
type Repair struct {
	ID       string `json:"_id"`
	RepairID string `json:"repairId"`
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

var (
	expenseTypes = []string{"fuel", "maintenance", "tolls", "parking", "tyres", "insurance"}
	tyreRepairs  = []string{"puncture", "retread", "valve", "balancing"}
	toolRepairs  = []string{"calibration", "replacement part", "cleaning"}
	remarkTexts  = []string{
		"Receipt attached later",
		"Approved by fleet manager",
		"Driver reported issue on route",
		"Check against supplier invoice",
		"Recurring cost, review next quarter",
	}
)

// Client calls the back office API.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Message: envelope.Message}
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode data: %w", err)
		}
	}
	return nil
}

func (c *Client) CreateExpense(ctx context.Context, in ExpenseInput) (*Expense, error) {
	var expense Expense
	if err := c.do(ctx, http.MethodPost, "/expenses", in, &expense); err != nil {
		return nil, err
	}
	return &expense, nil
}

func (c *Client) UpdateExpenseAmount(ctx context.Context, org, user, id string, amount float64, reason string) error {
	body := map[string]interface{}{
		"_id":            id,
		"organisationId": org,
		"userId":         user,
		"amount":         amount,
		"reason":         reason,
	}
	return c.do(ctx, http.MethodPut, "/expenses", body, nil)
}

// AddRemark posts a remark on a record of resource ("expenses", "tyrerepairs", ...).
func (c *Client) AddRemark(ctx context.Context, resource, org, user, id, text string) error {
	body := map[string]string{"_id": id, "organisationId": org, "userId": user, "remark": text}
	return c.do(ctx, http.MethodPost, "/"+resource+"/remarks", body, nil)
}

func (c *Client) CreateRepair(ctx context.Context, resource string, in RepairInput) (*Repair, error) {
	var repair Repair
	if err := c.do(ctx, http.MethodPost, "/"+resource, in, &repair); err != nil {
		return nil, err
	}
	return &repair, nil
}

// Simulator produces back office traffic for one organisation.
type Simulator struct {
	client *Client
	org    string
	user   string
	tyres  []string
	tools  []string
	rnd    *rand.Rand
}

func randomExpense(rnd *rand.Rand, org, user string, now time.Time) ExpenseInput {
	amount := float64(500+rnd.IntN(50000)) / 100
	return ExpenseInput{
		OrganisationID: org,
		Amount:         amount,
		ExpenseType:    expenseTypes[rnd.IntN(len(expenseTypes))],
		Date:           now.AddDate(0, 0, -rnd.IntN(30)).Format("2006-01-02"),
		UserID:         user,
	}
}

func pick(rnd *rand.Rand, values []string) string {
	return values[rnd.IntN(len(values))]
}

// Step runs one round: an expense, maybe a remark and an amount correction,
// and maybe tyre and tool repairs booked against the expense.
func (s *Simulator) Step(ctx context.Context) error {
	expense, err := s.client.CreateExpense(ctx, randomExpense(s.rnd, s.org, s.user, time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("create expense: %w", err)
	}
	log.WithFields(log.Fields{"expensesId": expense.ExpensesID, "amount": expense.Amount}).Info("Created expense")

	if s.rnd.IntN(2) == 0 {
		if err := s.client.AddRemark(ctx, "expenses", s.org, s.user, expense.ID, pick(s.rnd, remarkTexts)); err != nil {
			log.WithError(err).Warn("Failed to add expense remark")
		}
	}
	if s.rnd.IntN(4) == 0 {
		corrected := expense.Amount + float64(s.rnd.IntN(1000))/100
		if err := s.client.UpdateExpenseAmount(ctx, s.org, s.user, expense.ID, corrected, "Corrected from receipt"); err != nil {
			log.WithError(err).Warn("Failed to update expense")
		}
	}
	if len(s.tyres) > 0 && s.rnd.IntN(3) == 0 {
		s.repair(ctx, "tyrerepairs", RepairInput{SerialNo: pick(s.rnd, s.tyres), RepairType: pick(s.rnd, tyreRepairs)}, expense)
	}
	if len(s.tools) > 0 && s.rnd.IntN(3) == 0 {
		s.repair(ctx, "toolrepairs", RepairInput{ToolID: pick(s.rnd, s.tools), RepairType: pick(s.rnd, toolRepairs)}, expense)
	}
	return nil
}

func (s *Simulator) repair(ctx context.Context, resource string, in RepairInput, expense *Expense) {
	in.OrganisationID = s.org
	in.UserID = s.user
	in.Date = time.Now().UTC().Format("2006-01-02")
	in.ExpenseID = expense.ExpensesID
	in.Description = "Booked by simulator"

	repair, err := s.client.CreateRepair(ctx, resource, in)
	if err != nil {
		log.WithError(err).WithField("resource", resource).Warn("Failed to create repair")
		return
	}
	log.WithFields(log.Fields{"resource": resource, "repairId": repair.RepairID}).Info("Created repair")
	if err := s.client.AddRemark(ctx, resource, s.org, s.user, repair.ID, pick(s.rnd, remarkTexts)); err != nil {
		log.WithError(err).Warn("Failed to add repair remark")
	}
}

// Run calls Step every interval until ctx ends or iterations rounds ran.
// iterations <= 0 runs forever.
func (s *Simulator) Run(ctx context.Context, interval time.Duration, iterations int) {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for i := 0; iterations <= 0 || i < iterations; i++ {
		if err := s.Step(ctx); err != nil {
			log.WithError(err).Error("Simulation step failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}

func envList(name string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(name), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func envInt(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envString(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func main() {
	apiURL := envString("API_BASE_URL", "http://localhost:8080/api")
	interval := time.Duration(envInt("SIM_TICK_SECONDS", 2)) * time.Second
	if interval < time.Second {
		interval = time.Second
	}
	sim := &Simulator{
		// Optional JWT for protected API
		client: NewClient(apiURL, os.Getenv("SIM_AUTH_TOKEN")),
		org:    envString("SIM_ORGANISATION_ID", "demo-org"),
		// Must match the token's user when auth is enabled
		user:  envString("SIM_USER_ID", "simulator"),
		tyres: envList("SIM_TYRES"),
		tools: envList("SIM_TOOLS"),
		rnd:   rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
	}
	iterations := envInt("SIM_ITERATIONS", 0)

	log.WithFields(log.Fields{
		"api_url":         apiURL,
		"organisation_id": sim.org,
		"tyres":           len(sim.tyres),
		"tools":           len(sim.tools),
		"interval":        interval,
	}).Info("Starting back office simulation")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	sim.Run(ctx, interval, iterations)
	log.Info("Simulation stopped")
}
